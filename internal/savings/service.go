package savings

import (
	"context"
	"log/slog"

	apperrors "github.com/frahmantamala/sacco-management/internal"
	savingsDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/savings"
	"github.com/shopspring/decimal"
)

type RepositoryAPI interface {
	ListByVehicle(ctx context.Context, vehicleID int64) ([]*savingsDatamodel.Entry, error)
	Balance(ctx context.Context, vehicleID int64) (decimal.Decimal, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) ForVehicle(ctx context.Context, vehicleID int64) (*SavingsResponse, error) {
	entries, err := s.repo.ListByVehicle(ctx, vehicleID)
	if err != nil {
		s.logger.Error("failed to list savings", "vehicle_id", vehicleID, "error", err)
		return nil, apperrors.NewInternalError("failed to list savings", err)
	}
	balance, err := s.repo.Balance(ctx, vehicleID)
	if err != nil {
		s.logger.Error("failed to read savings balance", "vehicle_id", vehicleID, "error", err)
		return nil, apperrors.NewInternalError("failed to read savings balance", err)
	}

	resp := &SavingsResponse{
		VehicleID: vehicleID,
		Balance:   balance,
		Entries:   make([]*Entry, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, FromDataModel(e))
	}
	return resp, nil
}
