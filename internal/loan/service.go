package loan

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/frahmantamala/sacco-management/internal"
	loanDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/loan"
	"github.com/frahmantamala/sacco-management/internal/eligibility"
	"github.com/shopspring/decimal"
)

type RepositoryAPI interface {
	Create(ctx context.Context, l *loanDatamodel.Loan) error
	GetByID(ctx context.Context, id int64) (*loanDatamodel.Loan, error)
	ListByVehicle(ctx context.Context, vehicleID int64) ([]*loanDatamodel.Loan, error)
	CountOutstanding(ctx context.Context, vehicleID int64) (int64, error)
	Issue(ctx context.Context, loanID int64, amount decimal.Decimal, issuedAt time.Time) error
}

type EligibilityChecker interface {
	Check(ctx context.Context, memberID, vehicleID int64) (*eligibility.Report, error)
}

type Service struct {
	repo        RepositoryAPI
	eligibility EligibilityChecker
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(repo RepositoryAPI, eligibility EligibilityChecker, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		eligibility: eligibility,
		logger:      logger,
		now:         time.Now,
	}
}

// Apply records a loan request for a vehicle. Only eligible members may apply;
// the refusal carries the evaluator's reason.
func (s *Service) Apply(ctx context.Context, memberID int64, dto ApplyLoanDTO) (*Loan, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	report, err := s.eligibility.Check(ctx, memberID, dto.VehicleID)
	if err != nil {
		switch {
		case errors.Is(err, eligibility.ErrMemberNotFound):
			return nil, apperrors.ErrMemberNotFound
		case errors.Is(err, eligibility.ErrVehicleNotFound):
			return nil, apperrors.ErrVehicleNotFound
		}
		s.logger.Error("failed to evaluate loan eligibility", "member_id", memberID, "vehicle_id", dto.VehicleID, "error", err)
		return nil, apperrors.NewInternalError("failed to evaluate eligibility", err)
	}
	if !report.Eligible {
		s.logger.Info("loan application refused", "member_id", memberID, "vehicle_id", dto.VehicleID, "reason", report.Reason)
		return nil, apperrors.NewValidationError(report.Reason, apperrors.ErrCodeNotEligible).WithDetails(report)
	}

	l := NewLoan(memberID, dto.VehicleID, dto.LoanType, dto.Amount)
	if err := s.repo.Create(ctx, l); err != nil {
		s.logger.Error("failed to create loan", "member_id", memberID, "vehicle_id", dto.VehicleID, "error", err)
		return nil, apperrors.NewInternalError("failed to create loan", err)
	}

	s.logger.Info("loan application recorded", "loan_id", l.ID, "member_id", memberID, "vehicle_id", dto.VehicleID, "amount", dto.Amount.String())
	return FromDataModel(l), nil
}

// Approve issues a pending loan. A vehicle may carry at most one outstanding
// loan, which keeps the allocation's repayment target unambiguous.
func (s *Service) Approve(ctx context.Context, loanID int64, dto ApproveLoanDTO) (*Loan, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	l, err := s.repo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrLoanNotFound
		}
		return nil, apperrors.NewInternalError("failed to load loan", err)
	}
	if l.AmountIssued.IsPositive() {
		return nil, apperrors.NewConflictError("Loan has already been issued", apperrors.ErrCodeLoanAlreadyIssued)
	}

	outstanding, err := s.repo.CountOutstanding(ctx, l.VehicleID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to check outstanding loans", err)
	}
	if outstanding > 0 {
		s.logger.Warn("loan approval refused: outstanding loan exists", "loan_id", loanID, "vehicle_id", l.VehicleID, "outstanding", outstanding)
		return nil, apperrors.NewConflictError("Vehicle already has an outstanding loan", apperrors.ErrCodeOutstandingLoan)
	}

	amount := l.AmountApplied
	if dto.Amount != nil {
		amount = *dto.Amount
	}

	issuedAt := s.now().UTC()
	if err := s.repo.Issue(ctx, loanID, amount, issuedAt); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyIssued):
			return nil, apperrors.NewConflictError("Loan has already been issued", apperrors.ErrCodeLoanAlreadyIssued)
		case errors.Is(err, ErrOutstandingLoan):
			return nil, apperrors.NewConflictError("Vehicle already has an outstanding loan", apperrors.ErrCodeOutstandingLoan)
		}
		return nil, apperrors.NewInternalError("failed to issue loan", err)
	}

	l.AmountIssued = amount
	l.AmountDue = amount
	l.IssuedAt = &issuedAt

	s.logger.Info("loan issued", "loan_id", loanID, "vehicle_id", l.VehicleID, "amount", amount.String())
	return FromDataModel(l), nil
}

func (s *Service) ListByVehicle(ctx context.Context, vehicleID int64) ([]*Loan, error) {
	loans, err := s.repo.ListByVehicle(ctx, vehicleID)
	if err != nil {
		s.logger.Error("failed to list loans", "vehicle_id", vehicleID, "error", err)
		return nil, apperrors.NewInternalError("failed to list loans", err)
	}

	result := make([]*Loan, 0, len(loans))
	for _, l := range loans {
		result = append(result, FromDataModel(l))
	}
	return result, nil
}
