package postgres

import (
	"context"
	"fmt"

	savingsDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/savings"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SavingsRepository struct {
	db *gorm.DB
}

func NewSavingsRepository(db *gorm.DB) *SavingsRepository {
	return &SavingsRepository{db: db}
}

// Credit appends a savings entry. Entries are never updated in place.
func (r *SavingsRepository) Credit(ctx context.Context, e *savingsDatamodel.Entry) error {
	if !e.Amount.IsPositive() {
		return fmt.Errorf("savings credit must be positive, got %s", e.Amount)
	}
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to credit savings for vehicle %d: %w", e.VehicleID, err)
	}
	return nil
}

func (r *SavingsRepository) ListByVehicle(ctx context.Context, vehicleID int64) ([]*savingsDatamodel.Entry, error) {
	var entries []*savingsDatamodel.Entry
	err := r.db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list savings for vehicle %d: %w", vehicleID, err)
	}
	return entries, nil
}

func (r *SavingsRepository) Balance(ctx context.Context, vehicleID int64) (decimal.Decimal, error) {
	var total string
	err := r.db.WithContext(ctx).
		Model(&savingsDatamodel.Entry{}).
		Select("CAST(COALESCE(SUM(amount), 0) AS TEXT)").
		Where("vehicle_id = ?", vehicleID).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum savings for vehicle %d: %w", vehicleID, err)
	}
	return decimal.NewFromString(total)
}
