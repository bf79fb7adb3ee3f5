package postgres

import (
	"context"
	"errors"
	"fmt"

	paymentDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/payment"
	"github.com/frahmantamala/sacco-management/internal/payment"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts the audit row. The unique correlation id backstops the
// one-payment-per-transaction rule.
func (r *PaymentRepository) Create(ctx context.Context, p *paymentDatamodel.Payment) error {
	total := p.OperationsShare.Add(p.InsuranceShare).Add(p.LoanShare).Add(p.SavingsShare)
	if !total.Equal(p.AmountPaid) {
		return fmt.Errorf("payment shares %s do not add up to %s", total, p.AmountPaid)
	}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to insert payment for %s: %w", p.CorrelationID, err)
	}
	return nil
}

func (r *PaymentRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*paymentDatamodel.Payment, error) {
	var p paymentDatamodel.Payment
	err := r.db.WithContext(ctx).Where("correlation_id = ?", correlationID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment for %s: %w", correlationID, err)
	}
	return &p, nil
}

func (r *PaymentRepository) ListByVehicle(ctx context.Context, vehicleID int64) ([]*paymentDatamodel.Payment, error) {
	var payments []*paymentDatamodel.Payment
	err := r.db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for vehicle %d: %w", vehicleID, err)
	}
	return payments, nil
}

func (r *PaymentRepository) Count(ctx context.Context, correlationID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&paymentDatamodel.Payment{}).
		Where("correlation_id = ?", correlationID).
		Count(&count).Error
	return count, err
}
