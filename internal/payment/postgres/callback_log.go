package postgres

import (
	"context"
	"errors"
	"fmt"

	callbackLogDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/callbacklog"
	"github.com/frahmantamala/sacco-management/internal/payment"
	"gorm.io/gorm"
)

type CallbackLogRepository struct {
	db *gorm.DB
}

func NewCallbackLogRepository(db *gorm.DB) *CallbackLogRepository {
	return &CallbackLogRepository{db: db}
}

func (r *CallbackLogRepository) Record(ctx context.Context, log *callbackLogDatamodel.CallbackLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to record callback: %w", err)
	}
	return nil
}

func (r *CallbackLogRepository) UpdateOutcome(ctx context.Context, id int64, outcome string) error {
	err := r.db.WithContext(ctx).
		Model(&callbackLogDatamodel.CallbackLog{}).
		Where("id = ?", id).
		Update("outcome", outcome).Error
	if err != nil {
		return fmt.Errorf("failed to update callback %d outcome: %w", id, err)
	}
	return nil
}

// LatestSuccess returns the newest logged success confirmation for the
// transaction, which is what reconciliation replays.
func (r *CallbackLogRepository) LatestSuccess(ctx context.Context, correlationID string) (*callbackLogDatamodel.CallbackLog, error) {
	var log callbackLogDatamodel.CallbackLog
	err := r.db.WithContext(ctx).
		Where("correlation_id = ? AND result_code = 0", correlationID).
		Order("created_at DESC").
		Order("id DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrCallbackNotFound
		}
		return nil, fmt.Errorf("failed to read callbacks for %s: %w", correlationID, err)
	}
	return &log, nil
}
