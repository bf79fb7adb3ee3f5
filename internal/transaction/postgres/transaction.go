package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	transactionDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/transaction"
	"github.com/frahmantamala/sacco-management/internal/transaction"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) RecordInitiated(ctx context.Context, txn *transactionDatamodel.PendingTransaction) error {
	txn.Status = transactionDatamodel.StatusPending
	txn.ResultCode = nil
	txn.ResultDescription = nil
	txn.ReceiptReference = nil

	err := r.db.WithContext(ctx).Create(txn).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || r.exists(ctx, txn.CorrelationID) {
		return &transaction.DuplicateCorrelationError{CorrelationID: txn.CorrelationID}
	}
	return fmt.Errorf("failed to record pending transaction: %w", err)
}

func (r *TransactionRepository) exists(ctx context.Context, correlationID string) bool {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&transactionDatamodel.PendingTransaction{}).
		Where("correlation_id = ?", correlationID).
		Count(&count).Error
	return err == nil && count > 0
}

// MarkTerminal performs the pending->terminal transition as one conditional
// update. applied is false when the row was already terminal; that is not an
// error.
func (r *TransactionRepository) MarkTerminal(ctx context.Context, update transaction.TerminalUpdate) (bool, error) {
	if err := update.Validate(); err != nil {
		return false, err
	}

	res := r.db.WithContext(ctx).
		Model(&transactionDatamodel.PendingTransaction{}).
		Where("correlation_id = ? AND status = ?", update.CorrelationID, transactionDatamodel.StatusPending).
		Updates(map[string]interface{}{
			"status":             update.Status,
			"result_code":        update.ResultCode,
			"result_description": update.ResultDescription,
			"receipt_reference":  update.ReceiptReference,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark transaction %s %s: %w", update.CorrelationID, update.Status, res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	if !r.exists(ctx, update.CorrelationID) {
		return false, transaction.ErrNotFound
	}
	return false, nil
}

func (r *TransactionRepository) Lookup(ctx context.Context, correlationID string) (*transactionDatamodel.PendingTransaction, error) {
	var txn transactionDatamodel.PendingTransaction
	err := r.db.WithContext(ctx).Where("correlation_id = ?", correlationID).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, transaction.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up transaction %s: %w", correlationID, err)
	}
	return &txn, nil
}

// ListStalePending returns pending rows created before the cutoff, oldest first.
func (r *TransactionRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*transactionDatamodel.PendingTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txns []*transactionDatamodel.PendingTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", transactionDatamodel.StatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending transactions: %w", err)
	}
	return txns, nil
}

// ListConfirmedPending returns pending rows created before the cutoff that
// have a logged success confirmation, oldest first. Rows the gateway never
// answered are skipped so they cannot fill every batch.
func (r *TransactionRepository) ListConfirmedPending(ctx context.Context, before time.Time, limit int) ([]*transactionDatamodel.PendingTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txns []*transactionDatamodel.PendingTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", transactionDatamodel.StatusPending, before).
		Where("EXISTS (SELECT 1 FROM callback_logs WHERE callback_logs.correlation_id = pending_transactions.correlation_id AND callback_logs.result_code = 0)").
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed pending transactions: %w", err)
	}
	return txns, nil
}
