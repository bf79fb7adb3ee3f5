package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	loanDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/loan"
	"github.com/frahmantamala/sacco-management/internal/loan"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LoanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

func (r *LoanRepository) Create(ctx context.Context, l *loanDatamodel.Loan) error {
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func (r *LoanRepository) GetByID(ctx context.Context, id int64) (*loanDatamodel.Loan, error) {
	var l loanDatamodel.Loan
	if err := r.db.WithContext(ctx).First(&l, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loan.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan %d: %w", id, err)
	}
	return &l, nil
}

func (r *LoanRepository) ListByVehicle(ctx context.Context, vehicleID int64) ([]*loanDatamodel.Loan, error) {
	var loans []*loanDatamodel.Loan
	err := r.db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&loans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list loans for vehicle %d: %w", vehicleID, err)
	}
	return loans, nil
}

// OutstandingForVehicle selects the single repayment target: the most recently
// issued loan with funds out and a positive due, highest id on ties. Returns
// nil when nothing is outstanding. The row is locked until the surrounding
// transaction ends so concurrent settlements for the vehicle serialize.
func (r *LoanRepository) OutstandingForVehicle(ctx context.Context, vehicleID int64) (*loanDatamodel.Loan, error) {
	var l loanDatamodel.Loan
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("vehicle_id = ? AND amount_issued > 0 AND amount_due > 0", vehicleID).
		Order("issued_at DESC").
		Order("id DESC").
		Take(&l).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read outstanding loan for vehicle %d: %w", vehicleID, err)
	}
	return &l, nil
}

func (r *LoanRepository) CountOutstanding(ctx context.Context, vehicleID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&loanDatamodel.Loan{}).
		Where("vehicle_id = ? AND amount_issued > 0 AND amount_due > 0", vehicleID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count outstanding loans for vehicle %d: %w", vehicleID, err)
	}
	return count, nil
}

// DecrementDue lowers amount_due only if the balance still covers amount, so a
// stale read can never push the due below zero.
func (r *LoanRepository) DecrementDue(ctx context.Context, loanID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&loanDatamodel.Loan{}).
		Where("id = ? AND amount_due >= ?", loanID, amount).
		Updates(map[string]interface{}{
			"amount_due": gorm.Expr("amount_due - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to decrement loan %d: %w", loanID, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: loan %d", loan.ErrStaleBalance, loanID)
	}
	return nil
}

// Issue moves a loan out of pending approval. The conditional update keeps a
// loan from being issued twice.
func (r *LoanRepository) Issue(ctx context.Context, loanID int64, amount decimal.Decimal, issuedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&loanDatamodel.Loan{}).
		Where("id = ? AND amount_issued = 0", loanID).
		Updates(map[string]interface{}{
			"amount_issued": amount,
			"amount_due":    amount,
			"issued_at":     issuedAt,
			"updated_at":    issuedAt,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return loan.ErrOutstandingLoan
		}
		return fmt.Errorf("failed to issue loan %d: %w", loanID, res.Error)
	}
	if res.RowsAffected != 1 {
		return loan.ErrAlreadyIssued
	}
	return nil
}
