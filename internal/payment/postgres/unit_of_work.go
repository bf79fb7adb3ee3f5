package postgres

import (
	"context"

	loanPostgres "github.com/frahmantamala/sacco-management/internal/loan/postgres"
	"github.com/frahmantamala/sacco-management/internal/payment"
	savingsPostgres "github.com/frahmantamala/sacco-management/internal/savings/postgres"
	transactionPostgres "github.com/frahmantamala/sacco-management/internal/transaction/postgres"
	"gorm.io/gorm"
)

// UnitOfWork binds the settlement repositories to a single gorm transaction.
type UnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) Do(ctx context.Context, fn func(repos payment.Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(Bind(tx))
	})
}

func Bind(db *gorm.DB) payment.Repositories {
	return payment.Repositories{
		Transactions: transactionPostgres.NewTransactionRepository(db),
		Loans:        loanPostgres.NewLoanRepository(db),
		Savings:      savingsPostgres.NewSavingsRepository(db),
		Payments:     NewPaymentRepository(db),
	}
}
