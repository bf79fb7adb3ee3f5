package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/frahmantamala/sacco-management/internal/eligibility"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// EligibilityStore reads member, savings and loan state with plain SQL.
type EligibilityStore struct {
	db *sqlx.DB

	vehicleOwnerQuery     string
	shareCapitalQuery     string
	savingsBalanceQuery   string
	outstandingLoansQuery string
}

func NewEligibilityStore(db *sqlx.DB) *EligibilityStore {
	return &EligibilityStore{
		db:                db,
		vehicleOwnerQuery: db.Rebind(`SELECT member_id FROM vehicles WHERE id = ?`),
		shareCapitalQuery: db.Rebind(`SELECT share_capital_paid FROM members WHERE id = ?`),
		savingsBalanceQuery: db.Rebind(`
			SELECT CAST(COALESCE(SUM(amount), 0) AS TEXT)
			FROM savings
			WHERE vehicle_id = ?`),
		outstandingLoansQuery: db.Rebind(`
			SELECT COUNT(*) AS outstanding, CAST(COALESCE(SUM(amount_due), 0) AS TEXT) AS due
			FROM loans
			WHERE vehicle_id = ? AND amount_issued > 0 AND amount_due > 0`),
	}
}

func (s *EligibilityStore) VehicleOwner(ctx context.Context, vehicleID int64) (int64, error) {
	var ownerID int64
	if err := s.db.GetContext(ctx, &ownerID, s.vehicleOwnerQuery, vehicleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, eligibility.ErrVehicleNotFound
		}
		return 0, fmt.Errorf("failed to read vehicle %d: %w", vehicleID, err)
	}
	return ownerID, nil
}

func (s *EligibilityStore) ShareCapitalPaid(ctx context.Context, memberID int64) (bool, error) {
	var paid bool
	if err := s.db.GetContext(ctx, &paid, s.shareCapitalQuery, memberID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, eligibility.ErrMemberNotFound
		}
		return false, fmt.Errorf("failed to read member %d: %w", memberID, err)
	}
	return paid, nil
}

func (s *EligibilityStore) SavingsBalance(ctx context.Context, vehicleID int64) (decimal.Decimal, error) {
	var balance string
	if err := s.db.GetContext(ctx, &balance, s.savingsBalanceQuery, vehicleID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum savings for vehicle %d: %w", vehicleID, err)
	}
	return decimal.NewFromString(balance)
}

func (s *EligibilityStore) OutstandingLoans(ctx context.Context, vehicleID int64) (int64, decimal.Decimal, error) {
	var row struct {
		Outstanding int64  `db:"outstanding"`
		Due         string `db:"due"`
	}
	if err := s.db.GetContext(ctx, &row, s.outstandingLoansQuery, vehicleID); err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to read loans for vehicle %d: %w", vehicleID, err)
	}
	due, err := decimal.NewFromString(row.Due)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to parse loan due %q: %w", row.Due, err)
	}
	return row.Outstanding, due, nil
}
