package eligibility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var (
	ErrMemberNotFound  = errors.New("member not found")
	ErrVehicleNotFound = errors.New("vehicle not found")
)

const (
	ReasonShareCapitalNotPaid = "Share capital not paid"
	ReasonOutstandingLoan     = "Outstanding loan balance"
	ReasonNoSavings           = "No savings balance"
	ReasonEligible            = "Eligible"
)

type Report struct {
	MemberID         int64           `json:"member_id"`
	VehicleID        int64           `json:"vehicle_id"`
	Approved         bool            `json:"approved"`
	SavingsBalance   decimal.Decimal `json:"savings_balance"`
	OutstandingLoans int64           `json:"outstanding_loans"`
	OutstandingDue   decimal.Decimal `json:"outstanding_due"`
	Eligible         bool            `json:"eligible"`
	Reason           string          `json:"reason"`
}

// Decide applies the loan policy to the gathered facts. The reason reported
// is the first failing condition in precedence order.
func Decide(approved bool, savings decimal.Decimal, outstanding int64) (bool, string) {
	switch {
	case !approved:
		return false, ReasonShareCapitalNotPaid
	case outstanding > 0:
		return false, ReasonOutstandingLoan
	case !savings.IsPositive():
		return false, ReasonNoSavings
	default:
		return true, ReasonEligible
	}
}

type Store interface {
	// VehicleOwner returns ErrVehicleNotFound for an unknown vehicle.
	VehicleOwner(ctx context.Context, vehicleID int64) (int64, error)
	// ShareCapitalPaid returns ErrMemberNotFound for an unknown member.
	ShareCapitalPaid(ctx context.Context, memberID int64) (bool, error)
	SavingsBalance(ctx context.Context, vehicleID int64) (decimal.Decimal, error)
	OutstandingLoans(ctx context.Context, vehicleID int64) (int64, decimal.Decimal, error)
}

// Evaluator answers whether a member may take a new loan against a vehicle.
// It only reads.
type Evaluator struct {
	store  Store
	logger *slog.Logger
}

func NewEvaluator(store Store, logger *slog.Logger) *Evaluator {
	return &Evaluator{store: store, logger: logger}
}

func (e *Evaluator) Check(ctx context.Context, memberID, vehicleID int64) (*Report, error) {
	report := &Report{MemberID: memberID, VehicleID: vehicleID}
	var ownerID int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id, err := e.store.VehicleOwner(gctx, vehicleID)
		if err != nil {
			return err
		}
		ownerID = id
		return nil
	})
	g.Go(func() error {
		paid, err := e.store.ShareCapitalPaid(gctx, memberID)
		if err != nil {
			return err
		}
		report.Approved = paid
		return nil
	})
	g.Go(func() error {
		balance, err := e.store.SavingsBalance(gctx, vehicleID)
		if err != nil {
			return fmt.Errorf("savings balance: %w", err)
		}
		report.SavingsBalance = balance
		return nil
	})
	g.Go(func() error {
		count, due, err := e.store.OutstandingLoans(gctx, vehicleID)
		if err != nil {
			return fmt.Errorf("outstanding loans: %w", err)
		}
		report.OutstandingLoans = count
		report.OutstandingDue = due
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if ownerID != memberID {
		return nil, ErrVehicleNotFound
	}

	report.Eligible, report.Reason = Decide(report.Approved, report.SavingsBalance, report.OutstandingLoans)

	e.logger.Debug("eligibility evaluated",
		"member_id", memberID,
		"vehicle_id", vehicleID,
		"eligible", report.Eligible,
		"reason", report.Reason)
	return report, nil
}
