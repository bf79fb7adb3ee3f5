package loan

import (
	"errors"
	"time"

	loanDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/loan"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("loan not found")
	ErrAlreadyIssued   = errors.New("loan already issued")
	ErrOutstandingLoan = errors.New("vehicle already has an outstanding loan")
	ErrStaleBalance    = errors.New("loan balance changed during allocation")
)

const (
	StatusPendingApproval = "pending_approval"
	StatusOutstanding     = "outstanding"
	StatusCleared         = "cleared"
)

type Loan struct {
	ID            int64           `json:"loan_id"`
	VehicleID     int64           `json:"vehicle_id"`
	MemberID      int64           `json:"member_id"`
	LoanType      string          `json:"loan_type"`
	AmountApplied decimal.Decimal `json:"amount_applied"`
	AmountIssued  decimal.Decimal `json:"amount_issued"`
	AmountDue     decimal.Decimal `json:"amount_due"`
	Status        string          `json:"status"`
	IssuedAt      *time.Time      `json:"issued_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// status derives the lifecycle stage from the balances.
func status(l *loanDatamodel.Loan) string {
	switch {
	case !l.AmountIssued.IsPositive():
		return StatusPendingApproval
	case l.AmountDue.IsPositive():
		return StatusOutstanding
	default:
		return StatusCleared
	}
}

func IsOutstanding(l *loanDatamodel.Loan) bool {
	return l.AmountIssued.IsPositive() && l.AmountDue.IsPositive()
}

func NewLoan(memberID, vehicleID int64, loanType string, amount decimal.Decimal) *loanDatamodel.Loan {
	return &loanDatamodel.Loan{
		MemberID:      memberID,
		VehicleID:     vehicleID,
		LoanType:      loanType,
		AmountApplied: amount,
		AmountIssued:  decimal.Zero,
		AmountDue:     decimal.Zero,
	}
}

func FromDataModel(l *loanDatamodel.Loan) *Loan {
	return &Loan{
		ID:            l.ID,
		VehicleID:     l.VehicleID,
		MemberID:      l.MemberID,
		LoanType:      l.LoanType,
		AmountApplied: l.AmountApplied,
		AmountIssued:  l.AmountIssued,
		AmountDue:     l.AmountDue,
		Status:        status(l),
		IssuedAt:      l.IssuedAt,
		CreatedAt:     l.CreatedAt,
	}
}
