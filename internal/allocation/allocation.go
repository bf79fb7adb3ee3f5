// Package allocation splits a confirmed payment across the SACCO's obligations.
package allocation

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNegativeAmount = errors.New("allocation: confirmed amount cannot be negative")

// Caps bound the first two tiers of the waterfall.
type Caps struct {
	Operations decimal.Decimal
	Insurance  decimal.Decimal
}

func DefaultCaps() Caps {
	return Caps{
		Operations: decimal.NewFromInt(250),
		Insurance:  decimal.NewFromInt(250),
	}
}

// Outstanding is the repayment target selected for the vehicle, if any.
type Outstanding struct {
	LoanID    int64
	AmountDue decimal.Decimal
}

type Split struct {
	Operations decimal.Decimal `json:"operations_share"`
	Insurance  decimal.Decimal `json:"insurance_share"`
	Loan       decimal.Decimal `json:"loan_share"`
	Savings    decimal.Decimal `json:"savings_share"`
	LoanID     *int64          `json:"loan_id,omitempty"`
}

func (s Split) Total() decimal.Decimal {
	return s.Operations.Add(s.Insurance).Add(s.Loan).Add(s.Savings)
}

type Engine struct {
	caps Caps
}

func NewEngine(caps Caps) *Engine {
	return &Engine{caps: caps}
}

func (e *Engine) Caps() Caps {
	return e.caps
}

// Allocate runs the waterfall operations, insurance, loan, savings. Each tier
// takes min(remaining, limit) so the remainder never goes negative and the
// four shares always add back up to amount.
func (e *Engine) Allocate(amount decimal.Decimal, outstanding *Outstanding) (Split, error) {
	if amount.IsNegative() {
		return Split{}, ErrNegativeAmount
	}

	remaining := amount
	take := func(limit decimal.Decimal) decimal.Decimal {
		if limit.IsNegative() {
			limit = decimal.Zero
		}
		share := decimal.Min(remaining, limit)
		remaining = remaining.Sub(share)
		return share
	}

	split := Split{
		Operations: take(e.caps.Operations),
		Insurance:  take(e.caps.Insurance),
		Loan:       decimal.Zero,
	}

	if outstanding != nil && outstanding.AmountDue.IsPositive() {
		split.Loan = take(outstanding.AmountDue)
		if split.Loan.IsPositive() {
			loanID := outstanding.LoanID
			split.LoanID = &loanID
		}
	}

	split.Savings = remaining
	return split, nil
}
