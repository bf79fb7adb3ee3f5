package loan

import (
	errors "github.com/frahmantamala/sacco-management/internal"
	loanDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/loan"
	"github.com/frahmantamala/sacco-management/internal/core/common/validation"
	"github.com/shopspring/decimal"
)

type ApplyLoanDTO struct {
	VehicleID int64           `json:"vehicle_id"`
	LoanType  string          `json:"loan_type"`
	Amount    decimal.Decimal `json:"amount"`
}

func (d ApplyLoanDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("vehicle_id", d.VehicleID).Required()
	v.Field("loan_type", d.LoanType).Required().OneOf(errors.ErrCodeInvalidLoanType, loanDatamodel.TypeNormal, loanDatamodel.TypeEmergency)
	v.Field("amount", d.Amount).PositiveAmount()
	return v.Validate()
}

// ApproveLoanDTO.Amount defaults to the applied amount when omitted.
type ApproveLoanDTO struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

func (d ApproveLoanDTO) Validate() *errors.AppError {
	if d.Amount == nil {
		return nil
	}
	v := validation.NewValidator()
	v.Field("amount", *d.Amount).PositiveAmount()
	return v.Validate()
}

type LoansResponse struct {
	Loans []*Loan `json:"loans"`
}
