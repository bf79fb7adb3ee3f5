package payment

import (
	errors "github.com/frahmantamala/sacco-management/internal"
	"github.com/frahmantamala/sacco-management/internal/core/common/validation"
	"github.com/shopspring/decimal"
)

// InitiatePaymentDTO starts a push payment. PhoneNumber defaults to the
// member's registered number.
type InitiatePaymentDTO struct {
	VehicleID   int64           `json:"vehicle_id"`
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phone_number,omitempty"`
}

func (d InitiatePaymentDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("vehicle_id", d.VehicleID).Required()
	v.Field("amount", d.Amount).PositiveAmount()
	if d.PhoneNumber != "" {
		v.Field("phone_number", d.PhoneNumber).MSISDN()
	}
	return v.Validate()
}

type InitiatePaymentResponse struct {
	CorrelationID   string          `json:"correlation_id"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	CustomerMessage string          `json:"customer_message,omitempty"`
}

type PaymentsResponse struct {
	Payments []*Payment `json:"payments"`
}

type ReconcileResponse struct {
	CorrelationID string       `json:"correlation_id"`
	Outcome       Outcome      `json:"outcome"`
	Transaction   *Transaction `json:"transaction"`
	Payment       *Payment     `json:"payment,omitempty"`
}
