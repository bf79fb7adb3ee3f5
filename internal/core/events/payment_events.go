package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentConfirmed = "payment.confirmed"
	EventTypePaymentFailed    = "payment.failed"
)

type PaymentConfirmedEvent struct {
	BaseEvent
	PaymentID        int64           `json:"payment_id"`
	CorrelationID    string          `json:"correlation_id"`
	MemberID         int64           `json:"member_id"`
	VehicleID        int64           `json:"vehicle_id"`
	Amount           decimal.Decimal `json:"amount"`
	ReceiptReference string          `json:"receipt_reference"`
	LoanShare        decimal.Decimal `json:"loan_share"`
	SavingsShare     decimal.Decimal `json:"savings_share"`
}

func NewPaymentConfirmedEvent(paymentID int64, correlationID string, memberID, vehicleID int64, amount decimal.Decimal, receipt string, loanShare, savingsShare decimal.Decimal) *PaymentConfirmedEvent {
	return &PaymentConfirmedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentConfirmed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":        paymentID,
				"correlation_id":    correlationID,
				"member_id":         memberID,
				"vehicle_id":        vehicleID,
				"amount":            amount.String(),
				"receipt_reference": receipt,
			},
		},
		PaymentID:        paymentID,
		CorrelationID:    correlationID,
		MemberID:         memberID,
		VehicleID:        vehicleID,
		Amount:           amount,
		ReceiptReference: receipt,
		LoanShare:        loanShare,
		SavingsShare:     savingsShare,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	CorrelationID string `json:"correlation_id"`
	MemberID      int64  `json:"member_id"`
	VehicleID     int64  `json:"vehicle_id"`
	Status        string `json:"status"`
	ResultCode    int    `json:"result_code"`
	FailureReason string `json:"failure_reason"`
}

func NewPaymentFailedEvent(correlationID string, memberID, vehicleID int64, status string, resultCode int, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"correlation_id": correlationID,
				"member_id":      memberID,
				"vehicle_id":     vehicleID,
				"status":         status,
				"result_code":    resultCode,
				"failure_reason": failureReason,
			},
		},
		CorrelationID: correlationID,
		MemberID:      memberID,
		VehicleID:     vehicleID,
		Status:        status,
		ResultCode:    resultCode,
		FailureReason: failureReason,
	}
}
