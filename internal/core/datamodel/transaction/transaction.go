package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending    = "pending"
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// PendingTransaction tracks one push payment from initiation to its terminal outcome.
type PendingTransaction struct {
	CorrelationID     string          `gorm:"column:correlation_id;primaryKey;size:64"`
	MerchantRequestID string          `gorm:"column:merchant_request_id;size:64"`
	MemberID          int64           `gorm:"column:member_id;not null;index"`
	VehicleID         int64           `gorm:"column:vehicle_id;not null;index"`
	PhoneNumber       string          `gorm:"column:phone_number;size:20"`
	RequestedAmount   decimal.Decimal `gorm:"column:requested_amount;type:numeric(14,2);not null"`
	Status            string          `gorm:"column:status;size:16;not null;default:pending;index"`
	ResultCode        *int            `gorm:"column:result_code"`
	ResultDescription *string         `gorm:"column:result_description"`
	ReceiptReference  *string         `gorm:"column:receipt_reference;size:32"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (PendingTransaction) TableName() string {
	return "pending_transactions"
}

func (t *PendingTransaction) IsTerminal() bool {
	return t.Status != StatusPending
}

func IsTerminalStatus(status string) bool {
	switch status {
	case StatusSuccessful, StatusFailed, StatusCanceled:
		return true
	}
	return false
}
