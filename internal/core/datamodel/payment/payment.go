package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is the audit record of one allocated confirmation. The four shares
// always sum to AmountPaid.
type Payment struct {
	ID               int64           `gorm:"primaryKey"`
	MemberID         int64           `gorm:"column:member_id;not null;index"`
	VehicleID        int64           `gorm:"column:vehicle_id;not null;index"`
	AmountPaid       decimal.Decimal `gorm:"column:amount_paid;type:numeric(14,2);not null"`
	ReceiptReference string          `gorm:"column:receipt_reference;size:32;not null;uniqueIndex"`
	OperationsShare  decimal.Decimal `gorm:"column:operations_share;type:numeric(14,2);not null"`
	InsuranceShare   decimal.Decimal `gorm:"column:insurance_share;type:numeric(14,2);not null"`
	LoanShare        decimal.Decimal `gorm:"column:loan_share;type:numeric(14,2);not null"`
	SavingsShare     decimal.Decimal `gorm:"column:savings_share;type:numeric(14,2);not null"`
	LoanID           *int64          `gorm:"column:loan_id"`
	CorrelationID    string          `gorm:"column:correlation_id;size:64;not null;uniqueIndex"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Payment) TableName() string {
	return "payments"
}
