package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeNormal    = "normal"
	TypeEmergency = "emergency"
)

type Loan struct {
	ID            int64           `gorm:"primaryKey"`
	VehicleID     int64           `gorm:"column:vehicle_id;not null;index"`
	MemberID      int64           `gorm:"column:member_id;not null;index"`
	LoanType      string          `gorm:"column:loan_type;size:16;not null"`
	AmountApplied decimal.Decimal `gorm:"column:amount_applied;type:numeric(14,2);not null"`
	AmountIssued  decimal.Decimal `gorm:"column:amount_issued;type:numeric(14,2);not null;default:0"`
	AmountDue     decimal.Decimal `gorm:"column:amount_due;type:numeric(14,2);not null;default:0"`
	IssuedAt      *time.Time      `gorm:"column:issued_at"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Loan) TableName() string {
	return "loans"
}
