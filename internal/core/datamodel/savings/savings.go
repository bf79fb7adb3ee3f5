package savings

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry is append-only; corrections are new entries.
type Entry struct {
	ID            int64           `gorm:"primaryKey"`
	MemberID      int64           `gorm:"column:member_id;not null;index"`
	VehicleID     int64           `gorm:"column:vehicle_id;not null;index"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	CorrelationID *string         `gorm:"column:correlation_id;size:64"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Entry) TableName() string {
	return "savings"
}
