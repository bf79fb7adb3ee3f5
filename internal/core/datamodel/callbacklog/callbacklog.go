package callbacklog

import (
	"time"

	"gorm.io/datatypes"
)

// CallbackLog keeps every raw confirmation delivered by the gateway.
type CallbackLog struct {
	ID            int64          `gorm:"primaryKey"`
	CorrelationID string         `gorm:"column:correlation_id;size:64;index"`
	ResultCode    int            `gorm:"column:result_code"`
	Payload       datatypes.JSON `gorm:"column:payload"`
	Outcome       string         `gorm:"column:outcome;size:32"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (CallbackLog) TableName() string {
	return "callback_logs"
}
