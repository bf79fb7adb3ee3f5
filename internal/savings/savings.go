package savings

import (
	"time"

	savingsDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/savings"
	"github.com/shopspring/decimal"
)

type Entry struct {
	ID            int64           `json:"id"`
	MemberID      int64           `json:"member_id"`
	VehicleID     int64           `json:"vehicle_id"`
	Amount        decimal.Decimal `json:"amount"`
	CorrelationID *string         `json:"correlation_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SavingsResponse struct {
	VehicleID int64           `json:"vehicle_id"`
	Balance   decimal.Decimal `json:"balance"`
	Entries   []*Entry        `json:"entries"`
}

func NewEntry(memberID, vehicleID int64, amount decimal.Decimal, correlationID string) *savingsDatamodel.Entry {
	e := &savingsDatamodel.Entry{
		MemberID:  memberID,
		VehicleID: vehicleID,
		Amount:    amount,
	}
	if correlationID != "" {
		e.CorrelationID = &correlationID
	}
	return e
}

func FromDataModel(e *savingsDatamodel.Entry) *Entry {
	return &Entry{
		ID:            e.ID,
		MemberID:      e.MemberID,
		VehicleID:     e.VehicleID,
		Amount:        e.Amount,
		CorrelationID: e.CorrelationID,
		CreatedAt:     e.CreatedAt,
	}
}
