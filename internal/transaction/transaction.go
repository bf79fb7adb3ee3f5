package transaction

import (
	"errors"
	"fmt"

	transactionDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/transaction"
)

var (
	ErrNotFound             = errors.New("pending transaction not found")
	ErrDuplicateCorrelation = errors.New("duplicate correlation id")
	ErrInvalidTransition    = errors.New("invalid status transition")
)

// DuplicateCorrelationError is returned by RecordInitiated when the gateway
// correlation id is already on record.
type DuplicateCorrelationError struct {
	CorrelationID string
}

func (e *DuplicateCorrelationError) Error() string {
	return fmt.Sprintf("correlation id %s already recorded", e.CorrelationID)
}

func (e *DuplicateCorrelationError) Is(target error) bool {
	return target == ErrDuplicateCorrelation
}

// TerminalUpdate moves a pending transaction to one of the terminal statuses.
type TerminalUpdate struct {
	CorrelationID     string
	Status            string
	ResultCode        int
	ResultDescription string
	ReceiptReference  *string
}

func (u TerminalUpdate) Validate() error {
	if u.CorrelationID == "" {
		return fmt.Errorf("%w: correlation id is required", ErrInvalidTransition)
	}
	if !transactionDatamodel.IsTerminalStatus(u.Status) {
		return fmt.Errorf("%w: %q is not a terminal status", ErrInvalidTransition, u.Status)
	}
	if u.Status == transactionDatamodel.StatusSuccessful && (u.ReceiptReference == nil || *u.ReceiptReference == "") {
		return fmt.Errorf("%w: successful transactions need a receipt reference", ErrInvalidTransition)
	}
	if u.Status != transactionDatamodel.StatusSuccessful && u.ReceiptReference != nil {
		return fmt.Errorf("%w: only successful transactions carry a receipt reference", ErrInvalidTransition)
	}
	return nil
}
