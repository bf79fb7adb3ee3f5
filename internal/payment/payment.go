package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	callbackLogDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/callbacklog"
	loanDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/loan"
	paymentDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/payment"
	savingsDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/savings"
	transactionDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/transaction"
	"github.com/frahmantamala/sacco-management/internal/mpesa"
	"github.com/frahmantamala/sacco-management/internal/transaction"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("payment not found")
	ErrCallbackNotFound = errors.New("no success callback on record")

	errAlreadySettled = errors.New("transaction settled concurrently")
)

// Outcome names what the processor did with one confirmation. It is stored
// alongside the raw callback for operators.
type Outcome string

const (
	OutcomeUnknownTransaction Outcome = "unknown_transaction"
	OutcomeAlreadyTerminal    Outcome = "already_terminal"
	OutcomeCanceled           Outcome = "canceled"
	OutcomeFailed             Outcome = "failed"
	OutcomeUnparsable         Outcome = "unparsable"
	OutcomeSettled            Outcome = "settled"
	OutcomeSettlementFailed   Outcome = "settlement_failed"
	OutcomeStoreError         Outcome = "store_error"
	OutcomeMalformed          Outcome = "malformed"
	OutcomeRejected           Outcome = "rejected"
)

// AllocationPersistenceError reports a settlement that was rolled back. The
// transaction stays pending and can be reconciled later.
type AllocationPersistenceError struct {
	CorrelationID string
	Step          string
	Err           error
}

func (e *AllocationPersistenceError) Error() string {
	return fmt.Sprintf("allocation for %s failed at %s: %v", e.CorrelationID, e.Step, e.Err)
}

func (e *AllocationPersistenceError) Unwrap() error {
	return e.Err
}

// Callback is a decoded gateway confirmation.
type Callback struct {
	CorrelationID     string
	MerchantRequestID string
	ResultCode        int
	ResultDescription string
	Amount            decimal.Decimal
	HasAmount         bool
	ReceiptReference  string
}

func CallbackFromSTK(cb mpesa.STKCallback) Callback {
	c := Callback{
		CorrelationID:     cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		ResultCode:        cb.ResultCode,
		ResultDescription: cb.ResultDesc,
	}
	c.Amount, c.HasAmount = cb.ConfirmedAmount()
	c.ReceiptReference, _ = cb.ReceiptNumber()
	return c
}

func (c Callback) IsSuccess() bool {
	return c.ResultCode == mpesa.ResultCodeSuccess
}

type TransactionStore interface {
	Lookup(ctx context.Context, correlationID string) (*transactionDatamodel.PendingTransaction, error)
	MarkTerminal(ctx context.Context, update transaction.TerminalUpdate) (bool, error)
}

type LoanStore interface {
	OutstandingForVehicle(ctx context.Context, vehicleID int64) (*loanDatamodel.Loan, error)
	DecrementDue(ctx context.Context, loanID int64, amount decimal.Decimal) error
}

type SavingsStore interface {
	Credit(ctx context.Context, e *savingsDatamodel.Entry) error
}

type PaymentStore interface {
	Create(ctx context.Context, p *paymentDatamodel.Payment) error
}

// Repositories are the stores a settlement writes through, all bound to the
// same database transaction.
type Repositories struct {
	Transactions TransactionStore
	Loans        LoanStore
	Savings      SavingsStore
	Payments     PaymentStore
}

// UnitOfWork runs fn atomically. Returning an error from fn rolls back every
// write made through the supplied repositories.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(repos Repositories) error) error
}

type CallbackLogStore interface {
	Record(ctx context.Context, log *callbackLogDatamodel.CallbackLog) error
	UpdateOutcome(ctx context.Context, id int64, outcome string) error
	LatestSuccess(ctx context.Context, correlationID string) (*callbackLogDatamodel.CallbackLog, error)
}

type Payment struct {
	ID               int64           `json:"payment_id"`
	MemberID         int64           `json:"member_id"`
	VehicleID        int64           `json:"vehicle_id"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	ReceiptReference string          `json:"receipt_reference"`
	OperationsShare  decimal.Decimal `json:"operations_share"`
	InsuranceShare   decimal.Decimal `json:"insurance_share"`
	LoanShare        decimal.Decimal `json:"loan_share"`
	SavingsShare     decimal.Decimal `json:"savings_share"`
	LoanID           *int64          `json:"loan_id,omitempty"`
	CorrelationID    string          `json:"correlation_id"`
	CreatedAt        time.Time       `json:"created_at"`
}

func FromDataModel(p *paymentDatamodel.Payment) *Payment {
	return &Payment{
		ID:               p.ID,
		MemberID:         p.MemberID,
		VehicleID:        p.VehicleID,
		AmountPaid:       p.AmountPaid,
		ReceiptReference: p.ReceiptReference,
		OperationsShare:  p.OperationsShare,
		InsuranceShare:   p.InsuranceShare,
		LoanShare:        p.LoanShare,
		SavingsShare:     p.SavingsShare,
		LoanID:           p.LoanID,
		CorrelationID:    p.CorrelationID,
		CreatedAt:        p.CreatedAt,
	}
}

type Transaction struct {
	CorrelationID     string          `json:"correlation_id"`
	MemberID          int64           `json:"member_id"`
	VehicleID         int64           `json:"vehicle_id"`
	RequestedAmount   decimal.Decimal `json:"requested_amount"`
	Status            string          `json:"status"`
	ResultCode        *int            `json:"result_code,omitempty"`
	ResultDescription *string         `json:"result_description,omitempty"`
	ReceiptReference  *string         `json:"receipt_reference,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func TransactionFromDataModel(t *transactionDatamodel.PendingTransaction) *Transaction {
	return &Transaction{
		CorrelationID:     t.CorrelationID,
		MemberID:          t.MemberID,
		VehicleID:         t.VehicleID,
		RequestedAmount:   t.RequestedAmount,
		Status:            t.Status,
		ResultCode:        t.ResultCode,
		ResultDescription: t.ResultDescription,
		ReceiptReference:  t.ReceiptReference,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}
