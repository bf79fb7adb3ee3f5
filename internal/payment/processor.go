package payment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/sacco-management/internal/allocation"
	paymentDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/payment"
	transactionDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/transaction"
	"github.com/frahmantamala/sacco-management/internal/core/events"
	"github.com/frahmantamala/sacco-management/internal/mpesa"
	"github.com/frahmantamala/sacco-management/internal/savings"
	"github.com/frahmantamala/sacco-management/internal/transaction"
)

// CallbackProcessor drives a pending transaction to its terminal state and,
// on success, settles the confirmed amount across the ledgers.
type CallbackProcessor struct {
	transactions TransactionStore
	uow          UnitOfWork
	engine       *allocation.Engine
	publisher    events.Publisher
	logger       *slog.Logger
}

func NewCallbackProcessor(transactions TransactionStore, uow UnitOfWork, engine *allocation.Engine, publisher events.Publisher, logger *slog.Logger) *CallbackProcessor {
	return &CallbackProcessor{
		transactions: transactions,
		uow:          uow,
		engine:       engine,
		publisher:    publisher,
		logger:       logger,
	}
}

// Process never returns an error: every branch ends in an acknowledgement to
// the gateway and the outcome is only reported back for logging.
func (p *CallbackProcessor) Process(ctx context.Context, cb Callback) Outcome {
	logger := p.logger.With("correlation_id", cb.CorrelationID, "result_code", cb.ResultCode)

	txn, err := p.transactions.Lookup(ctx, cb.CorrelationID)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			logger.Warn("callback for unknown transaction")
			return OutcomeUnknownTransaction
		}
		logger.Error("failed to look up transaction for callback", "error", err)
		return OutcomeStoreError
	}

	if txn.IsTerminal() {
		logger.Info("duplicate callback for terminal transaction", "status", txn.Status)
		return OutcomeAlreadyTerminal
	}

	switch {
	case cb.ResultCode == mpesa.ResultCodeUserCanceled:
		return p.markUnsuccessful(ctx, logger, txn, cb, transactionDatamodel.StatusCanceled)
	case !cb.IsSuccess():
		return p.markUnsuccessful(ctx, logger, txn, cb, transactionDatamodel.StatusFailed)
	}

	// Ledger columns are numeric(12,2); finer amounts cannot be stored exactly.
	if !cb.HasAmount || !cb.Amount.IsPositive() || !cb.Amount.Equal(cb.Amount.Round(2)) || cb.ReceiptReference == "" {
		logger.Error("success callback without usable amount or receipt; left pending",
			"has_amount", cb.HasAmount,
			"amount", cb.Amount.String(),
			"receipt", cb.ReceiptReference)
		return OutcomeUnparsable
	}

	if !cb.Amount.Equal(txn.RequestedAmount) {
		logger.Warn("confirmed amount differs from requested; allocating confirmed",
			"requested", txn.RequestedAmount.String(),
			"confirmed", cb.Amount.String())
	}

	return p.settle(ctx, logger, txn, cb)
}

func (p *CallbackProcessor) markUnsuccessful(ctx context.Context, logger *slog.Logger, txn *transactionDatamodel.PendingTransaction, cb Callback, status string) Outcome {
	applied, err := p.transactions.MarkTerminal(ctx, transaction.TerminalUpdate{
		CorrelationID:     txn.CorrelationID,
		Status:            status,
		ResultCode:        cb.ResultCode,
		ResultDescription: cb.ResultDescription,
	})
	if err != nil {
		logger.Error("failed to record unsuccessful payment", "status", status, "error", err)
		return OutcomeStoreError
	}
	if !applied {
		logger.Info("transaction already terminal; callback ignored", "status", status)
		return OutcomeAlreadyTerminal
	}

	logger.Info("payment not completed", "status", status, "result_description", cb.ResultDescription)
	_ = p.publisher.Publish(ctx, events.NewPaymentFailedEvent(txn.CorrelationID, txn.MemberID, txn.VehicleID, status, cb.ResultCode, cb.ResultDescription))

	if status == transactionDatamodel.StatusCanceled {
		return OutcomeCanceled
	}
	return OutcomeFailed
}

// settle claims the transaction and writes the allocation in one database
// transaction. The status claim comes first so a concurrent duplicate loses
// before it reads any balance.
func (p *CallbackProcessor) settle(ctx context.Context, logger *slog.Logger, txn *transactionDatamodel.PendingTransaction, cb Callback) Outcome {
	var (
		split   allocation.Split
		payment *paymentDatamodel.Payment
	)

	err := p.uow.Do(ctx, func(repos Repositories) error {
		receipt := cb.ReceiptReference
		applied, err := repos.Transactions.MarkTerminal(ctx, transaction.TerminalUpdate{
			CorrelationID:     txn.CorrelationID,
			Status:            transactionDatamodel.StatusSuccessful,
			ResultCode:        cb.ResultCode,
			ResultDescription: cb.ResultDescription,
			ReceiptReference:  &receipt,
		})
		if err != nil {
			return &AllocationPersistenceError{CorrelationID: txn.CorrelationID, Step: "mark_successful", Err: err}
		}
		if !applied {
			return errAlreadySettled
		}

		loan, err := repos.Loans.OutstandingForVehicle(ctx, txn.VehicleID)
		if err != nil {
			return &AllocationPersistenceError{CorrelationID: txn.CorrelationID, Step: "read_loan", Err: err}
		}
		var outstanding *allocation.Outstanding
		if loan != nil {
			outstanding = &allocation.Outstanding{LoanID: loan.ID, AmountDue: loan.AmountDue}
		}

		split, err = p.engine.Allocate(cb.Amount, outstanding)
		if err != nil {
			return &AllocationPersistenceError{CorrelationID: txn.CorrelationID, Step: "allocate", Err: err}
		}

		if split.LoanID != nil && split.Loan.IsPositive() {
			if err := repos.Loans.DecrementDue(ctx, *split.LoanID, split.Loan); err != nil {
				return &AllocationPersistenceError{CorrelationID: txn.CorrelationID, Step: "decrement_loan", Err: err}
			}
		}

		if split.Savings.IsPositive() {
			entry := savings.NewEntry(txn.MemberID, txn.VehicleID, split.Savings, txn.CorrelationID)
			if err := repos.Savings.Credit(ctx, entry); err != nil {
				return &AllocationPersistenceError{CorrelationID: txn.CorrelationID, Step: "credit_savings", Err: err}
			}
		}

		payment = &paymentDatamodel.Payment{
			MemberID:         txn.MemberID,
			VehicleID:        txn.VehicleID,
			AmountPaid:       cb.Amount,
			ReceiptReference: cb.ReceiptReference,
			OperationsShare:  split.Operations,
			InsuranceShare:   split.Insurance,
			LoanShare:        split.Loan,
			SavingsShare:     split.Savings,
			LoanID:           split.LoanID,
			CorrelationID:    txn.CorrelationID,
		}
		if err := repos.Payments.Create(ctx, payment); err != nil {
			return &AllocationPersistenceError{CorrelationID: txn.CorrelationID, Step: "insert_payment", Err: err}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadySettled) {
			logger.Info("transaction settled by a concurrent delivery; callback ignored")
			return OutcomeAlreadyTerminal
		}
		var persistErr *AllocationPersistenceError
		if !errors.As(err, &persistErr) {
			persistErr = &AllocationPersistenceError{CorrelationID: txn.CorrelationID, Step: "commit", Err: err}
		}
		logger.Error("settlement rolled back; transaction left pending for reconciliation",
			"step", persistErr.Step,
			"amount", cb.Amount.String(),
			"receipt", cb.ReceiptReference,
			"error", persistErr)
		return OutcomeSettlementFailed
	}

	logger.Info("payment settled",
		"payment_id", payment.ID,
		"amount", cb.Amount.String(),
		"operations_share", split.Operations.String(),
		"insurance_share", split.Insurance.String(),
		"loan_share", split.Loan.String(),
		"savings_share", split.Savings.String())

	_ = p.publisher.Publish(ctx, events.NewPaymentConfirmedEvent(payment.ID, txn.CorrelationID, txn.MemberID, txn.VehicleID, cb.Amount, cb.ReceiptReference, split.Loan, split.Savings))
	return OutcomeSettled
}
