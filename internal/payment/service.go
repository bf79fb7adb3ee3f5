package payment

import (
	"context"
	"errors"
	"log/slog"

	apperrors "github.com/frahmantamala/sacco-management/internal"
	callbackLogDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/callbacklog"
	memberDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/member"
	paymentDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/payment"
	transactionDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/transaction"
	"github.com/frahmantamala/sacco-management/internal/member"
	"github.com/frahmantamala/sacco-management/internal/mpesa"
	"github.com/frahmantamala/sacco-management/internal/transaction"
	"github.com/shopspring/decimal"
)

type Gateway interface {
	InitiatePushPayment(ctx context.Context, phone string, amount decimal.Decimal, accountReference string) (*mpesa.PushPaymentResult, error)
}

type MemberDirectory interface {
	GetMember(ctx context.Context, id int64) (*memberDatamodel.Member, error)
	GetVehicle(ctx context.Context, id int64) (*memberDatamodel.Vehicle, error)
}

type PendingLedger interface {
	RecordInitiated(ctx context.Context, txn *transactionDatamodel.PendingTransaction) error
	Lookup(ctx context.Context, correlationID string) (*transactionDatamodel.PendingTransaction, error)
}

type PaymentReader interface {
	GetByCorrelationID(ctx context.Context, correlationID string) (*paymentDatamodel.Payment, error)
	ListByVehicle(ctx context.Context, vehicleID int64) ([]*paymentDatamodel.Payment, error)
}

type CallbackReader interface {
	LatestSuccess(ctx context.Context, correlationID string) (*callbackLogDatamodel.CallbackLog, error)
}

type Service struct {
	gateway   Gateway
	members   MemberDirectory
	ledger    PendingLedger
	payments  PaymentReader
	callbacks CallbackReader
	processor CallbackProcessorAPI
	logger    *slog.Logger
}

func NewService(gateway Gateway, members MemberDirectory, ledger PendingLedger, payments PaymentReader, callbacks CallbackReader, processor CallbackProcessorAPI, logger *slog.Logger) *Service {
	return &Service{
		gateway:   gateway,
		members:   members,
		ledger:    ledger,
		payments:  payments,
		callbacks: callbacks,
		processor: processor,
		logger:    logger,
	}
}

// Initiate prompts the member's handset through the gateway and records the
// pending transaction. Nothing is recorded unless the gateway accepted the
// request.
func (s *Service) Initiate(ctx context.Context, memberID int64, dto InitiatePaymentDTO) (*InitiatePaymentResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	vehicle, err := s.members.GetVehicle(ctx, dto.VehicleID)
	if err != nil {
		if errors.Is(err, member.ErrVehicleNotFound) {
			return nil, apperrors.ErrVehicleNotFound
		}
		return nil, apperrors.NewInternalError("failed to load vehicle", err)
	}
	if vehicle.MemberID != memberID {
		s.logger.Warn("payment initiation for a vehicle the member does not own", "member_id", memberID, "vehicle_id", dto.VehicleID)
		return nil, apperrors.ErrVehicleNotFound
	}

	phone := dto.PhoneNumber
	if phone == "" {
		m, err := s.members.GetMember(ctx, memberID)
		if err != nil {
			if errors.Is(err, member.ErrMemberNotFound) {
				return nil, apperrors.ErrMemberNotFound
			}
			return nil, apperrors.NewInternalError("failed to load member", err)
		}
		phone = m.PhoneNumber
	}

	result, err := s.gateway.InitiatePushPayment(ctx, phone, dto.Amount, vehicle.RegistrationNumber)
	if err != nil {
		return nil, s.gatewayError(err, memberID, dto.VehicleID)
	}

	txn := &transactionDatamodel.PendingTransaction{
		CorrelationID:     result.CorrelationID,
		MerchantRequestID: result.MerchantRequestID,
		MemberID:          memberID,
		VehicleID:         dto.VehicleID,
		PhoneNumber:       result.PhoneNumber,
		RequestedAmount:   dto.Amount,
	}
	if err := s.ledger.RecordInitiated(ctx, txn); err != nil {
		if errors.Is(err, transaction.ErrDuplicateCorrelation) {
			s.logger.Warn("correlation id already recorded; treating initiation as done", "correlation_id", result.CorrelationID)
		} else {
			s.logger.Error("gateway accepted push but pending row was not recorded",
				"correlation_id", result.CorrelationID,
				"member_id", memberID,
				"vehicle_id", dto.VehicleID,
				"error", err)
			return nil, apperrors.NewInternalError("failed to record payment", err)
		}
	}

	s.logger.Info("push payment initiated",
		"correlation_id", result.CorrelationID,
		"member_id", memberID,
		"vehicle_id", dto.VehicleID,
		"amount", dto.Amount.String())

	return &InitiatePaymentResponse{
		CorrelationID:   result.CorrelationID,
		Status:          transactionDatamodel.StatusPending,
		Amount:          dto.Amount,
		CustomerMessage: result.CustomerMessage,
	}, nil
}

// gatewayError maps client failures to a caller-safe error. Upstream bodies
// and credentials stay in the logs.
func (s *Service) gatewayError(err error, memberID, vehicleID int64) error {
	if errors.Is(err, mpesa.ErrInvalidPhone) {
		return apperrors.NewValidationFieldError("phone_number", "phone_number is not a valid phone number", apperrors.ErrCodeInvalidPhone)
	}

	var authErr *mpesa.GatewayAuthError
	var reqErr *mpesa.GatewayRequestError
	switch {
	case errors.As(err, &authErr):
		s.logger.Error("gateway authentication failed", "status", authErr.StatusCode, "member_id", memberID, "error", err)
	case errors.As(err, &reqErr):
		s.logger.Error("gateway rejected push request",
			"status", reqErr.StatusCode,
			"response_code", reqErr.ResponseCode,
			"member_id", memberID,
			"vehicle_id", vehicleID,
			"error", err)
	default:
		s.logger.Error("push payment initiation failed", "member_id", memberID, "error", err)
		return apperrors.NewInternalError("failed to initiate payment", err)
	}
	return apperrors.NewExternalError("Payment could not be initiated, please try again later", apperrors.ErrCodeGatewayUnavailable, err)
}

func (s *Service) TransactionStatus(ctx context.Context, correlationID string) (*Transaction, error) {
	txn, err := s.ledger.Lookup(ctx, correlationID)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.NewInternalError("failed to load transaction", err)
	}
	return TransactionFromDataModel(txn), nil
}

func (s *Service) ListPayments(ctx context.Context, vehicleID int64) ([]*Payment, error) {
	rows, err := s.payments.ListByVehicle(ctx, vehicleID)
	if err != nil {
		s.logger.Error("failed to list payments", "vehicle_id", vehicleID, "error", err)
		return nil, apperrors.NewInternalError("failed to list payments", err)
	}
	result := make([]*Payment, 0, len(rows))
	for _, p := range rows {
		result = append(result, FromDataModel(p))
	}
	return result, nil
}

// Reconcile replays the newest logged success confirmation for a transaction
// that is still pending, for example after a settlement rollback.
func (s *Service) Reconcile(ctx context.Context, correlationID string) (*ReconcileResponse, error) {
	txn, err := s.ledger.Lookup(ctx, correlationID)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.NewInternalError("failed to load transaction", err)
	}
	if txn.IsTerminal() {
		return nil, apperrors.NewConflictError("Transaction is already "+txn.Status, apperrors.ErrCodeTransactionSettled)
	}

	entry, err := s.callbacks.LatestSuccess(ctx, correlationID)
	if err != nil {
		if errors.Is(err, ErrCallbackNotFound) {
			return nil, apperrors.NewNotFoundError("No confirmation has been received for this transaction", apperrors.ErrCodeCallbackNotFound)
		}
		return nil, apperrors.NewInternalError("failed to load callbacks", err)
	}

	cb, err := ReplayCallback(entry)
	if err != nil {
		return nil, apperrors.NewInternalError("logged confirmation is unreadable", err)
	}

	outcome := s.processor.Process(ctx, cb)
	s.logger.Info("reconciliation replayed confirmation", "correlation_id", correlationID, "callback_id", entry.ID, "outcome", outcome)

	switch outcome {
	case OutcomeSettled, OutcomeAlreadyTerminal:
	case OutcomeUnparsable:
		return nil, apperrors.NewValidationError("Logged confirmation has no usable amount or receipt", apperrors.ErrCodeReconciliationFailed)
	default:
		return nil, apperrors.NewInternalError("reconciliation did not settle the transaction", errors.New(string(outcome)))
	}

	resp := &ReconcileResponse{CorrelationID: correlationID, Outcome: outcome}
	if txn, err = s.ledger.Lookup(ctx, correlationID); err == nil {
		resp.Transaction = TransactionFromDataModel(txn)
	}
	if p, err := s.payments.GetByCorrelationID(ctx, correlationID); err == nil {
		resp.Payment = FromDataModel(p)
	}
	return resp, nil
}
