package payment

import (
	"context"
	"net/http"

	apperrors "github.com/frahmantamala/sacco-management/internal"
	"github.com/frahmantamala/sacco-management/internal/auth"
	"github.com/frahmantamala/sacco-management/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Initiate(ctx context.Context, memberID int64, dto InitiatePaymentDTO) (*InitiatePaymentResponse, error)
	TransactionStatus(ctx context.Context, correlationID string) (*Transaction, error)
	ListPayments(ctx context.Context, vehicleID int64) ([]*Payment, error)
	Reconcile(ctx context.Context, correlationID string) (*ReconcileResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// InitiatePayment handles POST /api/v1/payments/stk-push
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, apperrors.ErrInvalidToken)
		return
	}

	var dto InitiatePaymentDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	resp, err := h.Service.Initiate(r.Context(), p.MemberID, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusAccepted, resp)
}

// GetTransaction handles GET /api/v1/payments/transactions/{correlation_id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, apperrors.ErrInvalidToken)
		return
	}

	txn, err := h.Service.TransactionStatus(r.Context(), chi.URLParam(r, "correlation_id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	if !p.CanAccessMember(txn.MemberID) {
		h.WriteAppError(w, apperrors.ErrTransactionNotFound)
		return
	}

	h.WriteJSON(w, http.StatusOK, txn)
}

// ListByVehicle handles GET /api/v1/vehicles/{vehicle_id}/payments
func (h *Handler) ListByVehicle(w http.ResponseWriter, r *http.Request) {
	vehicleID, appErr := h.IDParam(r, "vehicle_id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	payments, err := h.Service.ListPayments(r.Context(), vehicleID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, PaymentsResponse{Payments: payments})
}

// Reconcile handles POST /api/v1/payments/transactions/{correlation_id}/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Service.Reconcile(r.Context(), chi.URLParam(r, "correlation_id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}
