package loan

import (
	"context"
	"net/http"

	apperrors "github.com/frahmantamala/sacco-management/internal"
	"github.com/frahmantamala/sacco-management/internal/auth"
	"github.com/frahmantamala/sacco-management/internal/transport"
)

type ServiceAPI interface {
	Apply(ctx context.Context, memberID int64, dto ApplyLoanDTO) (*Loan, error)
	Approve(ctx context.Context, loanID int64, dto ApproveLoanDTO) (*Loan, error)
	ListByVehicle(ctx context.Context, vehicleID int64) ([]*Loan, error)
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

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, apperrors.ErrInvalidToken)
		return
	}

	var dto ApplyLoanDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	l, err := h.Service.Apply(r.Context(), p.MemberID, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, l)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	loanID, appErr := h.IDParam(r, "loan_id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	var dto ApproveLoanDTO
	if r.ContentLength != 0 {
		if err := h.DecodeJSON(r, &dto); err != nil {
			h.WriteAppError(w, err)
			return
		}
	}

	l, err := h.Service.Approve(r.Context(), loanID, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, l)
}

func (h *Handler) ListByVehicle(w http.ResponseWriter, r *http.Request) {
	vehicleID, appErr := h.IDParam(r, "vehicle_id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	loans, err := h.Service.ListByVehicle(r.Context(), vehicleID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, LoansResponse{Loans: loans})
}
