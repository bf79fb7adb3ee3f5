package eligibility

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/frahmantamala/sacco-management/internal"
	"github.com/frahmantamala/sacco-management/internal/transport"
)

type Checker interface {
	Check(ctx context.Context, memberID, vehicleID int64) (*Report, error)
}

type Handler struct {
	*transport.BaseHandler
	Checker Checker
}

func NewHandler(baseHandler *transport.BaseHandler, checker Checker) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Checker:     checker,
	}
}

func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	memberID, appErr := h.IDParam(r, "member_id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	vehicleID, appErr := h.IDParam(r, "vehicle_id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	report, err := h.Checker.Check(r.Context(), memberID, vehicleID)
	if err != nil {
		switch {
		case errors.Is(err, ErrMemberNotFound):
			h.WriteAppError(w, apperrors.ErrMemberNotFound)
		case errors.Is(err, ErrVehicleNotFound):
			h.WriteAppError(w, apperrors.ErrVehicleNotFound)
		default:
			h.Logger.ErrorContext(r.Context(), "eligibility check failed", "member_id", memberID, "vehicle_id", vehicleID, "error", err)
			h.WriteError(w, http.StatusInternalServerError, "failed to evaluate eligibility")
		}
		return
	}

	h.WriteJSON(w, http.StatusOK, report)
}
