package savings

import (
	"context"
	"net/http"

	"github.com/frahmantamala/sacco-management/internal/transport"
)

type ServiceAPI interface {
	ForVehicle(ctx context.Context, vehicleID int64) (*SavingsResponse, error)
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

func (h *Handler) ListByVehicle(w http.ResponseWriter, r *http.Request) {
	vehicleID, appErr := h.IDParam(r, "vehicle_id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	resp, err := h.Service.ForVehicle(r.Context(), vehicleID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}
