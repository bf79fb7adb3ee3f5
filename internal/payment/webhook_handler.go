package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/frahmantamala/sacco-management/internal/auth"
	callbackLogDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/callbacklog"
	"github.com/frahmantamala/sacco-management/internal/mpesa"
	"github.com/frahmantamala/sacco-management/internal/transport"
	"gorm.io/datatypes"
)

const maxCallbackBody = 1 << 20

type CallbackProcessorAPI interface {
	Process(ctx context.Context, cb Callback) Outcome
}

// WebhookHandler receives gateway confirmations. The gateway always gets an
// acceptance; what happened internally is visible in the logs and the
// callback log only.
type WebhookHandler struct {
	*transport.BaseHandler
	processor      CallbackProcessorAPI
	callbacks      CallbackLogStore
	tokenHash      string
	processTimeout time.Duration
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, processor CallbackProcessorAPI, callbacks CallbackLogStore, tokenHash string) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		processor:      processor,
		callbacks:      callbacks,
		tokenHash:      tokenHash,
		processTimeout: 30 * time.Second,
	}
}

func (h *WebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.Logger.Error("panic while handling callback", "panic", rec, "stack", string(debug.Stack()))
		}
		h.WriteJSON(w, http.StatusOK, mpesa.Accepted())
	}()

	// Processing must finish even if the gateway hangs up after delivery.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.processTimeout)
	defer cancel()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		h.Logger.ErrorContext(ctx, "failed to read callback body", "error", err)
		return
	}

	if h.tokenHash != "" && !auth.CompareSecret(h.tokenHash, r.URL.Query().Get("token")) {
		h.Logger.WarnContext(ctx, "callback rejected: token mismatch", "remote_addr", r.RemoteAddr)
		h.record(ctx, &callbackLogDatamodel.CallbackLog{
			Payload: rawPayload(body),
			Outcome: string(OutcomeRejected),
		})
		return
	}

	var envelope mpesa.CallbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Body.STKCallback.CheckoutRequestID == "" {
		h.Logger.ErrorContext(ctx, "malformed callback acknowledged", "error", err, "size", len(body))
		h.record(ctx, &callbackLogDatamodel.CallbackLog{
			Payload: rawPayload(body),
			Outcome: string(OutcomeMalformed),
		})
		return
	}

	stk := envelope.Body.STKCallback
	entry := &callbackLogDatamodel.CallbackLog{
		CorrelationID: stk.CheckoutRequestID,
		ResultCode:    stk.ResultCode,
		Payload:       datatypes.JSON(body),
	}
	h.record(ctx, entry)

	h.Logger.InfoContext(ctx, "received payment callback",
		"correlation_id", stk.CheckoutRequestID,
		"merchant_request_id", stk.MerchantRequestID,
		"result_code", stk.ResultCode,
		"result_desc", stk.ResultDesc)

	outcome := h.processor.Process(ctx, CallbackFromSTK(stk))

	if entry.ID != 0 {
		if err := h.callbacks.UpdateOutcome(ctx, entry.ID, string(outcome)); err != nil {
			h.Logger.ErrorContext(ctx, "failed to store callback outcome", "callback_id", entry.ID, "error", err)
		}
	}
	h.Logger.InfoContext(ctx, "payment callback handled", "correlation_id", stk.CheckoutRequestID, "outcome", outcome)
}

func (h *WebhookHandler) record(ctx context.Context, entry *callbackLogDatamodel.CallbackLog) {
	if err := h.callbacks.Record(ctx, entry); err != nil {
		h.Logger.ErrorContext(ctx, "failed to log raw callback", "correlation_id", entry.CorrelationID, "error", err)
	}
}

// rawPayload keeps unparsable bodies storable in a JSON column.
func rawPayload(body []byte) datatypes.JSON {
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(quoted)
}

// ReplayCallback decodes a logged payload back into a Callback.
func ReplayCallback(entry *callbackLogDatamodel.CallbackLog) (Callback, error) {
	var envelope mpesa.CallbackEnvelope
	if err := json.Unmarshal(entry.Payload, &envelope); err != nil {
		return Callback{}, fmt.Errorf("callback %d is not replayable: %w", entry.ID, err)
	}
	return CallbackFromSTK(envelope.Body.STKCallback), nil
}
