package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	apperrors "github.com/frahmantamala/sacco-management/internal"
	"github.com/frahmantamala/sacco-management/internal/auth"
	paymentDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/payment"
	transactionDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/transaction"
	memberPostgres "github.com/frahmantamala/sacco-management/internal/member/postgres"
	"github.com/frahmantamala/sacco-management/internal/mpesa"
	"github.com/frahmantamala/sacco-management/internal/payment"
	"github.com/frahmantamala/sacco-management/internal/testsupport"
	"github.com/frahmantamala/sacco-management/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

type pushCall struct {
	phone   string
	amount  decimal.Decimal
	account string
}

type fakeGateway struct {
	calls         []pushCall
	err           error
	correlationID string
}

func (g *fakeGateway) InitiatePushPayment(ctx context.Context, phone string, amount decimal.Decimal, accountReference string) (*mpesa.PushPaymentResult, error) {
	g.calls = append(g.calls, pushCall{phone: phone, amount: amount, account: accountReference})
	if g.err != nil {
		return nil, g.err
	}
	return &mpesa.PushPaymentResult{
		CorrelationID:       g.correlationID,
		MerchantRequestID:   "29115-34620561-1",
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
		PhoneNumber:         phone,
	}, nil
}

func appError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	ExpectWithOffset(1, errors.As(err, &appErr)).To(BeTrue(), "expected an AppError, got %v", err)
	return appErr
}

var _ = Describe("Service", func() {
	var (
		f       *fixture
		gateway *fakeGateway
		service *payment.Service
	)

	newService := func(uow payment.UnitOfWork) *payment.Service {
		return payment.NewService(gateway, memberPostgres.NewMemberRepository(f.db), f.txns, f.payments, f.callbacks, f.processor(uow), f.logger)
	}

	BeforeEach(func() {
		f = newFixture()
		gateway = &fakeGateway{correlationID: "ws_CO_40"}
		service = newService(f.uow)
	})

	Describe("Initiate", func() {
		It("records a pending transaction once the gateway accepts", func() {
			resp, err := service.Initiate(f.ctx, f.memberID, payment.InitiatePaymentDTO{VehicleID: f.vehicleID, Amount: decimal.NewFromInt(1000)})

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.CorrelationID).To(Equal("ws_CO_40"))
			Expect(resp.Status).To(Equal(transactionDatamodel.StatusPending))
			Expect(gateway.calls).To(HaveLen(1))
			Expect(gateway.calls[0].phone).To(Equal("254712345678"))
			Expect(gateway.calls[0].account).To(Equal("KDA 123A"))

			txn, err := f.txns.Lookup(f.ctx, "ws_CO_40")
			Expect(err).NotTo(HaveOccurred())
			Expect(txn.Status).To(Equal(transactionDatamodel.StatusPending))
			Expect(txn.MemberID).To(Equal(f.memberID))
			Expect(txn.VehicleID).To(Equal(f.vehicleID))
			Expect(txn.RequestedAmount.Equal(dec("1000"))).To(BeTrue())
		})

		It("prompts an explicit phone number instead of the registered one", func() {
			_, err := service.Initiate(f.ctx, f.memberID, payment.InitiatePaymentDTO{VehicleID: f.vehicleID, Amount: decimal.NewFromInt(500), PhoneNumber: "254700000001"})

			Expect(err).NotTo(HaveOccurred())
			Expect(gateway.calls[0].phone).To(Equal("254700000001"))
		})

		It("records nothing when the gateway rejects the request", func() {
			gateway.err = &mpesa.GatewayRequestError{StatusCode: http.StatusOK, ResponseCode: "1", Body: `{"ResponseCode":"1"}`}

			_, err := service.Initiate(f.ctx, f.memberID, payment.InitiatePaymentDTO{VehicleID: f.vehicleID, Amount: decimal.NewFromInt(1000)})

			appErr := appError(err)
			Expect(appErr.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeGatewayUnavailable))
			Expect(appErr.Message).NotTo(ContainSubstring("ResponseCode"))
			Expect(f.count(&transactionDatamodel.PendingTransaction{})).To(BeZero())
		})

		It("reports a token failure as the gateway being unavailable", func() {
			gateway.err = &mpesa.GatewayAuthError{StatusCode: http.StatusUnauthorized, Body: "invalid credentials"}

			_, err := service.Initiate(f.ctx, f.memberID, payment.InitiatePaymentDTO{VehicleID: f.vehicleID, Amount: decimal.NewFromInt(1000)})

			Expect(appError(err).StatusCode).To(Equal(http.StatusBadGateway))
			Expect(f.count(&transactionDatamodel.PendingTransaction{})).To(BeZero())
		})

		It("rejects a phone number the gateway cannot normalize", func() {
			gateway.err = fmt.Errorf("normalize: %w", mpesa.ErrInvalidPhone)

			_, err := service.Initiate(f.ctx, f.memberID, payment.InitiatePaymentDTO{VehicleID: f.vehicleID, Amount: decimal.NewFromInt(1000)})

			Expect(appError(err).StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("hides vehicles that belong to someone else", func() {
			other, err := testsupport.SeedMember(f.db, "Wanjiru", true)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Initiate(f.ctx, other.ID, payment.InitiatePaymentDTO{VehicleID: f.vehicleID, Amount: decimal.NewFromInt(1000)})

			Expect(err).To(Equal(apperrors.ErrVehicleNotFound))
			Expect(gateway.calls).To(BeEmpty())
		})

		DescribeTable("validates the request before calling the gateway",
			func(dto payment.InitiatePaymentDTO) {
				_, err := service.Initiate(f.ctx, f.memberID, dto)

				Expect(appError(err).StatusCode).To(Equal(http.StatusBadRequest))
				Expect(gateway.calls).To(BeEmpty())
			},
			Entry("zero amount", payment.InitiatePaymentDTO{VehicleID: 1, Amount: decimal.Zero}),
			Entry("negative amount", payment.InitiatePaymentDTO{VehicleID: 1, Amount: decimal.NewFromInt(-5)}),
			Entry("missing vehicle", payment.InitiatePaymentDTO{Amount: decimal.NewFromInt(100)}),
			Entry("bad phone", payment.InitiatePaymentDTO{VehicleID: 1, Amount: decimal.NewFromInt(100), PhoneNumber: "call me"}),
		)

		It("treats a correlation id already on record as done", func() {
			f.pending("ws_CO_40", 1000)

			resp, err := service.Initiate(f.ctx, f.memberID, payment.InitiatePaymentDTO{VehicleID: f.vehicleID, Amount: decimal.NewFromInt(1000)})

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.CorrelationID).To(Equal("ws_CO_40"))
			Expect(f.count(&transactionDatamodel.PendingTransaction{})).To(Equal(int64(1)))
		})
	})

	Describe("TransactionStatus", func() {
		It("returns the current state", func() {
			f.pending("ws_CO_41", 300)

			txn, err := service.TransactionStatus(f.ctx, "ws_CO_41")

			Expect(err).NotTo(HaveOccurred())
			Expect(txn.Status).To(Equal(transactionDatamodel.StatusPending))
			Expect(txn.RequestedAmount.Equal(dec("300"))).To(BeTrue())
		})

		It("is not found for unknown ids", func() {
			_, err := service.TransactionStatus(f.ctx, "nope")
			Expect(err).To(Equal(apperrors.ErrTransactionNotFound))
		})
	})

	Describe("Reconcile", func() {
		var webhook *payment.WebhookHandler

		deliverWith := func(uow payment.UnitOfWork, body string) {
			webhook = payment.NewWebhookHandler(transport.NewBaseHandler(f.logger), f.processor(uow), f.callbacks, "")
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", strings.NewReader(body))
			webhook.HandleCallback(httptest.NewRecorder(), req)
		}

		It("settles a transaction whose first settlement rolled back", func() {
			f.pending("ws_CO_42", 1000)
			deliverWith(faultyUnitOfWork{inner: f.uow}, successBody("ws_CO_42", 1000, "NLJ7RT61TB"))
			Expect(f.status("ws_CO_42")).To(Equal(transactionDatamodel.StatusPending))

			resp, err := service.Reconcile(f.ctx, "ws_CO_42")

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Outcome).To(Equal(payment.OutcomeSettled))
			Expect(resp.Transaction.Status).To(Equal(transactionDatamodel.StatusSuccessful))
			Expect(resp.Payment).NotTo(BeNil())
			Expect(resp.Payment.SavingsShare.Equal(dec("500"))).To(BeTrue())
			Expect(f.count(&paymentDatamodel.Payment{})).To(Equal(int64(1)))
		})

		It("refuses a transaction that is already terminal", func() {
			f.pending("ws_CO_43", 1000)
			deliverWith(f.uow, successBody("ws_CO_43", 1000, "NLJ7RT61TC"))

			_, err := service.Reconcile(f.ctx, "ws_CO_43")

			appErr := appError(err)
			Expect(appErr.StatusCode).To(Equal(http.StatusConflict))
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeTransactionSettled))
		})

		It("is not found when no success confirmation was logged", func() {
			f.pending("ws_CO_44", 1000)
			deliverWith(f.uow, failureBody("ws_CO_other", 1, "insufficient funds"))

			_, err := service.Reconcile(f.ctx, "ws_CO_44")

			appErr := appError(err)
			Expect(appErr.StatusCode).To(Equal(http.StatusNotFound))
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeCallbackNotFound))
		})

		It("reports a logged confirmation with no receipt as unusable", func() {
			f.pending("ws_CO_45", 1000)
			deliverWith(f.uow, `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_45","ResultCode":0,"ResultDesc":"ok","CallbackMetadata":{"Item":[{"Name":"Amount","Value":1000}]}}}}`)

			_, err := service.Reconcile(f.ctx, "ws_CO_45")

			Expect(appError(err).Code).To(Equal(apperrors.ErrCodeReconciliationFailed))
			Expect(f.status("ws_CO_45")).To(Equal(transactionDatamodel.StatusPending))
		})

		It("is not found for unknown ids", func() {
			_, err := service.Reconcile(f.ctx, "nope")
			Expect(err).To(Equal(apperrors.ErrTransactionNotFound))
		})
	})

	Describe("Handler", func() {
		var router chi.Router

		serve := func(method, target, body string, p *auth.Principal) *httptest.ResponseRecorder {
			req := httptest.NewRequest(method, target, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if p != nil {
				req = req.WithContext(auth.ContextWithPrincipal(req.Context(), p))
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			return rec
		}

		BeforeEach(func() {
			h := payment.NewHandler(transport.NewBaseHandler(f.logger), service)
			router = chi.NewRouter()
			router.Post("/payments/stk-push", h.InitiatePayment)
			router.Get("/payments/transactions/{correlation_id}", h.GetTransaction)
			router.Post("/payments/transactions/{correlation_id}/reconcile", h.Reconcile)
			router.Get("/vehicles/{vehicle_id}/payments", h.ListByVehicle)
		})

		It("accepts a push request for the caller's vehicle", func() {
			body := fmt.Sprintf(`{"vehicle_id":%d,"amount":"1000"}`, f.vehicleID)

			rec := serve(http.MethodPost, "/payments/stk-push", body, &auth.Principal{MemberID: f.memberID, Role: auth.RoleMember})

			Expect(rec.Code).To(Equal(http.StatusAccepted))
			var resp payment.InitiatePaymentResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.CorrelationID).To(Equal("ws_CO_40"))
			Expect(resp.Status).To(Equal("pending"))
		})

		It("rejects unknown fields", func() {
			body := fmt.Sprintf(`{"vehicle_id":%d,"amount":"1000","member_id":99}`, f.vehicleID)

			rec := serve(http.MethodPost, "/payments/stk-push", body, &auth.Principal{MemberID: f.memberID, Role: auth.RoleMember})

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(gateway.calls).To(BeEmpty())
		})

		It("requires a principal", func() {
			rec := serve(http.MethodPost, "/payments/stk-push", `{}`, nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("shows a transaction to its owner and to operators only", func() {
			f.pending("ws_CO_46", 1000)

			Expect(serve(http.MethodGet, "/payments/transactions/ws_CO_46", "", &auth.Principal{MemberID: f.memberID, Role: auth.RoleMember}).Code).To(Equal(http.StatusOK))
			Expect(serve(http.MethodGet, "/payments/transactions/ws_CO_46", "", &auth.Principal{MemberID: 1, Role: auth.RoleOperator}).Code).To(Equal(http.StatusOK))
			Expect(serve(http.MethodGet, "/payments/transactions/ws_CO_46", "", &auth.Principal{MemberID: f.memberID + 100, Role: auth.RoleMember}).Code).To(Equal(http.StatusNotFound))
		})

		It("lists settled payments for a vehicle", func() {
			f.pending("ws_CO_47", 1000)
			Expect(f.processor(f.uow).Process(f.ctx, success("ws_CO_47", 1000, "NLJ7RT61TD"))).To(Equal(payment.OutcomeSettled))

			rec := serve(http.MethodGet, fmt.Sprintf("/vehicles/%d/payments", f.vehicleID), "", &auth.Principal{MemberID: f.memberID, Role: auth.RoleMember})

			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp payment.PaymentsResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Payments).To(HaveLen(1))
			Expect(resp.Payments[0].ReceiptReference).To(Equal("NLJ7RT61TD"))
		})

		It("rejects a malformed vehicle id", func() {
			rec := serve(http.MethodGet, "/vehicles/abc/payments", "", &auth.Principal{MemberID: f.memberID, Role: auth.RoleOperator})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 409 when reconciling a settled transaction", func() {
			f.pending("ws_CO_48", 1000)
			Expect(f.processor(f.uow).Process(f.ctx, success("ws_CO_48", 1000, "NLJ7RT61TE"))).To(Equal(payment.OutcomeSettled))

			rec := serve(http.MethodPost, "/payments/transactions/ws_CO_48/reconcile", "", &auth.Principal{MemberID: 1, Role: auth.RoleOperator})

			Expect(rec.Code).To(Equal(http.StatusConflict))
		})
	})
})
