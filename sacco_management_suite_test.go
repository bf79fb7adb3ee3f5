package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/frahmantamala/sacco-management/api"
	"github.com/frahmantamala/sacco-management/internal/allocation"
	"github.com/frahmantamala/sacco-management/internal/auth"
	"github.com/frahmantamala/sacco-management/internal/core/events"
	"github.com/frahmantamala/sacco-management/internal/eligibility"
	eligibilityPostgres "github.com/frahmantamala/sacco-management/internal/eligibility/postgres"
	"github.com/frahmantamala/sacco-management/internal/loan"
	loanPostgres "github.com/frahmantamala/sacco-management/internal/loan/postgres"
	memberPostgres "github.com/frahmantamala/sacco-management/internal/member/postgres"
	"github.com/frahmantamala/sacco-management/internal/mpesa"
	"github.com/frahmantamala/sacco-management/internal/payment"
	paymentPostgres "github.com/frahmantamala/sacco-management/internal/payment/postgres"
	"github.com/frahmantamala/sacco-management/internal/savings"
	savingsPostgres "github.com/frahmantamala/sacco-management/internal/savings/postgres"
	"github.com/frahmantamala/sacco-management/internal/testsupport"
	transactionPostgres "github.com/frahmantamala/sacco-management/internal/transaction/postgres"
	"github.com/frahmantamala/sacco-management/internal/transport"
	"github.com/frahmantamala/sacco-management/internal/transport/middleware"
	"github.com/frahmantamala/sacco-management/internal/transport/rest"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSaccoManagement(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SaccoManagement Suite")
}

const (
	jwtSecret     = "an-integration-secret-of-32-chars!"
	correlationID = "ws_CO_260101120000000001"
)

func darajaStub() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"MerchantRequestID":"m-1","CheckoutRequestID":%q,"ResponseCode":"0","ResponseDescription":"Success","CustomerMessage":"Success. Request accepted for processing"}`, correlationID)
	})
	return httptest.NewServer(mux)
}

func confirmation(id string, amount int, receipt string) string {
	return fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":%q,"ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":%d},{"Name":"MpesaReceiptNumber","Value":%q},{"Name":"PhoneNumber","Value":254712345678}]}}}}`, id, amount, receipt)
}

var _ = Describe("Payment collection over HTTP", func() {
	var (
		router    *chi.Mux
		daraja    *httptest.Server
		bus       *events.EventBus
		token     string
		vehicleID int64
		memberID  int64
	)

	BeforeEach(func() {
		db, err := testsupport.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())
		sqlxDB, err := testsupport.SQLX(db)
		Expect(err).NotTo(HaveOccurred())

		member, err := testsupport.SeedMember(db, "Wanjiru", true)
		Expect(err).NotTo(HaveOccurred())
		vehicle, err := testsupport.SeedVehicle(db, member.ID, "KDA 123A")
		Expect(err).NotTo(HaveOccurred())
		memberID, vehicleID = member.ID, vehicle.ID

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		base := transport.NewBaseHandler(logger)
		bus = events.NewEventBus(logger)
		daraja = darajaStub()

		members := memberPostgres.NewMemberRepository(db)
		txns := transactionPostgres.NewTransactionRepository(db)
		callbacks := paymentPostgres.NewCallbackLogRepository(db)
		gateway := mpesa.NewClient(mpesa.Config{
			BaseURL:        daraja.URL,
			ConsumerKey:    "key",
			ConsumerSecret: "secret",
			ShortCode:      "174379",
			PassKey:        "passkey",
			CallbackURL:    "https://sacco.example.com" + rest.CallbackPath,
			CountryCode:    "254",
		}, logger)
		processor := payment.NewCallbackProcessor(txns, paymentPostgres.NewUnitOfWork(db), allocation.NewEngine(allocation.DefaultCaps()), bus, logger)
		service := payment.NewService(gateway, members, txns, paymentPostgres.NewPaymentRepository(db), callbacks, processor, logger)
		evaluator := eligibility.NewEvaluator(eligibilityPostgres.NewEligibilityStore(sqlxDB), logger)
		verifier := auth.NewJWTVerifier(jwtSecret)

		doc, err := middleware.LoadOpenAPI(context.Background(), api.OpenAPISpec)
		Expect(err).NotTo(HaveOccurred())

		router = chi.NewRouter()
		err = rest.RegisterAllRoutes(router, sqlxDB, rest.Handlers{
			Auth:        auth.NewMiddleware(base, verifier),
			Payment:     payment.NewHandler(base, service),
			Webhook:     payment.NewWebhookHandler(base, processor, callbacks, ""),
			Loan:        loan.NewHandler(base, loan.NewService(loanPostgres.NewLoanRepository(db), evaluator, logger)),
			Savings:     savings.NewHandler(base, savings.NewService(savingsPostgres.NewSavingsRepository(db), logger)),
			Eligibility: eligibility.NewHandler(base, evaluator),
		}, rest.RouterOptions{OpenAPI: doc, OpenAPISpec: api.OpenAPISpec}, logger)
		Expect(err).NotTo(HaveOccurred())

		token, err = verifier.SignToken(memberID, auth.RoleMember, time.Hour)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		daraja.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(bus.Drain(ctx)).To(Succeed())
	})

	do := func(method, path, body string, bearer bool) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if bearer {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		var out map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		return rec, out
	}

	It("settles a confirmed push payment into the ledgers", func() {
		rec, out := do(http.MethodPost, "/api/v1/payments/stk-push", fmt.Sprintf(`{"vehicle_id":%d,"amount":1000}`, vehicleID), true)
		Expect(rec.Code).To(Equal(http.StatusAccepted), rec.Body.String())
		Expect(out["correlation_id"]).To(Equal(correlationID))
		Expect(out["status"]).To(Equal("pending"))

		rec, out = do(http.MethodPost, rest.CallbackPath, confirmation(correlationID, 1000, "QKJ1ABC2DE"), false)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(out["ResultCode"]).To(BeNumerically("==", 0))

		_, out = do(http.MethodGet, "/api/v1/payments/transactions/"+correlationID, "", true)
		Expect(out["status"]).To(Equal("successful"))
		Expect(out["receipt_reference"]).To(Equal("QKJ1ABC2DE"))

		rec, out = do(http.MethodGet, fmt.Sprintf("/api/v1/vehicles/%d/payments", vehicleID), "", true)
		Expect(rec.Code).To(Equal(http.StatusOK))
		payments := out["payments"].([]any)
		Expect(payments).To(HaveLen(1))
		p := payments[0].(map[string]any)
		Expect(p["operations_share"]).To(Equal("250"))
		Expect(p["insurance_share"]).To(Equal("250"))
		Expect(p["loan_share"]).To(Equal("0"))
		Expect(p["savings_share"]).To(Equal("500"))

		_, out = do(http.MethodGet, fmt.Sprintf("/api/v1/vehicles/%d/savings", vehicleID), "", true)
		Expect(out["balance"]).To(Equal("500"))

		_, out = do(http.MethodGet, fmt.Sprintf("/api/v1/members/%d/vehicles/%d/eligibility", memberID, vehicleID), "", true)
		Expect(out["eligible"]).To(BeTrue())
		Expect(out["reason"]).To(Equal("Eligible"))
	})

	It("applies a redelivered confirmation once", func() {
		rec, _ := do(http.MethodPost, "/api/v1/payments/stk-push", fmt.Sprintf(`{"vehicle_id":%d,"amount":1000}`, vehicleID), true)
		Expect(rec.Code).To(Equal(http.StatusAccepted))

		for i := 0; i < 2; i++ {
			rec, _ = do(http.MethodPost, rest.CallbackPath, confirmation(correlationID, 1000, "QKJ1ABC2DE"), false)
			Expect(rec.Code).To(Equal(http.StatusOK))
		}

		_, out := do(http.MethodGet, fmt.Sprintf("/api/v1/vehicles/%d/savings", vehicleID), "", true)
		Expect(out["balance"]).To(Equal("500"))
	})

	It("acknowledges garbage on the callback route", func() {
		rec, out := do(http.MethodPost, rest.CallbackPath, "not json", false)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(out["ResultCode"]).To(BeNumerically("==", 0))
	})

	It("rejects bodies the API document does not allow", func() {
		rec, _ := do(http.MethodPost, "/api/v1/payments/stk-push", fmt.Sprintf(`{"vehicle_id":%d,"amount":1000,"extra":true}`, vehicleID), true)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("requires a bearer token outside the callback", func() {
		rec, _ := do(http.MethodGet, fmt.Sprintf("/api/v1/vehicles/%d/savings", vehicleID), "", false)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("serves liveness and the API document", func() {
		rec, _ := do(http.MethodGet, "/api/v1/ping", "", false)
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec, _ = do(http.MethodGet, "/openapi.yml", "", false)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("openapi: 3.0.3"))
	})
})
