package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/frahmantamala/sacco-management/api"
	"github.com/frahmantamala/sacco-management/internal/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RequestValidator", func() {
	var (
		handler http.Handler
		reached bool
	)

	BeforeEach(func() {
		reached = false
		doc, err := LoadOpenAPI(context.Background(), api.OpenAPISpec)
		Expect(err).NotTo(HaveOccurred())

		base := transport.NewBaseHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
		validate, err := RequestValidator(base, doc, "/api/v1/payments/callback")
		Expect(err).NotTo(HaveOccurred())

		handler = validate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			// the body must still be readable downstream
			body, _ := io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
		}))
	})

	send := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	It("passes a request matching the document with its body intact", func() {
		rec := send(http.MethodPost, "/api/v1/payments/stk-push", `{"vehicle_id":1,"amount":1000}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(reached).To(BeTrue())
		Expect(rec.Body.String()).To(Equal(`{"vehicle_id":1,"amount":1000}`))
	})

	It("accepts amounts written as decimal strings", func() {
		rec := send(http.MethodPost, "/api/v1/payments/stk-push", `{"vehicle_id":1,"amount":"1000.50"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	DescribeTable("rejects requests outside the document",
		func(method, path, body string) {
			rec := send(method, path, body)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(reached).To(BeFalse())

			var out struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
			Expect(out.Error.Code).To(Equal("VALIDATION_FAILED"))
		},
		Entry("missing amount", http.MethodPost, "/api/v1/payments/stk-push", `{"vehicle_id":1}`),
		Entry("unknown field", http.MethodPost, "/api/v1/payments/stk-push", `{"vehicle_id":1,"amount":10,"note":"x"}`),
		Entry("non positive vehicle", http.MethodPost, "/api/v1/payments/stk-push", `{"vehicle_id":0,"amount":10}`),
		Entry("non numeric path id", http.MethodGet, "/api/v1/vehicles/abc/savings", ""),
		Entry("unknown loan type", http.MethodPost, "/api/v1/loans", `{"vehicle_id":1,"loan_type":"payday","amount":100}`),
	)

	It("lets undocumented routes through", func() {
		rec := send(http.MethodGet, "/api/v1/not-documented", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(reached).To(BeTrue())
	})

	It("skips the configured prefixes", func() {
		rec := send(http.MethodPost, "/api/v1/payments/callback", "not json")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(reached).To(BeTrue())
	})

	It("refuses an invalid document", func() {
		_, err := LoadOpenAPI(context.Background(), []byte("openapi: [broken"))
		Expect(err).To(HaveOccurred())
	})
})
