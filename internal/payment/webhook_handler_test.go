package payment_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/frahmantamala/sacco-management/internal/auth"
	callbackLogDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/callbacklog"
	paymentDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/payment"
	transactionDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/transaction"
	"github.com/frahmantamala/sacco-management/internal/mpesa"
	"github.com/frahmantamala/sacco-management/internal/payment"
	"github.com/frahmantamala/sacco-management/internal/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func successBody(correlationID string, amount int, receipt string) string {
	return fmt.Sprintf(`{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": %q,
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": %d},
          {"Name": "MpesaReceiptNumber", "Value": %q},
          {"Name": "Balance"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`, correlationID, amount, receipt)
}

func failureBody(correlationID string, code int, desc string) string {
	return fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":%q}}}`,
		correlationID, code, desc)
}

func expectAccepted(rec *httptest.ResponseRecorder) {
	Expect(rec.Code).To(Equal(http.StatusOK))
	var ack mpesa.Acknowledgement
	Expect(json.Unmarshal(rec.Body.Bytes(), &ack)).To(Succeed())
	Expect(ack).To(Equal(mpesa.Accepted()))
}

var _ = Describe("WebhookHandler", func() {
	var (
		f       *fixture
		handler *payment.WebhookHandler
	)

	deliver := func(h *payment.WebhookHandler, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.HandleCallback(rec, req)
		return rec
	}

	logs := func() []callbackLogDatamodel.CallbackLog {
		var out []callbackLogDatamodel.CallbackLog
		Expect(f.db.Order("id").Find(&out).Error).To(Succeed())
		return out
	}

	BeforeEach(func() {
		f = newFixture()
		handler = payment.NewWebhookHandler(transport.NewBaseHandler(f.logger), f.processor(f.uow), f.callbacks, "")
	})

	It("settles a success confirmation and logs its outcome", func() {
		f.pending("ws_CO_20", 1000)

		rec := deliver(handler, "/api/v1/payments/callback", successBody("ws_CO_20", 1000, "NLJ7RT61SV"))

		expectAccepted(rec)
		Expect(f.status("ws_CO_20")).To(Equal(transactionDatamodel.StatusSuccessful))
		entries := logs()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].CorrelationID).To(Equal("ws_CO_20"))
		Expect(entries[0].Outcome).To(Equal(string(payment.OutcomeSettled)))
	})

	It("acknowledges duplicates and settles only once", func() {
		f.pending("ws_CO_21", 1000)
		body := successBody("ws_CO_21", 1000, "NLJ7RT61SW")

		expectAccepted(deliver(handler, "/api/v1/payments/callback", body))
		expectAccepted(deliver(handler, "/api/v1/payments/callback", body))

		Expect(f.count(&paymentDatamodel.Payment{})).To(Equal(int64(1)))
		entries := logs()
		Expect(entries).To(HaveLen(2))
		Expect(entries[1].Outcome).To(Equal(string(payment.OutcomeAlreadyTerminal)))
	})

	It("acknowledges a confirmation for an unknown transaction", func() {
		expectAccepted(deliver(handler, "/api/v1/payments/callback", successBody("ws_CO_unknown", 1000, "NLJ7RT61SX")))

		Expect(f.count(&paymentDatamodel.Payment{})).To(BeZero())
		Expect(logs()[0].Outcome).To(Equal(string(payment.OutcomeUnknownTransaction)))
	})

	It("records a cancellation", func() {
		f.pending("ws_CO_22", 1000)

		expectAccepted(deliver(handler, "/api/v1/payments/callback", failureBody("ws_CO_22", 1032, "Request cancelled by user")))

		Expect(f.status("ws_CO_22")).To(Equal(transactionDatamodel.StatusCanceled))
	})

	DescribeTable("acknowledges malformed bodies without touching the ledgers",
		func(body string) {
			f.pending("ws_CO_23", 1000)

			expectAccepted(deliver(handler, "/api/v1/payments/callback", body))

			Expect(f.status("ws_CO_23")).To(Equal(transactionDatamodel.StatusPending))
			entries := logs()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Outcome).To(Equal(string(payment.OutcomeMalformed)))
			Expect(json.Valid(entries[0].Payload)).To(BeTrue())
		},
		Entry("not json", "this is not json"),
		Entry("empty", ""),
		Entry("no checkout id", `{"Body":{"stkCallback":{"ResultCode":0}}}`),
		Entry("wrong shape", `[1,2,3]`),
	)

	Context("with a callback token configured", func() {
		BeforeEach(func() {
			hash, err := auth.HashSecret("s3cret-token")
			Expect(err).NotTo(HaveOccurred())
			handler = payment.NewWebhookHandler(transport.NewBaseHandler(f.logger), f.processor(f.uow), f.callbacks, hash)
		})

		It("processes deliveries carrying the token", func() {
			f.pending("ws_CO_24", 1000)

			expectAccepted(deliver(handler, "/api/v1/payments/callback?token=s3cret-token", successBody("ws_CO_24", 1000, "NLJ7RT61SY")))

			Expect(f.status("ws_CO_24")).To(Equal(transactionDatamodel.StatusSuccessful))
		})

		It("acknowledges but ignores deliveries without it", func() {
			f.pending("ws_CO_25", 1000)

			expectAccepted(deliver(handler, "/api/v1/payments/callback?token=guess", successBody("ws_CO_25", 1000, "NLJ7RT61SZ")))

			Expect(f.status("ws_CO_25")).To(Equal(transactionDatamodel.StatusPending))
			entries := logs()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Outcome).To(Equal(string(payment.OutcomeRejected)))
			Expect(entries[0].CorrelationID).To(BeEmpty())
		})
	})

	It("replays a logged payload into the same callback", func() {
		entry := &callbackLogDatamodel.CallbackLog{Payload: []byte(successBody("ws_CO_26", 750, "NLJ7RT61TA"))}

		cb, err := payment.ReplayCallback(entry)

		Expect(err).NotTo(HaveOccurred())
		Expect(cb.CorrelationID).To(Equal("ws_CO_26"))
		Expect(cb.HasAmount).To(BeTrue())
		Expect(cb.Amount.Equal(dec("750"))).To(BeTrue())
		Expect(cb.ReceiptReference).To(Equal("NLJ7RT61TA"))
		Expect(cb.IsSuccess()).To(BeTrue())
	})

	It("refuses to replay a payload that is not an envelope", func() {
		_, err := payment.ReplayCallback(&callbackLogDatamodel.CallbackLog{ID: 9, Payload: []byte(`"garbage"`)})
		Expect(err).To(HaveOccurred())
	})
})
