package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/frahmantamala/sacco-management/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Logging filters", func() {
	Describe("filterBody", func() {
		It("removes secrets and masks phone numbers", func() {
			out := filterBody([]byte(`{"password":"hunter2","phone_number":"254712345678","amount":1000}`))
			Expect(out).To(ContainSubstring(`"password":"[FILTERED]"`))
			Expect(out).To(ContainSubstring(`"phone_number":"*********678"`))
			Expect(out).To(ContainSubstring(`"amount":1000`))
			Expect(out).NotTo(ContainSubstring("hunter2"))
		})

		It("masks the payer number inside gateway metadata items", func() {
			body := `{"Body":{"stkCallback":{"CallbackMetadata":{"Item":[{"Name":"Amount","Value":1000},{"Name":"PhoneNumber","Value":254712345678}]}}}}`
			out := filterBody([]byte(body))
			Expect(out).To(ContainSubstring(`{"Name":"PhoneNumber","Value":"*********678"}`))
			Expect(out).To(ContainSubstring(`{"Name":"Amount","Value":1000}`))
			Expect(out).NotTo(ContainSubstring("254712345678"))
		})

		It("filters nested keys", func() {
			out := filterBody([]byte(`{"gateway":{"consumer_key":"abc","pass_key":"def"}}`))
			Expect(out).NotTo(ContainSubstring("abc"))
			Expect(out).NotTo(ContainSubstring("def"))
		})

		DescribeTable("non JSON bodies",
			func(body, expected string) {
				Expect(filterBody([]byte(body))).To(Equal(expected))
			},
			Entry("empty", "", ""),
			Entry("plain text", "hello", "hello"),
			Entry("plain text with a secret", "token=abc", "[FILTERED - Contains sensitive data]"),
		)

		It("does not log oversized bodies", func() {
			Expect(filterBody(bytes.Repeat([]byte("a"), maxLoggedBody+1))).To(Equal("[TRUNCATED]"))
		})
	})

	It("filters query parameters", func() {
		out, err := url.ParseQuery(filterQuery(url.Values{
			"token": {"abc"},
			"phone": {"254712345678"},
			"page":  {"2"},
		}))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Get("token")).To(Equal("[FILTERED]"))
		Expect(out.Get("phone")).To(Equal("*********678"))
		Expect(out.Get("page")).To(Equal("2"))
	})

	It("filters authorization headers", func() {
		h := http.Header{}
		h.Set("Authorization", "Bearer abc")
		h.Set("Content-Type", "application/json")
		out := filterHeaders(h)
		Expect(out["Authorization"]).To(Equal("[FILTERED]"))
		Expect(out["Content-Type"]).To(Equal("application/json"))
	})

	DescribeTable("mask",
		func(in, expected string) {
			Expect(mask(in)).To(Equal(expected))
		},
		Entry("short", "123", "***"),
		Entry("phone", "0712345678", "*******678"),
	)

	It("logs the request and response without secrets", func() {
		var buf bytes.Buffer
		lg := slog.New(slog.NewTextHandler(&buf, nil))

		handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))

		req := httptest.NewRequest(http.MethodPost, "/x?token=abc", strings.NewReader(`{"password":"hunter2"}`))
		req = req.WithContext(logger.NewContext(req.Context(), lg))
		req.Header.Set("Authorization", "Bearer secret-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusTeapot))
		Expect(buf.String()).To(ContainSubstring("incoming request"))
		Expect(buf.String()).To(ContainSubstring("status_code=418"))
		Expect(buf.String()).NotTo(ContainSubstring("hunter2"))
		Expect(buf.String()).NotTo(ContainSubstring("secret-token"))
	})
})
