package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/sacco-management/internal/transport"
	"github.com/frahmantamala/sacco-management/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RequestID", func() {
	var seen *slog.Logger

	handler := func() http.Handler {
		return RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = logger.From(r.Context())
		}))
	}

	It("echoes the caller's trace id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TraceIDHeader, "trace-123")
		rec := httptest.NewRecorder()
		handler().ServeHTTP(rec, req)

		Expect(rec.Header().Get(TraceIDHeader)).To(Equal("trace-123"))
		Expect(seen).NotTo(BeIdenticalTo(logger.LoggerWrapper()))
	})

	It("generates one when absent", func() {
		rec := httptest.NewRecorder()
		handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(rec.Header().Get(TraceIDHeader)).To(HaveLen(36))
	})
})

var _ = Describe("Recovery", func() {
	base := transport.NewBaseHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	It("answers a panic with a generic 500", func() {
		h := Recovery(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(rec.Body.String()).NotTo(ContainSubstring("boom"))
	})

	It("lets an aborted handler abort", func() {
		h := Recovery(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))
		Expect(func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		}).To(PanicWith(http.ErrAbortHandler))
	})
})

var _ = Describe("CORS", func() {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	request := func(h http.Handler, method, origin string, preflight bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/", nil)
		req.Header.Set("Origin", origin)
		if preflight {
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	It("allows listed origins", func() {
		rec := request(CORS("https://a.example.com, https://b.example.com")(next), http.MethodGet, "https://b.example.com", false)
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://b.example.com"))
	})

	It("ignores other origins", func() {
		rec := request(CORS("https://a.example.com")(next), http.MethodGet, "https://evil.example.com", false)
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("answers preflight requests itself", func() {
		rec := request(CORS("*")(next), http.MethodOptions, "https://any.example.com", true)
		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(ContainSubstring("PATCH"))
	})
})
