package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/frahmantamala/sacco-management/internal/transport"
	"github.com/frahmantamala/sacco-management/pkg/logger"
)

// Recovery turns a handler panic into a generic 500. Panic details stay in
// the logs.
func Recovery(base *transport.BaseHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.From(r.Context()).Error("panic recovered",
						"panic", err,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()))
					base.WriteError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
