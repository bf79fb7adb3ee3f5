package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/sacco-management/pkg/logger"
)

const maxLoggedBody = 4 << 10

// sensitiveFields are matched case-insensitively as substrings of header
// names, query parameters and JSON keys.
var sensitiveFields = []string{
	"password",
	"token",
	"authorization",
	"secret",
	"passkey",
	"pass_key",
	"consumer_key",
	"credential",
}

// maskedFields keep their last digits so operators can still correlate
// payments with handsets.
var maskedFields = []string{
	"phone",
	"msisdn",
}

// Logging writes one line for the request and one for the response, with
// secrets removed and phone numbers masked.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lg := logger.From(r.Context())

		logRequest(lg, r)

		rw := &responseWriter{ResponseWriter: w, body: &bytes.Buffer{}}
		next.ServeHTTP(rw, r)

		logResponse(lg, r, rw, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.statusCode == 0 {
		rw.statusCode = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.body.Len() < maxLoggedBody {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

func logRequest(lg *slog.Logger, r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(body))
	}

	lg.InfoContext(r.Context(), "incoming request",
		"method", r.Method,
		"path", r.URL.Path,
		"query", filterQuery(r.URL.Query()),
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"headers", filterHeaders(r.Header),
		"body", filterBody(body),
	)
}

func logResponse(lg *slog.Logger, r *http.Request, rw *responseWriter, duration time.Duration) {
	status := rw.statusCode
	if status == 0 {
		status = http.StatusOK
	}

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}

	lg.Log(r.Context(), level, "response",
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", status,
		"duration_ms", duration.Milliseconds(),
		"body", filterBody(rw.body.Bytes()),
	)
}

func isSensitive(name string) bool {
	return containsAny(strings.ToLower(name), sensitiveFields)
}

func isMasked(name string) bool {
	return containsAny(strings.ToLower(name), maskedFields)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func mask(value string) string {
	if len(value) <= 3 {
		return "***"
	}
	return strings.Repeat("*", len(value)-3) + value[len(value)-3:]
}

func filterHeaders(headers http.Header) map[string]string {
	filtered := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			filtered[name] = "[FILTERED]"
			continue
		}
		filtered[name] = strings.Join(values, ", ")
	}
	return filtered
}

func filterQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	filtered := url.Values{}
	for name, values := range query {
		for _, v := range values {
			switch {
			case isSensitive(name):
				filtered.Add(name, "[FILTERED]")
			case isMasked(name):
				filtered.Add(name, mask(v))
			default:
				filtered.Add(name, v)
			}
		}
	}
	return filtered.Encode()
}

func filterBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > maxLoggedBody {
		return "[TRUNCATED]"
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		if isSensitive(string(body)) {
			return "[FILTERED - Contains sensitive data]"
		}
		return string(body)
	}

	out, err := json.Marshal(filterJSON(data))
	if err != nil {
		return "[ERROR - Failed to marshal filtered JSON]"
	}
	return string(out)
}

// filterJSON walks the document. Gateway callbacks carry the payer's number
// as a {"Name":"PhoneNumber","Value":...} item, so Name/Value pairs are
// filtered by their Name.
func filterJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		if name, ok := v["Name"].(string); ok {
			if value, has := v["Value"]; has {
				filtered := map[string]interface{}{"Name": name}
				switch {
				case isSensitive(name):
					filtered["Value"] = "[FILTERED]"
				case isMasked(name):
					filtered["Value"] = maskValue(value)
				default:
					filtered["Value"] = value
				}
				return filtered
			}
		}
		filtered := make(map[string]interface{}, len(v))
		for key, value := range v {
			switch {
			case isSensitive(key):
				filtered[key] = "[FILTERED]"
			case isMasked(key):
				filtered[key] = maskValue(value)
			default:
				filtered[key] = filterJSON(value)
			}
		}
		return filtered
	case []interface{}:
		filtered := make([]interface{}, len(v))
		for i, item := range v {
			filtered[i] = filterJSON(item)
		}
		return filtered
	default:
		return v
	}
}

func maskValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return mask(v)
	case float64:
		return mask(formatNumber(v))
	default:
		return "[FILTERED]"
	}
}

func formatNumber(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
