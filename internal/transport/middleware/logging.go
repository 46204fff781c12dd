package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
)

// maxLoggedBody caps how much of a request or response body reaches the log.
const maxLoggedBody = 4 << 10

const filtered = "[FILTERED]"

// Keys are compared after lowercasing and dropping '_' and '-', so
// bank_account_no, bankAccountNo and Bank-Account-No all match.
var (
	secretKeys = map[string]bool{
		"authorization":      true,
		"proxyauthorization": true,
		"cookie":             true,
		"setcookie":          true,
		"apikey":             true,
		"xapikey":            true,
		"webhookkey":         true,
	}
	secretFragments = []string{"password", "token", "secret", "credential"}
	bankAccountKeys = map[string]bool{
		"bankaccountno":     true,
		"bankaccountnumber": true,
		"accountno":         true,
	}
)

func normalizeKey(k string) string {
	return strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(k))
}

func isSecret(key string) bool {
	if secretKeys[key] {
		return true
	}
	for _, f := range secretFragments {
		if strings.Contains(key, f) {
			return true
		}
	}
	return false
}

// maskAccountNo keeps the last four digits so payouts can still be matched against bank statements.
func maskAccountNo(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok || len(s) <= 4 {
		return filtered
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

func LoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())

			logRequest(logger, r, reqID)

			captured := &cappedBuffer{limit: maxLoggedBody}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(captured)

			next.ServeHTTP(ww, r)

			logResponse(r, logger, ww, captured, time.Since(start), reqID)
		})
	}
}

// cappedBuffer keeps the first limit bytes and counts the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
			c.truncated = true
		} else {
			c.buf.Write(p)
		}
	} else if len(p) > 0 {
		c.truncated = true
	}
	return len(p), nil
}

func logRequest(logger *slog.Logger, r *http.Request, reqID string) {
	attrs := []any{
		"request_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
		"query", r.URL.RawQuery,
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"headers", filterSensitiveHeaders(r.Header),
	}

	if r.Body != nil && r.Body != http.NoBody {
		raw, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(raw))
		if len(raw) > maxLoggedBody {
			attrs = append(attrs, "body_bytes", len(raw))
		} else {
			attrs = append(attrs, "body", filterSensitiveBody(raw))
		}
	}

	logger.InfoContext(r.Context(), "incoming request", attrs...)
}

func logResponse(r *http.Request, logger *slog.Logger, ww middleware.WrapResponseWriter, body *cappedBuffer, duration time.Duration, reqID string) {
	statusCode := ww.Status()
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	attrs := []any{
		"request_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", ww.BytesWritten(),
	}
	// success bodies only at debug
	if statusCode >= 400 || logger.Enabled(r.Context(), slog.LevelDebug) {
		if body.truncated {
			attrs = append(attrs, "body_truncated", true)
		} else {
			attrs = append(attrs, "body", filterSensitiveBody(body.buf.Bytes()))
		}
	}

	logger.Log(r.Context(), level, "response", attrs...)
}

func filterSensitiveHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSecret(normalizeKey(name)) {
			out[name] = filtered
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func filterSensitiveBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		// form posts and other non-JSON bodies are not parsed; drop them if they look sensitive
		lower := strings.ToLower(string(body))
		for _, f := range secretFragments {
			if strings.Contains(lower, f) {
				return filtered
			}
		}
		return string(body)
	}

	out, err := json.Marshal(filterSensitiveJSON(data))
	if err != nil {
		return filtered
	}
	return string(out)
}

func filterSensitiveJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			k := normalizeKey(key)
			switch {
			case isSecret(k):
				out[key] = filtered
			case bankAccountKeys[k]:
				out[key] = maskAccountNo(value)
			default:
				out[key] = filterSensitiveJSON(value)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = filterSensitiveJSON(item)
		}
		return out
	default:
		return v
	}
}
