// Package middleware records HTTP requests to an audit trail as they pass
// through a net/http handler chain.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chainlog/chainlog/internal/audit"
)

// maxBodyCapture bounds how much of a request body is read for the trail.
// Bodies that do not parse as JSON within this limit are logged without a
// payload.
const maxBodyCapture = 64 * 1024

type contextKey string

const contextKeyUser contextKey = "chainlog_user"

// User identifies the authenticated principal a request acts as. An auth
// layer upstream of the audit middleware attaches it to the context.
type User struct {
	ID   string
	Name string
}

// WithUser returns a context carrying the principal.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKeyUser, u)
}

// UserFromContext returns the principal attached by WithUser, if any.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKeyUser).(User)
	return u, ok
}

// Audit returns middleware that records every request as a chain entry.
// The append runs in its own goroutine after the response is written, so a
// slow store never blocks responses; failures are logged, not surfaced to
// the client.
func Audit(log *audit.Log) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			body := captureBody(r)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			raw := audit.RawEvent{
				Method:     r.Method,
				Path:       r.URL.Path,
				Query:      r.URL.RawQuery,
				Body:       body,
				IPAddress:  clientIP(r),
				UserAgent:  r.UserAgent(),
				StatusCode: rec.status,
				Duration:   time.Since(start),
			}
			if u, ok := UserFromContext(r.Context()); ok {
				raw.UserID = u.ID
				raw.Username = u.Name
			}

			// The request context dies with the client connection; the
			// audit write must not.
			ctx := context.WithoutCancel(r.Context())
			go func() {
				if _, err := log.Append(ctx, raw); err != nil {
					slog.Error("request audit failed",
						"method", raw.Method, "path", raw.Path, "error", err)
				}
			}()
		})
	}
}

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// captureBody reads up to maxBodyCapture bytes of a JSON request body and
// restores the stream so the handler sees it untouched.
func captureBody(r *http.Request) any {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyCapture))
	if err != nil {
		return nil
	}
	r.Body = bodyRewind{io.MultiReader(bytes.NewReader(data), r.Body), r.Body}

	var parsed any
	if json.Unmarshal(data, &parsed) != nil {
		return nil
	}
	return parsed
}

type bodyRewind struct {
	io.Reader
	io.Closer
}

// clientIP extracts the caller's address, checking proxy headers first.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// Take the first IP if multiple.
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
