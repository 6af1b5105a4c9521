package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/AchrafSoltani/dispatch"
)

// RecoveryConfig defines the configuration for Recovery middleware.
type RecoveryConfig struct {
	// StackSize is the maximum size of the stack trace to capture.
	StackSize int

	// DisableStackAll disables capturing stack traces from all goroutines.
	DisableStackAll bool

	// DisablePrintStack leaves the stack trace out of the log record.
	DisablePrintStack bool

	// Debug includes the panic value and stack in the response body.
	Debug bool

	// Logger receives the panic record. Defaults to the driver logger.
	Logger *slog.Logger
}

// DefaultRecoveryConfig is the default recovery configuration.
var DefaultRecoveryConfig = RecoveryConfig{
	StackSize:       4 << 10, // 4 KB
	DisableStackAll: false,
}

// RecoveryMiddleware turns panics in any handler into a 500 response. It
// is native: it wraps the whole transport the first time a route uses it.
type RecoveryMiddleware struct {
	config RecoveryConfig
	hook   transportHook
}

// Recovery returns a Recovery middleware with default configuration.
func Recovery() *RecoveryMiddleware {
	return RecoveryWithConfig(DefaultRecoveryConfig)
}

// DebugRecovery returns a Recovery middleware that includes panic details
// in the response. Only use this in development.
func DebugRecovery() *RecoveryMiddleware {
	config := DefaultRecoveryConfig
	config.Debug = true
	return RecoveryWithConfig(config)
}

// RecoveryWithConfig returns a Recovery middleware with the given configuration.
func RecoveryWithConfig(config RecoveryConfig) *RecoveryMiddleware {
	if config.StackSize == 0 {
		config.StackSize = DefaultRecoveryConfig.StackSize
	}
	return &RecoveryMiddleware{config: config}
}

// Native implements dispatch.NativeMiddleware.
func (m *RecoveryMiddleware) Native(d *dispatch.Driver) {
	logger := m.config.Logger
	if logger == nil {
		logger = d.Logger()
	}

	m.hook.install(d, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := &wroteWriter{ResponseWriter: w}

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := make([]byte, m.config.StackSize)
				stack = stack[:runtime.Stack(stack, !m.config.DisableStackAll)]

				attrs := []any{"method", r.Method, "path", r.URL.Path, "panic", fmt.Sprint(rec)}
				if !m.config.DisablePrintStack {
					attrs = append(attrs, "stack", string(stack))
				}
				logger.Error("panic recovered", attrs...)

				if ww.wrote {
					return
				}

				body := dispatch.M{
					"code":    http.StatusInternalServerError,
					"message": "Internal Server Error",
				}
				if m.config.Debug {
					body["panic"] = fmt.Sprint(rec)
					body["stack"] = string(stack)
				}

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(dispatch.M{"error": body})
			}()

			next.ServeHTTP(ww, r)
		})
	})
}

// wroteWriter records whether the response has been started.
type wroteWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *wroteWriter) WriteHeader(code int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *wroteWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func (w *wroteWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
