package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/AchrafSoltani/dispatch"
)

// LoggerConfig defines the configuration for Logger middleware.
type LoggerConfig struct {
	// Logger receives one record per request. Defaults to the driver logger.
	Logger *slog.Logger

	// SkipPaths is a list of paths to skip logging.
	SkipPaths []string
}

// LoggerMiddleware logs every request served by the transport. It is a
// native middleware: listing it on any route installs it for all routes.
type LoggerMiddleware struct {
	config    LoggerConfig
	skipPaths map[string]bool
	hook      transportHook
}

// Logger returns a Logger middleware with default configuration.
func Logger() *LoggerMiddleware {
	return LoggerWithConfig(LoggerConfig{})
}

// LoggerWithSkipPaths returns a logger that skips certain paths.
func LoggerWithSkipPaths(paths ...string) *LoggerMiddleware {
	return LoggerWithConfig(LoggerConfig{SkipPaths: paths})
}

// LoggerWithConfig returns a Logger middleware with the given configuration.
func LoggerWithConfig(config LoggerConfig) *LoggerMiddleware {
	skipPaths := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}
	return &LoggerMiddleware{config: config, skipPaths: skipPaths}
}

// Native implements dispatch.NativeMiddleware.
func (m *LoggerMiddleware) Native(d *dispatch.Driver) {
	logger := m.config.Logger
	if logger == nil {
		logger = d.Logger()
	}

	m.hook.install(d, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			level := slog.LevelInfo
			switch {
			case sw.status >= 500:
				level = slog.LevelError
			case sw.status >= 400:
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.String("latency", formatLatency(time.Since(start))),
				slog.String("ip", clientIP(r)),
				slog.String("user_agent", r.UserAgent()),
			)
		})
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// formatLatency formats the latency duration.
func formatLatency(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1000000)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
