package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/AchrafSoltani/dispatch"
)

// CORSConfig defines the configuration for CORS middleware.
type CORSConfig struct {
	// AllowOrigins is a list of origins that may access the resource.
	// Use "*" to allow any origin, or specify explicit origins.
	AllowOrigins []string

	// AllowMethods is a list of methods that are allowed.
	AllowMethods []string

	// AllowHeaders is a list of headers that are allowed in requests.
	AllowHeaders []string

	// ExposeHeaders is a list of headers that browsers are allowed to access.
	ExposeHeaders []string

	// AllowCredentials indicates whether the request can include user credentials.
	AllowCredentials bool

	// MaxAge indicates how long the results of a preflight request can be cached.
	MaxAge int
}

// DefaultCORSConfig is the default CORS configuration.
var DefaultCORSConfig = CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
		http.MethodHead,
	},
	AllowHeaders: []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-Requested-With",
	},
	ExposeHeaders:    []string{},
	AllowCredentials: false,
	MaxAge:           86400, // 24 hours
}

// CORSMiddleware sets CORS headers before the endpoint runs and answers
// preflight requests itself.
type CORSMiddleware struct {
	config         CORSConfig
	allowAll       bool
	allowedOrigins map[string]bool
	allowMethods   string
	allowHeaders   string
	exposeHeaders  string
	maxAge         string
}

// CORS returns a CORS middleware with the given configuration.
func CORS(config CORSConfig) *CORSMiddleware {
	m := &CORSMiddleware{
		config:         config,
		allowedOrigins: make(map[string]bool),
		allowMethods:   strings.Join(config.AllowMethods, ", "),
		allowHeaders:   strings.Join(config.AllowHeaders, ", "),
		exposeHeaders:  strings.Join(config.ExposeHeaders, ", "),
		maxAge:         strconv.Itoa(config.MaxAge),
	}
	for _, origin := range config.AllowOrigins {
		if origin == "*" {
			m.allowAll = true
			break
		}
		m.allowedOrigins[origin] = true
	}
	return m
}

// AllowOrigins creates a CORS config with specific allowed origins.
func AllowOrigins(origins ...string) CORSConfig {
	config := DefaultCORSConfig
	config.AllowOrigins = origins
	return config
}

// Before implements dispatch.BeforeMiddleware. Preflight requests are
// answered with 204 and end the chain with dispatch.ErrAbort.
func (m *CORSMiddleware) Before(c *dispatch.Context) error {
	origin := c.Header("Origin")

	var allowedOrigin string
	if origin != "" {
		if m.allowAll {
			if m.config.AllowCredentials {
				allowedOrigin = origin
			} else {
				allowedOrigin = "*"
			}
		} else if m.allowedOrigins[origin] {
			allowedOrigin = origin
		}
	}

	if allowedOrigin != "" {
		c.SetHeader("Access-Control-Allow-Origin", allowedOrigin)

		if m.config.AllowCredentials {
			c.SetHeader("Access-Control-Allow-Credentials", "true")
		}

		if m.exposeHeaders != "" {
			c.SetHeader("Access-Control-Expose-Headers", m.exposeHeaders)
		}
	}

	if c.Method() == http.MethodOptions {
		if allowedOrigin != "" {
			c.SetHeader("Access-Control-Allow-Methods", m.allowMethods)
			c.SetHeader("Access-Control-Allow-Headers", m.allowHeaders)
			c.SetHeader("Access-Control-Max-Age", m.maxAge)
		}

		c.SetHeader("Content-Length", "0")
		c.Writer.WriteHeader(http.StatusNoContent)
		return dispatch.ErrAbort
	}

	return nil
}
