package middleware

import (
	"strings"

	"github.com/AchrafSoltani/dispatch"
)

// AuthConfig defines the configuration for Auth middleware.
type AuthConfig struct {
	// Validator validates the token and returns the user it belongs to.
	Validator func(token string) (interface{}, error)

	// TokenLookup is "<source>:<name>" with source one of header, query
	// or cookie. Defaults to "header:Authorization".
	TokenLookup string

	// AuthScheme is the authentication scheme (e.g., "Bearer").
	// Only used when TokenLookup is a header.
	AuthScheme string

	// ContextKey is the key used to store the user in the context.
	ContextKey string
}

// DefaultAuthConfig is the default auth configuration.
var DefaultAuthConfig = AuthConfig{
	TokenLookup: "header:Authorization",
	AuthScheme:  "Bearer",
	ContextKey:  "user",
}

// AuthMiddleware authenticates requests before the endpoint runs.
type AuthMiddleware struct {
	config    AuthConfig
	extractor func(*dispatch.Context) string
}

// Auth returns an Auth middleware with the given validator.
func Auth(validator func(token string) (interface{}, error)) *AuthMiddleware {
	config := DefaultAuthConfig
	config.Validator = validator
	return AuthWithConfig(config)
}

// AuthWithConfig returns an Auth middleware with the given configuration.
func AuthWithConfig(config AuthConfig) *AuthMiddleware {
	if config.Validator == nil {
		panic("auth middleware requires a validator function")
	}
	if config.TokenLookup == "" {
		config.TokenLookup = DefaultAuthConfig.TokenLookup
	}
	if config.ContextKey == "" {
		config.ContextKey = DefaultAuthConfig.ContextKey
	}

	parts := strings.Split(config.TokenLookup, ":")
	if len(parts) != 2 {
		panic("invalid TokenLookup format, expected <source>:<name>")
	}

	m := &AuthMiddleware{config: config}
	switch parts[0] {
	case "header":
		m.extractor = headerExtractor(parts[1], config.AuthScheme)
	case "query":
		m.extractor = queryExtractor(parts[1])
	case "cookie":
		m.extractor = cookieExtractor(parts[1])
	default:
		panic("invalid token source: " + parts[0])
	}
	return m
}

// Before implements dispatch.BeforeMiddleware.
func (m *AuthMiddleware) Before(c *dispatch.Context) error {
	token := m.extractor(c)
	if token == "" {
		return dispatch.ErrUnauthorized("missing or invalid token")
	}

	user, err := m.config.Validator(token)
	if err != nil {
		return dispatch.ErrUnauthorized("invalid token")
	}

	c.Set(m.config.ContextKey, user)
	return nil
}

func headerExtractor(header, scheme string) func(*dispatch.Context) string {
	return func(c *dispatch.Context) string {
		auth := c.Header(header)
		if auth == "" {
			return ""
		}

		if scheme != "" {
			prefix := scheme + " "
			if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
				return auth[len(prefix):]
			}
			return ""
		}

		return auth
	}
}

func queryExtractor(name string) func(*dispatch.Context) string {
	return func(c *dispatch.Context) string {
		return c.Query(name)
	}
}

func cookieExtractor(name string) func(*dispatch.Context) string {
	return func(c *dispatch.Context) string {
		cookie, err := c.Request.Cookie(name)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
}

// BasicAuth returns a before hook for HTTP Basic authentication.
func BasicAuth(validator func(username, password string) (interface{}, error)) dispatch.BeforeFunc {
	return func(c *dispatch.Context) error {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			c.SetHeader("WWW-Authenticate", `Basic realm="Restricted"`)
			return dispatch.ErrUnauthorized("authentication required")
		}

		user, err := validator(username, password)
		if err != nil {
			c.SetHeader("WWW-Authenticate", `Basic realm="Restricted"`)
			return dispatch.ErrUnauthorized("invalid credentials")
		}

		c.Set("user", user)
		return nil
	}
}
