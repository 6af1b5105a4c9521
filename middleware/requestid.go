package middleware

import (
	"github.com/AchrafSoltani/dispatch"
	"github.com/google/uuid"
)

// RequestIDHeader is the header carrying the request id.
const RequestIDHeader = "X-Request-ID"

// RequestIDKey is the context store key holding the request id.
const RequestIDKey = "request_id"

// RequestIDMiddleware tags each request with an id. An incoming
// X-Request-ID is kept; otherwise a random UUID is generated.
type RequestIDMiddleware struct {
	Generator func() string
}

// RequestID returns a RequestID middleware generating UUIDv4 ids.
func RequestID() *RequestIDMiddleware {
	return &RequestIDMiddleware{Generator: func() string { return uuid.New().String() }}
}

// Before implements dispatch.BeforeMiddleware.
func (m *RequestIDMiddleware) Before(c *dispatch.Context) error {
	id := c.Header(RequestIDHeader)
	if id == "" {
		id = m.Generator()
	}
	c.Set(RequestIDKey, id)
	c.SetHeader(RequestIDHeader, id)
	return nil
}

// GetRequestID returns the request id stored by RequestID.
func GetRequestID(c *dispatch.Context) string {
	return c.GetString(RequestIDKey)
}
