package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// Context carries one request through the handler chain. For function
// endpoints it doubles as the controller the endpoint runs against.
//
// A Context is pooled by the transport and must not be retained after the
// chain returns.
type Context struct {
	Request *http.Request
	Writer  http.ResponseWriter
	params  map[string]string
	store   map[string]interface{}
	driver  *Driver
	written bool

	// detached is set when the chain stopped waiting on work that may
	// still hold the context. Such a context is never pooled again.
	detached bool
}

// NewContext creates a Context for the given request/response pair.
func NewContext(w http.ResponseWriter, r *http.Request, d *Driver) *Context {
	c := &Context{driver: d}
	c.reset(w, r)
	return c
}

// reset prepares the context for reuse (object pooling).
func (c *Context) reset(w http.ResponseWriter, r *http.Request) {
	c.Request = r
	c.Writer = &trackingWriter{ResponseWriter: w, ctx: c}
	c.params = nil
	if r != nil {
		c.params = mux.Vars(r)
	}
	c.store = make(map[string]interface{})
	c.written = false
	c.detached = false
}

// Driver returns the driver serving this request, if any.
func (c *Context) Driver() *Driver {
	return c.driver
}

// Context returns the request's context.Context.
func (c *Context) Context() context.Context {
	if c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// Param returns a path parameter by name.
func (c *Context) Param(name string) string {
	return c.params[name]
}

// Query returns a query parameter by name.
func (c *Context) Query(name string) string {
	return c.Request.URL.Query().Get(name)
}

// QueryDefault returns a query parameter with a default value.
func (c *Context) QueryDefault(name, def string) string {
	val := c.Query(name)
	if val == "" {
		return def
	}
	return val
}

// Header returns a request header value.
func (c *Context) Header(name string) string {
	return c.Request.Header.Get(name)
}

// SetHeader sets a response header.
func (c *Context) SetHeader(name, value string) {
	c.Writer.Header().Set(name, value)
}

// ContentType returns the request Content-Type without parameters.
func (c *Context) ContentType() string {
	ct := c.Header("Content-Type")
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = ct[:idx]
	}
	return strings.TrimSpace(ct)
}

// BindJSON decodes JSON from the request body.
func (c *Context) BindJSON(v interface{}) error {
	if c.Request.Body == nil {
		return ErrBadRequest("empty request body")
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return WrapError(http.StatusBadRequest, "failed to read request body", err)
	}

	if len(body) == 0 {
		return ErrBadRequest("empty request body")
	}

	if err := json.Unmarshal(body, v); err != nil {
		return WrapError(http.StatusBadRequest, "invalid JSON", err)
	}

	return nil
}

// Get retrieves a value from the request store.
func (c *Context) Get(key string) interface{} {
	return c.store[key]
}

// Set stores a value in the request store. Middleware use it to hand
// data to endpoints.
func (c *Context) Set(key string, value interface{}) {
	if c.store == nil {
		c.store = make(map[string]interface{})
	}
	c.store[key] = value
}

// GetString retrieves a string value from the request store.
func (c *Context) GetString(key string) string {
	if val, ok := c.store[key].(string); ok {
		return val
	}
	return ""
}

// RealIP returns the client's IP address.
// Checks X-Real-IP, X-Forwarded-For, and falls back to RemoteAddr.
func (c *Context) RealIP() string {
	if ip := c.Header("X-Real-IP"); ip != "" {
		return ip
	}

	if xff := c.Header("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}

	addr := c.Request.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// Method returns the request HTTP method.
func (c *Context) Method() string {
	return c.Request.Method
}

// Path returns the request URL path.
func (c *Context) Path() string {
	return c.Request.URL.Path
}

// IsWritten reports whether the response has been started.
func (c *Context) IsWritten() bool {
	return c.written
}

// trackingWriter records whether anything reached the client.
type trackingWriter struct {
	http.ResponseWriter
	ctx *Context
}

func (w *trackingWriter) WriteHeader(code int) {
	w.ctx.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.ctx.written = true
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *trackingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
