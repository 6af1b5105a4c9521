package dispatch

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
)

// NextFunc continues the handler chain. A non-nil error abandons the
// remaining handlers and goes to the transport's error handler.
type NextFunc func(err error)

// HandlerFunc is one link of a route's handler chain.
type HandlerFunc func(c *Context, next NextFunc)

// ErrorHandler receives errors passed to a NextFunc.
type ErrorHandler func(c *Context, err error)

// Transport is the underlying HTTP server the driver registers routes on.
type Transport interface {
	// Handle registers handlers for method (upper case) and path.
	Handle(method, path string, handlers ...HandlerFunc)
	// Use installs low-level middleware around every route.
	Use(mw ...mux.MiddlewareFunc)
	http.Handler
}

// MuxTransport is the gorilla/mux backed Transport.
type MuxTransport struct {
	router      *mux.Router
	driver      *Driver
	onError     ErrorHandler
	contextPool sync.Pool
}

// NewMuxTransport creates a transport over a fresh mux.Router.
func NewMuxTransport() *MuxTransport {
	t := &MuxTransport{router: mux.NewRouter()}
	t.contextPool = sync.Pool{
		New: func() interface{} {
			return &Context{}
		},
	}
	return t
}

// Router returns the underlying mux.Router.
func (t *MuxTransport) Router() *mux.Router {
	return t.router
}

// SetErrorHandler sets the handler used for errors passed to next.
func (t *MuxTransport) SetErrorHandler(h ErrorHandler) {
	t.onError = h
}

// bind attaches the driver so contexts can reach it. Unmatched requests
// get the driver's JSON error body unless the router already has handlers.
func (t *MuxTransport) bind(d *Driver) {
	t.driver = d
	if t.onError == nil {
		t.onError = d.handleError
	}
	if t.router.NotFoundHandler == nil {
		t.router.NotFoundHandler = t.fallback(http.StatusNotFound, "route not found")
	}
	if t.router.MethodNotAllowedHandler == nil {
		t.router.MethodNotAllowedHandler = t.fallback(http.StatusMethodNotAllowed, "method not allowed")
	}
}

// SetNotFound sets the handler for requests no route matches.
func (t *MuxTransport) SetNotFound(h http.Handler) {
	t.router.NotFoundHandler = h
}

// SetMethodNotAllowed sets the handler for a matched path with an
// unregistered method.
func (t *MuxTransport) SetMethodNotAllowed(h http.Handler) {
	t.router.MethodNotAllowedHandler = h
}

func (t *MuxTransport) fallback(code int, message string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.driver.Error(NewContext(w, r, t.driver), code, message)
	})
}

// Use implements Transport.
func (t *MuxTransport) Use(mw ...mux.MiddlewareFunc) {
	t.router.Use(mw...)
}

// Handle implements Transport. mux matches methods verbatim, so extension
// verbs such as M-SEARCH or PURGE work like any other.
func (t *MuxTransport) Handle(method, path string, handlers ...HandlerFunc) {
	t.router.Handle(path, t.chain(handlers)).Methods(strings.ToUpper(method))
}

// ServeHTTP implements http.Handler.
func (t *MuxTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.router.ServeHTTP(w, r)
}

func (t *MuxTransport) chain(handlers []HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := t.contextPool.Get().(*Context)
		c.driver = t.driver
		c.reset(w, r)

		var next NextFunc
		i := 0
		next = func(err error) {
			if err != nil {
				if t.onError != nil {
					t.onError(c, err)
				}
				return
			}
			if i >= len(handlers) {
				return
			}
			h := handlers[i]
			i++
			h(c, next)
		}
		next(nil)

		if !c.detached {
			t.contextPool.Put(c)
		}
	})
}
