// Package dispatch is a request-dispatch layer between a declarative route
// table and a gorilla/mux transport.
//
// A route names an HTTP verb, a path, middleware and an endpoint. The
// driver resolves the middleware into native, before and after phases,
// resolves the endpoint (function, named controller, controller factory or
// controller object) and registers the resulting handler chain:
//
//	d := dispatch.New()
//	d.Container().RegisterMiddleware("auth", &TokenAuth{})
//
//	d.Route(dispatch.RouteSpec{
//	    Method:     "GET",
//	    Prefix:     "/api",
//	    Path:       "/items/{id}",
//	    Middleware: []interface{}{"auth"},
//	    Endpoint: dispatch.EndpointFunc(func(c *dispatch.Context) (interface{}, error) {
//	        return dispatch.JSON(dispatch.M{"id": c.Param("id")}), nil
//	    }),
//	})
//
//	d.Run(dispatch.StartOptions{Port: 8080})
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/gorilla/mux"
)

// Version is the current version of dispatch.
const Version = "0.1.0"

// supportedMethods is the verb set accepted by Route, lower case.
var supportedMethods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true,
	"purge": true, "head": true, "options": true, "copy": true, "lock": true,
	"merge": true, "mkactivity": true, "mkcol": true, "move": true,
	"m-search": true, "notify": true, "report": true, "search": true,
	"subscribe": true, "trace": true, "unlock": true, "unsubscribe": true,
	"checkout": true,
}

// IsSupportedMethod reports whether method (any case) can be routed.
func IsSupportedMethod(method string) bool {
	return supportedMethods[strings.ToLower(method)]
}

// RouteSpec describes one route.
type RouteSpec struct {
	Method string
	Prefix string
	Path   string

	// Middleware holds middleware names and instances, in order. A
	// HandlerFunc is placed in the transport chain as is.
	Middleware []interface{}

	// Controller is nil, a controller name, a ControllerFactory or a
	// controller object (struct or pointer to struct).
	Controller interface{}

	// Endpoint is the method name when Controller is set, otherwise a
	// function endpoint.
	Endpoint interface{}
}

// RouteInfo describes a registered route.
type RouteInfo struct {
	Method string
	Path   string
}

// ViewEngine renders named views for View responses.
type ViewEngine interface {
	Render(w io.Writer, name string, data interface{}) error
}

// Driver is the dispatch pipeline. It owns its route table and is wired
// to a Transport, a Registry and optionally a ViewEngine.
type Driver struct {
	transport Transport
	registry  Registry
	views     ViewEngine
	config    *Config
	logger    *slog.Logger

	mu       sync.Mutex
	routes   []RouteInfo
	server   *http.Server
	listener net.Listener
}

// Option is a function that configures the Driver.
type Option func(*Driver)

// WithTransport replaces the default gorilla/mux transport.
func WithTransport(t Transport) Option {
	return func(d *Driver) {
		d.transport = t
	}
}

// WithRegistry sets the registry used for named controllers and middleware.
func WithRegistry(r Registry) Option {
	return func(d *Driver) {
		d.registry = r
	}
}

// WithViews sets the view engine used by View responses.
func WithViews(v ViewEngine) Option {
	return func(d *Driver) {
		d.views = v
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = l
	}
}

// WithConfig sets the driver configuration.
func WithConfig(cfg *Config) Option {
	return func(d *Driver) {
		d.config = cfg
	}
}

// New creates a Driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		config: DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.registry == nil {
		d.registry = NewContainer()
	}
	if d.transport == nil {
		d.transport = NewMuxTransport()
	}
	if mt, ok := d.transport.(*MuxTransport); ok {
		mt.bind(d)
	}

	d.setup()
	return d
}

func (d *Driver) setup() {
	if c := d.Container(); c != nil {
		c.RegisterInstance(ConfigService, d.config)
		c.RegisterInstance(LoggerService, d.logger)
	}
	if d.config.PoweredBy != "" {
		d.transport.Use(PoweredBy(d.config.PoweredBy))
	}
}

// PoweredBy returns transport middleware setting the X-Powered-By header.
func PoweredBy(name string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Powered-By", name)
			next.ServeHTTP(w, r)
		})
	}
}

// Native returns the underlying transport.
func (d *Driver) Native() Transport {
	return d.transport
}

// Registry returns the registry used for named lookups.
func (d *Driver) Registry() Registry {
	return d.registry
}

// Container returns the registry when it is a *Container, nil otherwise.
func (d *Driver) Container() *Container {
	c, _ := d.registry.(*Container)
	return c
}

// Register registers then boots providers against the driver's Container.
func (d *Driver) Register(providers ...ServiceProvider) error {
	c := d.Container()
	if c == nil {
		return errors.New("dispatch: registry is not a *Container")
	}
	return c.RegisterProviders(providers...)
}

// Config returns the driver configuration.
func (d *Driver) Config() *Config {
	return d.config
}

// Logger returns the driver logger.
func (d *Driver) Logger() *slog.Logger {
	return d.logger
}

// Routes returns the registered routes in registration order.
func (d *Driver) Routes() []RouteInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	routes := make([]RouteInfo, len(d.routes))
	copy(routes, d.routes)
	return routes
}

// Route registers spec with the transport. Unsupported verbs and routes
// that resolve to no handlers are skipped silently.
func (d *Driver) Route(spec RouteSpec) {
	method := strings.ToLower(spec.Method)
	if !supportedMethods[method] {
		return
	}

	fullPath := joinPath(spec.Prefix, spec.Path)
	handlers := d.endpointHandlers(spec)
	if len(handlers) == 0 {
		return
	}

	verb := strings.ToUpper(method)
	d.transport.Handle(verb, fullPath, handlers...)

	d.mu.Lock()
	d.routes = append(d.routes, RouteInfo{Method: verb, Path: fullPath})
	d.mu.Unlock()

	d.logger.Info(fmt.Sprintf("[%s] %s", verb, fullPath))
}

// joinPath joins prefix and p into a rooted path without duplicate
// separators. A trailing slash on p is kept, so "/items/" and "/items"
// stay distinct routes.
func joinPath(prefix, p string) string {
	full := path.Join("/", prefix, p)
	if strings.HasSuffix(p, "/") && full != "/" {
		full += "/"
	}
	return full
}

// endpointHandlers builds the per-request chain for spec and runs the
// native hooks of its middleware.
func (d *Driver) endpointHandlers(spec RouteSpec) []HandlerFunc {
	var (
		handlers []HandlerFunc
		raw      = make([]interface{}, 0, len(spec.Middleware))
	)
	for _, mw := range spec.Middleware {
		if h, ok := mw.(HandlerFunc); ok {
			handlers = append(handlers, h)
			continue
		}
		raw = append(raw, mw)
	}

	set := Compose(d.registry, raw)
	runNative(set.native, d)
	if len(set.before) > 0 {
		handlers = append(handlers, d.beforeWrapper(set.before))
	}

	if h := d.endpointHandler(spec, set.after); h != nil {
		handlers = append(handlers, h)
	}
	return handlers
}

func (d *Driver) endpointHandler(spec RouteSpec, after []*middlewareEntry) HandlerFunc {
	method, _ := spec.Endpoint.(string)

	switch ctl := spec.Controller.(type) {
	case nil:
		fn, ok := asEndpointFunc(spec.Endpoint)
		if !ok {
			d.logger.Warn("endpoint is not callable", "path", spec.Path, "endpoint", fmt.Sprintf("%T", spec.Endpoint))
			return nil
		}
		return d.endpointByFunction(fn, after)

	case string, ControllerFactory, func(*Context) (interface{}, error):
		return d.endpointByName(ctl, method, after)

	default:
		if !isControllerObject(ctl) {
			d.logger.Warn("unsupported controller", "path", spec.Path, "controller", fmt.Sprintf("%T", ctl))
			return nil
		}
		return d.endpointByObject(ctl, method, after)
	}
}

// beforeWrapper runs the before phase as a single chain link.
func (d *Driver) beforeWrapper(entries []*middlewareEntry) HandlerFunc {
	return func(c *Context, next NextFunc) {
		if err := runBefore(entries, c); err != nil {
			next(err)
			return
		}
		next(nil)
	}
}

// handleResult settles, transforms and emits an endpoint result. Errors
// from awaiting, after hooks or the response write are returned.
func (d *Driver) handleResult(c *Context, result interface{}, after []*middlewareEntry) error {
	if result == nil {
		_, err := applyAfter(after, c, nil)
		return err
	}

	if aw, ok := result.(Awaitable); ok {
		value, err := aw.Await(c.Context())
		if err != nil {
			if c.Context().Err() != nil {
				c.detached = true
			}
			return err
		}
		return d.handleResult(c, value, after)
	}

	result, err := applyAfter(after, c, result)
	if err != nil {
		return err
	}

	if resp, ok := result.(Response); ok {
		return resp.Respond(c, d)
	}
	return nil
}

// handleError is the default error continuation of the mux transport.
func (d *Driver) handleError(c *Context, err error) {
	if errors.Is(err, ErrAbort) {
		return
	}

	d.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)

	if c.IsWritten() {
		return
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if d.config.Debug && httpErr.Err != nil {
			d.writeJSON(c, httpErr.Code, M{
				"error": M{
					"code":    httpErr.Code,
					"message": httpErr.Message,
					"debug":   httpErr.Err.Error(),
				},
			})
		} else {
			d.Error(c, httpErr.Code, httpErr.Message)
		}
		return
	}

	if d.config.Debug {
		d.writeJSON(c, http.StatusInternalServerError, M{
			"error": M{
				"code":    http.StatusInternalServerError,
				"message": "Internal Server Error",
				"debug":   err.Error(),
			},
		})
		return
	}
	d.Error(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// ServeHTTP implements the http.Handler interface.
func (d *Driver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.transport.ServeHTTP(w, r)
}

// Start binds the server and serves in the background. With
// CreateServer set to false it returns immediately and binds nothing.
func (d *Driver) Start(opts StartOptions) error {
	opts = opts.withDefaults()
	if !*opts.CreateServer {
		return nil
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:      d,
		ReadTimeout:  d.config.ReadTimeout,
		WriteTimeout: d.config.WriteTimeout,
		IdleTimeout:  d.config.IdleTimeout,
	}

	d.mu.Lock()
	d.server = server
	d.listener = ln
	d.mu.Unlock()

	d.logger.Info(fmt.Sprintf("Listening at %s:%d", opts.Host, opts.Port))

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (d *Driver) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// Run starts the server and blocks until SIGINT/SIGTERM, then shuts down
// gracefully within the configured ShutdownTimeout.
func (d *Driver) Run(opts StartOptions) error {
	if err := d.Start(opts); err != nil {
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	sig := <-shutdown
	d.logger.Info("starting graceful shutdown", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), d.config.ShutdownTimeout)
	defer cancel()

	if err := d.Shutdown(ctx); err != nil {
		d.logger.Error("graceful shutdown failed", "error", err)
		return err
	}

	d.logger.Info("server stopped gracefully")
	return nil
}

// Shutdown gracefully shuts down the server, if one was started.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	server := d.server
	d.mu.Unlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}
