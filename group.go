package dispatch

import (
	"net/http"
	"strings"
)

// Action points a route at a controller method.
type Action struct {
	Controller interface{}
	Method     string
}

// To returns the Action for method on controller.
func To(controller interface{}, method string) Action {
	return Action{Controller: controller, Method: method}
}

// RouteGroup declares routes sharing a prefix and leading middleware.
type RouteGroup struct {
	prefix     string
	driver     *Driver
	middleware []interface{}
}

// Group creates a new route group with the given prefix.
func (d *Driver) Group(prefix string, mw ...interface{}) *RouteGroup {
	return &RouteGroup{
		prefix:     strings.TrimSuffix(prefix, "/"),
		driver:     d,
		middleware: mw,
	}
}

// Use adds middleware to the group.
func (g *RouteGroup) Use(mw ...interface{}) {
	g.middleware = append(g.middleware, mw...)
}

// Group creates a nested group with additional prefix and middleware.
func (g *RouteGroup) Group(prefix string, mw ...interface{}) *RouteGroup {
	combined := make([]interface{}, len(g.middleware)+len(mw))
	copy(combined, g.middleware)
	copy(combined[len(g.middleware):], mw)

	return &RouteGroup{
		prefix:     strings.TrimSuffix(joinPath(g.prefix, prefix), "/"),
		driver:     g.driver,
		middleware: combined,
	}
}

// Handle registers endpoint for method and pattern. endpoint is an
// Action or a function endpoint.
func (g *RouteGroup) Handle(method, pattern string, endpoint interface{}, mw ...interface{}) {
	all := make([]interface{}, len(g.middleware)+len(mw))
	copy(all, g.middleware)
	copy(all[len(g.middleware):], mw)

	spec := RouteSpec{
		Method:     method,
		Prefix:     g.prefix,
		Path:       pattern,
		Middleware: all,
	}
	if a, ok := endpoint.(Action); ok {
		spec.Controller = a.Controller
		spec.Endpoint = a.Method
	} else {
		spec.Endpoint = endpoint
	}

	g.driver.Route(spec)
}

// GET registers a GET route.
func (g *RouteGroup) GET(pattern string, endpoint interface{}, mw ...interface{}) {
	g.Handle(http.MethodGet, pattern, endpoint, mw...)
}

// POST registers a POST route.
func (g *RouteGroup) POST(pattern string, endpoint interface{}, mw ...interface{}) {
	g.Handle(http.MethodPost, pattern, endpoint, mw...)
}

// PUT registers a PUT route.
func (g *RouteGroup) PUT(pattern string, endpoint interface{}, mw ...interface{}) {
	g.Handle(http.MethodPut, pattern, endpoint, mw...)
}

// PATCH registers a PATCH route.
func (g *RouteGroup) PATCH(pattern string, endpoint interface{}, mw ...interface{}) {
	g.Handle(http.MethodPatch, pattern, endpoint, mw...)
}

// DELETE registers a DELETE route.
func (g *RouteGroup) DELETE(pattern string, endpoint interface{}, mw ...interface{}) {
	g.Handle(http.MethodDelete, pattern, endpoint, mw...)
}

// Prefix returns the group's prefix.
func (g *RouteGroup) Prefix() string {
	return g.prefix
}

// GET registers a GET route on the driver.
func (d *Driver) GET(pattern string, endpoint interface{}, mw ...interface{}) {
	d.Group("").GET(pattern, endpoint, mw...)
}

// POST registers a POST route on the driver.
func (d *Driver) POST(pattern string, endpoint interface{}, mw ...interface{}) {
	d.Group("").POST(pattern, endpoint, mw...)
}
