// Package middleware provides built-in middleware for dispatch routes.
//
// Each middleware implements one or more of the dispatch capabilities:
// Before (runs ahead of the endpoint), After (transforms the result) and
// Native (installs transport-level hooks once, at registration).
//
//	d.Container().RegisterMiddleware("web", middleware.Recovery(), middleware.RequestID())
//	d.Container().RegisterMiddleware("api", middleware.CORS(middleware.DefaultCORSConfig))
package middleware

import (
	"sync"

	"github.com/AchrafSoltani/dispatch"
	"github.com/gorilla/mux"
)

// transportHook installs a mux middleware on the first route that lists
// it. Native hooks run once per route, the transport wraps every route.
type transportHook struct {
	once sync.Once
}

func (h *transportHook) install(d *dispatch.Driver, mw mux.MiddlewareFunc) {
	h.once.Do(func() {
		d.Native().Use(mw)
	})
}
