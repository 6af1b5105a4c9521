package dispatch

import (
	"reflect"
)

// BeforeMiddleware runs ahead of the endpoint. A non-nil error stops the
// chain and is handed to the transport's error continuation.
type BeforeMiddleware interface {
	Before(c *Context) error
}

// AfterMiddleware transforms the endpoint result. The returned value
// replaces the current result; returning the input keeps it unchanged.
type AfterMiddleware interface {
	After(c *Context, result interface{}) (interface{}, error)
}

// NativeMiddleware is called once when a route using it is registered and
// may attach low-level hooks to the driver's transport.
type NativeMiddleware interface {
	Native(d *Driver)
}

// BeforeFunc adapts a function to BeforeMiddleware. Function values have
// no identity, so the same BeforeFunc listed twice runs twice.
type BeforeFunc func(c *Context) error

// Before implements BeforeMiddleware.
func (f BeforeFunc) Before(c *Context) error { return f(c) }

// AfterFunc adapts a function to AfterMiddleware.
type AfterFunc func(c *Context, result interface{}) (interface{}, error)

// After implements AfterMiddleware.
func (f AfterFunc) After(c *Context, result interface{}) (interface{}, error) { return f(c, result) }

// NativeFunc adapts a function to NativeMiddleware.
type NativeFunc func(d *Driver)

// Native implements NativeMiddleware.
func (f NativeFunc) Native(d *Driver) { f(d) }

// MiddlewareRegistry expands a middleware name into instances.
type MiddlewareRegistry interface {
	Middleware(name string) ([]interface{}, error)
}

// middlewareEntry caches the capabilities of one middleware instance so
// the phases branch on presence instead of probing per request.
type middlewareEntry struct {
	source interface{}
	before func(*Context) error
	after  func(*Context, interface{}) (interface{}, error)
	native func(*Driver)
}

func newMiddlewareEntry(mw interface{}) *middlewareEntry {
	e := &middlewareEntry{source: mw}
	if b, ok := mw.(BeforeMiddleware); ok {
		e.before = b.Before
	}
	if a, ok := mw.(AfterMiddleware); ok {
		e.after = a.After
	}
	if n, ok := mw.(NativeMiddleware); ok {
		e.native = n.Native
	}
	return e
}

// MiddlewareSet is the resolved, de-duplicated middleware of one route,
// split by capability. An instance shows up in every phase it supports.
type MiddlewareSet struct {
	entries []*middlewareEntry
	native  []*middlewareEntry
	before  []*middlewareEntry
	after   []*middlewareEntry
}

// Compose resolves raw middleware references into a MiddlewareSet.
//
// Strings are expanded through reg in registry order. Other non-nil
// values that are not booleans or numbers are used as instances. The
// result keeps the first occurrence of every instance.
func Compose(reg MiddlewareRegistry, raw []interface{}) *MiddlewareSet {
	set := &MiddlewareSet{}
	for _, item := range raw {
		for _, mw := range expandMiddleware(reg, item) {
			set.add(mw)
		}
	}
	return set
}

func expandMiddleware(reg MiddlewareRegistry, item interface{}) []interface{} {
	if item == nil {
		return nil
	}

	if name, ok := item.(string); ok {
		if reg == nil {
			return []interface{}{&unresolvedMiddleware{err: &LookupError{Kind: "middleware", Name: name}}}
		}
		instances, err := reg.Middleware(name)
		if err != nil {
			return []interface{}{&unresolvedMiddleware{err: err}}
		}
		return instances
	}

	switch reflect.TypeOf(item).Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return nil
	}

	return []interface{}{item}
}

func (s *MiddlewareSet) add(mw interface{}) {
	if mw == nil {
		return
	}
	for _, e := range s.entries {
		if sameInstance(e.source, mw) {
			return
		}
	}

	e := newMiddlewareEntry(mw)
	s.entries = append(s.entries, e)
	if e.native != nil {
		s.native = append(s.native, e)
	}
	if e.before != nil {
		s.before = append(s.before, e)
	}
	if e.after != nil {
		s.after = append(s.after, e)
	}
}

// Len returns the number of distinct middleware in the set.
func (s *MiddlewareSet) Len() int {
	return len(s.entries)
}

// Instances returns every resolved middleware in order.
func (s *MiddlewareSet) Instances() []interface{} {
	return sources(s.entries)
}

// Native returns the middleware with a Native hook.
func (s *MiddlewareSet) Native() []interface{} {
	return sources(s.native)
}

// Before returns the middleware with a Before hook.
func (s *MiddlewareSet) Before() []interface{} {
	return sources(s.before)
}

// After returns the middleware with an After hook.
func (s *MiddlewareSet) After() []interface{} {
	return sources(s.after)
}

func sources(entries []*middlewareEntry) []interface{} {
	out := make([]interface{}, len(entries))
	for i, e := range entries {
		out[i] = e.source
	}
	return out
}

// sameInstance compares middleware by identity. Pointers, maps and
// channels compare by address; functions and slices never match; other
// comparable values compare with ==.
func sameInstance(a, b interface{}) (same bool) {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Func, reflect.Slice:
		return false
	}

	if !va.Type().Comparable() {
		return false
	}

	// Structs holding funcs behind interface fields panic on ==.
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// unresolvedMiddleware stands in for a name the registry did not know.
// Registration still succeeds; every request through it fails.
type unresolvedMiddleware struct {
	err error
}

func (u *unresolvedMiddleware) Before(*Context) error {
	return u.err
}

// runNative hands the driver to every native hook, in order.
func runNative(entries []*middlewareEntry, d *Driver) {
	for _, e := range entries {
		e.native(d)
	}
}

// runBefore calls the before hooks in order and stops at the first error.
func runBefore(entries []*middlewareEntry, c *Context) error {
	for _, e := range entries {
		if err := e.before(c); err != nil {
			return err
		}
	}
	return nil
}

// applyAfter threads result through the after hooks in order.
func applyAfter(entries []*middlewareEntry, c *Context, result interface{}) (interface{}, error) {
	for _, e := range entries {
		next, err := e.after(c, result)
		if err != nil {
			return nil, err
		}
		result = next
	}
	return result, nil
}
