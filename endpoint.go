package dispatch

import (
	"fmt"
	"net/http"
	"reflect"
	"sync"
)

// EndpointFunc is a plain function endpoint. The *Context it receives is
// created for the request and acts as its controller.
type EndpointFunc func(c *Context) (interface{}, error)

// RequestAware controllers receive the request and response they serve
// before their endpoint method runs.
type RequestAware interface {
	SetRequest(w http.ResponseWriter, r *http.Request)
}

// Controller can be embedded in controller structs to make them
// RequestAware.
type Controller struct {
	Request  *http.Request
	Response http.ResponseWriter
}

// SetRequest implements RequestAware.
func (ctl *Controller) SetRequest(w http.ResponseWriter, r *http.Request) {
	ctl.Request = r
	ctl.Response = w
}

// ownedTag marks controller fields that belong to a single request. They
// are reset on every clone of an object controller; untagged reference
// fields are shared by all requests.
const ownedTag = "owned"

// endpointByFunction builds the handler for a function endpoint.
func (d *Driver) endpointByFunction(fn EndpointFunc, after []*middlewareEntry) HandlerFunc {
	return func(c *Context, next NextFunc) {
		result, err := fn(c)
		d.finish(c, next, result, err, after)
	}
}

// endpointByName builds the handler for a named or factory controller.
// The controller is instantiated per request, so lookup failures surface
// only when a request arrives.
func (d *Driver) endpointByName(ref interface{}, method string, after []*middlewareEntry) HandlerFunc {
	var warnOnce sync.Once
	return func(c *Context, next NextFunc) {
		instance, err := d.registry.Make(ref, c)
		if err != nil {
			next(err)
			return
		}
		attachRequest(instance, c)

		result, found, err := invokeMethod(instance, method, c)
		if !found {
			warnOnce.Do(func() { d.warnSignature(instance, method) })
		}
		d.finish(c, next, result, err, after)
	}
}

// endpointByObject builds the handler for an object controller. Every
// request works on a shallow clone of obj.
func (d *Driver) endpointByObject(obj interface{}, method string, after []*middlewareEntry) HandlerFunc {
	d.warnSignature(cloneController(obj), method)

	return func(c *Context, next NextFunc) {
		instance := cloneController(obj)
		attachRequest(instance, c)

		result, _, err := invokeMethod(instance, method, c)
		d.finish(c, next, result, err, after)
	}
}

// finish is the common tail of every endpoint handler.
func (d *Driver) finish(c *Context, next NextFunc, result interface{}, err error, after []*middlewareEntry) {
	if err == nil {
		err = d.handleResult(c, result, after)
	}
	if err != nil {
		next(err)
	}
}

func attachRequest(instance interface{}, c *Context) {
	if ra, ok := instance.(RequestAware); ok {
		ra.SetRequest(c.Writer, c.Request)
	}
}

// invokeMethod calls the named method on instance. found is false, with a
// nil result and error, when the method does not exist or does not have
// an endpoint signature.
func invokeMethod(instance interface{}, name string, c *Context) (result interface{}, found bool, err error) {
	if name == "" {
		return nil, false, nil
	}
	m := reflect.ValueOf(instance).MethodByName(name)
	if !m.IsValid() {
		return nil, false, nil
	}

	fn, ok := asEndpointFunc(m.Interface())
	if !ok {
		return nil, false, nil
	}
	result, err = fn(c)
	return result, true, err
}

// warnSignature logs when instance has the named method but the driver
// cannot call it. Such a route answers without running anything.
func (d *Driver) warnSignature(instance interface{}, name string) {
	if name == "" {
		return
	}
	m := reflect.ValueOf(instance).MethodByName(name)
	if !m.IsValid() {
		return
	}
	if _, ok := asEndpointFunc(m.Interface()); ok {
		return
	}
	d.logger.Warn("controller method has an unsupported signature",
		"controller", fmt.Sprintf("%T", instance),
		"method", name,
		"signature", m.Type().String())
}

// asEndpointFunc accepts the endpoint signatures the driver can call.
func asEndpointFunc(v interface{}) (EndpointFunc, bool) {
	switch fn := v.(type) {
	case EndpointFunc:
		return fn, fn != nil
	case func(*Context) (interface{}, error):
		return fn, fn != nil
	case func(*Context) interface{}:
		return func(c *Context) (interface{}, error) { return fn(c), nil }, fn != nil
	case func(*Context) error:
		return func(c *Context) (interface{}, error) { return nil, fn(c) }, fn != nil
	case func(*Context):
		return func(c *Context) (interface{}, error) { fn(c); return nil, nil }, fn != nil
	}
	return nil, false
}

// isControllerObject reports whether v can be cloned per request.
func isControllerObject(v interface{}) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// cloneController returns a shallow copy of obj: a new struct whose
// fields are copied by value, so maps, slices and pointers are shared
// with obj. Fields tagged `dispatch:"owned"` are zeroed.
func cloneController(obj interface{}) interface{} {
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	// Value controllers come back as pointers too, so pointer-receiver
	// methods (SetRequest included) are reachable.
	clone := reflect.New(v.Type())
	clone.Elem().Set(v)
	resetOwned(clone.Elem())
	return clone.Interface()
}

func resetOwned(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Tag.Get("dispatch") != ownedTag {
			continue
		}
		if fv := v.Field(i); fv.CanSet() {
			fv.Set(reflect.Zero(f.Type))
		}
	}
}
