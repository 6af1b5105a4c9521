package dispatch

import (
	"fmt"
	"sort"
	"sync"
)

// Names under which New registers the driver's own services.
const (
	ConfigService = "config"
	LoggerService = "logger"
)

// ServiceFactory is a function that creates a shared service instance.
type ServiceFactory func(*Container) (interface{}, error)

// ControllerFactory builds a controller for a single request. It is the
// "class reference" form of RouteSpec.Controller and the value stored
// under a controller name in the Container.
type ControllerFactory func(c *Context) (interface{}, error)

// Registry is what the driver needs from the service registry: named
// controller instantiation and named middleware expansion. Both must
// report a miss with a *LookupError rather than an empty result.
type Registry interface {
	Make(ref interface{}, c *Context) (interface{}, error)
	Middleware(name string) ([]interface{}, error)
}

// Container is a small service registry. It holds lazily created shared
// services, per-request controller factories and named middleware groups.
type Container struct {
	factories   map[string]ServiceFactory
	instances   map[string]interface{}
	controllers map[string]ControllerFactory
	middleware  map[string][]interface{}
	mu          sync.RWMutex
}

var _ Registry = (*Container)(nil)

// NewContainer creates an empty registry.
func NewContainer() *Container {
	return &Container{
		factories:   make(map[string]ServiceFactory),
		instances:   make(map[string]interface{}),
		controllers: make(map[string]ControllerFactory),
		middleware:  make(map[string][]interface{}),
	}
}

// Register registers a service factory under the given name.
// The factory will be called lazily when the service is first requested.
func (c *Container) Register(name string, factory ServiceFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

// RegisterInstance registers a pre-created instance.
func (c *Container) RegisterInstance(name string, instance interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances[name] = instance
}

// Get retrieves a service by name, creating and caching it on first use.
func (c *Container) Get(name string) (interface{}, error) {
	c.mu.RLock()
	if instance, ok := c.instances[name]; ok {
		c.mu.RUnlock()
		return instance, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if instance, ok := c.instances[name]; ok {
		return instance, nil
	}

	factory, ok := c.factories[name]
	if !ok {
		return nil, &LookupError{Kind: "service", Name: name}
	}

	instance, err := factory(c)
	if err != nil {
		return nil, fmt.Errorf("failed to create service %s: %w", name, err)
	}

	c.instances[name] = instance

	return instance, nil
}

// Has checks if a service is registered.
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.instances[name]; ok {
		return true
	}
	_, ok := c.factories[name]
	return ok
}

// Resolve retrieves a typed service from the container.
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	instance, err := c.Get(name)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("service %s is not of expected type", name)
	}

	return typed, nil
}

// RegisterController binds a controller name to a per-request factory.
func (c *Container) RegisterController(name string, factory ControllerFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controllers[name] = factory
}

// Make instantiates a controller for the request held by ctx. ref is a
// registered controller name or a ControllerFactory.
func (c *Container) Make(ref interface{}, ctx *Context) (interface{}, error) {
	var (
		name    string
		factory ControllerFactory
	)

	switch r := ref.(type) {
	case string:
		name = r
		c.mu.RLock()
		factory = c.controllers[r]
		c.mu.RUnlock()
	case ControllerFactory:
		name = fmt.Sprintf("%T", r)
		factory = r
	case func(*Context) (interface{}, error):
		name = fmt.Sprintf("%T", r)
		factory = r
	default:
		return nil, &LookupError{Kind: "controller", Name: fmt.Sprintf("%v", ref)}
	}

	if factory == nil {
		return nil, &LookupError{Kind: "controller", Name: name}
	}

	instance, err := factory(ctx)
	if err != nil {
		return nil, &LookupError{Kind: "controller", Name: name, Err: err}
	}
	if instance == nil {
		return nil, &LookupError{Kind: "controller", Name: name}
	}
	return instance, nil
}

// RegisterMiddleware binds a middleware name to zero or more instances.
// Registering the same name twice appends to the group.
func (c *Container) RegisterMiddleware(name string, mw ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	group, ok := c.middleware[name]
	if !ok {
		group = make([]interface{}, 0, len(mw))
	}
	c.middleware[name] = append(group, mw...)
}

// Middleware expands a middleware name. A known name with no members
// yields an empty slice and a nil error.
func (c *Container) Middleware(name string) ([]interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	group, ok := c.middleware[name]
	if !ok {
		return nil, &LookupError{Kind: "middleware", Name: name}
	}

	out := make([]interface{}, len(group))
	copy(out, group)
	return out, nil
}

// ServiceProvider encapsulates registration logic for a set of services,
// controllers and middleware.
type ServiceProvider interface {
	// Register registers bindings in the container.
	Register(*Container) error
	// Boot is called after all providers are registered.
	Boot(*Container) error
}

// RegisterProviders registers then boots multiple service providers.
func (c *Container) RegisterProviders(providers ...ServiceProvider) error {
	for _, p := range providers {
		if err := p.Register(c); err != nil {
			return fmt.Errorf("provider registration failed: %w", err)
		}
	}

	for _, p := range providers {
		if err := p.Boot(c); err != nil {
			return fmt.Errorf("provider boot failed: %w", err)
		}
	}

	return nil
}

// BaseProvider provides a default implementation of ServiceProvider.
type BaseProvider struct{}

// Register is a no-op implementation.
func (p *BaseProvider) Register(c *Container) error {
	return nil
}

// Boot is a no-op implementation.
func (p *BaseProvider) Boot(c *Container) error {
	return nil
}

// Keys returns every registered name, sorted.
func (c *Container) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	for name := range c.factories {
		seen[name] = true
	}
	for name := range c.instances {
		seen[name] = true
	}
	for name := range c.controllers {
		seen[name] = true
	}
	for name := range c.middleware {
		seen[name] = true
	}

	keys := make([]string, 0, len(seen))
	for name := range seen {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}
