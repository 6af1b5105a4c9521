package dispatch

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestContainerRegisterAndGet(t *testing.T) {
	c := NewContainer()

	c.Register("greeting", func(c *Container) (interface{}, error) {
		return "Hello, World!", nil
	})

	result, err := c.Get("greeting")
	if err != nil {
		t.Errorf("Get: unexpected error: %v", err)
	}
	if result != "Hello, World!" {
		t.Errorf("Get: expected 'Hello, World!', got %v", result)
	}
}

func TestContainerSingleton(t *testing.T) {
	c := NewContainer()

	callCount := 0
	c.Register("counter", func(c *Container) (interface{}, error) {
		callCount++
		return callCount, nil
	})

	result1, _ := c.Get("counter")
	result2, _ := c.Get("counter")

	if callCount != 1 {
		t.Errorf("expected factory to be called once, called %d times", callCount)
	}
	if result1 != result2 {
		t.Error("expected same instance on multiple gets")
	}
}

func TestContainerNotFound(t *testing.T) {
	c := NewContainer()

	_, err := c.Get("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestContainerFactoryError(t *testing.T) {
	c := NewContainer()

	c.Register("failing", func(c *Container) (interface{}, error) {
		return nil, errors.New("factory failed")
	})

	if _, err := c.Get("failing"); err == nil {
		t.Error("expected error from failing factory")
	}
}

func TestContainerHas(t *testing.T) {
	c := NewContainer()

	c.Register("service", func(c *Container) (interface{}, error) {
		return "value", nil
	})
	c.RegisterInstance("instance", "value")

	if !c.Has("service") {
		t.Error("Has: expected true for registered factory")
	}
	if !c.Has("instance") {
		t.Error("Has: expected true for registered instance")
	}
	if c.Has("nonexistent") {
		t.Error("Has: expected false for nonexistent")
	}
}

func TestContainerKeys(t *testing.T) {
	c := NewContainer()

	c.Register("b", func(c *Container) (interface{}, error) { return "b", nil })
	c.RegisterInstance("a", "a")
	c.RegisterController("users", func(ctx *Context) (interface{}, error) { return &struct{}{}, nil })
	c.RegisterMiddleware("web")

	keys := c.Keys()
	expected := []string{"a", "b", "users", "web"}
	if len(keys) != len(expected) {
		t.Fatalf("Keys: expected %v, got %v", expected, keys)
	}
	for i, k := range expected {
		if keys[i] != k {
			t.Errorf("Keys[%d]: expected %s, got %s", i, k, keys[i])
		}
	}
}

type testService struct {
	Name string
}

func TestResolve(t *testing.T) {
	c := NewContainer()
	c.RegisterInstance("service", &testService{Name: "test"})
	c.RegisterInstance("string", "hello")

	result, err := Resolve[*testService](c, "service")
	if err != nil {
		t.Fatalf("Resolve: unexpected error: %v", err)
	}
	if result.Name != "test" {
		t.Errorf("Resolve: expected name='test', got %s", result.Name)
	}

	if _, err := Resolve[int](c, "string"); err == nil {
		t.Error("Resolve: expected error for type mismatch")
	}
}

func TestContainerMakeByName(t *testing.T) {
	c := NewContainer()

	made := 0
	c.RegisterController("items", func(ctx *Context) (interface{}, error) {
		made++
		return &testService{Name: ctx.Path()}, nil
	})

	ctx := NewContext(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items", nil), nil)

	first, err := c.Make("items", ctx)
	if err != nil {
		t.Fatalf("Make: unexpected error: %v", err)
	}
	second, _ := c.Make("items", ctx)

	if made != 2 {
		t.Errorf("expected a new instance per Make, factory called %d times", made)
	}
	if first == second {
		t.Error("expected distinct instances")
	}
	if first.(*testService).Name != "/items" {
		t.Errorf("expected factory to see the request, got %q", first.(*testService).Name)
	}
}

func TestContainerMakeFactory(t *testing.T) {
	c := NewContainer()
	factory := ControllerFactory(func(ctx *Context) (interface{}, error) {
		return &testService{Name: "direct"}, nil
	})

	instance, err := c.Make(factory, nil)
	if err != nil {
		t.Fatalf("Make: unexpected error: %v", err)
	}
	if instance.(*testService).Name != "direct" {
		t.Errorf("unexpected instance %v", instance)
	}
}

func TestContainerMakeFailures(t *testing.T) {
	c := NewContainer()
	boom := errors.New("boom")
	c.RegisterController("failing", func(ctx *Context) (interface{}, error) { return nil, boom })
	c.RegisterController("empty", func(ctx *Context) (interface{}, error) { return nil, nil })

	tests := []struct {
		name string
		ref  interface{}
		err  error
	}{
		{"unknown name", "missing", nil},
		{"factory error", "failing", boom},
		{"nil instance", "empty", nil},
		{"unsupported ref", 42, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Make(tt.ref, nil)

			var lookupErr *LookupError
			if !errors.As(err, &lookupErr) {
				t.Fatalf("expected *LookupError, got %T (%v)", err, err)
			}
			if lookupErr.Kind != "controller" {
				t.Errorf("expected kind controller, got %s", lookupErr.Kind)
			}
			if !errors.Is(err, ErrNotFound) {
				t.Error("expected LookupError to match ErrNotFound")
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("expected wrapped %v, got %v", tt.err, err)
			}
		})
	}
}

func TestContainerMiddleware(t *testing.T) {
	c := NewContainer()
	a, b := &testService{Name: "a"}, &testService{Name: "b"}

	c.RegisterMiddleware("web", a)
	c.RegisterMiddleware("web", b)
	c.RegisterMiddleware("none")

	group, err := c.Middleware("web")
	if err != nil {
		t.Fatalf("Middleware: unexpected error: %v", err)
	}
	if len(group) != 2 || group[0] != a || group[1] != b {
		t.Errorf("expected [a b], got %v", group)
	}

	group[0] = nil
	again, _ := c.Middleware("web")
	if again[0] != a {
		t.Error("expected Middleware to return a copy")
	}

	empty, err := c.Middleware("none")
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty group and nil error, got %v, %v", empty, err)
	}

	_, err = c.Middleware("missing")
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) || lookupErr.Kind != "middleware" || lookupErr.Name != "missing" {
		t.Errorf("expected middleware LookupError, got %v", err)
	}
}

type testProvider struct {
	BaseProvider
	registerCalled bool
	bootCalled     bool
}

func (p *testProvider) Register(c *Container) error {
	p.registerCalled = true
	c.RegisterInstance("test", "from provider")
	return nil
}

func (p *testProvider) Boot(c *Container) error {
	p.bootCalled = true
	return nil
}

func TestServiceProvider(t *testing.T) {
	c := NewContainer()
	provider := &testProvider{}

	if err := c.RegisterProviders(provider); err != nil {
		t.Errorf("RegisterProviders: unexpected error: %v", err)
	}
	if !provider.registerCalled || !provider.bootCalled {
		t.Error("expected Register and Boot to be called")
	}

	result, _ := c.Get("test")
	if result != "from provider" {
		t.Errorf("expected 'from provider', got %v", result)
	}
}

type failingProvider struct {
	BaseProvider
}

func (p *failingProvider) Register(c *Container) error {
	return errors.New("register failed")
}

func TestServiceProviderRegisterError(t *testing.T) {
	c := NewContainer()

	if err := c.RegisterProviders(&failingProvider{}); err == nil {
		t.Error("expected error from failing provider")
	}
}

func TestContainerConcurrency(t *testing.T) {
	c := NewContainer()

	c.Register("counter", func(c *Container) (interface{}, error) {
		return 1, nil
	})
	c.RegisterMiddleware("web", &testService{})

	done := make(chan bool)
	for i := 0; i < 100; i++ {
		go func() {
			c.Get("counter")
			c.Middleware("web")
			done <- true
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}
}

// catalogProvider wires a shared service and a controller built from it.
type catalogProvider struct {
	BaseProvider
	booted bool
}

type catalog struct{ names []string }

type catalogController struct {
	Catalog *catalog
	Config  *Config
}

func (ctl *catalogController) Index(c *Context) (interface{}, error) {
	return JSON(M{"names": ctl.Catalog.names, "env": ctl.Config.Environment}), nil
}

func (p *catalogProvider) Register(c *Container) error {
	c.Register("catalog", func(*Container) (interface{}, error) {
		return &catalog{names: []string{"a", "b"}}, nil
	})
	c.RegisterController("catalog", func(*Context) (interface{}, error) {
		cat, err := Resolve[*catalog](c, "catalog")
		if err != nil {
			return nil, err
		}
		cfg, err := Resolve[*Config](c, ConfigService)
		if err != nil {
			return nil, err
		}
		return &catalogController{Catalog: cat, Config: cfg}, nil
	})
	return nil
}

func (p *catalogProvider) Boot(c *Container) error {
	if !c.Has("catalog") {
		return errors.New("catalog not registered")
	}
	p.booted = true
	return nil
}

func TestDriverRegisterProviders(t *testing.T) {
	d := newTestDriver(WithConfig(&Config{Environment: "test"}))

	if _, err := Resolve[*Config](d.Container(), ConfigService); err != nil {
		t.Errorf("expected the driver config to be registered: %v", err)
	}
	if _, err := Resolve[*slog.Logger](d.Container(), LoggerService); err != nil {
		t.Errorf("expected the driver logger to be registered: %v", err)
	}

	p := &catalogProvider{}
	if err := d.Register(p); err != nil {
		t.Fatalf("Register: unexpected error: %v", err)
	}
	if !p.booted {
		t.Error("expected Boot to run")
	}

	d.GET("/catalog", To("catalog", "Index"))
	if body := do(d, http.MethodGet, "/catalog", nil).Body.String(); body != `{"env":"test","names":["a","b"]}` {
		t.Errorf("unexpected body %s", body)
	}
}

type nameOnlyRegistry struct{}

func (nameOnlyRegistry) Make(ref interface{}, c *Context) (interface{}, error) {
	return nil, &LookupError{Kind: "controller"}
}

func (nameOnlyRegistry) Middleware(name string) ([]interface{}, error) {
	return nil, &LookupError{Kind: "middleware", Name: name}
}

func TestDriverRegisterNeedsContainer(t *testing.T) {
	d := newTestDriver(WithRegistry(nameOnlyRegistry{}))
	if err := d.Register(&catalogProvider{}); err == nil {
		t.Error("expected an error without a Container")
	}
}
