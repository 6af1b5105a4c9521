// Example application demonstrating dispatch usage.
package main

import (
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/AchrafSoltani/dispatch"
	"github.com/AchrafSoltani/dispatch/contrib/template"
	"github.com/AchrafSoltani/dispatch/middleware"
)

// User represents a user entity.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// userStore is an in-memory user table shared by every request.
type userStore struct {
	mu     sync.RWMutex
	users  []User
	nextID int64
}

// UsersController is registered as an object; each request runs on a
// shallow copy, so Store is shared and Loaded is per request.
type UsersController struct {
	dispatch.Controller
	Store  *userStore
	Loaded *User `dispatch:"owned"`
}

// Index lists users.
func (ctl *UsersController) Index(c *dispatch.Context) (interface{}, error) {
	ctl.Store.mu.RLock()
	defer ctl.Store.mu.RUnlock()

	users := make([]User, len(ctl.Store.users))
	copy(users, ctl.Store.users)
	return dispatch.JSON(users), nil
}

// Show returns a user by id, as JSONP when a callback is given.
func (ctl *UsersController) Show(c *dispatch.Context) (interface{}, error) {
	if err := ctl.load(c); err != nil {
		return nil, err
	}
	if c.Query("callback") != "" {
		return dispatch.JSONP(ctl.Loaded), nil
	}
	return dispatch.JSON(ctl.Loaded), nil
}

// Create adds a user and redirects back to the listing.
func (ctl *UsersController) Create(c *dispatch.Context) (interface{}, error) {
	var input User
	if err := c.BindJSON(&input); err != nil {
		return nil, err
	}
	if input.Name == "" || input.Email == "" {
		return nil, dispatch.ErrBadRequest("name and email are required")
	}

	ctl.Store.mu.Lock()
	input.ID = ctl.Store.nextID
	ctl.Store.nextID++
	ctl.Store.users = append(ctl.Store.users, input)
	ctl.Store.mu.Unlock()

	return dispatch.Redirect("/api/v1/users", http.StatusSeeOther), nil
}

// Delete removes a user.
func (ctl *UsersController) Delete(c *dispatch.Context) (interface{}, error) {
	if err := ctl.load(c); err != nil {
		return nil, err
	}

	ctl.Store.mu.Lock()
	defer ctl.Store.mu.Unlock()
	for i, u := range ctl.Store.users {
		if u.ID == ctl.Loaded.ID {
			ctl.Store.users = append(ctl.Store.users[:i], ctl.Store.users[i+1:]...)
			break
		}
	}
	return dispatch.Back("/api/v1/users"), nil
}

func (ctl *UsersController) load(c *dispatch.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return dispatch.ErrBadRequest("invalid user ID")
	}

	ctl.Store.mu.RLock()
	defer ctl.Store.mu.RUnlock()
	for _, u := range ctl.Store.users {
		if u.ID == id {
			found := u
			ctl.Loaded = &found
			return nil
		}
	}
	return dispatch.NewHTTPError(http.StatusNotFound, "user not found")
}

// ReportsController is created per request by name.
type ReportsController struct {
	dispatch.Controller
	started time.Time
}

// Summary computes a report off the request goroutine. The goroutine may
// outlive the request, so it only sees values copied out of c.
func (ctl *ReportsController) Summary(c *dispatch.Context) (interface{}, error) {
	requestID := middleware.GetRequestID(c)
	return dispatch.Async(func() (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return dispatch.JSON(dispatch.M{
			"generated_in": time.Since(ctl.started).String(),
			"request_id":   requestID,
		}), nil
	}), nil
}

// appProvider registers the shared services, the named controllers and
// the middleware groups used by the routes.
type appProvider struct {
	dispatch.BaseProvider
	locale *middleware.LocaleMiddleware
}

func (p *appProvider) Register(c *dispatch.Container) error {
	c.Register("users.store", func(*dispatch.Container) (interface{}, error) {
		return &userStore{
			users: []User{
				{ID: 1, Name: "John Doe", Email: "john@example.com"},
				{ID: 2, Name: "Jane Smith", Email: "jane@example.com"},
			},
			nextID: 3,
		}, nil
	})
	c.Register("users.controller", func(c *dispatch.Container) (interface{}, error) {
		store, err := dispatch.Resolve[*userStore](c, "users.store")
		if err != nil {
			return nil, err
		}
		return &UsersController{Store: store}, nil
	})
	c.RegisterController("reports", func(*dispatch.Context) (interface{}, error) {
		return &ReportsController{started: time.Now()}, nil
	})
	return nil
}

func (p *appProvider) Boot(c *dispatch.Container) error {
	logger, err := dispatch.Resolve[*slog.Logger](c, dispatch.LoggerService)
	if err != nil {
		return err
	}

	c.RegisterMiddleware("web", middleware.Recovery(), middleware.LoggerWithConfig(middleware.LoggerConfig{Logger: logger, SkipPaths: []string{"/health"}}), middleware.RequestID(), p.locale)
	c.RegisterMiddleware("api", middleware.CORS(middleware.DefaultCORSConfig))
	c.RegisterMiddleware("auth", middleware.Auth(func(token string) (interface{}, error) {
		if token != dispatch.Env("API_TOKEN", "demo-token") {
			return nil, errors.New("unknown token")
		}
		return "demo", nil
	}))
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := dispatch.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	views, err := template.New(template.Config{Dir: "example/views", Reload: !cfg.IsProduction()})
	if err != nil {
		logger.Error("failed to load views", "error", err)
		os.Exit(1)
	}

	d := dispatch.New(
		dispatch.WithConfig(cfg),
		dispatch.WithLogger(logger),
		dispatch.WithViews(views),
	)

	locale, err := middleware.Locale(middleware.LocaleConfig{
		Dir:       "example/locales",
		Languages: []string{"en-us", "fr"},
	})
	if err != nil {
		logger.Error("failed to load translations", "error", err)
		os.Exit(1)
	}

	if err := d.Register(&appProvider{locale: locale}); err != nil {
		logger.Error("failed to register providers", "error", err)
		os.Exit(1)
	}
	logger.Debug("container ready", "keys", d.Container().Keys())

	users, err := dispatch.Resolve[*UsersController](d.Container(), "users.controller")
	if err != nil {
		logger.Error("failed to resolve users controller", "error", err)
		os.Exit(1)
	}

	web := d.Group("", "web")
	web.GET("/", func(c *dispatch.Context) (interface{}, error) {
		return dispatch.View("home", dispatch.M{"version": dispatch.Version}), nil
	})
	web.GET("/health", func(c *dispatch.Context) (interface{}, error) {
		return dispatch.JSON(dispatch.M{"status": "ok", "version": dispatch.Version}), nil
	})

	api := web.Group("/api/v1", "api")
	api.GET("/users", dispatch.To(users, "Index"))
	api.GET("/users/{id:[0-9]+}", dispatch.To(users, "Show"))
	api.POST("/users", dispatch.To(users, "Create"), "auth")
	api.DELETE("/users/{id:[0-9]+}", dispatch.To(users, "Delete"), "auth")
	api.GET("/reports/summary", dispatch.To("reports", "Summary"))

	if err := d.Run(cfg.StartOptions()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
