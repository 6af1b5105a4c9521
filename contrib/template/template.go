// Package template is the html/template backed view engine for View
// responses.
//
//	engine, err := template.New(template.Config{Dir: "views"})
//	d := dispatch.New(dispatch.WithViews(engine))
//
//	d.GET("/", func(c *dispatch.Context) (interface{}, error) {
//	    return dispatch.View("home", dispatch.M{"title": "Home"}), nil
//	})
//
// View names are file paths relative to Dir without the extension, using
// forward slashes ("users/show" for views/users/show.html).
package template

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/AchrafSoltani/dispatch"
)

// Engine loads and renders views.
type Engine struct {
	templates *template.Template
	funcMap   template.FuncMap
	fsys      fs.FS
	ext       string
	reload    bool
	mu        sync.RWMutex
}

var _ dispatch.ViewEngine = (*Engine)(nil)

// Config holds view engine configuration.
type Config struct {
	// Dir is the directory containing view files.
	Dir string

	// Extension is the view file extension (default: ".html").
	Extension string

	// Reload re-reads the views on each render (for development).
	Reload bool

	// FuncMap is merged over the built-in functions.
	FuncMap template.FuncMap
}

// New creates an engine reading views from config.Dir.
func New(config Config) (*Engine, error) {
	if config.Dir == "" {
		config.Dir = "views"
	}
	return NewFromFS(os.DirFS(config.Dir), config)
}

// NewFromFS creates an engine reading views from fsys, e.g. an embed.FS.
func NewFromFS(fsys fs.FS, config Config) (*Engine, error) {
	if config.Extension == "" {
		config.Extension = ".html"
	}

	funcs := defaultFuncs()
	for name, fn := range config.FuncMap {
		funcs[name] = fn
	}

	e := &Engine{
		funcMap: funcs,
		fsys:    fsys,
		ext:     config.Extension,
		reload:  config.Reload,
	}

	if err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) load() error {
	tmpl := template.New("").Funcs(e.funcMap)

	err := fs.WalkDir(e.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, e.ext) {
			return nil
		}

		content, err := fs.ReadFile(e.fsys, path)
		if err != nil {
			return err
		}

		_, err = tmpl.New(strings.TrimSuffix(path, e.ext)).Parse(string(content))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to load views: %w", err)
	}

	e.mu.Lock()
	e.templates = tmpl
	e.mu.Unlock()
	return nil
}

// Render implements dispatch.ViewEngine.
func (e *Engine) Render(w io.Writer, name string, data interface{}) error {
	if e.reload {
		if err := e.load(); err != nil {
			return err
		}
	}

	e.mu.RLock()
	tmpl := e.templates.Lookup(name)
	e.mu.RUnlock()

	if tmpl == nil {
		return fmt.Errorf("view not found: %s", name)
	}
	return tmpl.Execute(w, data)
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"safeHTML": func(s string) template.HTML { return template.HTML(s) },
		"safeURL":  func(s string) template.URL { return template.URL(s) },
		"lower":    strings.ToLower,
		"upper":    strings.ToUpper,
		"trim":     strings.TrimSpace,
		"join":     strings.Join,
		"default": func(def, val interface{}) interface{} {
			if val == nil || val == "" {
				return def
			}
			return val
		},
		"truncate": func(s string, n int) string {
			if len(s) <= n {
				return s
			}
			return s[:n] + "..."
		},
	}
}
