package middleware

import (
	"fmt"
	"path/filepath"

	"github.com/AchrafSoltani/dispatch"
	"github.com/nicksnyder/go-i18n/i18n"
)

// Context store keys set by Locale.
const (
	LocaleTranslateKey = "T"
	LocaleLanguageKey  = "lang"
)

// LocaleConfig defines the configuration for Locale middleware.
type LocaleConfig struct {
	// Dir holds one <language>.all.json translation file per language.
	Dir string

	// Languages lists the language tags to load from Dir.
	Languages []string

	// Default is used when the request asks for no supported language.
	Default string

	// QueryParam overrides Accept-Language when present. Defaults to "lang".
	QueryParam string
}

// LocaleMiddleware picks a language for each request from the query and
// the Accept-Language header. Before stores the translate function and the
// language tag in the context; After copies both into View variables.
type LocaleMiddleware struct {
	config LocaleConfig
}

// Locale loads the translation files and returns the middleware. It fails
// when a configured language has no file in Dir.
func Locale(config LocaleConfig) (*LocaleMiddleware, error) {
	if config.QueryParam == "" {
		config.QueryParam = "lang"
	}
	if config.Default == "" {
		config.Default = "en-US"
	}

	for _, lang := range config.Languages {
		path := filepath.Join(config.Dir, lang+".all.json")
		if err := i18n.LoadTranslationFile(path); err != nil {
			return nil, fmt.Errorf("failed to load translations %s: %w", path, err)
		}
	}
	return &LocaleMiddleware{config: config}, nil
}

// MustLocale is like Locale but panics on error.
func MustLocale(config LocaleConfig) *LocaleMiddleware {
	m, err := Locale(config)
	if err != nil {
		panic(err)
	}
	return m
}

// Before implements dispatch.BeforeMiddleware.
func (m *LocaleMiddleware) Before(c *dispatch.Context) error {
	T, lang, err := i18n.TfuncAndLanguage(c.Query(m.config.QueryParam), c.Header("Accept-Language"), m.config.Default)

	tag := ""
	if err == nil && lang != nil {
		tag = lang.Tag
	}

	c.Set(LocaleTranslateKey, T)
	c.Set(LocaleLanguageKey, tag)
	return nil
}

// After implements dispatch.AfterMiddleware. It returns a new
// ViewResponse; the endpoint's Variables map is never written, since
// endpoints may hand the same map to concurrent requests.
func (m *LocaleMiddleware) After(c *dispatch.Context, result interface{}) (interface{}, error) {
	view, ok := result.(*dispatch.ViewResponse)
	if !ok {
		return result, nil
	}

	vars := make(dispatch.M, len(view.Variables)+2)
	for k, v := range view.Variables {
		vars[k] = v
	}
	if _, set := vars[LocaleTranslateKey]; !set {
		vars[LocaleTranslateKey] = c.Get(LocaleTranslateKey)
	}
	if _, set := vars[LocaleLanguageKey]; !set {
		vars[LocaleLanguageKey] = c.Get(LocaleLanguageKey)
	}
	return &dispatch.ViewResponse{Name: view.Name, Variables: vars}, nil
}

// Translator returns the translate function stored by Locale, or one that
// echoes the message id when Locale did not run.
func Translator(c *dispatch.Context) i18n.TranslateFunc {
	if T, ok := c.Get(LocaleTranslateKey).(i18n.TranslateFunc); ok {
		return T
	}
	return func(id string, args ...interface{}) string { return id }
}
