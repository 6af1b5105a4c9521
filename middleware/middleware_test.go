package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AchrafSoltani/dispatch"
	"github.com/nicksnyder/go-i18n/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDriver(t *testing.T, logger *slog.Logger) *dispatch.Driver {
	t.Helper()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return dispatch.New(dispatch.WithLogger(logger))
}

func serve(d *dispatch.Driver, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	return rec
}

func ok(c *dispatch.Context) (interface{}, error) {
	return dispatch.JSON(dispatch.M{"ok": true}), nil
}

func TestCORSPreflight(t *testing.T) {
	d := newDriver(t, nil)
	called := false
	api := d.Group("/api", CORS(DefaultCORSConfig))
	api.Handle(http.MethodOptions, "/items", func(c *dispatch.Context) (interface{}, error) {
		called = true
		return nil, nil
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/items", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := serve(d, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, called, "endpoint must not run for a preflight")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSAllowOrigins(t *testing.T) {
	d := newDriver(t, nil)
	d.GET("/items", ok, CORS(AllowOrigins("http://allowed.com")))

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Origin", "http://allowed.com")
	rec := serve(d, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://allowed.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Origin", "http://evil.com")
	rec = serve(d, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSCredentialsEchoOrigin(t *testing.T) {
	config := DefaultCORSConfig
	config.AllowCredentials = true

	d := newDriver(t, nil)
	d.GET("/items", ok, CORS(config))

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := serve(d, req)

	assert.Equal(t, "http://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestID(t *testing.T) {
	d := newDriver(t, nil)
	var seen string
	d.GET("/", func(c *dispatch.Context) (interface{}, error) {
		seen = GetRequestID(c)
		return nil, nil
	}, RequestID())

	rec := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
	id := rec.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Equal(t, id, seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = serve(d, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", seen)
}

func TestAuth(t *testing.T) {
	auth := Auth(func(token string) (interface{}, error) {
		if token == "valid" {
			return "alice", nil
		}
		return nil, errors.New("bad token")
	})

	d := newDriver(t, nil)
	d.GET("/me", func(c *dispatch.Context) (interface{}, error) {
		return dispatch.JSON(dispatch.M{"user": c.Get("user")}), nil
	}, auth)

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic valid", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer valid", http.StatusOK},
		{"scheme case", "bearer valid", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(d, req)
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				assert.JSONEq(t, `{"user":"alice"}`, rec.Body.String())
			}
		})
	}
}

func TestAuthQueryLookup(t *testing.T) {
	auth := AuthWithConfig(AuthConfig{
		TokenLookup: "query:token",
		Validator:   func(token string) (interface{}, error) { return token, nil },
	})

	d := newDriver(t, nil)
	d.GET("/", ok, auth)

	assert.Equal(t, http.StatusUnauthorized, serve(d, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(d, httptest.NewRequest(http.MethodGet, "/?token=x", nil)).Code)
}

func TestAuthRequiresValidator(t *testing.T) {
	assert.Panics(t, func() { AuthWithConfig(AuthConfig{}) })
}

func TestBasicAuth(t *testing.T) {
	d := newDriver(t, nil)
	d.GET("/", ok, BasicAuth(func(user, pass string) (interface{}, error) {
		if user == "admin" && pass == "secret" {
			return user, nil
		}
		return nil, errors.New("denied")
	}))

	rec := serve(d, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "secret")
	assert.Equal(t, http.StatusOK, serve(d, req).Code)
}

func TestLoggerInstallsOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	d := newDriver(t, logger)

	requestLogger := Logger()
	d.GET("/a", ok, requestLogger)
	d.GET("/b", ok, requestLogger)
	buf.Reset()

	serve(d, httptest.NewRequest(http.MethodGet, "/a", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "request", record["msg"])
	assert.Equal(t, "GET", record["method"])
	assert.Equal(t, "/a", record["path"])
	assert.EqualValues(t, 200, record["status"])
}

func TestLoggerSkipPaths(t *testing.T) {
	var buf bytes.Buffer
	d := newDriver(t, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	d.GET("/health", ok, LoggerWithConfig(LoggerConfig{
		Logger:    slog.New(slog.NewJSONHandler(&buf, nil)),
		SkipPaths: []string{"/health"},
	}))

	serve(d, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, buf.String())
}

func TestFormatLatency(t *testing.T) {
	assert.Equal(t, "500ns", formatLatency(500))
	assert.Equal(t, "1.50ms", formatLatency(1500000))
	assert.Equal(t, "2.00s", formatLatency(2000000000))
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	d := newDriver(t, slog.New(slog.NewJSONHandler(&buf, nil)))
	d.GET("/panic", func(c *dispatch.Context) (interface{}, error) {
		panic("boom")
	}, Recovery())

	rec := serve(d, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":{"code":500,"message":"Internal Server Error"}}`, rec.Body.String())
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "boom")
}

func TestDebugRecovery(t *testing.T) {
	d := newDriver(t, nil)
	d.GET("/panic", func(c *dispatch.Context) (interface{}, error) {
		panic("boom")
	}, DebugRecovery())

	rec := serve(d, httptest.NewRequest(http.MethodGet, "/panic", nil))

	var body struct {
		Error map[string]interface{} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "boom", body.Error["panic"])
	assert.NotEmpty(t, body.Error["stack"])
}

func TestLocale(t *testing.T) {
	locale, err := Locale(LocaleConfig{Dir: "testdata", Languages: []string{"en-us", "fr"}})
	require.NoError(t, err)

	d := newDriver(t, nil)
	d.GET("/hello", func(c *dispatch.Context) (interface{}, error) {
		return dispatch.JSON(dispatch.M{
			"lang": c.Get(LocaleLanguageKey),
			"text": Translator(c)("greeting"),
		}), nil
	}, locale)

	rec := serve(d, httptest.NewRequest(http.MethodGet, "/hello?lang=fr", nil))
	assert.JSONEq(t, `{"lang":"fr","text":"Bonjour"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	req.Header.Set("Accept-Language", "de")
	rec = serve(d, req)
	assert.JSONEq(t, `{"lang":"en-us","text":"Hello"}`, rec.Body.String())
}

func TestLocaleMissingFile(t *testing.T) {
	_, err := Locale(LocaleConfig{Dir: "testdata", Languages: []string{"xx"}})
	assert.Error(t, err)
}

func TestLocaleAfterInjectsViewVariables(t *testing.T) {
	locale := &LocaleMiddleware{}
	c := dispatch.NewContext(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), nil)
	c.Set(LocaleLanguageKey, "fr")

	view := dispatch.View("home", dispatch.M{"title": "Home"})
	out, err := locale.After(c, view)
	require.NoError(t, err)

	vr, isView := out.(*dispatch.ViewResponse)
	require.True(t, isView)
	assert.NotSame(t, view, out)
	assert.Equal(t, "home", vr.Name)
	assert.Equal(t, "fr", vr.Variables[LocaleLanguageKey])
	assert.Equal(t, "Home", vr.Variables["title"])
	assert.Equal(t, dispatch.M{"title": "Home"}, view.(*dispatch.ViewResponse).Variables)

	preset := dispatch.View("home", dispatch.M{LocaleLanguageKey: "de"})
	out, err = locale.After(c, preset)
	require.NoError(t, err)
	assert.Equal(t, "de", out.(*dispatch.ViewResponse).Variables[LocaleLanguageKey])

	other := dispatch.JSON(1)
	out, err = locale.After(c, other)
	require.NoError(t, err)
	assert.Same(t, other, out)
}

// langViews renders the language and greeting it was handed.
type langViews struct{}

func (langViews) Render(w io.Writer, name string, data interface{}) error {
	vars := data.(dispatch.M)
	T := vars[LocaleTranslateKey].(i18n.TranslateFunc)
	_, err := fmt.Fprintf(w, "%s %s %s", vars["title"], vars[LocaleLanguageKey], T("greeting"))
	return err
}

func TestLocaleSharedViewVariables(t *testing.T) {
	locale, err := Locale(LocaleConfig{Dir: "testdata", Languages: []string{"en-us", "fr"}})
	require.NoError(t, err)

	shared := dispatch.M{"title": "Home"}
	d := dispatch.New(
		dispatch.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		dispatch.WithViews(langViews{}),
	)
	d.GET("/", func(c *dispatch.Context) (interface{}, error) {
		return dispatch.View("home", shared), nil
	}, locale)

	fr := httptest.NewRequest(http.MethodGet, "/", nil)
	fr.Header.Set("Accept-Language", "fr")
	assert.Equal(t, "Home fr Bonjour", serve(d, fr).Body.String())

	en := httptest.NewRequest(http.MethodGet, "/", nil)
	en.Header.Set("Accept-Language", "en-US")
	assert.Equal(t, "Home en-us Hello", serve(d, en).Body.String())

	assert.Equal(t, dispatch.M{"title": "Home"}, shared)
}

func TestTranslatorFallback(t *testing.T) {
	c := dispatch.NewContext(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Equal(t, "greeting", Translator(c)("greeting"))
}
