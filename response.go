package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
)

// M is a shorthand for map[string]interface{}.
type M map[string]interface{}

// Response is a result that knows how to terminate a request. Endpoints
// (and after middleware) return one; the driver calls Respond exactly once.
type Response interface {
	Respond(c *Context, r Responder) error
}

// Responder performs the terminal transport writes. *Driver implements it.
type Responder interface {
	RespondJSON(c *Context, value interface{}) error
	RespondJSONP(c *Context, value interface{}) error
	RespondRedirect(c *Context, status int, url string) error
	RespondView(c *Context, view string, variables M) error
}

// JSONResponse sends its value as JSON.
type JSONResponse struct {
	Value interface{}
}

// Respond implements Response.
func (r *JSONResponse) Respond(c *Context, d Responder) error {
	return d.RespondJSON(c, r.Value)
}

// JSONPResponse sends its value as JSONP.
type JSONPResponse struct {
	Value interface{}
}

// Respond implements Response.
func (r *JSONPResponse) Respond(c *Context, d Responder) error {
	return d.RespondJSONP(c, r.Value)
}

// RedirectResponse redirects to URL with Status. A zero Status means 302.
type RedirectResponse struct {
	URL    string
	Status int
}

// Respond implements Response. The transport takes the status first.
func (r *RedirectResponse) Respond(c *Context, d Responder) error {
	status := r.Status
	if status == 0 {
		status = http.StatusFound
	}
	return d.RespondRedirect(c, status, r.URL)
}

// ViewResponse renders the named view with Variables.
type ViewResponse struct {
	Name      string
	Variables M
}

// Respond implements Response.
func (r *ViewResponse) Respond(c *Context, d Responder) error {
	return d.RespondView(c, r.Name, r.Variables)
}

// BackResponse redirects to the referring page, or DefaultURL when the
// request carries no referer.
type BackResponse struct {
	DefaultURL string
}

// Respond implements Response.
func (r *BackResponse) Respond(c *Context, d Responder) error {
	url := c.Header("Referer")
	if url == "" {
		url = c.Header("Referrer")
	}
	if url == "" {
		url = r.DefaultURL
	}
	if url == "" {
		url = "/"
	}
	return d.RespondRedirect(c, http.StatusFound, url)
}

// JSON returns a Response that sends value as JSON.
func JSON(value interface{}) Response {
	return &JSONResponse{Value: value}
}

// JSONP returns a Response that sends value as JSONP.
func JSONP(value interface{}) Response {
	return &JSONPResponse{Value: value}
}

// Redirect returns a redirect Response. The status defaults to 302.
func Redirect(url string, status ...int) Response {
	code := http.StatusFound
	if len(status) > 0 {
		code = status[0]
	}
	return &RedirectResponse{URL: url, Status: code}
}

// View returns a Response rendering the named view. Variables default to
// an empty map.
func View(name string, variables ...M) Response {
	vars := M{}
	if len(variables) > 0 && variables[0] != nil {
		vars = variables[0]
	}
	return &ViewResponse{Name: name, Variables: vars}
}

// Back returns a Response redirecting to the referer, falling back to
// defaultURL.
func Back(defaultURL ...string) Response {
	r := &BackResponse{}
	if len(defaultURL) > 0 {
		r.DefaultURL = defaultURL[0]
	}
	return r
}

// RespondJSON writes value as a 200 JSON response.
func (d *Driver) RespondJSON(c *Context, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return WrapError(http.StatusInternalServerError, "failed to encode JSON", err)
	}

	c.SetHeader("Content-Type", "application/json; charset=utf-8")
	c.Writer.WriteHeader(http.StatusOK)
	_, err = c.Writer.Write(body)
	return err
}

var jsonpCallback = regexp.MustCompile(`[^\[\]\w$.]`)

// RespondJSONP writes value wrapped in the callback named by the
// "callback" query parameter. Without a callback it behaves like
// RespondJSON.
func (d *Driver) RespondJSONP(c *Context, value interface{}) error {
	callback := jsonpCallback.ReplaceAllString(c.Query("callback"), "")
	if callback == "" {
		return d.RespondJSON(c, value)
	}

	body, err := json.Marshal(value)
	if err != nil {
		return WrapError(http.StatusInternalServerError, "failed to encode JSON", err)
	}

	var buf bytes.Buffer
	buf.WriteString("/**/ typeof ")
	buf.WriteString(callback)
	buf.WriteString(" === 'function' && ")
	buf.WriteString(callback)
	buf.WriteString("(")
	buf.Write(body)
	buf.WriteString(");")

	c.SetHeader("Content-Type", "text/javascript; charset=utf-8")
	c.SetHeader("X-Content-Type-Options", "nosniff")
	c.Writer.WriteHeader(http.StatusOK)
	_, err = c.Writer.Write(buf.Bytes())
	return err
}

// RespondRedirect sends a redirect with the given status to url. Statuses
// outside 3xx are rejected before anything is written.
func (d *Driver) RespondRedirect(c *Context, status int, url string) error {
	if status < 300 || status > 399 {
		return ErrInternal(fmt.Sprintf("invalid redirect status %d", status))
	}
	c.SetHeader("Location", url)
	c.Writer.WriteHeader(status)
	return nil
}

// RespondView renders view through the configured ViewEngine.
func (d *Driver) RespondView(c *Context, view string, variables M) error {
	if d.views == nil {
		return ErrNoViewEngine
	}

	var buf bytes.Buffer
	if err := d.views.Render(&buf, view, variables); err != nil {
		return WrapError(http.StatusInternalServerError, "template rendering failed", err)
	}

	c.SetHeader("Content-Type", "text/html; charset=utf-8")
	c.Writer.WriteHeader(http.StatusOK)
	_, err := c.Writer.Write(buf.Bytes())
	return err
}

// Error sends an error JSON response.
func (d *Driver) Error(c *Context, code int, message string) error {
	return d.writeJSON(c, code, M{
		"error": M{
			"code":    code,
			"message": message,
		},
	})
}

func (d *Driver) writeJSON(c *Context, code int, data interface{}) error {
	c.SetHeader("Content-Type", "application/json; charset=utf-8")
	c.Writer.WriteHeader(code)
	if data == nil {
		return nil
	}
	return json.NewEncoder(c.Writer).Encode(data)
}
