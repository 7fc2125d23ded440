// Package flow exposes the public API surface of the Flow framework.
//
// Context is the request-scoped helper passed to controller actions. It
// wraps http.ResponseWriter and *http.Request and provides helpers for
// rendering JSON, reading parameters, binding request bodies and reaching
// the request's database pool.
//
// Design notes:
//   - Context is deliberately small and explicit. It does not perform magic.
//   - Parameter access reads from the request context (the router injects
//     parameters).
//   - The database pool is per request and passed explicitly to managers:
//     Genres.Get(ctx.Ctx(), ctx.Pool(), "", filters).
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	routerpkg "github.com/dministrator/flowdb/internal/router"
	"github.com/dministrator/flowdb/pkg/sqldb"
	"github.com/go-playground/validator/v10"
)

// Context is a small, testable wrapper around ResponseWriter and Request.
type Context struct {
	// App is an optional reference to the running application.
	App *App

	// W is the response writer for the current request.
	W http.ResponseWriter

	// R is the incoming http request.
	R *http.Request

	// status stores the last status set via Status or one of the render
	// helpers. Zero means unset.
	status int
}

// NewContext constructs a Context. App may be nil for tests or simple
// handlers.
func NewContext(app *App, w http.ResponseWriter, r *http.Request) *Context {
	return &Context{App: app, W: w, R: r}
}

// Ctx returns the request's context.Context.
func (c *Context) Ctx() context.Context { return c.R.Context() }

// Pool returns the request's database pool, or nil when no databases are
// configured.
func (c *Context) Pool() *sqldb.Pool {
	return PoolFromContext(c.R.Context())
}

// Params returns the path parameters extracted by the router for this request.
// It always returns a non-nil map.
func (c *Context) Params() map[string]string {
	return routerpkg.ParamsFromContext(c.R.Context())
}

// Param returns the named path parameter or an empty string if missing.
func (c *Context) Param(name string) string {
	return routerpkg.Param(c.R, name)
}

// ParamInt64 parses the named path parameter as a base-10 integer.
func (c *Context) ParamInt64(name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("param %s: %w", name, err)
	}
	return v, nil
}

// SetHeader sets a header on the response.
func (c *Context) SetHeader(key, value string) {
	c.W.Header().Set(key, value)
}

// Status sets the HTTP status code for the response and writes the header.
func (c *Context) Status(code int) {
	c.status = code
	c.W.WriteHeader(code)
}

// JSON writes v as a JSON response with the provided status code.
func (c *Context) JSON(status int, v interface{}) error {
	c.SetHeader("Content-Type", "application/json; charset=utf-8")
	if status == 0 {
		status = http.StatusOK
	}
	c.Status(status)
	if err := json.NewEncoder(c.W).Encode(v); err != nil {
		return fmt.Errorf("render json: %w", err)
	}
	return nil
}

// Redirect sends an HTTP redirect to the client.
func (c *Context) Redirect(urlStr string, code int) {
	if code == 0 {
		code = http.StatusFound
	}
	http.Redirect(c.W, c.R, urlStr, code)
}

// BindJSON decodes the request body into dst, which must be a pointer.
func (c *Context) BindJSON(dst interface{}) error {
	if dst == nil {
		return fmt.Errorf("bind json: dst is nil")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, c.R.Body)
		c.R.Body.Close()
	}()
	if err := json.NewDecoder(c.R.Body).Decode(dst); err != nil {
		return fmt.Errorf("bind json: %w", err)
	}
	return nil
}

// FormValue retrieves a form value, parsing the form if necessary.
func (c *Context) FormValue(key string) string {
	_ = c.R.ParseForm()
	return c.R.FormValue(key)
}

// Error writes a plain text error response.
func (c *Context) Error(status int, msg string) {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.SetHeader("Content-Type", "text/plain; charset=utf-8")
	c.Status(status)
	_, _ = c.W.Write([]byte(msg))
}

// ErrorStatus maps a persistence or validation error to an HTTP status.
func ErrorStatus(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, sqldb.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sqldb.ErrUnknownField), errors.Is(err, sqldb.ErrMultipleResults),
		errors.Is(err, sqldb.ErrUnknownConnection):
		return http.StatusBadRequest
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity
	case sqldb.IsUniqueViolation(err), sqldb.IsForeignKeyViolation(err):
		return http.StatusConflict
	case errors.Is(err, sqldb.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Fail renders err as a JSON error body with the status from
// ErrorStatus. Server errors are logged and their detail is not sent.
func (c *Context) Fail(err error) {
	status := ErrorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		if c.App != nil {
			c.App.logger.Printf("%s %s: %v", c.R.Method, c.R.URL.Path, err)
		}
		msg = http.StatusText(status)
	}
	_ = c.JSON(status, map[string]string{"error": msg})
}
