package flow

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// itemsController is a minimal Resource implementation used for tests.
type itemsController struct{ *Controller }

func (c *itemsController) Index(ctx *Context)  { _ = ctx.JSON(200, []string{"a", "b"}) }
func (c *itemsController) Create(ctx *Context) { ctx.Status(http.StatusCreated) }
func (c *itemsController) Show(ctx *Context) {
	// echo the :id param
	_, _ = ctx.W.Write([]byte(ctx.Param("id")))
}
func (c *itemsController) Update(ctx *Context)  { ctx.Status(200) }
func (c *itemsController) Destroy(ctx *Context) { ctx.Status(http.StatusNoContent) }

func TestPublicRouterIntegration(t *testing.T) {
	app := New("test-app")
	r := NewRouter(app)

	r.Get("/hello", func(ctx *Context) {
		_, _ = ctx.W.Write([]byte("world"))
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/hello", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for /hello, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if string(body) != "world" {
		t.Fatalf("unexpected body: %s", string(body))
	}

	items := &itemsController{Controller: NewController(app)}
	if err := r.Resources("items", items); err != nil {
		t.Fatalf("Resources error: %v", err)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/items/42", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for /items/42, got %d", rr.Code)
	}
	body, _ = io.ReadAll(rr.Body)
	if string(body) != "42" {
		t.Fatalf("expected body 42, got %s", string(body))
	}

	for method, want := range map[string]int{
		"POST":   http.StatusCreated,
		"DELETE": http.StatusMethodNotAllowed,
	} {
		rr = httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(method, "/items", nil))
		if rr.Code != want {
			t.Fatalf("%s /items: expected %d, got %d", method, want, rr.Code)
		}
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("DELETE", "/items/1", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for DELETE /items/1, got %d", rr.Code)
	}

	// method not allowed: POST to a GET-only route
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("POST", "/hello", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST /hello, got %d", rr.Code)
	}
}

func TestContextParamInt64(t *testing.T) {
	r := NewRouter(nil)
	var got int64
	var gotErr error
	r.Get("/things/:id", func(ctx *Context) {
		got, gotErr = ctx.ParamInt64("id")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/things/17", nil))
	if gotErr != nil || got != 17 {
		t.Fatalf("expected 17, got %d (%v)", got, gotErr)
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/things/x", nil))
	if gotErr == nil {
		t.Fatalf("expected parse error")
	}
}
