package flow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type captureLogger struct{ lines []string }

func (c *captureLogger) Printf(format string, v ...interface{}) {
	c.lines = append(c.lines, fmt.Sprintf(format, v...))
}

func TestRequestIDMiddleware_App(t *testing.T) {
	app := New("test-app", WithRequestID(""))

	app.SetRouter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			t.Fatalf("expected X-Request-ID in request header")
		}
		w.WriteHeader(200)
	}))

	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != 200 {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if got := rr.Result().Header.Get("X-Request-ID"); got == "" {
		t.Fatalf("expected X-Request-ID in response header")
	}

	// an incoming id is propagated untouched
	rr = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	app.Handler().ServeHTTP(rr, req)
	if got := rr.Result().Header.Get("X-Request-ID"); got != "abc" {
		t.Fatalf("expected propagated id, got %q", got)
	}
}

func TestTimeoutMiddleware_CancelsHandler(t *testing.T) {
	app := New("test-timeout", WithTimeout(20*time.Millisecond))

	app.SetRouter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(100 * time.Millisecond):
			w.WriteHeader(200)
		case <-r.Context().Done():
			w.WriteHeader(499)
		}
	}))

	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != 499 {
		t.Fatalf("expected handler to observe cancellation and return 499, got %d", rr.Code)
	}
}

func TestLoggingAndMetricsMiddleware(t *testing.T) {
	logger := &captureLogger{}
	app := New("test-logging", WithLogger(logger), WithLogging(), WithMetrics())
	app.SetRouter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, httptest.NewRequest("POST", "/jobs", nil))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if rr.Header().Get("X-Response-Time") == "" {
		t.Fatalf("expected X-Response-Time header")
	}
	if len(logger.lines) != 1 || !strings.Contains(logger.lines[0], "POST /jobs -> 202") {
		t.Fatalf("unexpected log lines: %v", logger.lines)
	}
}

func TestRecovery(t *testing.T) {
	logger := &captureLogger{}
	app := New("test-recovery", WithLogger(logger), WithDefaultMiddleware())
	app.SetRouter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if len(logger.lines) == 0 || logger.lines[0] != "panic: boom" {
		t.Fatalf("expected panic to be logged, got %v", logger.lines)
	}
}

func TestLoggingMiddlewareStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	app := New("test-structured", WithLogger(&zl), WithRequestID(""), WithLogging())
	app.SetRouter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/genres", nil)
	req.Header.Set("X-Request-ID", "req-1")
	app.Handler().ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["method"] != "GET" || entry["path"] != "/genres" || entry["request_id"] != "req-1" {
		t.Fatalf("unexpected fields: %v", entry)
	}
	if entry["status"] != float64(http.StatusTeapot) || entry["message"] != "request" {
		t.Fatalf("unexpected status or message: %v", entry)
	}
	if _, ok := entry["took"]; !ok {
		t.Fatalf("expected took field: %v", entry)
	}
}
