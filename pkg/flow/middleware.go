package flow

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status and duration of each request.
// A *zerolog.Logger gets them as structured fields.
func LoggingMiddleware(logger Logger) Middleware {
	zl, structured := logger.(*zerolog.Logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			if structured {
				zl.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", rec.status).
					Dur("took", time.Since(start)).
					Str("request_id", r.Header.Get("X-Request-ID")).
					Msg("request")
				return
			}
			logger.Printf("%s %s -> %d in %s", r.Method, r.URL.Path, rec.status, time.Since(start))
		})
	}
}

// RequestIDMiddleware sets a request id header for tracing.
func RequestIDMiddleware(headerName string) Middleware {
	if headerName == "" {
		headerName = "X-Request-ID"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerName)
			if id == "" {
				id = uuid.New().String()
				r.Header.Set(headerName, id)
			}
			w.Header().Set(headerName, id)
			next.ServeHTTP(w, r)
		})
	}
}

// TimeoutMiddleware cancels the request context after d. Handlers and
// database calls made with that context observe the cancellation.
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// metricsWriter sets X-Response-Time just before the header is sent.
type metricsWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (m *metricsWriter) WriteHeader(code int) {
	if !m.wroteHeader {
		m.wroteHeader = true
		m.Header().Set("X-Response-Time", fmt.Sprintf("%dms", time.Since(m.start).Milliseconds()))
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *metricsWriter) Write(b []byte) (int, error) {
	if !m.wroteHeader {
		m.WriteHeader(http.StatusOK)
	}
	return m.ResponseWriter.Write(b)
}

// MetricsMiddleware records handler latency in the X-Response-Time header.
func MetricsMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(&metricsWriter{ResponseWriter: w, start: time.Now()}, r)
		})
	}
}

// Recovery recovers from panics and returns a 500 response. It logs the
// panic via logger.
func Recovery(logger Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Printf("panic: %v", rec)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
