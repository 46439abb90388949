package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// ProcessTimeHeader carries the elapsed seconds of a completed request.
const ProcessTimeHeader = "X-Process-Time"

// unmatchedRoute labels requests chi could not route.
const unmatchedRoute = "unmatched"

// PanicError is the failure recorded when a handler panics. The original
// panic value is re-raised once the failure has been logged.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.Value)
}

// Middleware wraps next with the collector. A handler that returns is a
// completed request; a handler that panics is a failed one and the panic
// continues up the stack after the failure is logged.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &timingWriter{ResponseWriter: w, clock: c.clock}
		route := unmatchedRoute

		err := c.observe(r.Method, r.URL.Path, func() string { return route }, func(start time.Time) (status int, err error) {
			tw.start = start
			defer func() {
				route = routePattern(r)
				if v := recover(); v != nil {
					err = &PanicError{Value: v}
				}
			}()

			next.ServeHTTP(tw, r)

			if !tw.wroteHeader {
				tw.WriteHeader(http.StatusOK)
			}
			return tw.status, nil
		})

		if pe, ok := err.(*PanicError); ok {
			panic(pe.Value)
		}
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return unmatchedRoute
}

// timingWriter stamps X-Process-Time just before the status line goes out,
// the last moment headers can still change.
type timingWriter struct {
	http.ResponseWriter
	clock       func() time.Time
	start       time.Time
	status      int
	wroteHeader bool
}

func (w *timingWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	// 1xx responses other than 101 are informational; the final status follows.
	if code >= 100 && code <= 199 && code != http.StatusSwitchingProtocols {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	elapsed := w.clock().Sub(w.start).Seconds()
	w.Header().Set(ProcessTimeHeader, strconv.FormatFloat(elapsed, 'f', 6, 64))
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *timingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *timingWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *timingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
