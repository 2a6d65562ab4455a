package logger

import (
	"log/slog"
	"net/http"
	"time"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Transport wraps next so that every outbound request is logged at debug level
// with method, url, status, duration_ms and content length. Transport failures
// are logged at warn. A nil next means http.DefaultTransport.
func Transport(log *slog.Logger, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)
		dur := time.Since(start)
		if err != nil {
			log.Warn("fetch failed",
				slog.String("method", r.Method),
				slog.String("url", r.URL.String()),
				slog.Int("duration_ms", int(dur.Milliseconds())),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
		log.Debug("fetch",
			slog.String("method", r.Method),
			slog.String("url", r.URL.String()),
			slog.Int("status", resp.StatusCode),
			slog.Int("duration_ms", int(dur.Milliseconds())),
			slog.Int64("size", resp.ContentLength),
		)
		return resp, nil
	})
}
