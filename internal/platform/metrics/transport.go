package metrics

import (
	"net/http"

	"hls-stream/internal/platform/logger"
)

// Transport wraps next so that every outbound request is counted, along with
// errors (transport failure or status >= 400). A nil next means
// http.DefaultTransport.
func Transport(m *Metrics, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return logger.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		resp, err := next.RoundTrip(r)
		m.httpRequestsTotal.Inc()
		if err != nil || resp.StatusCode >= 400 {
			m.httpErrorsTotal.Inc()
		}
		return resp, err
	})
}
