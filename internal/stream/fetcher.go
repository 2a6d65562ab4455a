package stream

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"

	"go.uber.org/ratelimit"
)

// Response is a fetched resource.
type Response struct {
	URL    string
	Header http.Header
	Body   []byte
}

// MIMEType returns the media type of the Content-Type header without
// parameters, or "" when absent or malformed.
func (r *Response) MIMEType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}

// Fetcher resolves an absolute URL to its body and headers. Failures are
// reported as *TransportError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// HTTPFetcher fetches over HTTP, pacing requests with a rate limiter.
type HTTPFetcher struct {
	client  *http.Client
	limiter ratelimit.Limiter
	header  http.Header
}

// NewHTTPFetcher returns a fetcher using client (http.DefaultClient when nil)
// and limiter (unlimited when nil).
func NewHTTPFetcher(client *http.Client, limiter ratelimit.Limiter) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if limiter == nil {
		limiter = ratelimit.NewUnlimited()
	}
	return &HTTPFetcher{client: client, limiter: limiter, header: make(http.Header)}
}

// WithHeader adds a header sent with every request, e.g. User-Agent.
func (f *HTTPFetcher) WithHeader(key, value string) *HTTPFetcher {
	f.header.Add(key, value)
	return f
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	f.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	for k, vs := range f.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	return &Response{URL: url, Header: resp.Header, Body: body}, nil
}
