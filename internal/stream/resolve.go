package stream

import (
	"fmt"
	"net/url"
)

// Resolver turns a playlist reference into an absolute URL.
type Resolver interface {
	Resolve(ref, base string) (string, error)
}

// URLResolver resolves references per RFC 3986 against the base URL.
type URLResolver struct{}

// Resolve implements Resolver. An empty base returns ref unchanged once it
// parses.
func (URLResolver) Resolve(ref, base string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	if base == "" {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return b.ResolveReference(r).String(), nil
}
