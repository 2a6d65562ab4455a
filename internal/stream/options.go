package stream

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hls-stream/internal/platform/logger"
	"hls-stream/internal/platform/metrics"
)

// ExhaustionPolicy decides when the tracked media playlists as a whole have
// no more data.
type ExhaustionPolicy string

const (
	// PolicyAll ends the session once every tracked playlist is terminal.
	PolicyAll ExhaustionPolicy = "all"
	// PolicyAny ends the session once any tracked playlist is terminal.
	PolicyAny ExhaustionPolicy = "any"
	// PolicyLast follows whichever playlist was processed last.
	PolicyLast ExhaustionPolicy = "last"
)

// ParsePolicy parses "all", "any" or "last".
func ParsePolicy(s string) (ExhaustionPolicy, error) {
	switch p := ExhaustionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAll, PolicyAny, PolicyLast:
		return p, nil
	case "":
		return PolicyAll, nil
	}
	return "", fmt.Errorf("stream: unknown exhaustion policy %q", s)
}

// Defaults applied by NewSession to zero Options fields.
const (
	DefaultMaxConcurrentFetches = 8
	DefaultSelectionTimeout     = 5 * time.Second
	DefaultMaxReloadFailures    = 3
	DefaultRetryDelay           = 2 * time.Second
	DefaultMaxRetryDelay        = 30 * time.Second
	DefaultErrorBuffer          = 64
)

// Options configures a Session. Zero values are replaced with defaults.
type Options struct {
	Fetcher   Fetcher   // default: HTTPFetcher over http.DefaultClient
	Parser    Parser    // default: M3U8Parser
	Resolver  Resolver  // default: URLResolver
	Selector  Selector  // nil picks index 0 everywhere
	Scheduler Scheduler // default: wall clock
	Store     Store     // default: InMemoryStore

	Logger  *slog.Logger
	Metrics *metrics.Metrics // may be nil

	Policy ExhaustionPolicy

	// MaxConcurrentFetches bounds the worker pool running fetches.
	MaxConcurrentFetches int

	// SelectionTimeout bounds each Selector call.
	SelectionTimeout time.Duration

	// MaxReloadFailures is how many consecutive failed loads of one playlist
	// are retried before the playlist is abandoned. Negative disables retries.
	MaxReloadFailures int

	// RetryDelay is the first retry delay for a playlist with no known target
	// duration. MaxRetryDelay caps the doubling backoff.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// ErrorBuffer is the capacity of the Errors channel.
	ErrorBuffer int
}

func (o *Options) applyDefaults() {
	if o.Fetcher == nil {
		o.Fetcher = NewHTTPFetcher(nil, nil)
	}
	if o.Parser == nil {
		o.Parser = M3U8Parser{}
	}
	if o.Resolver == nil {
		o.Resolver = URLResolver{}
	}
	if o.Scheduler == nil {
		o.Scheduler = clockScheduler{}
	}
	if o.Store == nil {
		o.Store = NewInMemoryStore()
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	if o.Policy == "" {
		o.Policy = PolicyAll
	}
	if o.MaxConcurrentFetches <= 0 {
		o.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}
	if o.SelectionTimeout <= 0 {
		o.SelectionTimeout = DefaultSelectionTimeout
	}
	if o.MaxReloadFailures == 0 {
		o.MaxReloadFailures = DefaultMaxReloadFailures
	} else if o.MaxReloadFailures < 0 {
		o.MaxReloadFailures = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if o.ErrorBuffer <= 0 {
		o.ErrorBuffer = DefaultErrorBuffer
	}
}
