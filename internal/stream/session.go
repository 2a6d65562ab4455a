package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateNoPlaylist State = iota
	StateRetrieving
	StateMasterParsed
	StateMediaParsed
	StateNoMoreData
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateNoPlaylist:
		return "no_playlist"
	case StateRetrieving:
		return "retrieving"
	case StateMasterParsed:
		return "master_parsed"
	case StateMediaParsed:
		return "media_parsed"
	case StateNoMoreData:
		return "no_more_data"
	case StateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// Resource kinds, used as metric labels and log attributes.
const (
	fetchPlaylist    = "playlist"
	fetchSegment     = "segment"
	fetchKey         = "key"
	fetchMap         = "map"
	fetchSessionData = "session_data"
)

// track is the polling state of one media playlist URI.
type track struct {
	uri      string
	terminal bool
	failures int
	timer    Timer
	keys     map[string]*Key
	maps     map[string]*Map
}

// Session consumes one playlist hierarchy and delivers it as a pull-based
// sequence of records. All mutable state is guarded by mu; fetches run on a
// bounded worker pool and re-enter through their completion callbacks.
type Session struct {
	id     string
	source string
	opts   Options
	log    *slog.Logger
	pool   *ants.Pool
	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	state          State
	outstanding    int
	master         *MasterPlaylist
	tracks         map[string]*track
	lastTerminal   bool
	sourceDone     bool
	sourceFailures int
	sourceTimer    Timer
	queue          []Record
	wake           chan struct{}
	finished       bool
	closed         bool
	errs           chan error
	errsClosed     bool
}

// NewSession returns an unstarted session for the playlist at source.
func NewSession(source string, opts Options) (*Session, error) {
	if source == "" {
		return nil, errors.New("stream: empty source URL")
	}
	opts.applyDefaults()

	uri, err := opts.Resolver.Resolve(source, "")
	if err != nil {
		return nil, fmt.Errorf("stream: invalid source: %w", err)
	}

	pool, err := ants.NewPool(opts.MaxConcurrentFetches)
	if err != nil {
		return nil, fmt.Errorf("stream: create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Session{
		id:     id,
		source: uri,
		opts:   opts,
		log:    opts.Logger.With(slog.String("session_id", id), slog.String("source", uri)),
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
		tracks: make(map[string]*track),
		wake:   make(chan struct{}),
		errs:   make(chan error, opts.ErrorBuffer),
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Source returns the absolute source URL.
func (s *Session) Source() string { return s.source }

// Errors delivers non-fatal errors: *TransportError, *ParseError and
// *DecodeError. It is closed when the session ends. Errors are dropped when
// the buffer is full.
func (s *Session) Errors() <-chan error { return s.errs }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outstanding returns the number of in-flight fetches.
func (s *Session) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outstanding
}

// Start triggers the initial fetch. It is a no-op once started and fails
// with ErrSessionClosed after Close or exhaustion.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Session) startLocked() error {
	if s.closed || s.state == StateExhausted {
		return ErrSessionClosed
	}
	if s.state != StateNoPlaylist {
		return nil
	}
	s.state = StateRetrieving
	s.log.Info("session starting")
	s.loadSourceLocked()
	return nil
}

// Next returns the next record, starting the session on first use. It blocks
// until a record is available and returns io.EOF once the session is
// exhausted, ErrSessionClosed after Close, or ctx's error.
func (s *Session) Next(ctx context.Context) (Record, error) {
	for {
		s.mu.Lock()
		if s.state == StateNoPlaylist && !s.closed {
			// Neither closed nor started, so this cannot fail.
			_ = s.startLocked()
		}
		if len(s.queue) > 0 {
			r := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return r, nil
		}
		if s.closed {
			s.mu.Unlock()
			return nil, ErrSessionClosed
		}
		if s.finished {
			s.mu.Unlock()
			return nil, io.EOF
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Records iterates over Next until the sequence ends. A terminal error other
// than io.EOF is yielded once.
func (s *Session) Records(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			r, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Close stops all reload timers, cancels in-flight fetches, drops queued
// records and releases owned playlists. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.queue = nil
	if !s.finished {
		s.finished = true
		s.state = StateExhausted
		s.log.Info("session closed", slog.Int("outstanding", s.outstanding))
		s.releaseLocked()
	}
	s.broadcastLocked()
	return nil
}

func (s *Session) loadSourceLocked() {
	s.sourceTimer = nil
	s.fetchLocked(fetchPlaylist, s.source, "", func(resp *Response, err error) {
		if err == nil {
			if err = s.handleSourceLocked(resp); err != nil {
				s.reportLocked(fetchPlaylist, s.source, err)
			}
		}
		if err != nil {
			s.retrySourceLocked()
		}
	})
}

func (s *Session) handleSourceLocked(resp *Response) error {
	rec, err := s.opts.Parser.Parse(s.source, resp.Body)
	if err != nil {
		return err
	}
	switch pl := rec.(type) {
	case *MasterPlaylist:
		s.handleMasterLocked(pl)
	case *MediaPlaylist:
		tr, _ := s.trackLocked(s.source)
		s.handleMediaPlaylistLocked(tr, pl)
	default:
		return &ParseError{URI: s.source, Err: ErrUnexpectedPlaylist}
	}
	return nil
}

func (s *Session) retrySourceLocked() {
	s.sourceFailures++
	if s.sourceFailures > s.opts.MaxReloadFailures {
		s.log.Warn("source abandoned", slog.Int("failures", s.sourceFailures))
		s.sourceDone = true
		return
	}
	delay := backoff(s.opts.RetryDelay, s.opts.MaxRetryDelay, s.sourceFailures)
	s.sourceTimer = s.opts.Scheduler.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.finished {
			return
		}
		s.loadSourceLocked()
	})
}

// fetchLocked starts one counted fetch of ref resolved against base. done
// runs with s.mu held, before the count is released, so anything it emits or
// schedules is visible before exhaustion is re-evaluated. A failed fetch is
// reported here; done still receives the error.
func (s *Session) fetchLocked(kind, ref, base string, done func(*Response, error)) {
	u, err := s.opts.Resolver.Resolve(ref, base)
	if err != nil {
		err = &TransportError{URL: ref, Err: err}
		s.failFetchLocked(kind, ref, err)
		done(nil, err)
		return
	}

	s.increment()
	if s.opts.Metrics != nil {
		s.opts.Metrics.IncFetches(kind)
	}

	complete := func(resp *Response, err error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			s.decrement()
			return
		}
		if err != nil {
			err = asTransportError(u, err)
			s.failFetchLocked(kind, u, err)
		}
		done(resp, err)
		s.decrement()
	}

	// Submit blocks while the pool is saturated, and the caller holds s.mu.
	go func() {
		err := s.pool.Submit(func() {
			complete(s.opts.Fetcher.Fetch(s.ctx, u))
		})
		if err != nil {
			complete(nil, err)
		}
	}()
}

func (s *Session) failFetchLocked(kind, uri string, err error) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.IncFetchErrors(kind)
	}
	s.reportLocked(kind, uri, err)
}

func (s *Session) reportLocked(kind, uri string, err error) {
	s.log.Warn("stream error",
		slog.String("kind", kind),
		slog.String("uri", uri),
		slog.String("error", err.Error()))
	if s.errsClosed {
		return
	}
	select {
	case s.errs <- err:
	default:
		s.log.Debug("error channel full, dropping error", slog.String("uri", uri))
	}
}

func (s *Session) increment() {
	s.outstanding++
	if s.opts.Metrics != nil {
		s.opts.Metrics.SetOutstanding(s.outstanding)
	}
}

func (s *Session) decrement() {
	if s.outstanding == 0 {
		s.log.Error("outstanding operation counter underflow")
		return
	}
	s.outstanding--
	if s.opts.Metrics != nil {
		s.opts.Metrics.SetOutstanding(s.outstanding)
	}
	s.evaluateLocked()
}

// emitLocked queues r for the consumer.
func (s *Session) emitLocked(r Record) {
	if s.finished {
		return
	}
	s.queue = append(s.queue, r)
	if s.opts.Metrics != nil {
		s.opts.Metrics.IncEmitted(string(r.Kind()))
	}
	s.log.Debug("record emitted", slog.String("kind", string(r.Kind())), slog.String("uri", recordURI(r)))
	s.broadcastLocked()
	s.evaluateLocked()
}

func (s *Session) broadcastLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

// evaluateLocked moves to NoMoreData when the tracked playlists say so and
// finishes the sequence once nothing is in flight.
func (s *Session) evaluateLocked() {
	if s.finished || s.state == StateNoPlaylist {
		return
	}
	if s.terminalLocked() {
		s.state = StateNoMoreData
	}
	if s.state == StateNoMoreData && s.outstanding == 0 {
		s.finishLocked()
	}
}

func (s *Session) terminalLocked() bool {
	if s.sourceDone {
		return true
	}
	switch s.opts.Policy {
	case PolicyLast:
		return s.lastTerminal
	case PolicyAny:
		for _, tr := range s.tracks {
			if tr.terminal {
				return true
			}
		}
		return false
	default:
		if len(s.tracks) == 0 {
			return false
		}
		for _, tr := range s.tracks {
			if !tr.terminal {
				return false
			}
		}
		return true
	}
}

func (s *Session) finishLocked() {
	s.finished = true
	s.state = StateExhausted
	s.log.Info("session exhausted")
	s.releaseLocked()
	s.broadcastLocked()
}

func (s *Session) releaseLocked() {
	s.stopTracksLocked()
	if s.sourceTimer != nil {
		s.sourceTimer.Stop()
		s.sourceTimer = nil
	}
	s.tracks = make(map[string]*track)
	s.master = nil
	s.opts.Store.Reset()
	s.cancel()
	if !s.errsClosed {
		close(s.errs)
		s.errsClosed = true
	}
	s.pool.Release()
}

func (s *Session) stopTracksLocked() {
	for _, tr := range s.tracks {
		if tr.timer != nil {
			tr.timer.Stop()
			tr.timer = nil
		}
	}
}

// PlaylistStatus describes one tracked media playlist.
type PlaylistStatus struct {
	URI            string       `json:"uri"`
	Type           PlaylistType `json:"type"`
	Segments       int          `json:"segments"`
	TargetDuration float64      `json:"target_duration"`
	Fingerprint    string       `json:"fingerprint"`
	Terminal       bool         `json:"terminal"`
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID          string           `json:"id"`
	Source      string           `json:"source"`
	State       string           `json:"state"`
	Outstanding int              `json:"outstanding"`
	Queued      int              `json:"queued"`
	Master      bool             `json:"master"`
	Playlists   []PlaylistStatus `json:"playlists"`
}

// Snapshot returns the session's current state. Playlists are ordered by URI.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.id,
		Source:      s.source,
		State:       s.state.String(),
		Outstanding: s.outstanding,
		Queued:      len(s.queue),
		Master:      s.master != nil,
		Playlists:   []PlaylistStatus{},
	}
	for _, uri := range s.opts.Store.ListURIs() {
		pl, _ := s.opts.Store.GetPlaylist(uri)
		st := PlaylistStatus{
			URI:            uri,
			Type:           pl.Type,
			Segments:       len(pl.Segments),
			TargetDuration: pl.TargetDuration.Seconds(),
			Fingerprint:    strconv.FormatUint(pl.Fingerprint, 16),
		}
		if tr, ok := s.tracks[uri]; ok {
			st.Terminal = tr.terminal
		}
		snap.Playlists = append(snap.Playlists, st)
	}
	return snap
}

// PlaylistSource returns the text of the i-th tracked media playlist in
// Snapshot order.
func (s *Session) PlaylistSource(i int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uris := s.opts.Store.ListURIs()
	if i < 0 || i >= len(uris) {
		return "", false
	}
	pl, ok := s.opts.Store.GetPlaylist(uris[i])
	if !ok {
		return "", false
	}
	return pl.Source, true
}

func recordURI(r Record) string {
	switch v := r.(type) {
	case *MasterPlaylist:
		return v.URI
	case *MediaPlaylist:
		return v.URI
	case *Segment:
		return v.URI
	}
	return ""
}
