package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"
)

type fakeResource struct {
	body        string
	status      int
	contentType string
	block       chan struct{}
}

// fakeFetcher serves registered bodies by URL. Unknown URLs answer 404.
type fakeFetcher struct {
	mu    sync.Mutex
	res   map[string]*fakeResource
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{res: make(map[string]*fakeResource), calls: make(map[string]int)}
}

func (f *fakeFetcher) set(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res[url] = &fakeResource{body: body}
}

func (f *fakeFetcher) setStatus(url string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res[url] = &fakeResource{status: status}
}

func (f *fakeFetcher) setType(url, body, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res[url] = &fakeResource{body: body, contentType: contentType}
}

// hold makes fetches of url wait until the returned function is called.
func (f *fakeFetcher) hold(url, body string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.res[url] = &fakeResource{body: body, block: ch}
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	f.mu.Lock()
	f.calls[url]++
	r, ok := f.res[url]
	var res fakeResource
	if ok {
		res = *r
	}
	f.mu.Unlock()

	if !ok {
		return nil, &TransportError{URL: url, StatusCode: http.StatusNotFound, Err: errors.New("not found")}
	}
	if res.block != nil {
		select {
		case <-res.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if res.status != 0 {
		return nil, &TransportError{URL: url, StatusCode: res.status, Err: fmt.Errorf("status %d", res.status)}
	}
	h := make(http.Header)
	if res.contentType != "" {
		h.Set("Content-Type", res.contentType)
	}
	return &Response{URL: url, Header: h, Body: []byte(res.body)}, nil
}

type fakeTimer struct {
	s       *fakeScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeScheduler records timers and fires them only on request.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (s *fakeScheduler) pendingDelays() []time.Duration {
	var out []time.Duration
	for _, t := range s.pending() {
		out = append(out, t.d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fire runs t on the calling goroutine.
func (s *fakeScheduler) fire(t *fakeTimer) {
	s.mu.Lock()
	if t.stopped || t.fired {
		s.mu.Unlock()
		return
	}
	t.fired = true
	s.mu.Unlock()
	t.f()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// nextRecord returns the next record or fails the test.
func nextRecord(t *testing.T, s *Session) Record {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return r
}

// expectQuiet asserts that no record arrives within a short window.
func expectQuiet(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	r, err := s.Next(ctx)
	if err == nil {
		t.Fatalf("unexpected record %s %s", r.Kind(), recordURI(r))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next: %v", err)
	}
}

// drain reads records until end of sequence.
func drain(t *testing.T, s *Session) []Record {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var out []Record
	for r, err := range s.Records(ctx) {
		if err != nil {
			t.Fatalf("Records: %v", err)
		}
		out = append(out, r)
	}
	return out
}

func newTestSession(t *testing.T, source string, f Fetcher, opts Options) (*Session, *fakeScheduler) {
	t.Helper()
	sched := &fakeScheduler{}
	opts.Fetcher = f
	if opts.Scheduler == nil {
		opts.Scheduler = sched
	}
	s, err := NewSession(source, opts)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, sched
}

func countKinds(records []Record) map[Kind]int {
	out := make(map[Kind]int)
	for _, r := range records {
		out[r.Kind()]++
	}
	return out
}
