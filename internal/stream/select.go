package stream

import (
	"context"
	"log/slog"
	"time"
)

// Selector chooses among the variants of a master playlist and among the
// renditions of the chosen variant. Answers outside the offered range, slow
// answers and panics all fall back to index 0.
type Selector interface {
	SelectVariant(ctx context.Context, variants []*Variant) int
	SelectRendition(ctx context.Context, t RenditionType, renditions []*Rendition) int
}

// SelectorFuncs adapts plain functions to Selector. Nil functions pick 0.
type SelectorFuncs struct {
	Variant   func(variants []*Variant) int
	Rendition func(t RenditionType, renditions []*Rendition) int
}

// SelectVariant implements Selector.
func (f SelectorFuncs) SelectVariant(_ context.Context, variants []*Variant) int {
	if f.Variant == nil {
		return 0
	}
	return f.Variant(variants)
}

// SelectRendition implements Selector.
func (f SelectorFuncs) SelectRendition(_ context.Context, t RenditionType, renditions []*Rendition) int {
	if f.Rendition == nil {
		return 0
	}
	return f.Rendition(t, renditions)
}

// SelectionRequest is one pending choice offered by a RendezvousSelector.
// Exactly one of Variants or Renditions is set.
type SelectionRequest struct {
	Type       RenditionType
	Variants   []*Variant
	Renditions []*Rendition

	reply chan int
}

// Answer replies with index i. Only the first answer counts and answers
// arriving after the selection timeout are ignored.
func (r *SelectionRequest) Answer(i int) {
	select {
	case r.reply <- i:
	default:
	}
}

// RendezvousSelector exposes selection as a request/response exchange over
// a channel, for consumers that answer from their own goroutine.
type RendezvousSelector struct {
	requests chan *SelectionRequest
}

// NewRendezvousSelector returns a selector whose requests are read from
// Requests.
func NewRendezvousSelector() *RendezvousSelector {
	return &RendezvousSelector{requests: make(chan *SelectionRequest)}
}

// Requests delivers pending selections.
func (s *RendezvousSelector) Requests() <-chan *SelectionRequest {
	return s.requests
}

// SelectVariant implements Selector.
func (s *RendezvousSelector) SelectVariant(ctx context.Context, variants []*Variant) int {
	return s.ask(ctx, &SelectionRequest{Variants: variants, reply: make(chan int, 1)})
}

// SelectRendition implements Selector.
func (s *RendezvousSelector) SelectRendition(ctx context.Context, t RenditionType, renditions []*Rendition) int {
	return s.ask(ctx, &SelectionRequest{Type: t, Renditions: renditions, reply: make(chan int, 1)})
}

func (s *RendezvousSelector) ask(ctx context.Context, req *SelectionRequest) int {
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return 0
	}
	select {
	case i := <-req.reply:
		return i
	case <-ctx.Done():
		return 0
	}
}

// choose runs pick with a deadline and validates its answer against n
// choices.
func choose(ctx context.Context, log *slog.Logger, timeout time.Duration, what string, n int, pick func(context.Context) int) int {
	if n <= 1 {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	answer := make(chan int, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("selector panicked", slog.String("selection", what), slog.Any("panic", r))
				answer <- 0
			}
		}()
		answer <- pick(ctx)
	}()

	select {
	case i := <-answer:
		if i < 0 || i >= n {
			log.Warn("selection out of range, using default",
				slog.String("selection", what), slog.Int("index", i), slog.Int("choices", n))
			return 0
		}
		return i
	case <-ctx.Done():
		log.Warn("selection not answered, using default",
			slog.String("selection", what), slog.Duration("timeout", timeout))
		return 0
	}
}
