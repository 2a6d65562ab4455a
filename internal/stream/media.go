package stream

import (
	"log/slog"
	"time"
)

func (s *Session) trackLocked(uri string) (*track, bool) {
	if tr, ok := s.tracks[uri]; ok {
		return tr, false
	}
	tr := &track{
		uri:  uri,
		keys: make(map[string]*Key),
		maps: make(map[string]*Map),
	}
	s.tracks[uri] = tr
	return tr, true
}

// loadMediaLocked starts tracking the media playlist at ref. A URI already
// tracked is left to its own polling.
func (s *Session) loadMediaLocked(ref, base string) {
	uri, err := s.opts.Resolver.Resolve(ref, base)
	if err != nil {
		tr, _ := s.trackLocked(ref)
		tr.terminal = true
		s.reportLocked(fetchPlaylist, ref, &TransportError{URL: ref, Err: err})
		return
	}
	tr, created := s.trackLocked(uri)
	if !created {
		return
	}
	s.fetchPlaylistLocked(tr)
}

func (s *Session) fetchPlaylistLocked(tr *track) {
	tr.timer = nil
	s.fetchLocked(fetchPlaylist, tr.uri, "", func(resp *Response, err error) {
		if s.tracks[tr.uri] != tr {
			return
		}
		if err == nil {
			if err = s.handleMediaLocked(tr, resp); err != nil {
				s.reportLocked(fetchPlaylist, tr.uri, err)
			}
		}
		if err != nil {
			s.retryMediaLocked(tr)
		}
	})
}

func (s *Session) handleMediaLocked(tr *track, resp *Response) error {
	rec, err := s.opts.Parser.Parse(tr.uri, resp.Body)
	if err != nil {
		return err
	}
	pl, ok := rec.(*MediaPlaylist)
	if !ok {
		return &ParseError{URI: tr.uri, Err: ErrUnexpectedPlaylist}
	}
	s.handleMediaPlaylistLocked(tr, pl)
	return nil
}

// handleMediaPlaylistLocked installs a freshly parsed version of tr's
// playlist: unchanged content is only re-polled, otherwise segments already
// known by identity are carried over, the playlist is emitted, new segments
// are loaded and the next reload is scheduled.
func (s *Session) handleMediaPlaylistLocked(tr *track, pl *MediaPlaylist) {
	pl.URI = tr.uri
	pl.Fingerprint = fingerprint(pl.Source)
	tr.failures = 0

	prev, hasPrev := s.opts.Store.GetPlaylist(tr.uri)
	if hasPrev && prev.Type != PlaylistVOD && prev.Fingerprint == pl.Fingerprint {
		if s.opts.Metrics != nil {
			s.opts.Metrics.IncUnchanged()
		}
		delay := reloadDelay(prev, true)
		s.log.Debug("playlist unchanged", slog.String("uri", tr.uri), slog.Duration("retry_in", delay))
		s.scheduleReloadLocked(tr, delay)
		return
	}

	var known map[string]*Segment
	if hasPrev {
		known = make(map[string]*Segment, len(prev.Segments))
		for _, seg := range prev.Segments {
			known[seg.id()] = seg
		}
	}

	keys := make(map[string]*Key)
	maps := make(map[string]*Map)
	var fresh []*Segment
	reused := 0
	for i, seg := range pl.Segments {
		if old, ok := known[seg.id()]; ok && (old.gate == nil || !old.gate.failed) {
			pl.Segments[i] = old
			reused++
		} else {
			if seg.Key != nil {
				if k, ok := tr.keys[seg.Key.id()]; ok {
					seg.Key = k
				}
			}
			if seg.Map != nil {
				if m, ok := tr.maps[seg.Map.id()]; ok {
					seg.Map = m
				}
			}
			if u, err := s.opts.Resolver.Resolve(seg.URI, tr.uri); err == nil {
				seg.URL = u
			}
			fresh = append(fresh, seg)
		}
		cur := pl.Segments[i]
		if cur.Key != nil {
			keys[cur.Key.id()] = cur.Key
		}
		if cur.Map != nil {
			maps[cur.Map.id()] = cur.Map
		}
	}
	tr.keys, tr.maps = keys, maps
	if reused > 0 && s.opts.Metrics != nil {
		s.opts.Metrics.AddSegmentsReused(reused)
	}

	s.opts.Store.SetPlaylist(pl)
	tr.terminal = pl.Terminal()
	s.lastTerminal = tr.terminal
	s.state = StateMediaParsed

	s.log.Debug("media playlist parsed",
		slog.String("uri", tr.uri),
		slog.String("type", string(pl.Type)),
		slog.Int("segments", len(pl.Segments)),
		slog.Int("new", len(fresh)),
		slog.Int("reused", reused),
		slog.Bool("terminal", tr.terminal))

	s.emitLocked(pl.snapshot())
	for _, seg := range fresh {
		s.loadSegmentLocked(pl, seg)
	}

	if !tr.terminal {
		s.scheduleReloadLocked(tr, reloadDelay(pl, false))
	}
	s.evaluateLocked()
}

// retryMediaLocked re-polls tr after a failed fetch or parse, backing off
// per consecutive failure, and abandons it past MaxReloadFailures.
func (s *Session) retryMediaLocked(tr *track) {
	tr.failures++
	if tr.failures > s.opts.MaxReloadFailures {
		s.log.Warn("playlist abandoned", slog.String("uri", tr.uri), slog.Int("failures", tr.failures))
		tr.terminal = true
		s.lastTerminal = true
		return
	}
	base := s.opts.RetryDelay
	if pl, ok := s.opts.Store.GetPlaylist(tr.uri); ok {
		base = reloadDelay(pl, false)
	}
	s.scheduleReloadLocked(tr, backoff(base, s.opts.MaxRetryDelay, tr.failures))
}

func (s *Session) scheduleReloadLocked(tr *track, d time.Duration) {
	if tr.timer != nil {
		tr.timer.Stop()
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.IncReloads()
	}
	tr.timer = s.opts.Scheduler.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.finished || s.tracks[tr.uri] != tr {
			return
		}
		s.fetchPlaylistLocked(tr)
	})
}
