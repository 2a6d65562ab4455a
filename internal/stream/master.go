package stream

import (
	"context"
	"log/slog"
)

// handleMasterLocked installs m as the session's master playlist. Selection
// runs off the lock; loading resumes in applySelection.
func (s *Session) handleMasterLocked(m *MasterPlaylist) {
	s.stopTracksLocked()
	s.tracks = make(map[string]*track)
	s.opts.Store.Reset()

	s.master = m
	s.state = StateMasterParsed
	m.gate = newGate(func() { s.emitLocked(m) })

	s.log.Info("master playlist parsed",
		slog.Int("variants", len(m.Variants)),
		slog.Int("session_data", len(m.SessionData)),
		slog.Int("session_keys", len(m.SessionKeys)))

	go s.selectAndLoad(m)
}

func (s *Session) selectAndLoad(m *MasterPlaylist) {
	sel := s.opts.Selector
	timeout := s.opts.SelectionTimeout

	vi := choose(s.ctx, s.log, timeout, "variant", len(m.Variants), func(ctx context.Context) int {
		if sel == nil {
			return 0
		}
		return sel.SelectVariant(ctx, m.Variants)
	})

	picks := make(map[RenditionType]int)
	if vi < len(m.Variants) {
		v := m.Variants[vi]
		for _, t := range RenditionTypes {
			list := v.Renditions[t]
			if len(list) == 0 {
				continue
			}
			picks[t] = choose(s.ctx, s.log, timeout, string(t), len(list), func(ctx context.Context) int {
				if sel == nil {
					return 0
				}
				return sel.SelectRendition(ctx, t, list)
			})
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.master != m {
		return
	}
	m.SelectedVariant = vi
	if v := m.Selected(); v != nil {
		for t, i := range picks {
			v.Selected[t] = i
		}
	}
	s.applySelectionLocked(m)
}

// applySelectionLocked loads the selected media playlists and resolves
// session data and session keys. The master playlist is emitted once all of
// those have settled; a failed or undecodable item still counts as settled.
func (s *Session) applySelectionLocked(m *MasterPlaylist) {
	if v := m.Selected(); v != nil {
		s.log.Info("variant selected",
			slog.Int("index", m.SelectedVariant),
			slog.String("uri", v.URI),
			slog.Uint64("bandwidth", uint64(v.Bandwidth)))
		s.loadMediaLocked(v.URI, m.URI)
		for _, t := range RenditionTypes {
			if r := v.SelectedRendition(t); r != nil && r.URI != "" {
				s.loadMediaLocked(r.URI, m.URI)
			}
		}
	} else {
		s.log.Warn("master playlist has no variants")
		s.sourceDone = true
	}

	g := m.gate
	for _, d := range m.SessionData {
		if !d.NeedsFetch() {
			continue
		}
		g.add(1)
		s.loadResourceLocked(fetchSessionData, d, m.URI, func(error) { g.done() })
	}
	for _, k := range m.SessionKeys {
		if !k.Fetchable() {
			continue
		}
		g.add(1)
		s.loadResourceLocked(fetchKey, k, m.URI, func(error) { g.done() })
	}
	g.arm()
	s.evaluateLocked()
}
