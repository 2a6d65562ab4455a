package stream

import "log/slog"

// loadSegmentLocked fetches seg and any unresolved key or map it depends on.
// The segment is emitted once all of them are resolved; a failure of any of
// them drops it.
func (s *Session) loadSegmentLocked(pl *MediaPlaylist, seg *Segment) {
	if seg.gate != nil {
		return
	}
	g := newGate(func() { s.emitLocked(seg) })
	seg.gate = g
	base := pl.URI

	drop := func(err error) {
		if g.fail() {
			s.log.Warn("segment dropped", slog.String("uri", seg.URI), slog.String("error", err.Error()))
		}
	}

	ref, refBase := seg.URI, base
	if seg.URL != "" {
		ref, refBase = seg.URL, ""
	}

	g.add(1)
	s.fetchLocked(fetchSegment, ref, refBase, func(resp *Response, err error) {
		if err != nil {
			drop(err)
			return
		}
		seg.Payload = seg.Range.Apply(resp.Body)
		seg.MIMEType = resp.MIMEType()
		g.done()
	})

	if k := seg.Key; k != nil && k.Fetchable() && !k.Resolved() {
		g.add(1)
		s.loadResourceLocked(fetchKey, k, base, func(err error) {
			if err != nil {
				drop(err)
				return
			}
			g.done()
		})
	}
	if m := seg.Map; m != nil && !m.Resolved() {
		g.add(1)
		s.loadResourceLocked(fetchMap, m, base, func(err error) {
			if err != nil {
				drop(err)
				return
			}
			g.done()
		})
	}
	g.arm()
}
