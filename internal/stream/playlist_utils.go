package stream

import (
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
)

// unchangedFactor scales the target duration before re-polling a live
// playlist whose content did not change.
const unchangedFactor = 1.5

// fingerprint is the content digest used to detect unchanged reloads.
func fingerprint(text string) uint64 {
	return xxhash.Sum64String(text)
}

// targetDurationFromSegments returns the EXT-X-TARGETDURATION a playlist
// without the tag implies: the ceiling of the longest segment duration in
// whole seconds, and at least one second.
func targetDurationFromSegments(segments []*Segment) time.Duration {
	max := 0.0
	for _, seg := range segments {
		if d := seg.Duration.Seconds(); d > max {
			max = d
		}
	}
	if max <= 0 {
		return time.Second
	}
	return time.Duration(math.Ceil(max)) * time.Second
}

// reloadDelay is the wait before polling pl again.
func reloadDelay(pl *MediaPlaylist, unchanged bool) time.Duration {
	d := pl.TargetDuration
	if d <= 0 {
		d = targetDurationFromSegments(pl.Segments)
	}
	if unchanged {
		d = time.Duration(float64(d) * unchangedFactor)
	}
	return d
}

// backoff doubles base for every consecutive failure after the first,
// capped at max.
func backoff(base, max time.Duration, failures int) time.Duration {
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
