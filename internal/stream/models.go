package stream

import (
	"fmt"
	"time"
)

// Kind tags the records delivered by a Session.
type Kind string

const (
	KindMaster  Kind = "master"
	KindMedia   Kind = "media"
	KindSegment Kind = "segment"
)

// Record is one element of a session's output sequence: a *MasterPlaylist,
// a *MediaPlaylist or a *Segment.
type Record interface {
	Kind() Kind
}

// PlaylistType is the EXT-X-PLAYLIST-TYPE of a media playlist. Playlists
// without the tag are Live.
type PlaylistType string

const (
	PlaylistVOD   PlaylistType = "VOD"
	PlaylistEvent PlaylistType = "EVENT"
	PlaylistLive  PlaylistType = "LIVE"
)

// RenditionType is the TYPE of an EXT-X-MEDIA rendition.
type RenditionType string

const (
	RenditionAudio          RenditionType = "AUDIO"
	RenditionVideo          RenditionType = "VIDEO"
	RenditionSubtitles      RenditionType = "SUBTITLES"
	RenditionClosedCaptions RenditionType = "CLOSED-CAPTIONS"
)

// RenditionTypes lists rendition types in selection order.
var RenditionTypes = []RenditionType{
	RenditionAudio,
	RenditionVideo,
	RenditionSubtitles,
	RenditionClosedCaptions,
}

// ByteRange restricts a resource to Length bytes starting at Offset.
type ByteRange struct {
	Offset int64
	Length int64
}

// Apply returns the sub-slice of body selected by r, clamped to the body. A nil
// range or a zero length selects the whole body.
func (r *ByteRange) Apply(body []byte) []byte {
	if r == nil || r.Length <= 0 {
		return body
	}
	start := r.Offset
	if start < 0 {
		start = 0
	}
	if start > int64(len(body)) {
		return body[:0]
	}
	end := start + r.Length
	if end > int64(len(body)) {
		end = int64(len(body))
	}
	return body[start:end]
}

func (r *ByteRange) String() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%d@%d", r.Length, r.Offset)
}

// MasterPlaylist is a parsed multivariant playlist. Only SelectedVariant and
// the payloads of SessionData and SessionKeys change after parsing.
type MasterPlaylist struct {
	URI             string
	Source          string
	Variants        []*Variant
	SessionData     []*SessionData
	SessionKeys     []*Key
	SelectedVariant int

	gate *gate
}

// Kind implements Record.
func (*MasterPlaylist) Kind() Kind { return KindMaster }

// Selected returns the chosen variant, or nil when there are none.
func (m *MasterPlaylist) Selected() *Variant {
	if m.SelectedVariant < 0 || m.SelectedVariant >= len(m.Variants) {
		return nil
	}
	return m.Variants[m.SelectedVariant]
}

// Variant is one EXT-X-STREAM-INF entry with the renditions of its groups.
type Variant struct {
	URI        string
	Bandwidth  uint32
	Codecs     string
	Resolution string
	FrameRate  float64
	Renditions map[RenditionType][]*Rendition
	Selected   map[RenditionType]int
}

// SelectedRendition returns the chosen rendition of type t, or nil.
func (v *Variant) SelectedRendition(t RenditionType) *Rendition {
	list := v.Renditions[t]
	i, ok := v.Selected[t]
	if !ok || i < 0 || i >= len(list) {
		return nil
	}
	return list[i]
}

// Rendition is one EXT-X-MEDIA entry. URI is empty for renditions carried
// in-band (closed captions, muxed audio).
type Rendition struct {
	Type       RenditionType
	GroupID    string
	Name       string
	Language   string
	URI        string
	Default    bool
	Autoselect bool
}

// MediaPlaylist is one version of a media playlist. A reload produces a new
// MediaPlaylist that replaces the previous one under the same URI.
//
// The emitted record is a copy taken at emission: Segments holds only what was
// resolved by then, typically segments carried over from the previous version.
// Each segment's payload is delivered by its own Segment record.
type MediaPlaylist struct {
	URI            string
	Source         string
	Fingerprint    uint64
	Type           PlaylistType
	TargetDuration time.Duration
	MediaSequence  uint64
	EndList        bool
	Segments       []*Segment
}

// Kind implements Record.
func (*MediaPlaylist) Kind() Kind { return KindMedia }

// snapshot copies p together with its segments, keys and maps so the copy
// can be handed to the consumer while loads keep writing the original.
// Callers hold the session lock.
func (p *MediaPlaylist) snapshot() *MediaPlaylist {
	cp := *p
	cp.Segments = make([]*Segment, len(p.Segments))
	keys := make(map[*Key]*Key)
	maps := make(map[*Map]*Map)
	for i, seg := range p.Segments {
		c := *seg
		c.gate = nil
		if seg.Key != nil {
			k, ok := keys[seg.Key]
			if !ok {
				k = &Key{Method: seg.Key.Method, URI: seg.Key.URI, IV: seg.Key.IV, KeyFormat: seg.Key.KeyFormat, Payload: seg.Key.Payload}
				k.load.state = seg.Key.load.state
				keys[seg.Key] = k
			}
			c.Key = k
		}
		if seg.Map != nil {
			m, ok := maps[seg.Map]
			if !ok {
				m = &Map{URI: seg.Map.URI, Range: seg.Map.Range, Payload: seg.Map.Payload, MIMEType: seg.Map.MIMEType}
				m.load.state = seg.Map.load.state
				maps[seg.Map] = m
			}
			c.Map = m
		}
		cp.Segments[i] = &c
	}
	return &cp
}

// Terminal reports whether the playlist will never change again.
func (p *MediaPlaylist) Terminal() bool {
	return p.Type == PlaylistVOD || p.EndList
}

// Segment is one media segment. Payload is nil until loaded. Payload, Key and
// Map are shared with later versions of the playlist that still list the
// segment and must be treated as read-only once emitted.
type Segment struct {
	URI           string // as listed in the playlist
	URL           string // URI resolved against the playlist
	SeqID         uint64
	Duration      time.Duration
	Title         string
	Range         *ByteRange
	Discontinuity bool
	Key           *Key
	Map           *Map
	Payload       []byte
	MIMEType      string

	gate *gate
}

// Kind implements Record.
func (*Segment) Kind() Kind { return KindSegment }

// id identifies a segment across playlist versions.
func (s *Segment) id() string {
	if s.Range == nil {
		return s.URI
	}
	return s.URI + "#" + s.Range.String()
}


// Key is an EXT-X-KEY or EXT-X-SESSION-KEY.
type Key struct {
	Method    string
	URI       string
	IV        string
	KeyFormat string
	Payload   []byte

	load loadState
}

func (k *Key) id() string {
	return k.Method + "|" + k.URI + "|" + k.IV + "|" + k.KeyFormat
}

// Fetchable reports whether the key material is retrieved over the fetcher.
// Keys in a DRM KEYFORMAT are carried as metadata only.
func (k *Key) Fetchable() bool {
	if k.URI == "" || k.Method == "" || k.Method == "NONE" {
		return false
	}
	return k.KeyFormat == "" || k.KeyFormat == "identity"
}

// Resolved reports whether the key payload is present.
func (k *Key) Resolved() bool { return k.load.state == loadResolved }

// Map is an EXT-X-MAP media initialization section.
type Map struct {
	URI      string
	Range    *ByteRange
	Payload  []byte
	MIMEType string

	load loadState
}

func (m *Map) id() string {
	if m.Range == nil {
		return m.URI
	}
	return m.URI + "#" + m.Range.String()
}

// Resolved reports whether the map payload is present.
func (m *Map) Resolved() bool { return m.load.state == loadResolved }

// SessionData is an EXT-X-SESSION-DATA item. Either Value is inline or URI
// points to a document; JSON documents are decoded into Data.
type SessionData struct {
	ID       string
	Value    string
	URI      string
	Format   string
	Language string
	Payload  []byte
	Data     any

	load loadState
}

// NeedsFetch reports whether the item must be fetched before the master
// playlist is complete.
func (d *SessionData) NeedsFetch() bool {
	return d.Value == "" && d.URI != ""
}
