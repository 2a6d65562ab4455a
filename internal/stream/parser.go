package stream

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/mogiioin/hls-m3u8/m3u8"
)

// Parser turns playlist text fetched from uri into a *MasterPlaylist or a
// *MediaPlaylist. Malformed text yields a *ParseError.
type Parser interface {
	Parse(uri string, text []byte) (Record, error)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// M3U8Parser parses HLS playlists. Strict rejects playlists with any syntax
// error; otherwise unknown or malformed tags are skipped.
type M3U8Parser struct {
	Strict bool
}

// Parse implements Parser.
func (p M3U8Parser) Parse(uri string, text []byte) (Record, error) {
	body := bytes.TrimLeft(bytes.TrimPrefix(text, utf8BOM), " \t\r\n")
	if !bytes.HasPrefix(body, []byte("#EXTM3U")) {
		return nil, &ParseError{URI: uri, Err: ErrMissingHeader}
	}

	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), p.Strict)
	if err != nil {
		return nil, &ParseError{URI: uri, Err: err}
	}

	switch listType {
	case m3u8.MASTER:
		return convertMaster(uri, string(text), pl.(*m3u8.MasterPlaylist)), nil
	case m3u8.MEDIA:
		return convertMedia(uri, string(text), pl.(*m3u8.MediaPlaylist)), nil
	}
	return nil, &ParseError{URI: uri, Err: m3u8.ErrCannotDetectPlaylistType}
}

func convertMaster(uri, source string, mp *m3u8.MasterPlaylist) *MasterPlaylist {
	out := &MasterPlaylist{URI: uri, Source: source}

	for _, v := range mp.Variants {
		if v == nil || v.Iframe {
			continue
		}
		variant := &Variant{
			URI:        v.URI,
			Bandwidth:  v.Bandwidth,
			Codecs:     v.Codecs,
			Resolution: v.Resolution,
			FrameRate:  v.FrameRate,
			Renditions: make(map[RenditionType][]*Rendition),
			Selected:   make(map[RenditionType]int),
		}
		for _, alt := range v.Alternatives {
			if alt == nil {
				continue
			}
			t := RenditionType(alt.Type)
			variant.Renditions[t] = append(variant.Renditions[t], &Rendition{
				Type:       t,
				GroupID:    alt.GroupId,
				Name:       alt.Name,
				Language:   alt.Language,
				URI:        alt.URI,
				Default:    alt.Default,
				Autoselect: alt.Autoselect,
			})
		}
		out.Variants = append(out.Variants, variant)
	}

	for _, sd := range mp.SessionDatas {
		if sd == nil {
			continue
		}
		out.SessionData = append(out.SessionData, &SessionData{
			ID:       sd.DataId,
			Value:    sd.Value,
			URI:      sd.URI,
			Format:   sd.Format,
			Language: sd.Language,
		})
	}

	for _, k := range mp.SessionKeys {
		if key := convertKey(k); key != nil {
			out.SessionKeys = append(out.SessionKeys, key)
		}
	}
	return out
}

func convertMedia(uri, source string, mp *m3u8.MediaPlaylist) *MediaPlaylist {
	out := &MediaPlaylist{
		URI:            uri,
		Source:         source,
		Type:           PlaylistLive,
		TargetDuration: time.Duration(mp.TargetDuration) * time.Second,
		MediaSequence:  mp.SeqNo,
		EndList:        mp.Closed,
	}
	switch mp.MediaType {
	case m3u8.VOD:
		out.Type = PlaylistVOD
	case m3u8.EVENT:
		out.Type = PlaylistEvent
	}

	segments := mp.GetAllSegments()
	tags := scanSegmentTags(source)
	if len(tags) != len(segments) {
		tags = nil
	}

	// EXT-X-KEY and EXT-X-MAP apply to every following segment until
	// replaced; identical tags share one record so each is fetched once.
	keys := make(map[string]*Key)
	maps := make(map[string]*Map)
	rangeEnd := make(map[string]int64)
	var curKey *Key
	var curMap *Map
	for i, s := range segments {
		if s == nil {
			continue
		}
		if len(s.Keys) > 0 {
			curKey = convertKeys(s.Keys)
			if curKey != nil {
				if k, ok := keys[curKey.id()]; ok {
					curKey = k
				} else {
					keys[curKey.id()] = curKey
				}
			}
		}

		var m *Map
		switch {
		case tags != nil:
			m = tags[i].initMap
		case s.Map != nil:
			m = convertMap(s.Map)
		case curMap == nil && mp.Map != nil:
			m = convertMap(mp.Map)
		}
		if m != nil && m.URI != "" {
			if prev, ok := maps[m.id()]; ok {
				m = prev
			} else {
				maps[m.id()] = m
			}
			curMap = m
		}

		seg := &Segment{
			URI:           s.URI,
			SeqID:         s.SeqId,
			Duration:      time.Duration(s.Duration * float64(time.Second)),
			Title:         s.Title,
			Discontinuity: s.Discontinuity,
			Key:           curKey,
			Map:           curMap,
		}
		if s.Limit > 0 {
			offset := s.Offset
			if tags != nil && !tags[i].explicitOffset {
				offset = rangeEnd[s.URI]
			}
			seg.Range = &ByteRange{Offset: offset, Length: s.Limit}
			rangeEnd[s.URI] = offset + s.Limit
		}
		out.Segments = append(out.Segments, seg)
	}

	if out.TargetDuration <= 0 {
		out.TargetDuration = targetDurationFromSegments(out.Segments)
	}
	return out
}

// convertKeys picks the key a client decrypts with: the first identity key,
// else the first key in a DRM format. It returns nil when every key is
// METHOD=NONE, which clears encryption.
func convertKeys(keys []m3u8.Key) *Key {
	var drm *Key
	for i := range keys {
		k := convertKey(&keys[i])
		if k == nil {
			continue
		}
		if k.KeyFormat == "" || k.KeyFormat == "identity" {
			return k
		}
		if drm == nil {
			drm = k
		}
	}
	return drm
}

// convertKey returns nil for METHOD=NONE.
func convertKey(k *m3u8.Key) *Key {
	if k == nil || k.Method == "" || k.Method == "NONE" {
		return nil
	}
	return &Key{
		Method:    k.Method,
		URI:       k.URI,
		IV:        k.IV,
		KeyFormat: k.Keyformat,
	}
}

func convertMap(m *m3u8.Map) *Map {
	out := &Map{URI: m.URI}
	if m.Limit > 0 {
		out.Range = &ByteRange{Offset: m.Offset, Length: m.Limit}
	}
	return out
}

// segmentTags holds what the decoded playlist loses about one segment: whether
// its EXT-X-BYTERANGE gave an offset, and the EXT-X-MAP in effect.
type segmentTags struct {
	explicitOffset bool
	initMap        *Map
}

// scanSegmentTags walks the playlist text once, returning one entry per
// segment URI line in order.
func scanSegmentTags(source string) []segmentTags {
	var out []segmentTags
	var curMap *Map
	inf, ranged, explicit := false, false, false
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXTINF:"):
			inf = true
		case strings.HasPrefix(line, "#EXT-X-BYTERANGE:"):
			ranged = true
			explicit = strings.Contains(line, "@")
		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			curMap = parseMapTag(line[len("#EXT-X-MAP:"):])
		case strings.HasPrefix(line, "#"):
		default:
			if !inf {
				continue
			}
			out = append(out, segmentTags{explicitOffset: !ranged || explicit, initMap: curMap})
			inf, ranged, explicit = false, false, false
		}
	}
	return out
}

// parseMapTag reads the URI and BYTERANGE attributes of an EXT-X-MAP tag.
func parseMapTag(attrs string) *Map {
	m := &Map{}
	for _, attr := range splitAttributes(attrs) {
		key, val, ok := strings.Cut(attr, "=")
		if !ok {
			continue
		}
		val = strings.Trim(strings.TrimSpace(val), `"`)
		switch strings.TrimSpace(key) {
		case "URI":
			m.URI = val
		case "BYTERANGE":
			length, offset, _ := strings.Cut(val, "@")
			n, err := strconv.ParseInt(length, 10, 64)
			if err != nil || n <= 0 {
				continue
			}
			o, _ := strconv.ParseInt(offset, 10, 64)
			m.Range = &ByteRange{Offset: o, Length: n}
		}
	}
	if m.URI == "" {
		return nil
	}
	return m
}

// splitAttributes splits an attribute list on commas outside quotes.
func splitAttributes(s string) []string {
	var out []string
	quoted := false
	start := 0
	for i, r := range s {
		switch r {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}
