package stream

import "sort"

// Store holds the current version of every tracked media playlist, keyed by
// absolute URI. Implementations need not be safe for concurrent use; the
// session serializes access.
type Store interface {
	GetPlaylist(uri string) (*MediaPlaylist, bool)
	SetPlaylist(pl *MediaPlaylist)
	ListURIs() []string
	Reset()
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	playlists map[string]*MediaPlaylist
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		playlists: make(map[string]*MediaPlaylist),
	}
}

// GetPlaylist implements Store.GetPlaylist.
func (s *InMemoryStore) GetPlaylist(uri string) (*MediaPlaylist, bool) {
	pl, ok := s.playlists[uri]
	return pl, ok
}

// SetPlaylist implements Store.SetPlaylist. It replaces any previous version.
func (s *InMemoryStore) SetPlaylist(pl *MediaPlaylist) {
	s.playlists[pl.URI] = pl
}

// ListURIs implements Store.ListURIs, sorted for stable output.
func (s *InMemoryStore) ListURIs() []string {
	uris := make([]string, 0, len(s.playlists))
	for uri := range s.playlists {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// Reset implements Store.Reset.
func (s *InMemoryStore) Reset() {
	s.playlists = make(map[string]*MediaPlaylist)
}
