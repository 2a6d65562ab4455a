package stream

import (
	"encoding/json"
	"errors"
	"strings"
)

// subresource is a key, map or session data item fetched on behalf of the
// record that owns it.
type subresource interface {
	location() string
	loader() *loadState
	resolve(resp *Response) error
}

func (k *Key) location() string   { return k.URI }
func (k *Key) loader() *loadState { return &k.load }

func (k *Key) resolve(resp *Response) error {
	k.Payload = resp.Body
	return nil
}

func (m *Map) location() string   { return m.URI }
func (m *Map) loader() *loadState { return &m.load }

func (m *Map) resolve(resp *Response) error {
	m.Payload = m.Range.Apply(resp.Body)
	m.MIMEType = resp.MIMEType()
	return nil
}

func (d *SessionData) location() string   { return d.URI }
func (d *SessionData) loader() *loadState { return &d.load }

// resolve stores the document and decodes it when FORMAT is JSON (the
// default). A decode failure leaves Data unset.
func (d *SessionData) resolve(resp *Response) error {
	d.Payload = resp.Body
	if d.Format != "" && !strings.EqualFold(d.Format, "JSON") {
		return nil
	}
	var v any
	if err := json.Unmarshal(resp.Body, &v); err != nil {
		return &DecodeError{URI: resp.URL, Err: err}
	}
	d.Data = v
	return nil
}

// loadResourceLocked fetches r once and calls cb when it settles. Concurrent
// requests for the same record share the fetch; a resolved record answers
// immediately. A DecodeError settles the record as resolved; a transport
// failure returns it to idle so a later request fetches again.
func (s *Session) loadResourceLocked(kind string, r subresource, base string, cb func(error)) {
	ls := r.loader()
	switch ls.state {
	case loadResolved:
		cb(nil)
		return
	case loadInFlight:
		ls.waiters = append(ls.waiters, cb)
		return
	}

	ls.state = loadInFlight
	ls.waiters = []func(error){cb}
	s.fetchLocked(kind, r.location(), base, func(resp *Response, err error) {
		if err == nil {
			if err = r.resolve(resp); err != nil {
				s.reportLocked(kind, r.location(), err)
			}
		}
		var de *DecodeError
		if err == nil || errors.As(err, &de) {
			ls.state = loadResolved
		} else {
			ls.state = loadIdle
		}
		waiters := ls.waiters
		ls.waiters = nil
		for _, w := range waiters {
			w(err)
		}
	})
}
