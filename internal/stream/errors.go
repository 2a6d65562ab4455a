package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned when a closed or exhausted session is asked
	// to start again, and by Next after Close.
	ErrSessionClosed = errors.New("stream: session closed")

	// ErrMissingHeader is the cause of a ParseError for text that does not
	// begin with #EXTM3U.
	ErrMissingHeader = errors.New("stream: missing #EXTM3U header")

	// ErrUnexpectedPlaylist is the cause of a ParseError when a reload of a
	// media playlist returns a master playlist.
	ErrUnexpectedPlaylist = errors.New("stream: unexpected playlist type")
)

// TransportError reports a failed fetch or a non-success HTTP status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stream: fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("stream: fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports playlist text that could not be parsed.
type ParseError struct {
	URI string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("stream: parse %s: %v", e.URI, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DecodeError reports a session data document that is not valid for its
// declared FORMAT.
type DecodeError struct {
	URI string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("stream: decode session data %s: %v", e.URI, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// asTransportError wraps err unless it already carries a TransportError.
func asTransportError(url string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{URL: url, Err: err}
}
