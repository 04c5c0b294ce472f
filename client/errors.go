package client

import (
	"errors"
	"fmt"
)

// Kind classifies why a bypass failed.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidInput means the URL has no usable link id. No request was made.
	KindInvalidInput
	// KindTokenExtraction means ad_form_data was not found on the landing page.
	KindTokenExtraction
	// KindTransport covers connection, TLS and timeout failures on any request.
	KindTransport
	// KindResponseFormat means the /links/go reply was not usable JSON.
	KindResponseFormat
	// KindRemoteRejection means the reply parsed but did not report success.
	KindRemoteRejection
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindTokenExtraction:
		return "token_extraction"
	case KindTransport:
		return "transport"
	case KindResponseFormat:
		return "response_format"
	case KindRemoteRejection:
		return "remote_rejection"
	default:
		return "unknown"
	}
}

// Error is the error type returned by Bypasser.Bypass.
type Error struct {
	Kind Kind
	// Op names the step that failed, e.g. "landing" or "submit".
	Op  string
	Err error
	// Body holds the raw reply for KindResponseFormat and KindRemoteRejection.
	Body string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against another *Error of the same Kind, so callers can
// write errors.Is(err, &client.Error{Kind: client.KindTransport}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

var (
	errNoLinkID         = errors.New("url path has no link id")
	errNoAdFormData     = errors.New("ad_form_data not found")
	errNotSuccess       = errors.New("server did not report success")
	errMissingURL       = errors.New("success reply without url")
	errNotNegotiated    = errors.New("server switched protocol between handshakes")
	errUnsupportedProxy = errors.New("only socks5 proxies are supported")
	errUndecodableBody  = errors.New("undecodable response body")
)
