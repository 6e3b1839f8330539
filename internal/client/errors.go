package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrJobNotFound matches a ProtocolError carrying a 404 status.
var ErrJobNotFound = errors.New("job not found")

// ErrInvalidRequest indicates a request was rejected before it was sent.
var ErrInvalidRequest = errors.New("invalid request")

// TransportError reports that no HTTP response was received: the host was
// unreachable, the connection broke, or the context expired.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response with a non-2xx status code.
type ProtocolError struct {
	Op         string
	StatusCode int
	// Message is the backend's "error" field, when the body carried one.
	Message string
	Body    []byte
}

func (e *ProtocolError) Error() string {
	detail := e.Message
	if detail == "" {
		detail = strings.TrimSpace(string(e.Body))
	}
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, detail)
}

// Is reports a 404 as ErrJobNotFound.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrJobNotFound && e.StatusCode == http.StatusNotFound
}

// DecodeError reports a response body that could not be decoded into the
// expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsProtocol reports whether err is, or wraps, a ProtocolError.
func IsProtocol(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

// IsDecode reports whether err is, or wraps, a DecodeError.
func IsDecode(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

// StatusCode returns the HTTP status carried by a ProtocolError in err's
// chain, or 0.
func StatusCode(err error) int {
	var target *ProtocolError
	if errors.As(err, &target) {
		return target.StatusCode
	}
	return 0
}
