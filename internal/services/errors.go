package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/imgx/internal/shared"
)

// ErrorKind classifies a failed request.
type ErrorKind int

const (
	KindTransport    ErrorKind = iota // no response received
	KindUnauthorized                  // HTTP 401
	KindClient                        // other 4xx
	KindServer                        // 5xx
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	default:
		return "transport"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return shared.ErrCredentialInvalid
	case KindClient:
		return shared.ErrClientRejected
	case KindServer:
		return shared.ErrServerFault
	default:
		return shared.ErrNetworkUnreachable
	}
}

const networkUnreachable = "network unreachable"

// RequestError is the single normalized failure returned by [APIService].
//
// Message is the display string. It is taken from the response body's "message"
// field, then its "error" field, then "request failed: <status>"; transport failures
// always read "network unreachable".
type RequestError struct {
	Kind       ErrorKind
	Method     string
	Path       string
	StatusCode int // 0 when no response was received
	Message    string
	Attempts   int
	Body       []byte
	Err        error // underlying transport error, if any
}

func (e *RequestError) Error() string {
	return e.Message
}

// Unwrap exposes [shared.ErrAPIRequest], the kind's sentinel and the transport cause,
// so callers can use [errors.Is] without knowing this type.
func (e *RequestError) Unwrap() []error {
	errs := []error{shared.ErrAPIRequest, e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Detail is a longer form for logs.
func (e *RequestError) Detail() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Method, e.Path, e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Retryable reports whether no response was received. Any status, even one that
// arrived with an unreadable body, makes the failure terminal.
func (e *RequestError) Retryable() bool {
	return e.Kind == KindTransport && e.StatusCode == 0
}

func transportError(method, path string, err error) *RequestError {
	return &RequestError{Kind: KindTransport, Method: method, Path: path, Message: networkUnreachable, Err: err}
}

func statusError(method, path string, status int, body []byte) *RequestError {
	kind := KindClient
	switch {
	case status == http.StatusUnauthorized:
		kind = KindUnauthorized
	case status >= 500:
		kind = KindServer
	}
	return &RequestError{
		Kind:       kind,
		Method:     method,
		Path:       path,
		StatusCode: status,
		Message:    errorMessage(status, body),
		Body:       body,
	}
}

// errorMessage picks the display string for a failed response.
func errorMessage(status int, body []byte) string {
	var shape struct {
		Message any `json:"message"`
		Error   any `json:"error"`
	}
	if err := json.Unmarshal(body, &shape); err == nil {
		if s, ok := shape.Message.(string); ok && s != "" {
			return s
		}
		if s, ok := shape.Error.(string); ok && s != "" {
			return s
		}
	}
	return fmt.Sprintf("request failed: %d", status)
}
