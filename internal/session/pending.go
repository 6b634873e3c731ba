package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"

	"github.com/desertthunder/imgx/internal/shared"
	"github.com/zeebo/blake3"
)

var (
	ErrInvalidSession    = errors.New("invalid session")
	ErrMalformedState    = errors.New("malformed state parameter")
	ErrInvalidTransition = errors.New("invalid guard transition")
)

// DedupeKey identifies one authorization redirect. Two deliveries of the same
// code and state always produce the same key.
type DedupeKey string

// NewDedupeKey derives the key for a code/state pair.
func NewDedupeKey(code, state string) DedupeKey {
	h := blake3.New()
	h.Write([]byte(code))
	h.Write([]byte{0})
	h.Write([]byte(state))
	return DedupeKey(hex.EncodeToString(h.Sum(nil)))
}

// Short returns a prefix of the key suitable for logs.
func (k DedupeKey) Short() string {
	if len(k) > 12 {
		return string(k[:12])
	}
	return string(k)
}

// PendingAuthorization is an OAuth redirect still awaiting its code-for-token exchange.
type PendingAuthorization struct {
	Code      string
	State     string
	DedupeKey DedupeKey
}

// NewPendingAuthorization builds a pending authorization and its dedupe key.
func NewPendingAuthorization(code, state string) PendingAuthorization {
	return PendingAuthorization{Code: code, State: state, DedupeKey: NewDedupeKey(code, state)}
}

// AuthorizationDenied is returned by [Detect] when the provider redirected back with an error.
type AuthorizationDenied struct {
	Code        string // the provider's error parameter, e.g. access_denied
	Description string
}

// Reason is the display string: the description when present, otherwise the raw error code.
func (d *AuthorizationDenied) Reason() string {
	if d.Description != "" {
		return d.Description
	}
	return d.Code
}

func (d *AuthorizationDenied) Error() string {
	return fmt.Sprintf("%v: %s", shared.ErrAuthorizationDenied, d.Reason())
}

func (d *AuthorizationDenied) Unwrap() error {
	return shared.ErrAuthorizationDenied
}

// Detect inspects callback query parameters.
//
// It returns nil, nil for an ordinary page view (neither code nor state present), an
// [*AuthorizationDenied] when the provider reported an error (which wins over a code),
// and [shared.ErrMissingAuthParams] when only one of code and state is present.
func Detect(q url.Values) (*PendingAuthorization, error) {
	if e := q.Get("error"); e != "" {
		return nil, &AuthorizationDenied{Code: e, Description: q.Get("error_description")}
	}

	code, state := q.Get("code"), q.Get("state")
	switch {
	case code == "" && state == "":
		return nil, nil
	case code == "":
		return nil, fmt.Errorf("%w: code", shared.ErrMissingAuthParams)
	case state == "":
		return nil, fmt.Errorf("%w: state", shared.ErrMissingAuthParams)
	}

	p := NewPendingAuthorization(code, state)
	return &p, nil
}
