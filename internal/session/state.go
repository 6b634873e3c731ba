package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultReturnURL is used whenever a state token does not yield a usable return URL.
const DefaultReturnURL = "/"

// StatePayload is the JSON object carried, base64 encoded, in the OAuth state parameter.
type StatePayload struct {
	ReturnURL string `json:"returnUrl"`
	Nonce     string `json:"nonce,omitempty"`
}

// NewState creates a payload for returnURL with a fresh random nonce.
// An empty or non-local returnURL is replaced by [DefaultReturnURL].
func NewState(returnURL string) StatePayload {
	if !localPath(returnURL) {
		returnURL = DefaultReturnURL
	}
	return StatePayload{ReturnURL: returnURL, Nonce: uuid.NewString()}
}

// EncodeState serializes p as base64(JSON).
//
// Only local return paths round-trip. [DecodeState] replaces an absolute or
// protocol-relative ReturnURL with [DefaultReturnURL] and reports [ErrMalformedState].
func EncodeState(p StatePayload) string {
	data, err := json.Marshal(p)
	if err != nil {
		// StatePayload only holds strings
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeState parses a state token produced by [EncodeState].
//
// The returned payload is always usable. A non-nil error reports why [DefaultReturnURL]
// was substituted; callers log it and carry on.
func DecodeState(token string) (StatePayload, error) {
	fallback := StatePayload{ReturnURL: DefaultReturnURL}
	if token == "" {
		return fallback, fmt.Errorf("%w: empty state", ErrMalformedState)
	}

	data, err := decodeBase64(token)
	if err != nil {
		return fallback, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	var p StatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fallback, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	if p.ReturnURL == "" {
		p.ReturnURL = DefaultReturnURL
		return p, nil
	}
	if !localPath(p.ReturnURL) {
		p.ReturnURL = DefaultReturnURL
		return p, fmt.Errorf("%w: return URL is not a local path", ErrMalformedState)
	}
	return p, nil
}

// decodeBase64 accepts standard and URL-safe alphabets, padded or not.
// A '+' turned into a space by query decoding is restored first.
func decodeBase64(token string) ([]byte, error) {
	token = strings.ReplaceAll(strings.TrimSpace(token), " ", "+")

	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		data, err := enc.DecodeString(token)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// localPath reports whether u is an absolute path on this site (no scheme, no host).
func localPath(u string) bool {
	if !strings.HasPrefix(u, "/") {
		return false
	}
	return !strings.HasPrefix(u, "//") && !strings.HasPrefix(u, `/\`)
}
