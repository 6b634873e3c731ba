package session

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginMethod records how a [Session] was established.
type LoginMethod string

const (
	LoginPassword LoginMethod = "password"
	LoginAuth0    LoginMethod = "auth0"
	LoginGoogle   LoginMethod = "google"
)

// Valid reports whether m is one of the known login methods.
func (m LoginMethod) Valid() bool {
	switch m {
	case LoginPassword, LoginAuth0, LoginGoogle:
		return true
	}
	return false
}

const avatarFallbackURL = "https://ui-avatars.com/api/"

// Session is the client-held record of the authenticated user and their bearer credential.
//
// The credential is serialized separately from the profile fields (see [Store]); it is
// tagged "-" so profile JSON never carries it.
type Session struct {
	Credential   string      `json:"-"`
	SubjectID    string      `json:"id"`
	Username     string      `json:"username"`
	DisplayName  string      `json:"name"`
	EmailAddress string      `json:"email"`
	AvatarURL    string      `json:"avatar"`
	LoginMethod  LoginMethod `json:"loginMethod"`
	ExpiresAt    *time.Time  `json:"expiresAt,omitempty"`
}

// Profile is the user shape returned by the backend's login, register and OAuth completion endpoints.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// New builds a Session from a credential and backend profile.
//
// Display name falls back to the username, the avatar to a generated initials image.
// expiresIn is in seconds; when zero the credential's own exp claim is used if it is a JWT.
func New(credential string, p Profile, method LoginMethod, expiresIn int64) *Session {
	s := &Session{
		Credential:   credential,
		SubjectID:    p.ID,
		Username:     p.Username,
		DisplayName:  p.Name,
		EmailAddress: p.Email,
		AvatarURL:    p.Avatar,
		LoginMethod:  method,
	}
	if s.DisplayName == "" {
		s.DisplayName = p.Username
	}
	if s.AvatarURL == "" && p.Username != "" {
		s.AvatarURL = fmt.Sprintf("%s?name=%s&background=random", avatarFallbackURL, url.QueryEscape(p.Username))
	}

	if expiresIn > 0 {
		t := time.Now().Add(time.Duration(expiresIn) * time.Second).UTC()
		s.ExpiresAt = &t
	} else if t, ok := CredentialExpiry(credential); ok {
		s.ExpiresAt = &t
	}
	return s
}

// Authenticated reports whether the session carries a credential.
func (s *Session) Authenticated() bool {
	return s != nil && s.Credential != ""
}

// Validate checks the structural invariants a persisted session must satisfy before it is trusted.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidSession)
	}
	if s.Credential == "" {
		return fmt.Errorf("%w: missing credential", ErrInvalidSession)
	}
	if s.SubjectID == "" {
		return fmt.Errorf("%w: missing subject id", ErrInvalidSession)
	}
	if s.LoginMethod != "" && !s.LoginMethod.Valid() {
		return fmt.Errorf("%w: unknown login method %q", ErrInvalidSession, s.LoginMethod)
	}
	return nil
}

// Expired reports whether the session has a known expiry that lies before now.
// Sessions without an expiry never report expired.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// CredentialExpiry reads the exp claim from a JWT credential without verifying it.
// Opaque credentials report false.
func CredentialExpiry(credential string) (time.Time, bool) {
	if credential == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time.UTC(), true
}
