package services

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/imgx/internal/models"
	"github.com/desertthunder/imgx/internal/session"
	"github.com/desertthunder/imgx/internal/shared"
)

const (
	pathLogin         = "/api/auth/login"
	pathRegister      = "/api/auth/register"
	pathCompleteLogin = "/api/auth/auth0/complete-login"
	pathLogout        = "/api/auth/logout"
	pathProfile       = "/api/user/profile"
)

// RegisterRequest is the body of a registration.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
}

// userPayload is the user object the backend returns, optionally with a membership.
type userPayload struct {
	session.Profile
	Membership *models.Membership `json:"membership,omitempty"`
}

type loginResponse struct {
	User      userPayload `json:"user"`
	Token     string      `json:"token"`
	ExpiresIn int64       `json:"expiresIn"`
}

type completeLoginResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   int64       `json:"expires_in"`
	User        userPayload `json:"user"`
}

// AuthResult is a new session plus the membership the server sent with it, if any.
type AuthResult struct {
	Session    *session.Session
	Membership *models.Membership
}

// User builds the full user record. Server membership wins; otherwise the free tier applies.
func (r *AuthResult) User(now time.Time) models.User {
	return NewUserRecord(r.Session, r.Membership, now)
}

// NewUserRecord builds the stored user record for s.
func NewUserRecord(s *session.Session, membership *models.Membership, now time.Time) models.User {
	u := models.User{
		ID:          s.SubjectID,
		Username:    s.Username,
		Email:       s.EmailAddress,
		Name:        s.DisplayName,
		Avatar:      s.AvatarURL,
		LoginMethod: string(s.LoginMethod),
		LoggedIn:    s.Authenticated(),
		CreatedAt:   now,
		LastLoginAt: now,
	}
	return u.WithMembership(membership, now)
}

// AuthService talks to the backend's authentication endpoints.
type AuthService struct {
	api *APIService
}

func NewAuthService(api *APIService) *AuthService {
	return &AuthService{api: api}
}

// Login exchanges a username and password for a session.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password", shared.ErrMissingArgument)
	}

	body := map[string]string{"username": username, "password": password}
	return s.authenticate(ctx, pathLogin, body, session.LoginPassword)
}

// Register creates an account and signs in to it.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password", shared.ErrMissingArgument)
	}
	return s.authenticate(ctx, pathRegister, req, session.LoginPassword)
}

func (s *AuthService) authenticate(ctx context.Context, path string, body any, method session.LoginMethod) (*AuthResult, error) {
	resp, err := s.api.Post(ctx, path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	var out loginResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if out.Token == "" || out.User.ID == "" {
		return nil, fmt.Errorf("%w: response missing token or user", shared.ErrAuthFailed)
	}

	return &AuthResult{
		Session:    session.New(out.Token, out.User.Profile, method, out.ExpiresIn),
		Membership: out.User.Membership,
	}, nil
}

// Exchange completes an OAuth login, recording it as an [session.LoginAuth0] session.
func (s *AuthService) Exchange(ctx context.Context, code, state string) (*session.Session, error) {
	res, err := s.exchange(ctx, code, state, session.LoginAuth0)
	if err != nil {
		return nil, err
	}
	return res.Session, nil
}

func (s *AuthService) exchange(ctx context.Context, code, state string, method session.LoginMethod) (*AuthResult, error) {
	body := map[string]string{"code": code, "state": state}

	// authorization codes are single use; a resend after a lost response is always rejected
	noRetry := NoRetry()
	resp, err := s.api.Do(ctx, &Request{Method: "POST", Path: pathCompleteLogin, Body: body, Tier: TierLong, Retry: &noRetry})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	var out completeLoginResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" || out.User.ID == "" {
		return nil, fmt.Errorf("%w: response missing access token or user", shared.ErrAuthFailed)
	}

	return &AuthResult{
		Session:    session.New(out.AccessToken, out.User.Profile, method, out.ExpiresIn),
		Membership: out.User.Membership,
	}, nil
}

// Exchanger adapts the service to [session.Exchanger] for a given provider.
// onResult, when set, receives the full result including membership.
func (s *AuthService) Exchanger(method session.LoginMethod, onResult func(*AuthResult)) session.Exchanger {
	return &oauthExchanger{s: s, method: method, onResult: onResult}
}

type oauthExchanger struct {
	s        *AuthService
	method   session.LoginMethod
	onResult func(*AuthResult)
}

func (e *oauthExchanger) Exchange(ctx context.Context, code, state string) (*session.Session, error) {
	res, err := e.s.exchange(ctx, code, state, e.method)
	if err != nil {
		return nil, err
	}
	if e.onResult != nil {
		e.onResult(res)
	}
	return res.Session, nil
}

// Revoke tells the backend the session is over. It implements [session.Revoker].
func (s *AuthService) Revoke(ctx context.Context) error {
	noRetry := NoRetry()
	_, err := s.api.Do(ctx, &Request{Method: "POST", Path: pathLogout, Tier: TierShort, Retry: &noRetry})
	return err
}

// Profile fetches the current user from the backend. Membership is nil when the
// server does not send one.
func (s *AuthService) Profile(ctx context.Context) (*session.Profile, *models.Membership, error) {
	resp, err := s.api.Get(ctx, pathProfile, nil)
	if err != nil {
		return nil, nil, err
	}

	var out userPayload
	if err := resp.Decode(&out); err != nil {
		return nil, nil, err
	}
	return &out.Profile, out.Membership, nil
}

// RefreshSession re-fetches the profile and applies it to current, keeping the credential.
func (s *AuthService) RefreshSession(ctx context.Context, current *session.Session) (*session.Session, *models.Membership, error) {
	if !current.Authenticated() {
		return nil, nil, shared.ErrNotAuthenticated
	}

	profile, membership, err := s.Profile(ctx)
	if err != nil {
		return nil, nil, err
	}

	updated := session.New(current.Credential, *profile, current.LoginMethod, 0)
	if updated.ExpiresAt == nil {
		updated.ExpiresAt = current.ExpiresAt
	}
	return updated, membership, nil
}
