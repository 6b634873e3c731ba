package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/imgx/internal/session"
)

// SessionRepository implements [session.Store] on top of client_state.
//
// The credential lives under auth_token and the profile fields under auth_user,
// so clearing the token alone is enough to end a session.
type SessionRepository struct {
	state *StateRepository
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{state: NewStateRepository(db)}
}

// Load returns the stored session, or nil when no credential is stored.
func (r *SessionRepository) Load(ctx context.Context) (*session.Session, error) {
	token, ok, err := r.state.Get(ctx, KeyAuthToken)
	if err != nil || !ok || token == "" {
		return nil, err
	}

	s := &session.Session{}
	raw, ok, err := r.state.Get(ctx, KeyAuthUser)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), s); err != nil {
			return nil, fmt.Errorf("%w: stored profile: %v", session.ErrInvalidSession, err)
		}
	}
	s.Credential = token
	return s, nil
}

// Save writes the credential and profile together.
func (r *SessionRepository) Save(ctx context.Context, s *session.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}

	profile, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	return r.state.SetMany(ctx, map[string]string{
		KeyAuthToken: s.Credential,
		KeyAuthUser:  string(profile),
	})
}

// Clear removes the credential, the profile and the cached user record.
func (r *SessionRepository) Clear(ctx context.Context) error {
	return r.state.Delete(ctx, KeyAuthToken, KeyAuthUser, KeyUser)
}
