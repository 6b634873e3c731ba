package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/imgx/internal/models"
)

// UserRepository persists the single [models.User] record under the "user" key.
type UserRepository struct {
	state *StateRepository
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{state: NewStateRepository(db)}
}

// Get returns the stored user, or nil when none is stored.
func (r *UserRepository) Get(ctx context.Context) (*models.User, error) {
	raw, ok, err := r.state.Get(ctx, KeyUser)
	if err != nil || !ok {
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

// Save validates and stores user, replacing any previous record.
func (r *UserRepository) Save(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	return r.state.Set(ctx, KeyUser, string(data))
}

// Delete removes the stored user.
func (r *UserRepository) Delete(ctx context.Context) error {
	return r.state.Delete(ctx, KeyUser)
}
