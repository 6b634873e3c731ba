package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/imgx/internal/session"
)

// GuardRepository implements [session.Guard] over the authorization_guards table.
//
// Acquire relies on the primary key: INSERT OR IGNORE affects one row only for
// the first caller, including callers in other processes sharing the file.
type GuardRepository struct {
	db *sql.DB
}

// NewGuardRepository creates a new [GuardRepository] with the given database connection
func NewGuardRepository(db *sql.DB) *GuardRepository {
	return &GuardRepository{db: db}
}

func (r *GuardRepository) Acquire(ctx context.Context, key session.DedupeKey) (bool, error) {
	now := time.Now()
	query := `
		INSERT OR IGNORE INTO authorization_guards (dedupe_key, state, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, string(key), session.GuardPending.String(), now, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert guard: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

func (r *GuardRepository) Mark(ctx context.Context, key session.DedupeKey, state session.GuardState) error {
	if err := session.CheckTransition(session.GuardPending, state); err != nil {
		return err
	}

	query := `
		UPDATE authorization_guards
		SET state = ?, updated_at = ?
		WHERE dedupe_key = ? AND state = ?
	`

	result, err := r.db.ExecContext(ctx, query, state.String(), time.Now(), string(key), session.GuardPending.String())
	if err != nil {
		return fmt.Errorf("failed to update guard: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		current, err := r.State(ctx, key)
		if err != nil {
			return err
		}
		return session.CheckTransition(current, state)
	}
	return nil
}

func (r *GuardRepository) Release(ctx context.Context, key session.DedupeKey) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM authorization_guards WHERE dedupe_key = ?`, string(key)); err != nil {
		return fmt.Errorf("failed to delete guard: %w", err)
	}
	return nil
}

func (r *GuardRepository) State(ctx context.Context, key session.DedupeKey) (session.GuardState, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT state FROM authorization_guards WHERE dedupe_key = ?`, string(key)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return session.GuardAbsent, nil
	}
	if err != nil {
		return session.GuardAbsent, fmt.Errorf("failed to query guard: %w", err)
	}
	return session.ParseGuardState(raw)
}

func (r *GuardRepository) Reset(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM authorization_guards`); err != nil {
		return fmt.Errorf("failed to clear guards: %w", err)
	}
	return nil
}

// Prune removes entries older than ttl, left behind by a process that exited mid-exchange.
func (r *GuardRepository) Prune(ctx context.Context, ttl time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM authorization_guards WHERE created_at < ?`, time.Now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to prune guards: %w", err)
	}
	return result.RowsAffected()
}
