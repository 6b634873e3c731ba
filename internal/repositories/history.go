package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/imgx/internal/models"
	"github.com/desertthunder/imgx/internal/shared"
)

// HistoryRepository implements [models.Repository] for [models.HistoryEntry] persistence.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new [HistoryRepository] with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create inserts a new entry with generated ID and sequence
func (r *HistoryRepository) Create(entry *models.HistoryEntry) error {
	sequence, err := NextSequence(r.db, "history")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	entry.SetID(id)
	entry.SetSequence(sequence)

	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO history (
			id, sequence, subject_id, operation, source_name, source_size,
			result_id, result_url, result_size, width, height, duration_ms,
			error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	width, height := entry.Dimensions()
	_, err = r.db.Exec(query,
		id,
		sequence,
		entry.SubjectID(),
		string(entry.Operation()),
		entry.SourceName(),
		entry.SourceSize(),
		entry.ResultID(),
		entry.ResultURL(),
		entry.ResultSize(),
		width,
		height,
		entry.Duration().Milliseconds(),
		entry.ErrorMessage(),
		entry.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	return nil
}

const historyColumns = `
	id, sequence, subject_id, operation, source_name, source_size,
	result_id, result_url, result_size, width, height, duration_ms,
	error, created_at, deleted_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(row rowScanner) (*models.HistoryEntry, error) {
	var (
		id, subjectID, operation, sourceName string
		resultID, resultURL, errMsg          string
		sequence, width, height              int
		sourceSize, resultSize, durationMS   int64
		createdAt                            time.Time
		deletedAt                            sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &subjectID, &operation, &sourceName, &sourceSize,
		&resultID, &resultURL, &resultSize, &width, &height, &durationMS,
		&errMsg, &createdAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	entry := models.NewHistoryEntry(subjectID, models.Operation(operation), sourceName, sourceSize)
	entry.SetID(id)
	entry.SetSequence(sequence)
	entry.SetResult(resultID, resultURL, resultSize)
	entry.SetDimensions(width, height)
	entry.SetDuration(time.Duration(durationMS) * time.Millisecond)
	entry.SetErrorMessage(errMsg)
	entry.SetCreatedAt(createdAt)
	if deletedAt.Valid {
		entry.SetDeletedAt(&deletedAt.Time)
	}
	return entry, nil
}

// Get retrieves an entry by ID, excluding soft-deleted entries
func (r *HistoryRepository) Get(id string) (*models.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM history WHERE id = ? AND deleted_at IS NULL`

	entry, err := scanHistory(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("history entry not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query history entry: %w", err)
	}
	return entry, nil
}

// Delete soft-deletes an entry by ID
func (r *HistoryRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE history SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("history entry not found or already deleted: %s", id)
	}

	return nil
}

// List retrieves entries matching the given criteria, newest first.
//
// Supported criteria: "subject_id" (string), "operation" (string or [models.Operation]),
// "failed" (bool) and "limit" (int).
func (r *HistoryRepository) List(criteria map[string]any) ([]*models.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM history WHERE deleted_at IS NULL`
	args := []any{}

	if subjectID, ok := criteria["subject_id"].(string); ok && subjectID != "" {
		query += " AND subject_id = ?"
		args = append(args, subjectID)
	}

	switch op := criteria["operation"].(type) {
	case string:
		query += " AND operation = ?"
		args = append(args, op)
	case models.Operation:
		query += " AND operation = ?"
		args = append(args, string(op))
	}

	if failed, ok := criteria["failed"].(bool); ok {
		if failed {
			query += " AND error != ''"
		} else {
			query += " AND error = ''"
		}
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []*models.HistoryEntry{}
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return entries, nil
}
