package repositories

import (
	"database/sql"
	"errors"
	"fmt"
)

// sequenceTables maps each sequenced table to its single-row counter table.
var sequenceTables = map[string]string{
	"history": "history_sequence",
}

// NextSequence increments and returns the counter for table in one statement.
//
// Sequence numbers give history entries a stable order independent of clock skew
// between runs.
func NextSequence(db *sql.DB, table string) (int, error) {
	counter, ok := sequenceTables[table]
	if !ok {
		return 0, fmt.Errorf("no sequence for table %q", table)
	}

	var next int
	err := db.QueryRow("UPDATE " + counter + " SET value = value + 1 WHERE id = 1 RETURNING value").Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sequence row for %s is missing", table)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s sequence: %w", table, err)
	}
	return next, nil
}
