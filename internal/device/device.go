package device

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const idKey = "device_id"

// GetOrCreate returns the stable device identifier, generating and persisting
// one on first use.
func GetOrCreate(ctx context.Context, db *sql.DB) (string, error) {
	var existing string
	err := db.QueryRowContext(ctx, `SELECT value FROM device WHERE key = ?`, idKey).Scan(&existing)
	if err == nil && strings.TrimSpace(existing) != "" {
		return strings.TrimSpace(existing), nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	created := uuid.NewString()
	if _, err := db.ExecContext(ctx, `
		INSERT INTO device (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, idKey, created); err != nil {
		return "", err
	}
	return created, nil
}
