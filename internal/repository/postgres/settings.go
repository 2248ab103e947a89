package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"toolshed-backend/internal/logger"
)

// SettingsRepository reads runtime settings from platform_settings. It
// satisfies settings.Source.
type SettingsRepository struct {
	db DBTX
}

func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Lookup(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM platform_settings WHERE key = $1`
	logger.DatabaseCall("SELECT", query, "key", key)

	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("SELECT", 0, nil)
		return "", false, nil
	}
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		return "", false, err
	}
	logger.DatabaseResult("SELECT", 1, nil)
	return value, true, nil
}

// Upsert writes one setting.
func (r *SettingsRepository) Upsert(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO platform_settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	logger.DatabaseCall("UPSERT", query, "key", key)
	_, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	logger.DatabaseResult("UPSERT", 1, err)
	return err
}
