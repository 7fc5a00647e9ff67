package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/types"
)

// SettingsRepository stores platform settings as key/value rows.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

const (
	keySiteName                 = "site_name"
	keyContactEmail             = "contact_email"
	keyEnableUserRegistration   = "enable_user_registration"
	keyRequireEmailVerification = "require_email_verification"
	keyMaintenanceMode          = "maintenance_mode"
)

// Load returns the stored settings; missing keys keep their default.
func (r *SettingsRepository) Load(ctx context.Context) (types.Settings, error) {
	settings := types.DefaultSettings()

	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return types.Settings{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return types.Settings{}, err
		}
		switch key {
		case keySiteName:
			settings.SiteName = value
		case keyContactEmail:
			settings.ContactEmail = value
		case keyEnableUserRegistration:
			settings.EnableUserRegistration = parseBool(value, settings.EnableUserRegistration)
		case keyRequireEmailVerification:
			settings.RequireEmailVerification = parseBool(value, settings.RequireEmailVerification)
		case keyMaintenanceMode:
			settings.MaintenanceMode = parseBool(value, settings.MaintenanceMode)
		}
	}
	if err := rows.Err(); err != nil {
		return types.Settings{}, err
	}
	return settings, nil
}

// Save upserts every key in one transaction.
func (r *SettingsRepository) Save(ctx context.Context, settings types.Settings) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const query = `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	now := time.Now()
	for _, kv := range [][2]string{
		{keySiteName, settings.SiteName},
		{keyContactEmail, settings.ContactEmail},
		{keyEnableUserRegistration, strconv.FormatBool(settings.EnableUserRegistration)},
		{keyRequireEmailVerification, strconv.FormatBool(settings.RequireEmailVerification)},
		{keyMaintenanceMode, strconv.FormatBool(settings.MaintenanceMode)},
	} {
		if _, err := tx.ExecContext(ctx, query, kv[0], kv[1], now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Ping reports whether the database answers.
func (r *SettingsRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func parseBool(value string, fallback bool) bool {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}
