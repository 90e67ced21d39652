package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	coreerrors "folio-core/internal/core/errors"
	"folio-core/internal/signing"
)

// SigningSettingsKey is the settings row holding url-signing options
const SigningSettingsKey = "url_signing"

// Settings reads the key/value settings table: settings(key text primary key, value jsonb)
type Settings struct {
	db Querier
}

// NewSettings creates the settings source
func NewSettings(db Querier) *Settings {
	return &Settings{db: db}
}

// SigningSettings implements signing.SettingsSource
func (s *Settings) SigningSettings(ctx context.Context) (signing.Settings, bool, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, SigningSettingsKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return signing.Settings{}, false, nil
	}
	if err != nil {
		return signing.Settings{}, false, coreerrors.Wrap(err, coreerrors.CodeStorageError, "read signing settings")
	}
	var out signing.Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return signing.Settings{}, false, coreerrors.Wrap(err, coreerrors.CodeSerializationError, "decode signing settings")
	}
	return out, true, nil
}
