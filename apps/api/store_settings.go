package main

import (
	"context"
	"database/sql"
	"errors"
)

var errPinStyleNotFound = notFound("pin_style_not_found", "Pin style not found")

const pinStyleColumns = `id, name, icon_class, color, size, border_color, border_width, background_color, is_default`

func scanPinStyle(row rowScanner) (PinStyle, error) {
	var style PinStyle
	err := row.Scan(
		&style.ID, &style.Name, &style.IconClass, &style.Color, &style.Size,
		&style.BorderColor, &style.BorderWidth, &style.BackgroundColor, &style.IsDefault,
	)
	return style, err
}

func (a *App) storeAllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT key, value FROM user_settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (a *App) storeSaveSetting(ctx context.Context, key, value string) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO user_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	return err
}

// storeDefaultPinStyle returns the default pin style, or nil when none is set.
func (a *App) storeDefaultPinStyle(ctx context.Context) (*PinStyle, error) {
	style, err := scanPinStyle(a.db.QueryRowContext(ctx, `SELECT `+pinStyleColumns+` FROM pin_styles WHERE is_default LIMIT 1`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &style, nil
}

func (a *App) storeSetDefaultPinStyle(ctx context.Context, name string) (*PinStyle, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	style, err := scanPinStyle(tx.QueryRowContext(ctx, `SELECT `+pinStyleColumns+` FROM pin_styles WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errPinStyleNotFound
		}
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pin_styles SET is_default = FALSE WHERE is_default AND id <> $1`, style.ID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pin_styles SET is_default = TRUE WHERE id = $1`, style.ID); err != nil {
		return nil, err
	}
	style.IsDefault = true
	return &style, tx.Commit()
}
