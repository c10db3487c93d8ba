package main

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var errLayerNotFound = notFound("layer_not_found", "Layer not found")

const layerSelectQuery = `
		SELECT id, name, description, url, layer_type, is_active, is_default, attribution, z_index, created_at
		FROM map_layers`

func scanLayer(row rowScanner) (MapLayer, error) {
	var layer MapLayer
	var createdAt time.Time
	err := row.Scan(
		&layer.ID, &layer.Name, &layer.Description, &layer.URL, &layer.LayerType,
		&layer.IsActive, &layer.IsDefault, &layer.Attribution, &layer.ZIndex, &createdAt,
	)
	layer.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	return layer, err
}

func (a *App) storeListLayers(ctx context.Context) ([]MapLayer, error) {
	rows, err := a.db.QueryContext(ctx, layerSelectQuery+` ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	layers := make([]MapLayer, 0)
	for rows.Next() {
		layer, err := scanLayer(rows)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, rows.Err()
}

func (a *App) storeGetLayer(ctx context.Context, id int) (*MapLayer, error) {
	layer, err := scanLayer(a.db.QueryRowContext(ctx, layerSelectQuery+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errLayerNotFound
		}
		return nil, err
	}
	return &layer, nil
}

// clearLayerDefault keeps at most one default layer per layer type.
func clearLayerDefault(ctx context.Context, q queryer, layerType string, exceptID int) error {
	_, err := q.ExecContext(ctx, `
		UPDATE map_layers SET is_default = FALSE, updated_at = NOW()
		WHERE layer_type = $1 AND is_default AND id <> $2
	`, layerType, exceptID)
	return err
}

func (a *App) storeCreateLayer(ctx context.Context, layer MapLayer) (*MapLayer, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if layer.IsDefault {
		if err := clearLayerDefault(ctx, tx, layer.LayerType, 0); err != nil {
			return nil, err
		}
	}
	created, err := scanLayer(tx.QueryRowContext(ctx, `
		INSERT INTO map_layers (name, description, url, layer_type, is_active, is_default, attribution, z_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, name, description, url, layer_type, is_active, is_default, attribution, z_index, created_at
	`, layer.Name, layer.Description, layer.URL, layer.LayerType, layer.IsActive, layer.IsDefault, layer.Attribution, layer.ZIndex))
	if err != nil {
		return nil, err
	}
	return &created, tx.Commit()
}

func (a *App) storeUpdateLayer(ctx context.Context, id int, layer MapLayer) (*MapLayer, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if layer.IsDefault {
		if err := clearLayerDefault(ctx, tx, layer.LayerType, id); err != nil {
			return nil, err
		}
	}
	updated, err := scanLayer(tx.QueryRowContext(ctx, `
		UPDATE map_layers SET
			name = $1, description = $2, url = $3, layer_type = $4, is_active = $5,
			is_default = $6, attribution = $7, z_index = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING id, name, description, url, layer_type, is_active, is_default, attribution, z_index, created_at
	`, layer.Name, layer.Description, layer.URL, layer.LayerType, layer.IsActive, layer.IsDefault, layer.Attribution, layer.ZIndex, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errLayerNotFound
		}
		return nil, err
	}
	return &updated, tx.Commit()
}

func (a *App) storeDeleteLayer(ctx context.Context, id int) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM map_layers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return errLayerNotFound
	}
	return nil
}
