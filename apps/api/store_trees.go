package main

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"negrostrees/libs/healthdist"

	"github.com/google/uuid"
)

var errTreeNotFound = notFound("tree_not_found", "Tree record not found")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTree(row rowScanner, extra ...any) (TreeRecord, error) {
	var t TreeRecord
	var municipality sql.NullString
	var hectares sql.NullFloat64
	var createdAt, updatedAt time.Time
	dest := []any{
		&t.ID, &t.SpeciesID, &t.CommonName, &t.ScientificName, &t.Family, &t.Genus,
		&t.LocationID, &t.LocationName, &t.Latitude, &t.Longitude, &municipality,
		&t.Population, &t.Year, &t.HealthStatus,
		&t.Healthy, &t.Good, &t.Bad, &t.Deceased,
		&hectares, &t.Notes, &createdAt, &updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return t, err
	}
	if municipality.Valid {
		t.Municipality = &municipality.String
	}
	if hectares.Valid {
		t.Hectares = &hectares.Float64
	}
	t.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	t.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	return t, nil
}

func (a *App) storeListTrees(ctx context.Context, filters map[string]any) ([]TreeRecord, error) {
	whereClause, args := buildTreeFilters("t", filters)
	rows, err := a.db.QueryContext(ctx, treeSelectColumns+treeFromClause+whereClause+" ORDER BY t.year DESC, s.common_name ASC, t.id ASC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trees := make([]TreeRecord, 0)
	for rows.Next() {
		tree, err := scanTree(rows)
		if err != nil {
			return nil, err
		}
		trees = append(trees, tree)
	}
	return trees, rows.Err()
}

func (a *App) storeListTreesPaginated(ctx context.Context, filters map[string]any, page, pageSize int) (*PaginatedTrees, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = treesDefaultPageSize
	}
	query, args := buildTreesQuery(filters, page, pageSize)
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &PaginatedTrees{Trees: make([]TreeRecord, 0)}
	for rows.Next() {
		tree, err := scanTree(rows, &result.TotalCount)
		if err != nil {
			return nil, err
		}
		result.Trees = append(result.Trees, tree)
	}
	return result, rows.Err()
}

func (a *App) storeGetTree(ctx context.Context, id string) (*TreeRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errTreeNotFound
	}
	row := a.db.QueryRowContext(ctx, treeSelectColumns+treeFromClause+" AND t.id = $1", id)
	tree, err := scanTree(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errTreeNotFound
		}
		return nil, err
	}
	return &tree, nil
}

func (a *App) storeCreateTree(ctx context.Context, input TreeInput) (*TreeRecord, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	speciesID, err := getOrCreateSpecies(ctx, tx, taxonomyInput{
		Family:         input.Family,
		Genus:          input.Genus,
		CommonName:     input.CommonName,
		ScientificName: input.ScientificName,
	})
	if err != nil {
		return nil, err
	}

	locationName := strings.TrimSpace(input.LocationName)
	if locationName == "" {
		locationName = defaultLocationName(input.CommonName, false)
	}
	locationID, err := getOrCreateLocation(ctx, tx, locationName, input.Latitude, input.Longitude)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO endemic_trees (
			id, species_id, location_id, population, year, health_status,
			healthy_count, good_count, bad_count, deceased_count, hectares, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, id, speciesID, locationID, input.Population, input.Year, input.HealthStatus,
		input.Counts.Healthy, input.Counts.Good, input.Counts.Bad, input.Counts.Deceased,
		input.Hectares, input.Notes); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return a.storeGetTree(ctx, id)
}

func (a *App) storeUpdateTree(ctx context.Context, id string, input TreeUpdate) (*TreeRecord, error) {
	current, err := a.storeGetTree(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	locationID := current.LocationID
	if input.Latitude != current.Latitude || input.Longitude != current.Longitude {
		locationID, err = getOrCreateLocation(ctx, tx, current.LocationName, input.Latitude, input.Longitude)
		if err != nil {
			return nil, err
		}
	}

	counts := current.Counts
	if input.Counts != nil {
		counts = *input.Counts
	} else if counts.Total() > 0 {
		if err := reconcileCounts(input.Population, counts); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE endemic_trees SET
			species_id = $1, location_id = $2, population = $3, year = $4, health_status = $5,
			healthy_count = $6, good_count = $7, bad_count = $8, deceased_count = $9,
			notes = $10, updated_at = NOW()
		WHERE id = $11
	`, input.SpeciesID, locationID, input.Population, input.Year, input.HealthStatus,
		counts.Healthy, counts.Good, counts.Bad, counts.Deceased, input.Notes, id); err != nil {
		return nil, err
	}
	if locationID != current.LocationID {
		if _, err := cleanupOrphans(ctx, tx); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return a.storeGetTree(ctx, id)
}

func (a *App) storeDeleteTrees(ctx context.Context, ids []string) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM endemic_trees WHERE id = ANY($1::uuid[])`, valid)
	if err != nil {
		return 0, err
	}
	deleted, _ := result.RowsAffected()
	if _, err := cleanupOrphans(ctx, tx); err != nil {
		return 0, err
	}
	return int(deleted), tx.Commit()
}

func (a *App) storeDeleteAllTrees(ctx context.Context) (int, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM endemic_trees`)
	if err != nil {
		return 0, err
	}
	deleted, _ := result.RowsAffected()
	if _, err := cleanupOrphans(ctx, tx); err != nil {
		return 0, err
	}
	return int(deleted), tx.Commit()
}

// storeFillEmptyDistributions gives records with an all-zero distribution one
// derived from their health status and population.
func (a *App) storeFillEmptyDistributions(ctx context.Context) (int, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id::text, population, health_status
		FROM endemic_trees
		WHERE healthy_count = 0 AND good_count = 0 AND bad_count = 0 AND deceased_count = 0 AND population > 0
	`)
	if err != nil {
		return 0, err
	}
	type pending struct {
		id         string
		population int
		status     string
	}
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.population, &p.status); err != nil {
			rows.Close()
			return 0, err
		}
		todo = append(todo, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	updated := 0
	for _, p := range todo {
		counts := healthdist.DistributionFor(healthdist.Status(p.status), p.population)
		if _, err := a.db.ExecContext(ctx, `
			UPDATE endemic_trees
			SET healthy_count = $1, good_count = $2, bad_count = $3, deceased_count = $4, updated_at = NOW()
			WHERE id = $5
		`, counts.Healthy, counts.Good, counts.Bad, counts.Deceased, p.id); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
