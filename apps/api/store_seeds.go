package main

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var errSeedNotFound = notFound("seed_not_found", "Seed record not found")

const seedSelectQuery = `
		SELECT
			sd.id::text, sd.species_id, s.common_name, s.scientific_name, f.name, g.name,
			l.id, l.name, l.latitude, l.longitude,
			sd.quantity, sd.planting_date, sd.germination_status, sd.germination_date,
			sd.survival_rate, sd.expected_maturity_date, sd.hectares, sd.notes, sd.created_at
		FROM tree_seeds sd
		JOIN tree_species s ON s.id = sd.species_id
		JOIN tree_genera g ON g.id = s.genus_id
		JOIN tree_families f ON f.id = g.family_id
		JOIN locations l ON l.id = sd.location_id
		WHERE 1=1`

const dateLayout = "2006-01-02"

func scanSeed(row rowScanner) (SeedRecord, error) {
	var sd SeedRecord
	var plantingDate time.Time
	var germinationDate, maturityDate sql.NullTime
	var survivalRate, hectares sql.NullFloat64
	var createdAt time.Time
	if err := row.Scan(
		&sd.ID, &sd.SpeciesID, &sd.CommonName, &sd.ScientificName, &sd.Family, &sd.Genus,
		&sd.LocationID, &sd.LocationName, &sd.Latitude, &sd.Longitude,
		&sd.Quantity, &plantingDate, &sd.GerminationStatus, &germinationDate,
		&survivalRate, &maturityDate, &hectares, &sd.Notes, &createdAt,
	); err != nil {
		return sd, err
	}
	sd.PlantingDate = plantingDate.Format(dateLayout)
	if germinationDate.Valid {
		value := germinationDate.Time.Format(dateLayout)
		sd.GerminationDate = &value
	}
	if maturityDate.Valid {
		value := maturityDate.Time.Format(dateLayout)
		sd.ExpectedMaturityDate = &value
	}
	if survivalRate.Valid {
		sd.SurvivalRate = &survivalRate.Float64
	}
	if hectares.Valid {
		sd.Hectares = &hectares.Float64
	}
	sd.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	return sd, nil
}

func (a *App) storeListSeeds(ctx context.Context, filters map[string]any) ([]SeedRecord, error) {
	whereClause, args := buildTreeFilters("sd", filters)
	rows, err := a.db.QueryContext(ctx, seedSelectQuery+whereClause+" ORDER BY sd.planting_date DESC, sd.id ASC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seeds := make([]SeedRecord, 0)
	for rows.Next() {
		seed, err := scanSeed(rows)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, seed)
	}
	return seeds, rows.Err()
}

func (a *App) storeGetSeed(ctx context.Context, id string) (*SeedRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errSeedNotFound
	}
	seed, err := scanSeed(a.db.QueryRowContext(ctx, seedSelectQuery+" AND sd.id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errSeedNotFound
		}
		return nil, err
	}
	return &seed, nil
}

func (a *App) storeCreateSeed(ctx context.Context, input SeedInput) (*SeedRecord, error) {
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
		locationName = defaultLocationName(input.CommonName, true)
	}
	locationID, err := getOrCreateLocation(ctx, tx, locationName, input.Latitude, input.Longitude)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tree_seeds (
			id, species_id, location_id, quantity, planting_date, germination_status,
			germination_date, survival_rate, expected_maturity_date, hectares, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, id, speciesID, locationID, input.Quantity, input.PlantingDate, input.GerminationStatus,
		input.GerminationDate, input.SurvivalRate, input.ExpectedMaturityDate, input.Hectares, input.Notes); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return a.storeGetSeed(ctx, id)
}

func (a *App) storeUpdateSeed(ctx context.Context, id string, input SeedUpdate) (*SeedRecord, error) {
	current, err := a.storeGetSeed(ctx, id)
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

	if _, err := tx.ExecContext(ctx, `
		UPDATE tree_seeds SET
			species_id = $1, location_id = $2, quantity = $3, planting_date = $4,
			germination_status = $5, germination_date = $6, survival_rate = $7,
			expected_maturity_date = $8, notes = $9, updated_at = NOW()
		WHERE id = $10
	`, input.SpeciesID, locationID, input.Quantity, input.PlantingDate, input.GerminationStatus,
		input.GerminationDate, input.SurvivalRate, input.ExpectedMaturityDate, input.Notes, id); err != nil {
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
	return a.storeGetSeed(ctx, id)
}

func (a *App) storeDeleteSeeds(ctx context.Context, ids []string) (int, error) {
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

	result, err := tx.ExecContext(ctx, `DELETE FROM tree_seeds WHERE id = ANY($1::uuid[])`, valid)
	if err != nil {
		return 0, err
	}
	deleted, _ := result.RowsAffected()
	if _, err := cleanupOrphans(ctx, tx); err != nil {
		return 0, err
	}
	return int(deleted), tx.Commit()
}

func (a *App) storeDeleteAllSeeds(ctx context.Context) (int, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM tree_seeds`)
	if err != nil {
		return 0, err
	}
	deleted, _ := result.RowsAffected()
	if _, err := cleanupOrphans(ctx, tx); err != nil {
		return 0, err
	}
	return int(deleted), tx.Commit()
}
