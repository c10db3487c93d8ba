package main

import (
	"context"
	"database/sql"
	"strings"
)

type taxonomyInput struct {
	Family         string
	Genus          string
	CommonName     string
	ScientificName string
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getOrCreateSpecies resolves the family, genus and species rows, inserting
// whatever is missing. Species are keyed on scientific name.
func getOrCreateSpecies(ctx context.Context, q queryer, input taxonomyInput) (int, error) {
	var familyID int
	if err := q.QueryRowContext(ctx, `
		INSERT INTO tree_families (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, strings.TrimSpace(input.Family)).Scan(&familyID); err != nil {
		return 0, err
	}

	var genusID int
	if err := q.QueryRowContext(ctx, `
		INSERT INTO tree_genera (name, family_id) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, strings.TrimSpace(input.Genus), familyID).Scan(&genusID); err != nil {
		return 0, err
	}

	var speciesID int
	if err := q.QueryRowContext(ctx, `
		INSERT INTO tree_species (common_name, scientific_name, genus_id) VALUES ($1, $2, $3)
		ON CONFLICT (scientific_name) DO UPDATE SET common_name = tree_species.common_name
		RETURNING id
	`, strings.TrimSpace(input.CommonName), strings.TrimSpace(input.ScientificName), genusID).Scan(&speciesID); err != nil {
		return 0, err
	}
	return speciesID, nil
}

// getOrCreateLocation finds the location at lat, lng or creates it under name.
func getOrCreateLocation(ctx context.Context, q queryer, name string, lat, lng float64) (int, error) {
	var locationID int
	err := q.QueryRowContext(ctx, `
		INSERT INTO locations (name, latitude, longitude) VALUES ($1, $2, $3)
		ON CONFLICT (latitude, longitude) DO UPDATE SET name = locations.name
		RETURNING id
	`, name, lat, lng).Scan(&locationID)
	return locationID, err
}

func defaultLocationName(commonName string, seed bool) string {
	if seed {
		return commonName + " Seed Planting Location"
	}
	return commonName + " Location"
}

// cleanupOrphans removes locations no record points at, then species, genera
// and families left without children. It returns the number of rows removed.
func cleanupOrphans(ctx context.Context, q queryer) (int, error) {
	statements := []string{
		`DELETE FROM locations l
		 WHERE NOT EXISTS (SELECT 1 FROM endemic_trees t WHERE t.location_id = l.id)
		   AND NOT EXISTS (SELECT 1 FROM tree_seeds sd WHERE sd.location_id = l.id)`,
		`DELETE FROM tree_species s
		 WHERE NOT EXISTS (SELECT 1 FROM endemic_trees t WHERE t.species_id = s.id)
		   AND NOT EXISTS (SELECT 1 FROM tree_seeds sd WHERE sd.species_id = s.id)`,
		`DELETE FROM tree_genera g
		 WHERE NOT EXISTS (SELECT 1 FROM tree_species s WHERE s.genus_id = g.id)`,
		`DELETE FROM tree_families f
		 WHERE NOT EXISTS (SELECT 1 FROM tree_genera g WHERE g.family_id = f.id)`,
	}
	removed := 0
	for _, statement := range statements {
		result, err := q.ExecContext(ctx, statement)
		if err != nil {
			return removed, err
		}
		affected, _ := result.RowsAffected()
		removed += int(affected)
	}
	return removed, nil
}

func (a *App) storeListSpecies(ctx context.Context) ([]Species, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT s.id, s.common_name, s.scientific_name, f.name, g.name, s.is_endemic, s.conservation_status
		FROM tree_species s
		JOIN tree_genera g ON g.id = s.genus_id
		JOIN tree_families f ON f.id = g.family_id
		ORDER BY s.common_name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	species := make([]Species, 0)
	for rows.Next() {
		var s Species
		if err := rows.Scan(&s.ID, &s.CommonName, &s.ScientificName, &s.Family, &s.Genus, &s.IsEndemic, &s.ConservationStatus); err != nil {
			return nil, err
		}
		species = append(species, s)
	}
	return species, rows.Err()
}

func (a *App) storeListLocations(ctx context.Context) ([]Location, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, name, latitude, longitude, elevation, municipality
		FROM locations
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := make([]Location, 0)
	for rows.Next() {
		var l Location
		var elevation sql.NullFloat64
		var municipality sql.NullString
		if err := rows.Scan(&l.ID, &l.Name, &l.Latitude, &l.Longitude, &elevation, &municipality); err != nil {
			return nil, err
		}
		if elevation.Valid {
			l.Elevation = &elevation.Float64
		}
		if municipality.Valid {
			l.Municipality = &municipality.String
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (a *App) storeListLocationsWithoutMunicipality(ctx context.Context) ([]Location, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, name, latitude, longitude
		FROM locations
		WHERE municipality IS NULL OR municipality = ''
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := make([]Location, 0)
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Latitude, &l.Longitude); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (a *App) storeSetLocationMunicipality(ctx context.Context, locationID int, municipality string) error {
	_, err := a.db.ExecContext(ctx, `UPDATE locations SET municipality = $1 WHERE id = $2`, municipality, locationID)
	return err
}
