package main

import "fmt"

const treeSelectColumns = `
		SELECT
			t.id::text, t.species_id, s.common_name, s.scientific_name, f.name, g.name,
			l.id, l.name, l.latitude, l.longitude, l.municipality,
			t.population, t.year, t.health_status,
			t.healthy_count, t.good_count, t.bad_count, t.deceased_count,
			t.hectares, t.notes, t.created_at, t.updated_at`

const treeFromClause = `
		FROM endemic_trees t
		JOIN tree_species s ON s.id = t.species_id
		JOIN tree_genera g ON g.id = s.genus_id
		JOIN tree_families f ON f.id = g.family_id
		JOIN locations l ON l.id = t.location_id
		WHERE 1=1`

// buildTreeFilters turns listing filters into a WHERE fragment. prefix is the
// table alias of the filtered record table.
func buildTreeFilters(prefix string, filters map[string]any) (string, []any) {
	whereClause := ""
	args := make([]any, 0)
	argIndex := 1

	if speciesID, ok := filters["species_id"].(int); ok && speciesID > 0 {
		whereClause += fmt.Sprintf(" AND %s.species_id = $%d", prefix, argIndex)
		args = append(args, speciesID)
		argIndex++
	}
	if year, ok := filters["year"].(int); ok && year > 0 {
		whereClause += fmt.Sprintf(" AND %s = $%d", yearExpression(prefix), argIndex)
		args = append(args, year)
		argIndex++
	}
	if status, ok := filters["health_status"].(string); ok && status != "" {
		whereClause += fmt.Sprintf(" AND %s.health_status = $%d", prefix, argIndex)
		args = append(args, status)
		argIndex++
	}
	if status, ok := filters["germination_status"].(string); ok && status != "" {
		whereClause += fmt.Sprintf(" AND %s.germination_status = $%d", prefix, argIndex)
		args = append(args, status)
		argIndex++
	}
	if locationID, ok := filters["location_id"].(int); ok && locationID > 0 {
		whereClause += fmt.Sprintf(" AND %s.location_id = $%d", prefix, argIndex)
		args = append(args, locationID)
		argIndex++
	}
	if family, ok := filters["family"].(string); ok && family != "" {
		whereClause += fmt.Sprintf(" AND LOWER(f.name) = LOWER($%d)", argIndex)
		args = append(args, family)
		argIndex++
	}
	if search, ok := filters["search"].(string); ok && search != "" {
		whereClause += fmt.Sprintf(" AND (s.common_name ILIKE $%d OR s.scientific_name ILIKE $%d OR l.name ILIKE $%d)", argIndex, argIndex, argIndex)
		args = append(args, "%"+search+"%")
		argIndex++
	}

	return whereClause, args
}

// Trees store a plain year; seeds are filtered on the planting date.
func yearExpression(prefix string) string {
	if prefix == "sd" {
		return "EXTRACT(YEAR FROM sd.planting_date)::int"
	}
	return prefix + ".year"
}

func buildTreesQuery(filters map[string]any, page, pageSize int) (string, []any) {
	query := treeSelectColumns + `,
			COUNT(*) OVER() AS total_count` + treeFromClause
	whereClause, args := buildTreeFilters("t", filters)
	query += whereClause
	argIndex := len(args) + 1

	query += " ORDER BY t.year DESC, s.common_name ASC, t.id ASC"

	if page > 0 && pageSize > 0 {
		offset := (page - 1) * pageSize
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
		args = append(args, pageSize, offset)
	}

	return query, args
}
