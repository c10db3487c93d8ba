package main

import (
	"strings"
	"testing"
)

func TestBuildTreeFilters(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		filters   map[string]any
		wantParts []string
		wantArgs  []any
	}{
		{
			name:      "No filters",
			prefix:    "t",
			filters:   map[string]any{},
			wantParts: []string{},
			wantArgs:  []any{},
		},
		{
			name:   "Tree filters",
			prefix: "t",
			filters: map[string]any{
				"species_id":    3,
				"year":          2024,
				"health_status": "good",
				"location_id":   9,
				"family":        "Dipterocarpaceae",
				"search":        "shorea",
			},
			wantParts: []string{
				"t.species_id = $1",
				"t.year = $2",
				"t.health_status = $3",
				"t.location_id = $4",
				"LOWER(f.name) = LOWER($5)",
				"s.common_name ILIKE $6 OR s.scientific_name ILIKE $6 OR l.name ILIKE $6",
			},
			wantArgs: []any{3, 2024, "good", 9, "Dipterocarpaceae", "%shorea%"},
		},
		{
			name:   "Seed year uses planting date",
			prefix: "sd",
			filters: map[string]any{
				"year":               2023,
				"germination_status": "germinating",
			},
			wantParts: []string{
				"EXTRACT(YEAR FROM sd.planting_date)::int = $1",
				"sd.germination_status = $2",
			},
			wantArgs: []any{2023, "germinating"},
		},
		{
			name:   "Zero ids are ignored",
			prefix: "t",
			filters: map[string]any{
				"species_id":  0,
				"location_id": -1,
			},
			wantParts: []string{},
			wantArgs:  []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			whereClause, args := buildTreeFilters(tt.prefix, tt.filters)
			for _, part := range tt.wantParts {
				if !strings.Contains(whereClause, part) {
					t.Fatalf("where clause missing %q in %q", part, whereClause)
				}
			}
			if len(tt.wantParts) == 0 && whereClause != "" {
				t.Fatalf("expected empty where clause, got %q", whereClause)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args length mismatch: got %d want %d", len(args), len(tt.wantArgs))
			}
			for i := range tt.wantArgs {
				if args[i] != tt.wantArgs[i] {
					t.Fatalf("arg %d mismatch: got %v want %v", i, args[i], tt.wantArgs[i])
				}
			}
		})
	}
}

func TestBuildTreesQueryPaginates(t *testing.T) {
	query, args := buildTreesQuery(map[string]any{"health_status": "poor"}, 3, 25)
	for _, piece := range []string{
		"COUNT(*) OVER() AS total_count",
		"t.health_status = $1",
		"ORDER BY t.year DESC, s.common_name ASC, t.id ASC",
		"LIMIT $2 OFFSET $3",
	} {
		if !strings.Contains(query, piece) {
			t.Fatalf("expected SQL to contain %q, got: %s", piece, query)
		}
	}
	want := []any{"poor", 25, 50}
	if len(args) != len(want) {
		t.Fatalf("unexpected arg count: got %d want %d", len(args), len(want))
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d mismatch: got %#v want %#v", i, args[i], want[i])
		}
	}
}

func TestBuildTreesQueryWithoutPagination(t *testing.T) {
	query, args := buildTreesQuery(map[string]any{}, 0, 0)
	if strings.Contains(query, "LIMIT") {
		t.Fatalf("expected no LIMIT, got: %s", query)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got %#v", args)
	}
}
