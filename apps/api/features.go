package main

import (
	"negrostrees/libs/mapview"
)

func treeFeature(t TreeRecord) mapview.Feature {
	return mapview.NewPointFeature(t.Latitude, t.Longitude, map[string]any{
		"id":              t.ID,
		"species_id":      t.SpeciesID,
		"common_name":     t.CommonName,
		"scientific_name": t.ScientificName,
		"family":          t.Family,
		"genus":           t.Genus,
		"population":      t.Population,
		"health_status":   t.HealthStatus,
		"year":            t.Year,
		"location":        t.LocationName,
		"notes":           t.Notes,
		"healthy_count":   t.Healthy,
		"good_count":      t.Good,
		"bad_count":       t.Bad,
		"deceased_count":  t.Deceased,
		"entity_type":     "tree",
	})
}

func seedFeature(sd SeedRecord) mapview.Feature {
	properties := map[string]any{
		"id":                 sd.ID,
		"species_id":         sd.SpeciesID,
		"common_name":        sd.CommonName,
		"scientific_name":    sd.ScientificName,
		"family":             sd.Family,
		"genus":              sd.Genus,
		"quantity":           sd.Quantity,
		"planting_date":      sd.PlantingDate,
		"germination_status": sd.GerminationStatus,
		"location":           sd.LocationName,
		"notes":              sd.Notes,
		"entity_type":        "seed",
	}
	if sd.GerminationDate != nil {
		properties["germination_date"] = *sd.GerminationDate
	}
	if sd.SurvivalRate != nil {
		properties["survival_rate"] = *sd.SurvivalRate
	}
	if sd.ExpectedMaturityDate != nil {
		properties["expected_maturity_date"] = *sd.ExpectedMaturityDate
	}
	return mapview.NewPointFeature(sd.Latitude, sd.Longitude, properties)
}

func treeFeatureCollection(trees []TreeRecord) mapview.FeatureCollection {
	features := make([]mapview.Feature, 0, len(trees))
	for _, tree := range trees {
		features = append(features, treeFeature(tree))
	}
	return mapview.NewFeatureCollection(features)
}

func seedFeatureCollection(seeds []SeedRecord) mapview.FeatureCollection {
	features := make([]mapview.Feature, 0, len(seeds))
	for _, seed := range seeds {
		features = append(features, seedFeature(seed))
	}
	return mapview.NewFeatureCollection(features)
}

func pinStyleProperties(style *PinStyle) map[string]any {
	if style == nil {
		return nil
	}
	return map[string]any{
		"icon_class":       style.IconClass,
		"color":            style.Color,
		"size":             style.Size,
		"border_color":     style.BorderColor,
		"border_width":     style.BorderWidth,
		"background_color": style.BackgroundColor,
	}
}
