package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"negrostrees/libs/healthdist"
	"negrostrees/libs/validate"
)

const minRecordYear = 1800

var (
	treeRequiredFields = []string{"common_name", "scientific_name", "family", "genus", "latitude", "longitude", "population", "year"}
	healthCountFields  = []string{"healthy_count", "good_count", "bad_count", "deceased_count"}
	seedRequiredFields = []string{"common_name", "scientific_name", "family", "genus", "latitude", "longitude", "quantity", "planting_date"}
)

var (
	errCountsNotIntegers = badRequest("invalid_counts", "Health counts and population must be integers.")
	errCountTooLarge     = badRequest("count_out_of_range", fmt.Sprintf("Counts and quantities must not exceed %d.", healthdist.MaxCount))
)

// parseTreeInput validates a new tree record. With requireCounts the four
// health counts must be present; otherwise they are reconciled only when at
// least one of them is given.
func parseTreeInput(fields map[string]string, requireCounts bool) (TreeInput, error) {
	required := treeRequiredFields
	if requireCounts {
		required = append(append([]string{}, treeRequiredFields...), healthCountFields...)
	}
	if missing := missingFields(fields, required...); len(missing) > 0 {
		return TreeInput{}, badRequest("missing_fields", "Missing required fields: "+strings.Join(missing, ", "))
	}

	lat, lng, err := parseCoordinates(fields)
	if err != nil {
		return TreeInput{}, err
	}

	population, err := parseNonNegativeInt(fields["population"])
	if err != nil {
		return TreeInput{}, countError(err, errCountsNotIntegers)
	}
	year, err := parseYear(fields["year"])
	if err != nil {
		return TreeInput{}, err
	}

	input := TreeInput{
		CommonName:     fields["common_name"],
		ScientificName: fields["scientific_name"],
		Family:         fields["family"],
		Genus:          fields["genus"],
		Latitude:       lat,
		Longitude:      lng,
		LocationName:   fields["location_name"],
		Population:     population,
		Year:           year,
		Notes:          fields["notes"],
	}

	counts, provided, err := parseHealthCounts(fields)
	if err != nil {
		return TreeInput{}, err
	}
	if provided {
		if err := reconcileCounts(population, counts); err != nil {
			return TreeInput{}, err
		}
		input.Counts = counts
	}

	status, err := resolveHealthStatus(fields["health_status"], counts)
	if err != nil {
		return TreeInput{}, err
	}
	input.HealthStatus = status

	if raw := fields["hectares"]; raw != "" {
		hectares, err := strconv.ParseFloat(raw, 64)
		if err != nil || hectares < 0 {
			return TreeInput{}, badRequest("invalid_format", "Invalid data format: hectares must be a non-negative number")
		}
		input.Hectares = &hectares
	}
	return input, nil
}

// parseTreeUpdate validates the edit form of an existing tree record.
func parseTreeUpdate(fields map[string]string) (TreeUpdate, error) {
	if missing := missingFields(fields, "species", "population", "year", "health_status", "latitude", "longitude"); len(missing) > 0 {
		return TreeUpdate{}, badRequest("missing_fields", "All required fields must be provided")
	}

	speciesID, err := strconv.Atoi(fields["species"])
	if err != nil || speciesID <= 0 {
		return TreeUpdate{}, badRequest("invalid_format", "Invalid data format: species must be a species id")
	}
	population, err := parseNonNegativeInt(fields["population"])
	if err != nil {
		return TreeUpdate{}, countError(err, badRequest("invalid_format", "Invalid data format: population must be a non-negative integer"))
	}
	year, err := parseYear(fields["year"])
	if err != nil {
		return TreeUpdate{}, err
	}
	lat, lng, err := parseCoordinates(fields)
	if err != nil {
		return TreeUpdate{}, err
	}
	if !healthdist.ValidStatus(fields["health_status"]) {
		return TreeUpdate{}, badRequest("invalid_health_status", "Invalid health status")
	}

	update := TreeUpdate{
		SpeciesID:    speciesID,
		Population:   population,
		Year:         year,
		HealthStatus: fields["health_status"],
		Latitude:     lat,
		Longitude:    lng,
		Notes:        fields["notes"],
	}

	counts, provided, err := parseHealthCounts(fields)
	if err != nil {
		return TreeUpdate{}, err
	}
	if provided {
		if err := reconcileCounts(population, counts); err != nil {
			return TreeUpdate{}, err
		}
		update.Counts = &counts
	}
	return update, nil
}

func parseSeedInput(fields map[string]string) (SeedInput, error) {
	if missing := missingFields(fields, seedRequiredFields...); len(missing) > 0 {
		return SeedInput{}, badRequest("missing_fields", "Missing required fields: "+strings.Join(missing, ", "))
	}
	lat, lng, err := parseCoordinates(fields)
	if err != nil {
		return SeedInput{}, err
	}
	quantity, err := parseNonNegativeInt(fields["quantity"])
	if err != nil {
		return SeedInput{}, countError(err, badRequest("invalid_format", "Invalid data format: quantity must be a non-negative integer"))
	}
	details, err := parseSeedDetails(fields)
	if err != nil {
		return SeedInput{}, err
	}

	input := SeedInput{
		CommonName:           fields["common_name"],
		ScientificName:       fields["scientific_name"],
		Family:               fields["family"],
		Genus:                fields["genus"],
		Latitude:             lat,
		Longitude:            lng,
		LocationName:         fields["location_name"],
		Quantity:             quantity,
		PlantingDate:         details.PlantingDate,
		GerminationStatus:    details.GerminationStatus,
		GerminationDate:      details.GerminationDate,
		SurvivalRate:         details.SurvivalRate,
		ExpectedMaturityDate: details.ExpectedMaturityDate,
		Notes:                fields["notes"],
	}
	if raw := fields["hectares"]; raw != "" {
		hectares, err := strconv.ParseFloat(raw, 64)
		if err != nil || hectares < 0 {
			return SeedInput{}, badRequest("invalid_format", "Invalid data format: hectares must be a non-negative number")
		}
		input.Hectares = &hectares
	}
	return input, nil
}

func parseSeedUpdate(fields map[string]string) (SeedUpdate, error) {
	if missing := missingFields(fields, "species", "quantity", "planting_date", "latitude", "longitude"); len(missing) > 0 {
		return SeedUpdate{}, badRequest("missing_fields", "All required fields must be provided")
	}
	speciesID, err := strconv.Atoi(fields["species"])
	if err != nil || speciesID <= 0 {
		return SeedUpdate{}, badRequest("invalid_format", "Invalid data format: species must be a species id")
	}
	quantity, err := parseNonNegativeInt(fields["quantity"])
	if err != nil {
		return SeedUpdate{}, countError(err, badRequest("invalid_format", "Invalid data format: quantity must be a non-negative integer"))
	}
	lat, lng, err := parseCoordinates(fields)
	if err != nil {
		return SeedUpdate{}, err
	}
	details, err := parseSeedDetails(fields)
	if err != nil {
		return SeedUpdate{}, err
	}
	return SeedUpdate{
		SpeciesID:            speciesID,
		Quantity:             quantity,
		PlantingDate:         details.PlantingDate,
		GerminationStatus:    details.GerminationStatus,
		GerminationDate:      details.GerminationDate,
		SurvivalRate:         details.SurvivalRate,
		ExpectedMaturityDate: details.ExpectedMaturityDate,
		Latitude:             lat,
		Longitude:            lng,
		Notes:                fields["notes"],
	}, nil
}

type seedDetails struct {
	PlantingDate         string
	GerminationStatus    string
	GerminationDate      *string
	SurvivalRate         *float64
	ExpectedMaturityDate *string
}

func parseSeedDetails(fields map[string]string) (seedDetails, error) {
	var details seedDetails
	if _, err := time.Parse(dateLayout, fields["planting_date"]); err != nil {
		return details, badRequest("invalid_format", "Invalid data format: planting_date must be YYYY-MM-DD")
	}
	details.PlantingDate = fields["planting_date"]

	details.GerminationStatus = fields["germination_status"]
	if details.GerminationStatus == "" {
		details.GerminationStatus = "not_germinated"
	}
	if !containsString(germinationOptions, details.GerminationStatus) {
		return details, badRequest("invalid_germination_status", "Invalid germination status")
	}

	dates := []struct {
		key    string
		target **string
	}{
		{"germination_date", &details.GerminationDate},
		{"expected_maturity_date", &details.ExpectedMaturityDate},
	}
	for _, date := range dates {
		raw := fields[date.key]
		if raw == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, raw); err != nil {
			return details, badRequest("invalid_format", fmt.Sprintf("Invalid data format: %s must be YYYY-MM-DD", date.key))
		}
		*date.target = optionalString(raw)
	}

	if raw := fields["survival_rate"]; raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil || rate < 0 || rate > 100 {
			return details, badRequest("invalid_survival_rate", "Survival rate must be between 0 and 100")
		}
		details.SurvivalRate = &rate
	}
	return details, nil
}

func parseCoordinates(fields map[string]string) (float64, float64, error) {
	if message := validate.Latitude(fields["latitude"]); message != "" {
		return 0, 0, badRequest("invalid_latitude", message)
	}
	if message := validate.Longitude(fields["longitude"]); message != "" {
		return 0, 0, badRequest("invalid_longitude", message)
	}
	lat, _ := strconv.ParseFloat(fields["latitude"], 64)
	lng, _ := strconv.ParseFloat(fields["longitude"], 64)
	return lat, lng, nil
}

// parseNonNegativeInt accepts integers in [0, healthdist.MaxCount]. Larger
// values, including ones that overflow int, return errCountTooLarge.
func parseNonNegativeInt(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(strings.TrimSpace(raw), "-") {
		return 0, errCountTooLarge
	}
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, fmt.Errorf("negative value %d", value)
	}
	if value > healthdist.MaxCount {
		return 0, errCountTooLarge
	}
	return value, nil
}

// countError keeps errCountTooLarge and replaces any other parse failure with
// fallback.
func countError(err, fallback error) error {
	if errors.Is(err, errCountTooLarge) {
		return err
	}
	return fallback
}

func parseYear(raw string) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, badRequest("invalid_format", "Invalid data format: year must be an integer")
	}
	maxYear := time.Now().Year() + 1
	if year < minRecordYear || year > maxYear {
		return 0, badRequest("invalid_year", fmt.Sprintf("Year must be between %d and %d", minRecordYear, maxYear))
	}
	return year, nil
}

// parseHealthCounts reads the four counts. provided is false when all four are
// blank; a blank count next to filled ones is zero.
func parseHealthCounts(fields map[string]string) (healthdist.Counts, bool, error) {
	values := make([]int, len(healthCountFields))
	provided := false
	for i, key := range healthCountFields {
		raw := fields[key]
		if raw == "" {
			continue
		}
		provided = true
		value, err := parseNonNegativeInt(raw)
		if err != nil {
			return healthdist.Counts{}, false, countError(err, errCountsNotIntegers)
		}
		values[i] = value
	}
	return healthdist.Counts{Healthy: values[0], Good: values[1], Bad: values[2], Deceased: values[3]}, provided, nil
}

func reconcileCounts(population int, counts healthdist.Counts) error {
	if err := healthdist.Reconcile(population, counts).Err(); err != nil {
		return badRequest("health_mismatch", err.Error())
	}
	return nil
}

// resolveHealthStatus derives the status from a non-empty distribution and
// falls back to the submitted value, then to good.
func resolveHealthStatus(raw string, counts healthdist.Counts) (string, error) {
	if counts.Total() > 0 {
		return string(healthdist.DeriveStatus(counts)), nil
	}
	if raw == "" {
		return string(healthdist.StatusGood), nil
	}
	if !healthdist.ValidStatus(raw) {
		return "", badRequest("invalid_health_status", "Invalid health status")
	}
	return raw, nil
}
