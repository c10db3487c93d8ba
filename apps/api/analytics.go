package main

import (
	"math"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

type speciesCount struct {
	CommonName string `json:"common_name"`
	Count      int    `json:"count"`
}

type yearTotal struct {
	Year  int `json:"year"`
	Total int `json:"total"`
}

type familyTotal struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
}

type healthAggregate struct {
	Year          int    `json:"year,omitempty"`
	HealthStatus  string `json:"health_status"`
	Count         int    `json:"count"`
	TotalHealthy  int    `json:"total_healthy"`
	TotalGood     int    `json:"total_good"`
	TotalBad      int    `json:"total_bad"`
	TotalDeceased int    `json:"total_deceased"`
}

type healthMetrics struct {
	HealthyPercentage  float64 `json:"healthy_percentage"`
	GoodPercentage     float64 `json:"good_percentage"`
	BadPercentage      float64 `json:"bad_percentage"`
	DeceasedPercentage float64 `json:"deceased_percentage"`
}

type yearRichness struct {
	Year     int `json:"year"`
	Richness int `json:"richness"`
}

type yearGrowth struct {
	Year       int     `json:"year"`
	GrowthRate float64 `json:"growth_rate"`
}

type speciesPopulation struct {
	CommonName      string `json:"common_name"`
	ScientificName  string `json:"scientific_name"`
	TotalPopulation int    `json:"total_population"`
	LocationsCount  int    `json:"locations_count"`
}

type analyticsData struct {
	SpeciesCount          []speciesCount      `json:"species_count"`
	PopulationByYear      []yearTotal         `json:"population_by_year"`
	PopulationByFamily    []familyTotal       `json:"population_by_family"`
	HealthStatusData      []healthAggregate   `json:"health_status_data"`
	HealthByYearData      []healthAggregate   `json:"health_by_year_data"`
	HealthMetrics         healthMetrics       `json:"health_metrics"`
	SpeciesRichnessByYear []yearRichness      `json:"species_richness_by_year"`
	GrowthRateByYear      []yearGrowth        `json:"growth_rate_by_year"`
	SpeciesData           []speciesPopulation `json:"species_data"`
}

// buildAnalytics aggregates the dashboard figures from tree records. Ranked
// lists break ties by name so repeated calls return the same order.
func buildAnalytics(trees []TreeRecord) analyticsData {
	type speciesAgg struct {
		common     string
		scientific string
		records    int
		population int
		locations  map[int]struct{}
	}
	species := map[int]*speciesAgg{}
	byYear := map[int]int{}
	byFamily := map[string]int{}
	byStatus := map[string]*healthAggregate{}
	type yearStatus struct {
		year   int
		status string
	}
	byYearStatus := map[yearStatus]*healthAggregate{}
	richness := map[int]map[int]struct{}{}
	var totals healthAggregate

	for _, tree := range trees {
		agg, ok := species[tree.SpeciesID]
		if !ok {
			agg = &speciesAgg{common: tree.CommonName, scientific: tree.ScientificName, locations: map[int]struct{}{}}
			species[tree.SpeciesID] = agg
		}
		agg.records++
		agg.population += tree.Population
		agg.locations[tree.LocationID] = struct{}{}

		byYear[tree.Year] += tree.Population
		byFamily[tree.Family] += tree.Population

		if _, ok := richness[tree.Year]; !ok {
			richness[tree.Year] = map[int]struct{}{}
		}
		richness[tree.Year][tree.SpeciesID] = struct{}{}

		status, ok := byStatus[tree.HealthStatus]
		if !ok {
			status = &healthAggregate{HealthStatus: tree.HealthStatus}
			byStatus[tree.HealthStatus] = status
		}
		addHealth(status, tree)

		key := yearStatus{year: tree.Year, status: tree.HealthStatus}
		yearAgg, ok := byYearStatus[key]
		if !ok {
			yearAgg = &healthAggregate{Year: tree.Year, HealthStatus: tree.HealthStatus}
			byYearStatus[key] = yearAgg
		}
		addHealth(yearAgg, tree)

		addHealth(&totals, tree)
	}

	data := analyticsData{
		SpeciesCount:          make([]speciesCount, 0, len(species)),
		PopulationByYear:      make([]yearTotal, 0, len(byYear)),
		PopulationByFamily:    make([]familyTotal, 0, len(byFamily)),
		HealthStatusData:      make([]healthAggregate, 0, len(byStatus)),
		HealthByYearData:      make([]healthAggregate, 0, len(byYearStatus)),
		SpeciesRichnessByYear: make([]yearRichness, 0, len(richness)),
		GrowthRateByYear:      []yearGrowth{},
		SpeciesData:           make([]speciesPopulation, 0, len(species)),
	}

	for _, agg := range species {
		data.SpeciesCount = append(data.SpeciesCount, speciesCount{CommonName: agg.common, Count: agg.records})
		data.SpeciesData = append(data.SpeciesData, speciesPopulation{
			CommonName:      agg.common,
			ScientificName:  agg.scientific,
			TotalPopulation: agg.population,
			LocationsCount:  len(agg.locations),
		})
	}
	sort.Slice(data.SpeciesCount, func(i, j int) bool {
		if data.SpeciesCount[i].Count != data.SpeciesCount[j].Count {
			return data.SpeciesCount[i].Count > data.SpeciesCount[j].Count
		}
		return data.SpeciesCount[i].CommonName < data.SpeciesCount[j].CommonName
	})
	data.SpeciesCount = topN(data.SpeciesCount, analyticsTopN)
	sort.Slice(data.SpeciesData, func(i, j int) bool {
		if data.SpeciesData[i].TotalPopulation != data.SpeciesData[j].TotalPopulation {
			return data.SpeciesData[i].TotalPopulation > data.SpeciesData[j].TotalPopulation
		}
		return data.SpeciesData[i].CommonName < data.SpeciesData[j].CommonName
	})
	data.SpeciesData = topN(data.SpeciesData, analyticsTopN)

	for year, total := range byYear {
		data.PopulationByYear = append(data.PopulationByYear, yearTotal{Year: year, Total: total})
	}
	sort.Slice(data.PopulationByYear, func(i, j int) bool {
		return data.PopulationByYear[i].Year < data.PopulationByYear[j].Year
	})

	for name, total := range byFamily {
		data.PopulationByFamily = append(data.PopulationByFamily, familyTotal{Name: name, Total: total})
	}
	sort.Slice(data.PopulationByFamily, func(i, j int) bool {
		if data.PopulationByFamily[i].Total != data.PopulationByFamily[j].Total {
			return data.PopulationByFamily[i].Total > data.PopulationByFamily[j].Total
		}
		return data.PopulationByFamily[i].Name < data.PopulationByFamily[j].Name
	})
	data.PopulationByFamily = topN(data.PopulationByFamily, analyticsTopN)

	for _, agg := range byStatus {
		data.HealthStatusData = append(data.HealthStatusData, *agg)
	}
	sort.Slice(data.HealthStatusData, func(i, j int) bool {
		return data.HealthStatusData[i].HealthStatus < data.HealthStatusData[j].HealthStatus
	})

	for _, agg := range byYearStatus {
		data.HealthByYearData = append(data.HealthByYearData, *agg)
	}
	sort.Slice(data.HealthByYearData, func(i, j int) bool {
		if data.HealthByYearData[i].Year != data.HealthByYearData[j].Year {
			return data.HealthByYearData[i].Year < data.HealthByYearData[j].Year
		}
		return data.HealthByYearData[i].HealthStatus < data.HealthByYearData[j].HealthStatus
	})

	for _, entry := range data.PopulationByYear {
		data.SpeciesRichnessByYear = append(data.SpeciesRichnessByYear, yearRichness{
			Year:     entry.Year,
			Richness: len(richness[entry.Year]),
		})
	}

	for i := 1; i < len(data.PopulationByYear); i++ {
		prev := data.PopulationByYear[i-1].Total
		current := data.PopulationByYear[i]
		rate := 0.0
		if prev > 0 {
			rate = math.Round(float64(current.Total-prev)/float64(prev)*100*100) / 100
		}
		data.GrowthRateByYear = append(data.GrowthRateByYear, yearGrowth{Year: current.Year, GrowthRate: rate})
	}

	data.HealthMetrics = computeHealthMetrics(totals)
	return data
}

func addHealth(agg *healthAggregate, tree TreeRecord) {
	agg.Count++
	agg.TotalHealthy += tree.Healthy
	agg.TotalGood += tree.Good
	agg.TotalBad += tree.Bad
	agg.TotalDeceased += tree.Deceased
}

func computeHealthMetrics(totals healthAggregate) healthMetrics {
	sum := totals.TotalHealthy + totals.TotalGood + totals.TotalBad + totals.TotalDeceased
	if sum == 0 {
		return healthMetrics{}
	}
	pct := func(v int) float64 { return float64(v) / float64(sum) * 100 }
	return healthMetrics{
		HealthyPercentage:  pct(totals.TotalHealthy),
		GoodPercentage:     pct(totals.TotalGood),
		BadPercentage:      pct(totals.TotalBad),
		DeceasedPercentage: pct(totals.TotalDeceased),
	}
}

func topN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func (a *App) analyticsDataHandler(c *gin.Context) {
	trees, err := a.treeList(c.Request.Context(), map[string]any{})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildAnalytics(trees))
}
