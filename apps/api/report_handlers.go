package main

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/xuri/excelize/v2"
)

const (
	reportSubtitle     = "Endemic Trees Monitoring System"
	defaultReportTitle = "Endemic Trees Report"
	reportQRSize       = 256
)

var reportTitles = map[string]string{
	"species_distribution": "Species Distribution Report",
	"population_trends":    "Population Trends Report",
	"health_analysis":      "Health Status Analysis Report",
	"conservation_status":  "Conservation Status Report",
	"spatial_density":      "Spatial Density Report",
}

var reportConclusions = []string{
	"The overall population of endemic trees shows varying distributions across different locations.",
	"Conservation efforts should be focused on areas with lower tree density.",
	"Regular monitoring and assessment of tree health status is essential.",
}

type reportOptions struct {
	ReportType     string
	TimeRange      string
	SpeciesID      int
	LocationID     int
	IncludeCharts  bool
	IncludeMap     bool
	IncludeTable   bool
	GISURL         string
	GeneratedAtUTC time.Time
}

type reportTableRow struct {
	Species      string `json:"species"`
	Location     string `json:"location"`
	Population   int    `json:"population"`
	HealthStatus string `json:"health_status"`
}

type reportSummaryLine struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type reportDocument struct {
	Type        string              `json:"report_type"`
	Title       string              `json:"title"`
	Subtitle    string              `json:"subtitle"`
	GeneratedAt string              `json:"generated_at"`
	TimeRange   string              `json:"time_range,omitempty"`
	RecordCount int                 `json:"record_count"`
	Summary     []reportSummaryLine `json:"summary"`
	Charts      *analyticsData      `json:"charts,omitempty"`
	Map         any                 `json:"map,omitempty"`
	Table       []reportTableRow    `json:"table,omitempty"`
	Conclusions []string            `json:"conclusions"`
	GISURL      string              `json:"gis_url"`
}

func reportTitle(reportType string) string {
	if title, ok := reportTitles[reportType]; ok {
		return title
	}
	return defaultReportTitle
}

func parseFilterID(raw string) int {
	if raw == "" || raw == "all" {
		return 0
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// buildReport assembles the report for trees, which are already filtered.
// species feeds the conservation summary and may be nil.
func buildReport(opts reportOptions, trees []TreeRecord, species []Species) reportDocument {
	analytics := buildAnalytics(trees)
	doc := reportDocument{
		Type:        opts.ReportType,
		Title:       reportTitle(opts.ReportType),
		Subtitle:    reportSubtitle,
		GeneratedAt: opts.GeneratedAtUTC.Format("January 02, 2006 at 03:04 PM"),
		TimeRange:   opts.TimeRange,
		RecordCount: len(trees),
		Summary:     reportSummary(opts.ReportType, trees, analytics, species),
		Conclusions: reportConclusions,
		GISURL:      opts.GISURL,
	}
	if opts.IncludeCharts {
		doc.Charts = &analytics
	}
	if opts.IncludeMap {
		doc.Map = treeFeatureCollection(trees)
	}
	if opts.IncludeTable {
		limit := len(trees)
		if limit > reportTableRowLimit {
			limit = reportTableRowLimit
		}
		doc.Table = make([]reportTableRow, 0, limit)
		for _, tree := range trees[:limit] {
			doc.Table = append(doc.Table, reportTableRow{
				Species:      fmt.Sprintf("%s (%s)", tree.CommonName, tree.ScientificName),
				Location:     tree.LocationName,
				Population:   tree.Population,
				HealthStatus: tree.HealthStatus,
			})
		}
	}
	return doc
}

func reportSummary(reportType string, trees []TreeRecord, analytics analyticsData, species []Species) []reportSummaryLine {
	totalPopulation := 0
	for _, tree := range trees {
		totalPopulation += tree.Population
	}
	lines := []reportSummaryLine{
		{Label: "Tree records", Value: strconv.Itoa(len(trees))},
		{Label: "Total population", Value: strconv.Itoa(totalPopulation)},
	}

	switch reportType {
	case "species_distribution":
		for _, entry := range analytics.SpeciesData {
			lines = append(lines, reportSummaryLine{
				Label: entry.CommonName,
				Value: fmt.Sprintf("%d trees in %d locations", entry.TotalPopulation, entry.LocationsCount),
			})
		}
	case "population_trends":
		for _, entry := range analytics.PopulationByYear {
			lines = append(lines, reportSummaryLine{Label: strconv.Itoa(entry.Year), Value: strconv.Itoa(entry.Total)})
		}
		for _, entry := range analytics.GrowthRateByYear {
			lines = append(lines, reportSummaryLine{
				Label: fmt.Sprintf("Growth %d", entry.Year),
				Value: fmt.Sprintf("%.2f%%", entry.GrowthRate),
			})
		}
	case "health_analysis":
		m := analytics.HealthMetrics
		lines = append(lines,
			reportSummaryLine{Label: "Healthy", Value: fmt.Sprintf("%.1f%%", m.HealthyPercentage)},
			reportSummaryLine{Label: "Good", Value: fmt.Sprintf("%.1f%%", m.GoodPercentage)},
			reportSummaryLine{Label: "Bad", Value: fmt.Sprintf("%.1f%%", m.BadPercentage)},
			reportSummaryLine{Label: "Deceased", Value: fmt.Sprintf("%.1f%%", m.DeceasedPercentage)},
		)
	case "conservation_status":
		byStatus := map[string]int{}
		for _, s := range species {
			status := s.ConservationStatus
			if status == "" {
				status = "Not assessed"
			}
			byStatus[status]++
		}
		statuses := make([]string, 0, len(byStatus))
		for status := range byStatus {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			lines = append(lines, reportSummaryLine{Label: status, Value: fmt.Sprintf("%d species", byStatus[status])})
		}
	case "spatial_density":
		byLocation := map[string]int{}
		for _, tree := range trees {
			byLocation[tree.LocationName] += tree.Population
		}
		type density struct {
			name  string
			total int
		}
		densities := make([]density, 0, len(byLocation))
		for name, total := range byLocation {
			densities = append(densities, density{name: name, total: total})
		}
		sort.Slice(densities, func(i, j int) bool {
			if densities[i].total != densities[j].total {
				return densities[i].total > densities[j].total
			}
			return densities[i].name < densities[j].name
		})
		for _, d := range topN(densities, analyticsTopN) {
			lines = append(lines, reportSummaryLine{Label: d.name, Value: strconv.Itoa(d.total)})
		}
	}
	return lines
}

func buildReportPDF(doc reportDocument) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr(doc.Title))
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, tr(doc.Subtitle))
	pdf.Ln(6)
	pdf.Cell(0, 7, "Generated on "+doc.GeneratedAt)
	pdf.Ln(10)

	if doc.GISURL != "" {
		png, err := qrcode.Encode(doc.GISURL, qrcode.Medium, reportQRSize)
		if err != nil {
			return nil, err
		}
		options := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("gis-qr", options, bytes.NewReader(png))
		pdf.ImageOptions("gis-qr", 170, 10, 30, 30, false, options, 0, doc.GISURL)
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range doc.Summary {
		pdf.Cell(0, 6, tr(fmt.Sprintf("- %s: %s", line.Label, line.Value)))
		pdf.Ln(6)
	}

	if len(doc.Table) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "Data Table")
		pdf.Ln(8)
		widths := []float64{80, 50, 25, 35}
		pdf.SetFont("Helvetica", "B", 9)
		for i, header := range []string{"Species", "Location", "Population", "Health Status"} {
			pdf.CellFormat(widths[i], 7, header, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
		for _, row := range doc.Table {
			cells := []string{row.Species, row.Location, strconv.Itoa(row.Population), row.HealthStatus}
			for i, cell := range cells {
				pdf.CellFormat(widths[i], 6, tr(truncateRunes(cell, 45)), "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Conclusions and Recommendations")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	for _, conclusion := range doc.Conclusions {
		pdf.MultiCell(0, 5, tr("- "+conclusion), "", "L", false)
	}

	buffer := bytes.NewBuffer(nil)
	if err := pdf.Output(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func (a *App) generateReportHandler(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	opts := reportOptions{
		ReportType:     fields["report_type"],
		TimeRange:      fields["time_range"],
		SpeciesID:      parseFilterID(fields["species_filter"]),
		LocationID:     parseFilterID(fields["location_filter"]),
		IncludeCharts:  parseBoolField(fields["include_charts"], false),
		IncludeMap:     parseBoolField(fields["include_map"], false),
		IncludeTable:   parseBoolField(fields["include_table"], false),
		GISURL:         buildPublicURL(a.cfg.PublicBaseURL, "/gis"),
		GeneratedAtUTC: time.Now().UTC(),
	}

	ctx := c.Request.Context()
	filters := map[string]any{}
	if opts.SpeciesID > 0 {
		filters["species_id"] = opts.SpeciesID
	}
	if opts.LocationID > 0 {
		filters["location_id"] = opts.LocationID
	}
	trees, err := a.treeList(ctx, filters)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	var species []Species
	if opts.ReportType == "conservation_status" {
		species, err = a.speciesList(ctx)
		if err != nil {
			writeAPIError(c, err)
			return
		}
	}

	doc := buildReport(opts, trees, species)
	pdfData, err := buildReportPDF(doc)
	if err != nil {
		a.log.Error("failed to render report pdf", "report_type", opts.ReportType, "err", err)
		writeAPIError(c, &apiError{Status: http.StatusInternalServerError, Code: "report_failed", Message: "Failed to generate report"})
		return
	}

	filename := fmt.Sprintf("%s-%s.pdf", reportFileSlug(opts.ReportType), opts.GeneratedAtUTC.Format("20060102-150405"))
	if c.Query("format") == "pdf" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Data(http.StatusOK, "application/pdf", pdfData)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"report":       doc,
		"pdf_base64":   base64.StdEncoding.EncodeToString(pdfData),
		"pdf_filename": filename,
	})
}

func reportFileSlug(reportType string) string {
	if _, ok := reportTitles[reportType]; !ok {
		return "endemic-trees-report"
	}
	return strings.ReplaceAll(reportType, "_", "-") + "-report"
}

var treeExportHeaders = []string{
	"id", "common_name", "scientific_name", "family", "genus", "location", "latitude", "longitude",
	"population", "year", "health_status", "healthy_count", "good_count", "bad_count", "deceased_count", "notes",
}

func treeExportRow(tree TreeRecord) []string {
	return []string{
		tree.ID,
		tree.CommonName,
		tree.ScientificName,
		tree.Family,
		tree.Genus,
		tree.LocationName,
		strconv.FormatFloat(tree.Latitude, 'f', -1, 64),
		strconv.FormatFloat(tree.Longitude, 'f', -1, 64),
		strconv.Itoa(tree.Population),
		strconv.Itoa(tree.Year),
		tree.HealthStatus,
		strconv.Itoa(tree.Healthy),
		strconv.Itoa(tree.Good),
		strconv.Itoa(tree.Bad),
		strconv.Itoa(tree.Deceased),
		tree.Notes,
	}
}

func buildTreesCSV(trees []TreeRecord) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buffer)
	if err := writer.Write(treeExportHeaders); err != nil {
		return nil, err
	}
	for _, tree := range trees {
		if err := writer.Write(treeExportRow(tree)); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func buildTreesXLSX(trees []TreeRecord) ([]byte, error) {
	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	const sheet = "Trees"
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	header := make([]any, len(treeExportHeaders))
	for i, name := range treeExportHeaders {
		header[i] = name
	}
	if err := file.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, tree := range trees {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{
			tree.ID, tree.CommonName, tree.ScientificName, tree.Family, tree.Genus, tree.LocationName,
			tree.Latitude, tree.Longitude, tree.Population, tree.Year, tree.HealthStatus,
			tree.Healthy, tree.Good, tree.Bad, tree.Deceased, tree.Notes,
		}
		if err := file.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	buffer, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (a *App) exportTreesHandler(c *gin.Context) {
	format := strings.ToLower(c.Param("format"))
	if format != "csv" && format != "geojson" && format != "xlsx" {
		writeAPIError(c, badRequest("invalid_format", "Export format must be csv, geojson or xlsx"))
		return
	}
	trees, err := a.treeList(c.Request.Context(), parseTreeFilters(c))
	if err != nil {
		writeAPIError(c, err)
		return
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "csv":
		data, err = buildTreesCSV(trees)
		contentType = "text/csv; charset=utf-8"
	case "geojson":
		data, err = json.MarshalIndent(treeFeatureCollection(trees), "", "  ")
		contentType = "application/geo+json"
	case "xlsx":
		data, err = buildTreesXLSX(trees)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		writeAPIError(c, err)
		return
	}
	filename := fmt.Sprintf("endemic-trees-%s.%s", time.Now().UTC().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}
