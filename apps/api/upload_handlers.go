package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

var (
	errUnsupportedUpload = badRequest("invalid_file_type", "Please upload a CSV or Excel (.xlsx) file")
	errEmptyUpload       = badRequest("empty_file", "The uploaded file contains no data rows")
)

type importRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type importSummary struct {
	SuccessCount int              `json:"success_count"`
	ErrorCount   int              `json:"error_count"`
	Errors       []importRowError `json:"errors"`
	Created      []TreeRecord     `json:"-"`
}

// readSpreadsheet returns the rows of a CSV or XLSX file, picked by extension.
// Only the first worksheet of a workbook is read.
func readSpreadsheet(filename string, data []byte) ([][]string, string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		reader := csv.NewReader(bytes.NewReader(data))
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, "", badRequest("invalid_csv", "Invalid CSV file: "+err.Error())
		}
		return rows, "csv", nil
	case ".xlsx":
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, "", badRequest("invalid_xlsx", "Invalid Excel file")
		}
		defer func() { _ = file.Close() }()
		sheets := file.GetSheetList()
		if len(sheets) == 0 {
			return nil, "", errEmptyUpload
		}
		rows, err := file.GetRows(sheets[0])
		if err != nil {
			return nil, "", err
		}
		return rows, "xlsx", nil
	default:
		return nil, "", errUnsupportedUpload
	}
}

func normalizeHeader(value string) string {
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.Join(strings.Fields(value), "_")
}

// rowsToRecords pairs every data row with the header row. Blank rows are
// dropped; the returned line numbers are 1-based file lines.
func rowsToRecords(rows [][]string) ([]map[string]string, []int) {
	if len(rows) < 2 {
		return nil, nil
	}
	headers := make([]string, len(rows[0]))
	for i, header := range rows[0] {
		headers[i] = normalizeHeader(header)
	}

	records := make([]map[string]string, 0, len(rows)-1)
	lines := make([]int, 0, len(rows)-1)
	for i, row := range rows[1:] {
		record := make(map[string]string, len(headers))
		blank := true
		for col, header := range headers {
			if header == "" || col >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[col])
			if value != "" {
				blank = false
			}
			record[header] = value
		}
		if blank {
			continue
		}
		records = append(records, record)
		lines = append(lines, i+2)
	}
	return records, lines
}

// importTreeRecords validates and creates each record independently, so one
// bad row never blocks the rest of the file.
func (a *App) importTreeRecords(ctx context.Context, source string, records []map[string]string, lines []int, requireCounts bool) importSummary {
	summary := importSummary{Errors: []importRowError{}}
	for i, record := range records {
		line := i + 1
		if i < len(lines) {
			line = lines[i]
		}
		input, err := parseTreeInput(record, requireCounts)
		if err == nil {
			var created *TreeRecord
			created, err = a.treeCreate(ctx, input)
			if err == nil {
				summary.SuccessCount++
				summary.Created = append(summary.Created, *created)
				continue
			}
		}
		summary.ErrorCount++
		summary.Errors = append(summary.Errors, importRowError{Row: line, Message: importErrorMessage(err)})
	}
	a.metrics.recordTreesWritten(source, summary.SuccessCount)
	a.metrics.recordImportErrors(source, summary.ErrorCount)
	return summary
}

func importErrorMessage(err error) string {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func (a *App) uploadHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeAPIError(c, badRequest("missing_file", "No file uploaded"))
		return
	}
	opened, err := fileHeader.Open()
	if err != nil {
		writeAPIError(c, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(opened, maxImportBytes+1))
	_ = opened.Close()
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if len(data) > maxImportBytes {
		writeAPIError(c, badRequest("file_too_large", "File exceeds upload size limit"))
		return
	}

	rows, source, err := readSpreadsheet(fileHeader.Filename, data)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	records, lines := rowsToRecords(rows)
	if len(records) == 0 {
		writeAPIError(c, errEmptyUpload)
		return
	}

	summary := a.importTreeRecords(c.Request.Context(), source, records, lines, false)
	session, _ := getUserSession(c)
	a.log.Info("tree import finished",
		"email", session.Email,
		"file", fileHeader.Filename,
		"success_count", summary.SuccessCount,
		"error_count", summary.ErrorCount,
	)

	response := gin.H{
		"success":       summary.SuccessCount > 0,
		"message":       fmt.Sprintf("Successfully added %d records to database", summary.SuccessCount),
		"success_count": summary.SuccessCount,
		"error_count":   summary.ErrorCount,
		"errors":        summary.Errors,
	}
	if summary.SuccessCount == 0 {
		response["error"] = importFailureMessage(summary.Errors)
	}
	c.JSON(http.StatusOK, response)
}

func importFailureMessage(rowErrors []importRowError) string {
	if len(rowErrors) == 0 {
		return "No records were imported"
	}
	first := rowErrors[0]
	return fmt.Sprintf("No records were imported. Row %d: %s", first.Row, first.Message)
}
