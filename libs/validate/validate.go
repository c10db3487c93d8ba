// Package validate holds the synchronous field validators shared by the data
// entry forms and the public photo submission. Every validator returns an empty
// string for a valid value and a human readable message otherwise.
package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Negros Island bounding box and precision limits.
const (
	LatitudeMin      = 8.0
	LatitudeMax      = 11.0
	LongitudeMin     = 122.0
	LongitudeMax     = 125.0
	MaxDecimalDigits = 8

	NameMinLength        = 2
	NameMaxLength        = 100
	DescriptionMinLength = 10
	DescriptionMaxLength = 1000

	MaxImageBytes = 2 * 1024 * 1024
)

// AllowedImageTypes is the MIME allow-list for uploaded tree images.
var AllowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

const (
	ImageRequiredMessage = "Image is required"
	ImageTypeMessage     = "Only JPEG and PNG image formats are allowed."
	ImageSizeMessage     = "Image size must not exceed 2MB"
	DecimalFormatMessage = "Invalid decimal degrees format"
)

// Latitude validates a raw latitude against the island bounding box.
func Latitude(raw string) string {
	return coordinate(raw, "Latitude", LatitudeMin, LatitudeMax)
}

// Longitude validates a raw longitude against the island bounding box.
func Longitude(raw string) string {
	return coordinate(raw, "Longitude", LongitudeMin, LongitudeMax)
}

func coordinate(raw, label string, low, high float64) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return label + " is required"
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return label + " must be a valid number"
	}
	if parsed < low || parsed > high {
		return fmt.Sprintf("%s must be within Negros Island range (%s-%s)", label, trimFloat(low), trimFloat(high))
	}
	if !ValidDecimalDegrees(parsed) {
		return DecimalFormatMessage
	}
	return ""
}

// ValidDecimalDegrees reports whether value has at most MaxDecimalDigits
// fraction digits in its shortest decimal form.
func ValidDecimalDegrees(value float64) bool {
	formatted := strconv.FormatFloat(value, 'f', -1, 64)
	_, fraction, found := strings.Cut(formatted, ".")
	return !found || len(fraction) <= MaxDecimalDigits
}

// Name validates the submitter name.
func Name(raw string) string {
	return lengthBetween(raw, "Name", NameMinLength, NameMaxLength, "Name is required")
}

// Description validates a free text tree description.
func Description(raw string) string {
	return lengthBetween(raw, "Description", DescriptionMinLength, DescriptionMaxLength, "Tree description is required")
}

func lengthBetween(raw, label string, minLen, maxLen int, requiredMessage string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return requiredMessage
	}
	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Sprintf("%s must be at least %d characters", label, minLen)
	}
	if length > maxLen {
		return fmt.Sprintf("%s must not exceed %d characters", label, maxLen)
	}
	return ""
}

// Required returns "<label> is required" for a blank value.
func Required(raw, label string) string {
	if strings.TrimSpace(raw) == "" {
		return label + " is required"
	}
	return ""
}

// Image checks the MIME type and the byte size of an image. Both checks run
// independently, so an oversized GIF yields two messages.
func Image(mimeType string, size int64) []string {
	if strings.TrimSpace(mimeType) == "" && size <= 0 {
		return []string{ImageRequiredMessage}
	}
	var messages []string
	if _, ok := AllowedImageTypes[CleanMimeType(mimeType)]; !ok {
		messages = append(messages, ImageTypeMessage)
	}
	if size > MaxImageBytes {
		messages = append(messages, ImageSizeMessage)
	}
	return messages
}

// CleanMimeType lowercases a MIME type and drops its parameters.
func CleanMimeType(input string) string {
	value := strings.TrimSpace(strings.ToLower(input))
	if before, _, found := strings.Cut(value, ";"); found {
		value = strings.TrimSpace(before)
	}
	return value
}

func trimFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
