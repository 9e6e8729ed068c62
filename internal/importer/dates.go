package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"2006/01/02",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// excelEpoch is day zero of the 1900 date system, shifted for the 1900 leap-year bug.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseDate accepts ISO dates, day-first dates and Excel serial numbers. An empty value
// yields nil. Results are truncated to the day in UTC.
func ParseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &day, nil
		}
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial >= 1 && serial < 2958466 {
		day := excelEpoch.AddDate(0, 0, int(math.Floor(serial)))
		return &day, nil
	}
	return nil, fmt.Errorf("unrecognized date %q", value)
}
