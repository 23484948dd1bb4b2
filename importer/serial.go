package importer

import (
	"math"
	"time"
)

// spreadsheetEpoch is day zero of the 1900 date system as used by Excel,
// LibreOffice and Google Sheets. Day 1899-12-30 (not 12-31) absorbs the
// phantom 1900-02-29 so every serial after 60 lands on the right day.
var spreadsheetEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// SerialToDate converts a spreadsheet serial date to a UTC calendar day.
// The time-of-day fraction is dropped.
func SerialToDate(serial float64) time.Time {
	days := int(math.Floor(serial))
	return spreadsheetEpoch.AddDate(0, 0, days)
}

// plausibleSerial bounds serials to 1900-01-01 .. 2199-12-31 so that amounts
// or ids accidentally mapped as dates are rejected.
func plausibleSerial(serial float64) bool {
	return serial >= 1 && serial < 109575
}
