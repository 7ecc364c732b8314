package utils

import (
	"log"
	"time"
)

const ISODateFormat = "2006-01-02"

// ParseISODate parses an ISO formatted date string.
// Logs an error and returns zero time if parsing fails.
func ParseISODate(dateStr string) time.Time {
	t, err := time.Parse(ISODateFormat, dateStr)
	if err != nil {
		log.Printf("Error parsing date '%s' with format '%s': %v. Returning zero time.", dateStr, ISODateFormat, err)
		return time.Time{}
	}
	return t
}

// FormatISODate renders a date in ISO format.
func FormatISODate(t time.Time) string {
	return t.Format(ISODateFormat)
}
