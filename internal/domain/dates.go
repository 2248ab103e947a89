package domain

import "time"

const DateLayout = "2006-01-02"

// CivilDate truncates t to its calendar date at UTC midnight.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseCivilDate parses a yyyy-mm-dd date.
func ParseCivilDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// CivilDays counts whole calendar days from -> to, ignoring the time of day.
func CivilDays(from, to time.Time) int {
	return int(CivilDate(to).Sub(CivilDate(from)).Hours() / 24)
}
