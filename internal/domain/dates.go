package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	MonthLayout = "2006-01"
	DateLayout  = "2006-01-02"
)

// ParseMonth accepts "2006-01" or a full date and truncates to the first of the month (UTC).
func ParseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: month is required", ErrValidation)
	}
	for _, layout := range []string{MonthLayout, DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncateMonth(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: month %q must look like 2006-01", ErrValidation, s)
}

// ParseDate parses an ISO calendar date.
func ParseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q must look like 2006-01-02", ErrValidation, field, s)
	}
	return t, nil
}

func TruncateMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func FormatMonth(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}
