package shared

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period identifies a reference month for invoices and closings.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses the YYYY-MM wire format.
func ParsePeriod(s string) (Period, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return Period{}, Validationf("invalid period %q, expected YYYY-MM", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 2000 || year > 2200 {
		return Period{}, Validationf("invalid period year %q", parts[0])
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return Period{}, Validationf("invalid period month %q", parts[1])
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// String renders the YYYY-MM wire format.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Start returns midnight UTC on the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Next returns the following month.
func (p Period) Next() Period {
	t := p.Start().AddDate(0, 1, 0)
	return Period{Year: t.Year(), Month: t.Month()}
}

// Label renders a human-readable form used in transfer descriptions, e.g. "08/2026".
func (p Period) Label() string {
	return fmt.Sprintf("%02d/%04d", int(p.Month), p.Year)
}
