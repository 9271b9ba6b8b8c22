// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"ledgerd/internal/core/clock"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/schedule"
)

// DateLayout is the calendar date format accepted and rendered by the API.
const DateLayout = "2006-01-02"

// Date accepts "2006-01-02" or a full RFC 3339 timestamp.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := ParseDate(raw)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

// ParseDate parses a calendar date or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}

// TimePtr converts an optional date.
func (d *Date) TimePtr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// IntervalPtr validates an optional interval.
func IntervalPtr(s *string) (*schedule.Interval, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	i, err := schedule.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// Pagination is the limit/offset query of list endpoints.
type Pagination struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// ListFilter converts pagination to the domain filter.
func (p Pagination) ListFilter() domain.ListFilter {
	f := domain.DefaultListFilter()
	if p.Limit > 0 {
		f.Limit = p.Limit
	}
	f.Offset = p.Offset
	return f.Normalize()
}

// RangeQuery is the from/to window of report endpoints.
type RangeQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}

// DateRange parses the query into a validated range covering whole days.
func (q RangeQuery) DateRange() (domain.DateRange, error) {
	from, err := ParseDate(q.From)
	if err != nil {
		return domain.DateRange{}, err
	}
	to, err := ParseDate(q.To)
	if err != nil {
		return domain.DateRange{}, err
	}
	r := domain.DateRange{From: clock.Date(from), To: clock.Date(to)}
	return r, r.Validate()
}
