package models

import (
	"fmt"
	"sort"
	"time"
)

// Date is a calendar date with no time-of-day component.
// It marshals to and from "2006-01-02" and is stored internally
// as midnight UTC so day arithmetic is exact across DST changes.
type Date struct {
	time.Time
}

// NewDate returns the Date for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Date())
}

// Today returns the current calendar date in local time.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a calendar date. The upstream API returns both plain
// dates and full ISO-8601 timestamps, so both forms are accepted.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// DaysUntil returns the number of whole days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Sub(d.Time) / (24 * time.Hour))
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date literal %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// AddressSearchResult is a single candidate returned by the address search.
type AddressSearchResult struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Municipality string `json:"municipality"`
}

// Disposal is one collection event for one waste fraction.
type Disposal struct {
	Date        Date   `json:"date"`
	Fraction    string `json:"fraction"`
	Description string `json:"description,omitempty"`
	SymbolID    int    `json:"symbol_id,omitempty"`
}

// FractionSchedule holds the upcoming collection dates for one fraction,
// ascending and deduplicated.
type FractionSchedule struct {
	Fraction    string `json:"fraction"`
	Description string `json:"description,omitempty"`
	Dates       []Date `json:"dates"`
}

// Event is one all-day calendar entry.
type Event struct {
	Date     Date   `json:"date"`
	Fraction string `json:"fraction"`
	Summary  string `json:"summary"`
}

// ScheduleSnapshot is the complete schedule fetched in one API round trip.
// A snapshot is immutable once built; the coordinator replaces it wholesale
// on every successful fetch and never keeps superseded ones.
type ScheduleSnapshot struct {
	AddressID    string                      `json:"address_id"`
	AddressName  string                      `json:"address_name"`
	Municipality string                      `json:"municipality"`
	FetchedAt    time.Time                   `json:"fetched_at"`
	Fractions    map[string]FractionSchedule `json:"fractions"`
}

// NewScheduleSnapshot groups disposals by fraction, sorting and
// deduplicating each fraction's dates.
func NewScheduleSnapshot(addressID string, disposals []Disposal, fetchedAt time.Time) *ScheduleSnapshot {
	fractions := make(map[string]FractionSchedule)
	for _, d := range disposals {
		fs := fractions[d.Fraction]
		fs.Fraction = d.Fraction
		if fs.Description == "" {
			fs.Description = d.Description
		}
		fs.Dates = append(fs.Dates, d.Date)
		fractions[d.Fraction] = fs
	}

	for name, fs := range fractions {
		sort.Slice(fs.Dates, func(i, j int) bool {
			return fs.Dates[i].Before(fs.Dates[j].Time)
		})
		deduped := fs.Dates[:0]
		for i, d := range fs.Dates {
			if i == 0 || !d.Equal(fs.Dates[i-1].Time) {
				deduped = append(deduped, d)
			}
		}
		fs.Dates = deduped
		fractions[name] = fs
	}

	return &ScheduleSnapshot{
		AddressID: addressID,
		FetchedAt: fetchedAt,
		Fractions: fractions,
	}
}

// FractionNames returns all fraction names in sorted order.
func (s *ScheduleSnapshot) FractionNames() []string {
	names := make([]string, 0, len(s.Fractions))
	for name := range s.Fractions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextDate returns the earliest collection date on or after today for the
// fraction. The second return value is false when the fraction is unknown
// or all of its dates are in the past.
func (s *ScheduleSnapshot) NextDate(fraction string, today Date) (Date, bool) {
	fs, ok := s.Fractions[fraction]
	if !ok {
		return Date{}, false
	}
	for _, d := range fs.Dates {
		if !d.Before(today.Time) {
			return d, true
		}
	}
	return Date{}, false
}

// DaysUntil returns the number of days until the fraction's next collection.
func (s *ScheduleSnapshot) DaysUntil(fraction string, today Date) (int, bool) {
	next, ok := s.NextDate(fraction, today)
	if !ok {
		return 0, false
	}
	return today.DaysUntil(next), true
}

// CollectionToday reports whether the fraction is collected on today's date.
func (s *ScheduleSnapshot) CollectionToday(fraction string, today Date) bool {
	fs, ok := s.Fractions[fraction]
	if !ok {
		return false
	}
	for _, d := range fs.Dates {
		if d.Equal(today.Time) {
			return true
		}
	}
	return false
}

// UpcomingDates returns up to limit collection dates on or after today.
func (s *ScheduleSnapshot) UpcomingDates(fraction string, today Date, limit int) []Date {
	fs, ok := s.Fractions[fraction]
	if !ok {
		return nil
	}
	var upcoming []Date
	for _, d := range fs.Dates {
		if d.Before(today.Time) {
			continue
		}
		upcoming = append(upcoming, d)
		if len(upcoming) == limit {
			break
		}
	}
	return upcoming
}

// Events returns all (fraction, date) pairs within [from, until] as all-day
// calendar events, sorted by date and then fraction name.
func (s *ScheduleSnapshot) Events(from, until Date) []Event {
	var events []Event
	for _, name := range s.FractionNames() {
		fs := s.Fractions[name]
		for _, d := range fs.Dates {
			if d.Before(from.Time) || d.After(until.Time) {
				continue
			}
			summary := fs.Description
			if summary == "" {
				summary = name
			}
			events = append(events, Event{Date: d, Fraction: name, Summary: summary})
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date.Time) {
			return events[i].Date.Before(events[j].Date.Time)
		}
		return events[i].Fraction < events[j].Fraction
	})
	return events
}
