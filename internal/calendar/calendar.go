// Package calendar generates the random weekly availability used by the friend agents and
// renders availability answers for a date range.
package calendar

import (
	"math/rand/v2"
	"slices"
	"strings"
	"time"
)

// DateLayout is the YYYY-MM-DD layout used for calendar keys and answers.
const DateLayout = "2006-01-02"

// inputLayout parses tool arguments. Month and day may drop their leading zero;
// surrounding whitespace is rejected.
const inputLayout = "2006-1-2"

const (
	// Days is the number of consecutive days a generated calendar covers.
	Days = 7
	// SlotsPerDay is the number of free hourly slots picked for each day.
	SlotsPerDay = 8
	// FirstHour and LastHour bound the candidate slots, inclusive.
	FirstHour = 8
	LastHour  = 20
)

// Calendar maps a YYYY-MM-DD date to its sorted free slots ("HH:00").
type Calendar map[string][]string

// PossibleSlots returns every candidate slot from FirstHour to LastHour.
func PossibleSlots() []string {
	slots := make([]string, 0, LastHour-FirstHour+1)
	for h := FirstHour; h <= LastHour; h++ {
		slots = append(slots, FormatHour(h))
	}
	return slots
}

// FormatHour renders an hour as "HH:00".
func FormatHour(h int) string {
	return time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format("15:04")
}

// Generate builds a calendar for the Days days starting at today, picking SlotsPerDay
// distinct slots per day. A nil rng uses the global source.
func Generate(today time.Time, rng *rand.Rand) Calendar {
	perm := rand.Perm
	if rng != nil {
		perm = rng.Perm
	}

	possible := PossibleSlots()
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	cal := make(Calendar, Days)
	for i := 0; i < Days; i++ {
		day := start.AddDate(0, 0, i).Format(DateLayout)
		picked := make([]string, 0, SlotsPerDay)
		for _, idx := range perm(len(possible))[:SlotsPerDay] {
			picked = append(picked, possible[idx])
		}
		slices.Sort(picked)
		cal[day] = picked
	}
	return cal
}

// Slots returns the free slots for date, or nil when the date is outside the calendar.
func (c Calendar) Slots(date string) []string {
	return c[date]
}

// Dates returns the calendar's dates in ascending order.
func (c Calendar) Dates() []string {
	dates := make([]string, 0, len(c))
	for d := range c {
		dates = append(dates, d)
	}
	slices.Sort(dates)
	return dates
}

// Availability answers an availability question for the inclusive range start..end,
// one line per day. Input problems are reported as the subject's error sentences.
func (c Calendar) Availability(start, end string, s Subject) string {
	from, err := time.Parse(inputLayout, start)
	if err != nil {
		return s.InvalidDate()
	}
	to, err := time.Parse(inputLayout, end)
	if err != nil {
		return s.InvalidDate()
	}
	if from.After(to) {
		return InvalidRangeMessage
	}

	var lines []string
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		date := day.Format(DateLayout)
		if slots := c.Slots(date); len(slots) > 0 {
			lines = append(lines, s.Available(date, slots))
		} else {
			lines = append(lines, s.Unavailable(date))
		}
	}
	return strings.Join(lines, "\n")
}

// ParseRange splits "YYYY-MM-DD to YYYY-MM-DD" into its ends. A single date yields the
// same value for both.
func ParseRange(dateRange string) (start, end string) {
	parts := strings.Split(dateRange, "to")
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[len(parts)-1])
}

// AvailabilityForRange is Availability over a "start to end" expression.
func (c Calendar) AvailabilityForRange(dateRange string, s Subject) string {
	start, end := ParseRange(dateRange)
	return c.Availability(start, end, s)
}
