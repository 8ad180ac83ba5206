// Package court keeps the pickleball court schedule the host agent books against.
package court

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agent-protocol/adk-tutorials/internal/calendar"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// Opening hours: the last game starts at calendar.LastHour and ends an hour later.
const (
	OpenHour  = calendar.FirstHour
	CloseHour = calendar.LastHour + 1
)

// Booking is a confirmed court reservation.
type Booking struct {
	ID          string    `json:"booking_id"`
	Date        string    `json:"date"`
	Start       string    `json:"start_time"`
	End         string    `json:"end_time"`
	ReservedFor string    `json:"reservation_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Court is a single court's schedule. Safe for concurrent use.
type Court struct {
	mu       sync.Mutex
	taken    map[string]map[int]string // date -> start hour -> booking id
	bookings map[string]Booking
	clock    func() time.Time
}

// New returns an empty schedule.
func New() *Court {
	return &Court{
		taken:    make(map[string]map[int]string),
		bookings: make(map[string]Booking),
		clock:    time.Now,
	}
}

// ListAvailabilities returns the free one-hour start times on date.
func (c *Court) ListAvailabilities(date string) ([]string, error) {
	if _, err := parseDate(date); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var free []string
	for h := OpenHour; h < CloseHour; h++ {
		if _, booked := c.taken[date][h]; !booked {
			free = append(free, calendar.FormatHour(h))
		}
	}
	return free, nil
}

// Book reserves the court on date from start to end (HH:MM, whole hours).
func (c *Court) Book(date, start, end, reservedFor string) (Booking, error) {
	if _, err := parseDate(date); err != nil {
		return Booking{}, err
	}
	from, err := parseHour(start)
	if err != nil {
		return Booking{}, err
	}
	to, err := parseHour(end)
	if err != nil {
		return Booking{}, err
	}
	if to <= from {
		return Booking{}, fmt.Errorf("%w: end time %s must be after start time %s", ErrInvalidInput, end, start)
	}
	if from < OpenHour || to > CloseHour {
		return Booking{}, fmt.Errorf("%w: the court is open from %s to %s",
			ErrInvalidInput, calendar.FormatHour(OpenHour), calendar.FormatHour(CloseHour))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	day := c.taken[date]
	for h := from; h < to; h++ {
		if _, booked := day[h]; booked {
			return Booking{}, fmt.Errorf("%w: the court is already booked at %s on %s",
				ErrConflict, calendar.FormatHour(h), date)
		}
	}
	if day == nil {
		day = make(map[int]string)
		c.taken[date] = day
	}

	b := Booking{
		ID:          uuid.NewString(),
		Date:        date,
		Start:       calendar.FormatHour(from),
		End:         calendar.FormatHour(to),
		ReservedFor: reservedFor,
		CreatedAt:   c.clock(),
	}
	for h := from; h < to; h++ {
		day[h] = b.ID
	}
	c.bookings[b.ID] = b
	return b, nil
}

// Bookings returns all bookings ordered by date and start time.
func (c *Court) Bookings() []Booking {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Booking, 0, len(c.bookings))
	for _, b := range c.bookings {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b Booking) int {
		return cmp.Or(strings.Compare(a.Date, b.Date), strings.Compare(a.Start, b.Start))
	})
	return out
}

// BookingsOn returns the bookings on date ordered by start time.
func (c *Court) BookingsOn(date string) []Booking {
	var out []Booking
	for _, b := range c.Bookings() {
		if b.Date == date {
			out = append(out, b)
		}
	}
	return out
}

func parseDate(date string) (time.Time, error) {
	d, err := time.Parse(calendar.DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, date)
	}
	return d, nil
}

func parseHour(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil || t.Minute() != 0 {
		return 0, fmt.Errorf("%w: time %q must be a whole hour like 14:00", ErrInvalidInput, v)
	}
	return t.Hour(), nil
}
