package court

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-protocol/adk-tutorials/pkg/tools"
)

func TestListAvailabilities(t *testing.T) {
	c := New()

	slots, err := c.ListAvailabilities("2025-07-01")
	require.NoError(t, err)
	assert.Len(t, slots, 13)
	assert.Equal(t, "08:00", slots[0])
	assert.Equal(t, "20:00", slots[12])

	_, err = c.ListAvailabilities("July 1st")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBook(t *testing.T) {
	c := New()

	b, err := c.Book("2025-07-01", "10:00", "12:00", "Karley")
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "10:00", b.Start)
	assert.Equal(t, "12:00", b.End)

	slots, err := c.ListAvailabilities("2025-07-01")
	require.NoError(t, err)
	assert.NotContains(t, slots, "10:00")
	assert.NotContains(t, slots, "11:00")
	assert.Contains(t, slots, "12:00")

	_, err = c.Book("2025-07-01", "11:00", "13:00", "Nate")
	assert.ErrorIs(t, err, ErrConflict)

	other, err := c.ListAvailabilities("2025-07-02")
	require.NoError(t, err)
	assert.Len(t, other, 13)

	_, err = c.Book("2025-07-01", "20:00", "21:00", "late")
	assert.NoError(t, err)

	assert.Len(t, c.Bookings(), 2)
	assert.Equal(t, "10:00", c.Bookings()[0].Start)
}

func TestBook_InvalidInput(t *testing.T) {
	c := New()
	cases := [][3]string{
		{"2025-07-01", "12:00", "12:00"},
		{"2025-07-01", "13:00", "12:00"},
		{"2025-07-01", "07:00", "09:00"},
		{"2025-07-01", "20:00", "22:00"},
		{"2025-07-01", "10:30", "11:30"},
		{"01/07/2025", "10:00", "11:00"},
		{"2025-07-01", "ten", "11:00"},
	}
	for _, tc := range cases {
		_, err := c.Book(tc[0], tc[1], tc[2], "x")
		assert.ErrorIs(t, err, ErrInvalidInput, "%v", tc)
	}
	assert.Empty(t, c.Bookings())
}

func TestBook_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Book("2025-07-01", "15:00", "16:00", "p"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestTools(t *testing.T) {
	c := New()
	ctx := context.Background()

	out, err := c.BookTool().RunAsync(ctx, map[string]any{
		"date": "2025-07-01", "start_time": "09:00", "end_time": "10:00",
	}, nil)
	require.NoError(t, err)
	resp := tools.ResponseMap(out)
	assert.Equal(t, "success", resp["status"])
	assert.NotEmpty(t, resp["booking_id"])
	assert.Contains(t, resp["message"], "Pickleball Group")

	out, err = c.BookTool().RunAsync(ctx, map[string]any{
		"date": "2025-07-01", "start_time": "09:00", "end_time": "10:00", "reservation_name": "again",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "error", tools.ResponseMap(out)["status"])

	out, err = c.ListTool().RunAsync(ctx, map[string]any{"date": "2025-07-01"}, nil)
	require.NoError(t, err)
	resp = tools.ResponseMap(out)
	assert.Equal(t, "success", resp["status"])
	assert.Len(t, resp["available_slots"], 12)
	bookings, ok := resp["bookings"].([]any)
	require.True(t, ok)
	require.Len(t, bookings, 1)
	assert.Equal(t, "09:00", bookings[0].(map[string]any)["start_time"])

	out, err = c.ListTool().RunAsync(ctx, map[string]any{"date": "2025-07-02"}, nil)
	require.NoError(t, err)
	assert.NotContains(t, tools.ResponseMap(out), "bookings")

	assert.Equal(t, "list_court_availabilities", c.ListTool().Name())
	assert.Equal(t, "book_pickleball_court", c.BookTool().Name())
}

func TestListTool_FullyBookedDayKeepsSlotsKey(t *testing.T) {
	c := New()
	ctx := context.Background()
	_, err := c.Book("2025-07-01", "08:00", "21:00", "Tournament")
	require.NoError(t, err)

	out, err := c.ListTool().RunAsync(ctx, map[string]any{"date": "2025-07-01"}, nil)
	require.NoError(t, err)
	resp := tools.ResponseMap(out)
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "The court is fully booked on 2025-07-01.", resp["message"])
	require.Contains(t, resp, "available_slots")
	assert.Equal(t, []any{}, resp["available_slots"])

	out, err = c.ListTool().RunAsync(ctx, map[string]any{"date": "tomorrow"}, nil)
	require.NoError(t, err)
	resp = tools.ResponseMap(out)
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, []any{}, resp["available_slots"])
}
