package court

import (
	"context"
	"fmt"
	"strings"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/tools"
)

// ListArgs are the arguments of list_court_availabilities.
type ListArgs struct {
	Date string `json:"date" description:"The date to check, in YYYY-MM-DD format."`
}

// BookArgs are the arguments of book_pickleball_court.
type BookArgs struct {
	Date            string `json:"date" description:"The date of the game, in YYYY-MM-DD format."`
	StartTime       string `json:"start_time" description:"Start time in HH:MM format, e.g. 15:00."`
	EndTime         string `json:"end_time" description:"End time in HH:MM format, e.g. 16:00."`
	ReservationName string `json:"reservation_name,omitempty" description:"Name to put the reservation under."`
}

// ToolResult is the response object of book_pickleball_court.
type ToolResult struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	BookingID string `json:"booking_id,omitempty"`
}

// ListResult is the response object of list_court_availabilities. AvailableSlots
// is always present, empty when the day is fully booked.
type ListResult struct {
	Status         string    `json:"status"`
	Message        string    `json:"message"`
	AvailableSlots []string  `json:"available_slots"`
	Bookings       []Booking `json:"bookings,omitempty"`
}

// ListTool exposes ListAvailabilities as list_court_availabilities.
func (c *Court) ListTool() core.BaseTool {
	return tools.MustFunctionTool("list_court_availabilities",
		"Lists the available pickleball court time slots for a given date.",
		func(ctx context.Context, _ *core.ToolContext, args ListArgs) (ListResult, error) {
			slots, err := c.ListAvailabilities(args.Date)
			if err != nil {
				return ListResult{Status: "error", Message: err.Error(), AvailableSlots: []string{}}, nil
			}
			result := ListResult{
				Status:         "success",
				Message:        fmt.Sprintf("Available slots for %s: %s.", args.Date, strings.Join(slots, ", ")),
				AvailableSlots: slots,
				Bookings:       c.BookingsOn(args.Date),
			}
			if len(slots) == 0 {
				result.Message = fmt.Sprintf("The court is fully booked on %s.", args.Date)
				result.AvailableSlots = []string{}
			}
			return result, nil
		})
}

// BookTool exposes Book as book_pickleball_court.
func (c *Court) BookTool() core.BaseTool {
	return tools.MustFunctionTool("book_pickleball_court",
		"Books a pickleball court for the given date and time range.",
		func(ctx context.Context, _ *core.ToolContext, args BookArgs) (ToolResult, error) {
			name := args.ReservationName
			if name == "" {
				name = "Pickleball Group"
			}
			b, err := c.Book(args.Date, args.StartTime, args.EndTime, name)
			if err != nil {
				return ToolResult{Status: "error", Message: err.Error()}, nil
			}
			return ToolResult{
				Status: "success",
				Message: fmt.Sprintf("Court booked for %s on %s from %s to %s.",
					b.ReservedFor, b.Date, b.Start, b.End),
				BookingID: b.ID,
			}, nil
		})
}
