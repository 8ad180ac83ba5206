package calendar

import (
	"fmt"
	"strings"
)

// InvalidRangeMessage is returned when the start date is after the end date.
const InvalidRangeMessage = "Invalid date range. The start date cannot be after the end date."

// Subject controls how availability sentences refer to the calendar's owner.
type Subject struct {
	name string
}

// FirstPerson renders sentences as the owner speaking ("I am available").
func FirstPerson() Subject {
	return Subject{}
}

// ThirdPerson renders sentences about the named owner ("Karley is available").
func ThirdPerson(name string) Subject {
	return Subject{name: name}
}

// Available renders a day with free slots.
func (s Subject) Available(date string, slots []string) string {
	who := "I am"
	if s.name != "" {
		who = s.name + " is"
	}
	return fmt.Sprintf("On %s, %s available at: %s.", date, who, strings.Join(slots, ", "))
}

// Unavailable renders a day without free slots.
func (s Subject) Unavailable(date string) string {
	if s.name == "" {
		return fmt.Sprintf("I am not available on %s.", date)
	}
	return fmt.Sprintf("%s is not available on %s.", s.name, date)
}

// InvalidDate is the answer for dates that do not parse as YYYY-MM-DD.
func (s Subject) InvalidDate() string {
	if s.name == "" {
		return "I couldn't understand the date. Please ask to check availability for a date like 'YYYY-MM-DD'."
	}
	return "Invalid date format. Please use YYYY-MM-DD for both start and end dates."
}
