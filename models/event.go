package models

import (
	"time"
)

// Event is the slice of event data a ticket payload is built from. A zero
// EndTime means the organiser did not publish one.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Venue     string    `json:"venue"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

// End returns the published end time, or nil when the event has none.
func (e Event) End() *time.Time {
	if e.EndTime.IsZero() {
		return nil
	}
	end := e.EndTime
	return &end
}
