package qrticket

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ticket-admission/internal/clock"
	"ticket-admission/internal/status"
	"ticket-admission/models"
)

const (
	eventDateLayout = "2006-01-02"
	eventTimeLayout = "15:04"
)

// Builder turns issuance data into an unsigned payload.
type Builder struct {
	policy   ExpiryPolicy
	location *time.Location
	clock    clock.Clock
}

// NewBuilder returns a builder that renders eventDate and eventTime in loc.
func NewBuilder(policy ExpiryPolicy, loc *time.Location, clk clock.Clock) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{policy: policy, location: loc, clock: clk}
}

// Build assembles the payload. It fails with status.ErrIncompleteSource when
// the ticket id or the event start is missing, or when a text field is not
// valid UTF-8.
func (b *Builder) Build(src models.IssueSource) (models.TicketPayload, error) {
	ticketID := strings.TrimSpace(src.TicketID)
	if ticketID == "" {
		return models.TicketPayload{}, fmt.Errorf("qrticket: ticketId: %w", status.ErrIncompleteSource)
	}
	if src.Event.StartTime.IsZero() {
		return models.TicketPayload{}, fmt.Errorf("qrticket: eventDate: %w", status.ErrIncompleteSource)
	}

	for name, v := range map[string]string{
		"eventId":    src.Event.ID,
		"eventTitle": src.Event.Title,
		"venue":      src.Event.Venue,
		"userId":     src.UserID,
		"userEmail":  src.UserEmail,
		"tierName":   src.TierName,
		"seatNumber": src.SeatNumber,
		"ticketId":   ticketID,
	} {
		if !utf8.ValidString(v) {
			return models.TicketPayload{}, fmt.Errorf("qrticket: %s is not valid utf-8: %w", name, status.ErrIncompleteSource)
		}
	}

	issuedAt := b.clock.Now()
	purchased := src.PurchaseDate
	if purchased.IsZero() {
		purchased = issuedAt
	}
	start := src.Event.StartTime.In(b.location)
	expiry := b.policy.ComputeExpiry(src.Event.StartTime, src.Event.End())

	return models.TicketPayload{
		Version:      Version,
		TicketID:     ticketID,
		EventID:      src.Event.ID,
		EventTitle:   src.Event.Title,
		UserID:       src.UserID,
		UserEmail:    src.UserEmail,
		TierName:     src.TierName,
		SeatNumber:   src.SeatNumber,
		PurchaseDate: formatInstant(purchased),
		EventDate:    start.Format(eventDateLayout),
		EventTime:    start.Format(eventTimeLayout),
		Venue:        src.Event.Venue,
		Price:        src.Price.StringFixed(2),
		IssuedAt:     formatInstant(issuedAt),
		ExpiryDate:   formatInstant(expiry),
	}, nil
}

func formatInstant(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
