// Package store persists tickets. Every backend offers the same two
// primitives the scan path depends on: a lookup by ticket id and an atomic
// compare-and-set on the status.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-admission/internal/status"
	"ticket-admission/models"
)

var ErrInvalidTransition = errors.New("store: invalid status transition")

// TicketStore is implemented by every backend.
type TicketStore interface {
	// FindByTicketID returns status.ErrTicketNotFound when no ticket exists.
	FindByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error)

	// SetStatusIfCurrentStatus moves the ticket from expected to next in one
	// atomic step and reports whether this call made the change. usedAt is
	// recorded when non-nil. A missing ticket is status.ErrTicketNotFound.
	SetStatusIfCurrentStatus(ctx context.Context, ticketID string, expected, next models.TicketStatus, usedAt *time.Time) (bool, error)

	// Create persists a new ticket, failing with status.ErrTicketExists when
	// the id is taken.
	Create(ctx context.Context, ticket models.Ticket) error

	Ping(ctx context.Context) error
}

func checkTransition(expected, next models.TicketStatus) error {
	if !expected.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
	}
	return nil
}

func checkNewTicket(t models.Ticket) error {
	if t.ID == "" {
		return errors.New("store: ticket id is required")
	}
	if !t.Status.Valid() {
		return fmt.Errorf("store: invalid ticket status %q", t.Status)
	}
	return nil
}

// IsFailure reports whether err says something about store health. Lookups
// that find nothing and rejected transitions are normal answers.
func IsFailure(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, status.ErrTicketNotFound),
		errors.Is(err, status.ErrTicketExists),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func timeUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
