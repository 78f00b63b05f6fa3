package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-admission/internal/status"
	"ticket-admission/models"
	"ticket-admission/utils"
)

// BreakerTicketStore fails fast with status.ErrStoreUnavailable while the
// backend is unhealthy instead of letting every scan wait out its timeout.
type BreakerTicketStore struct {
	next    TicketStore
	breaker *utils.CircuitBreaker
}

// WithCircuitBreaker wraps next. The breaker should classify errors with
// IsFailure so unknown tickets do not open it.
func WithCircuitBreaker(next TicketStore, breaker *utils.CircuitBreaker) *BreakerTicketStore {
	return &BreakerTicketStore{next: next, breaker: breaker}
}

func (s *BreakerTicketStore) FindByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var ticket *models.Ticket
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.next.FindByTicketID(ctx, ticketID)
		return err
	})
	return ticket, breakerError(err)
}

func (s *BreakerTicketStore) SetStatusIfCurrentStatus(ctx context.Context, ticketID string, expected, next models.TicketStatus, usedAt *time.Time) (bool, error) {
	var changed bool
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		changed, err = s.next.SetStatusIfCurrentStatus(ctx, ticketID, expected, next, usedAt)
		return err
	})
	return changed, breakerError(err)
}

func (s *BreakerTicketStore) Create(ctx context.Context, ticket models.Ticket) error {
	return breakerError(s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.next.Create(ctx, ticket)
	}))
}

// Ping bypasses the breaker so health checks see the real backend.
func (s *BreakerTicketStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func breakerError(err error) error {
	if errors.Is(err, utils.ErrCircuitOpen) || errors.Is(err, utils.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", status.ErrStoreUnavailable, err)
	}
	return err
}
