package store

import (
	"context"
	"sync"
	"time"

	"ticket-admission/internal/status"
	"ticket-admission/models"
)

// MemoryTicketStore keeps tickets in process. It backs local development
// and tests; data does not survive a restart.
type MemoryTicketStore struct {
	mu      sync.Mutex
	tickets map[string]models.Ticket
}

func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{tickets: make(map[string]models.Ticket)}
}

func (s *MemoryTicketStore) FindByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, status.ErrTicketNotFound
	}
	t.UsedAt = timeUTC(t.UsedAt)
	return &t, nil
}

func (s *MemoryTicketStore) SetStatusIfCurrentStatus(ctx context.Context, ticketID string, expected, next models.TicketStatus, usedAt *time.Time) (bool, error) {
	if err := checkTransition(expected, next); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return false, status.ErrTicketNotFound
	}
	if t.Status != expected {
		return false, nil
	}
	t.Status = next
	if usedAt != nil {
		t.UsedAt = timeUTC(usedAt)
	}
	s.tickets[ticketID] = t
	return true, nil
}

func (s *MemoryTicketStore) Create(ctx context.Context, ticket models.Ticket) error {
	if err := checkNewTicket(ticket); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tickets[ticket.ID]; exists {
		return status.ErrTicketExists
	}
	ticket.UsedAt = timeUTC(ticket.UsedAt)
	s.tickets[ticket.ID] = ticket
	return nil
}

func (s *MemoryTicketStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
