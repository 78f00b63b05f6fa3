package services

import (
	"context"
	"fmt"
	"log/slog"

	"ticket-admission/internal/status"
	"ticket-admission/internal/store"
	"ticket-admission/models"
	"ticket-admission/monitoring"
)

// CancellationService is the refund/admin path into the same
// compare-and-set the scanners use.
type CancellationService struct {
	store   store.TicketStore
	monitor *monitoring.Monitor
}

func NewCancellationService(ticketStore store.TicketStore, monitor *monitoring.Monitor) *CancellationService {
	return &CancellationService{store: ticketStore, monitor: monitor}
}

// Cancel moves an ACTIVE ticket to CANCELLED. Cancelling twice is not an
// error. A used ticket cannot be cancelled.
func (s *CancellationService) Cancel(ctx context.Context, ticketID string) (models.Ticket, error) {
	changed, err := s.store.SetStatusIfCurrentStatus(ctx, ticketID, models.TicketStatusActive, models.TicketStatusCancelled, nil)
	if err != nil {
		if store.IsFailure(err) {
			s.monitor.TrackStoreError("set_status")
		}
		return models.Ticket{}, fmt.Errorf("cancel ticket %s: %w", ticketID, err)
	}
	if changed {
		s.monitor.TrackTransition(string(models.TicketStatusActive), string(models.TicketStatusCancelled))
		slog.Info("ticket cancelled", "ticket_id", ticketID)
	}

	ticket, err := s.store.FindByTicketID(ctx, ticketID)
	if err != nil {
		if store.IsFailure(err) {
			s.monitor.TrackStoreError("find")
		}
		return models.Ticket{}, fmt.Errorf("cancel ticket %s: %w", ticketID, err)
	}

	switch ticket.Status {
	case models.TicketStatusCancelled:
		return *ticket, nil
	case models.TicketStatusUsed:
		return *ticket, status.ErrTicketNotCancellable
	default:
		return *ticket, fmt.Errorf("cancel ticket %s: status is still %s", ticketID, ticket.Status)
	}
}
