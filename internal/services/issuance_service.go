package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"ticket-admission/internal/clock"
	"ticket-admission/internal/qrticket"
	"ticket-admission/internal/store"
	"ticket-admission/models"
	"ticket-admission/monitoring"
)

// IssuanceService signs and persists a ticket once the order flow confirms
// it. The payload and its signature are produced here and nowhere else.
type IssuanceService struct {
	builder *qrticket.Builder
	signer  *qrticket.Signer
	store   store.TicketStore
	clock   clock.Clock
	monitor *monitoring.Monitor
}

func NewIssuanceService(builder *qrticket.Builder, signer *qrticket.Signer, ticketStore store.TicketStore, clk clock.Clock, monitor *monitoring.Monitor) *IssuanceService {
	return &IssuanceService{
		builder: builder,
		signer:  signer,
		store:   ticketStore,
		clock:   clk,
		monitor: monitor,
	}
}

// Issue builds, signs and encodes the payload, then stores an ACTIVE
// ticket. A ticket id is generated when the source has none. Reusing an id
// fails with status.ErrTicketExists.
func (s *IssuanceService) Issue(ctx context.Context, src models.IssueSource) (models.IssuedTicket, error) {
	if strings.TrimSpace(src.TicketID) == "" {
		src.TicketID = uuid.NewString()
	}

	payload, err := s.builder.Build(src)
	if err != nil {
		return models.IssuedTicket{}, err
	}
	payload.Signature, err = s.signer.Sign(payload)
	if err != nil {
		return models.IssuedTicket{}, err
	}
	qr, err := qrticket.Encode(payload)
	if err != nil {
		return models.IssuedTicket{}, err
	}

	ticket := models.Ticket{
		ID:         payload.TicketID,
		OrderID:    src.OrderID,
		CategoryID: src.CategoryID,
		Price:      src.Price.Round(2),
		Status:     models.TicketStatusActive,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.store.Create(ctx, ticket); err != nil {
		if store.IsFailure(err) {
			s.monitor.TrackStoreError("create")
		}
		return models.IssuedTicket{}, fmt.Errorf("issue ticket %s: %w", ticket.ID, err)
	}

	s.monitor.TrackIssued()
	slog.Info("ticket issued", "ticket_id", ticket.ID, "order_id", ticket.OrderID, "event_id", payload.EventID)

	return models.IssuedTicket{Ticket: ticket, Payload: payload, QR: qr}, nil
}
