package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-admission/internal/services"
	"ticket-admission/internal/status"
)

type AdminHandler struct {
	cancellation *services.CancellationService
}

func NewAdminHandler(cancellation *services.CancellationService) *AdminHandler {
	return &AdminHandler{cancellation: cancellation}
}

// CancelTicket - refund or revoke a ticket that has not been used yet.
func (h *AdminHandler) CancelTicket(e *core.RequestEvent) error {
	ticketID := e.Request.PathValue("ticketId")
	if ticketID == "" {
		return apis.NewBadRequestError("Ticket ID required", nil)
	}

	ticket, err := h.cancellation.Cancel(e.Request.Context(), ticketID)
	switch {
	case err == nil:
		return e.JSON(http.StatusOK, ticket)
	case errors.Is(err, status.ErrTicketNotFound):
		return apis.NewNotFoundError("Ticket not found", nil)
	case errors.Is(err, status.ErrTicketNotCancellable):
		return e.JSON(http.StatusConflict, map[string]any{
			"message":       "Ticket has already been used",
			"ticket_status": ticket.Status,
			"used_at":       ticket.UsedAt,
		})
	default:
		slog.Error("ticket cancellation failed", "ticket_id", ticketID, "error", err)
		return apis.NewApiError(http.StatusServiceUnavailable, "Ticket store unavailable", nil)
	}
}
