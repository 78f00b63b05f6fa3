package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-admission/internal/services"
	"ticket-admission/internal/status"
	"ticket-admission/models"
)

type TicketHandler struct {
	issuance *services.IssuanceService
}

func NewTicketHandler(issuance *services.IssuanceService) *TicketHandler {
	return &TicketHandler{issuance: issuance}
}

// IssueTicket - called by the order flow once payment is confirmed.
func (h *TicketHandler) IssueTicket(e *core.RequestEvent) error {
	var src models.IssueSource
	if err := e.BindBody(&src); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if src.Price.IsNegative() {
		return apis.NewBadRequestError("price must not be negative", nil)
	}

	issued, err := h.issuance.Issue(e.Request.Context(), src)
	if err == nil {
		return e.JSON(http.StatusCreated, issued)
	}

	// The reason code goes in the body so the order flow can tell a retry
	// from a bad request without parsing messages.
	reason := status.ReasonFor(err)
	switch reason {
	case status.ReasonIncompleteSource, status.ReasonMalformedPayload:
		return issueError(e, http.StatusBadRequest, err.Error(), reason)
	case status.ReasonTicketExists:
		return issueError(e, http.StatusConflict, "Ticket already issued", reason)
	default:
		slog.Error("ticket issuance failed", "order_id", src.OrderID, "error", err)
		return issueError(e, http.StatusServiceUnavailable, "Ticket store unavailable", reason)
	}
}

func issueError(e *core.RequestEvent, code int, message string, reason status.Reason) error {
	return e.JSON(code, map[string]any{
		"status":  code,
		"message": message,
		"reason":  reason,
	})
}
