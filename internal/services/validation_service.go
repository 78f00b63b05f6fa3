package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"ticket-admission/internal/clock"
	"ticket-admission/internal/qrticket"
	"ticket-admission/internal/status"
	"ticket-admission/internal/store"
	"ticket-admission/models"
	"ticket-admission/monitoring"
)

// Validation outcomes as recorded in metrics and gate notifications.
const (
	OutcomeAdmitted    = "admitted"
	OutcomeValid       = "valid"
	OutcomeAlreadyUsed = "already_used"
)

// ValidationService is the authoritative scan path. Status only moves
// through the store's compare-and-set, so concurrent scans of one ticket
// admit at most once.
type ValidationService struct {
	verifier     *qrticket.Verifier
	store        store.TicketStore
	clock        clock.Clock
	monitor      *monitoring.Monitor
	storeTimeout time.Duration
}

func NewValidationService(verifier *qrticket.Verifier, ticketStore store.TicketStore, clk clock.Clock, monitor *monitoring.Monitor, storeTimeout time.Duration) *ValidationService {
	return &ValidationService{
		verifier:     verifier,
		store:        ticketStore,
		clock:        clk,
		monitor:      monitor,
		storeTimeout: storeTimeout,
	}
}

// Validate checks a scanned QR string and, when markUsed is set, admits the
// holder. It never returns an error: every outcome, including store
// failures, is a reason code on the result.
func (s *ValidationService) Validate(ctx context.Context, raw string, markUsed bool) models.ValidationResult {
	started := time.Now()
	res := s.validate(ctx, raw, markUsed)
	s.monitor.TrackValidation(Outcome(res), time.Since(started))
	return res
}

func (s *ValidationService) validate(ctx context.Context, raw string, markUsed bool) models.ValidationResult {
	now := s.clock.Now()

	in := s.verifier.Inspect(raw, now)
	res := models.ValidationResult{TicketData: in.Payload}
	if !in.SignatureValid {
		res.Error = in.Reason
		if in.Reason == status.ReasonSignatureMismatch {
			slog.Warn("ticket signature mismatch", "ticket_id", in.Payload.TicketID)
		}
		return res
	}
	ticketID := in.Payload.TicketID

	ticket, err := s.find(ctx, ticketID)
	if err != nil {
		return s.lookupFailed(res, ticketID, err)
	}
	res.IsValid = true
	res.Status = ticket.Status
	res.UsedAt = ticket.UsedAt

	if in.Expired {
		res.IsExpired = true
		res.Error = status.ReasonExpired
		return res
	}

	switch ticket.Status {
	case models.TicketStatusCancelled:
		res.IsValid = false
		res.Error = status.ReasonCancelled
		return res
	case models.TicketStatusUsed:
		res.AlreadyUsed = true
		return res
	case models.TicketStatusActive:
	default:
		slog.Error("ticket has unknown status", "ticket_id", ticketID, "status", ticket.Status)
		res.IsValid = false
		res.Error = status.ReasonStoreUnavailable
		return res
	}

	if !markUsed {
		return res
	}

	usedAt := now
	changed, err := s.setStatus(ctx, ticketID, models.TicketStatusActive, models.TicketStatusUsed, &usedAt)
	if err != nil {
		slog.Error("failed to mark ticket used", "ticket_id", ticketID, "error", err)
		res.IsValid = false
		res.Error = status.ReasonStoreUnavailable
		return res
	}
	if changed {
		s.monitor.TrackTransition(string(models.TicketStatusActive), string(models.TicketStatusUsed))
		slog.Info("ticket admitted", "ticket_id", ticketID, "event_id", in.Payload.EventID)
		res.Status = models.TicketStatusUsed
		res.UsedAt = &usedAt
		return res
	}

	// Another scanner or an admin got there first.
	current, err := s.find(ctx, ticketID)
	if err != nil {
		return s.lookupFailed(res, ticketID, err)
	}
	res.Status = current.Status
	res.UsedAt = current.UsedAt
	switch current.Status {
	case models.TicketStatusUsed:
		res.AlreadyUsed = true
		slog.Info("concurrent scan lost admission race", "ticket_id", ticketID)
	case models.TicketStatusCancelled:
		res.IsValid = false
		res.Error = status.ReasonCancelled
	default:
		slog.Error("ticket status unchanged after failed transition", "ticket_id", ticketID, "status", current.Status)
		res.IsValid = false
		res.Error = status.ReasonStoreUnavailable
	}
	return res
}

func (s *ValidationService) lookupFailed(res models.ValidationResult, ticketID string, err error) models.ValidationResult {
	res.IsValid = false
	res.Status = ""
	res.UsedAt = nil
	if errors.Is(err, status.ErrTicketNotFound) {
		slog.Warn("validly signed ticket not found", "ticket_id", ticketID)
		res.Error = status.ReasonUnknownTicket
		return res
	}
	slog.Error("ticket lookup failed", "ticket_id", ticketID, "error", err)
	res.Error = status.ReasonStoreUnavailable
	return res
}

func (s *ValidationService) find(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ticket, err := s.store.FindByTicketID(ctx, ticketID)
	if store.IsFailure(err) {
		s.monitor.TrackStoreError("find")
	}
	return ticket, err
}

func (s *ValidationService) setStatus(ctx context.Context, ticketID string, expected, next models.TicketStatus, usedAt *time.Time) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	changed, err := s.store.SetStatusIfCurrentStatus(ctx, ticketID, expected, next, usedAt)
	if store.IsFailure(err) {
		s.monitor.TrackStoreError("set_status")
	}
	return changed, err
}

func (s *ValidationService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Outcome names a result for metrics and notifications.
func Outcome(res models.ValidationResult) string {
	switch {
	case res.Error != status.ReasonNone:
		return strings.ToLower(string(res.Error))
	case res.AlreadyUsed:
		return OutcomeAlreadyUsed
	case res.Admitted():
		return OutcomeAdmitted
	default:
		return OutcomeValid
	}
}
