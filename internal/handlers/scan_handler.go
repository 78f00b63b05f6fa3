package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-admission/internal/clock"
	"ticket-admission/internal/notify"
	"ticket-admission/internal/qrticket"
	"ticket-admission/internal/services"
	"ticket-admission/models"
)

const (
	notifyTimeout  = 3 * time.Second
	maxNotifyInFly = 64
)

type ScanHandler struct {
	validation *services.ValidationService
	verifier   *qrticket.Verifier
	notifier   *notify.GateNotifier
	clock      clock.Clock

	// gate notifications run after the response; at most maxNotifyInFly at
	// once, each bounded by notifyTimeout
	notifySlots chan struct{}
}

func NewScanHandler(validation *services.ValidationService, verifier *qrticket.Verifier, notifier *notify.GateNotifier, clk clock.Clock) *ScanHandler {
	return &ScanHandler{
		validation:  validation,
		verifier:    verifier,
		notifier:    notifier,
		clock:       clk,
		notifySlots: make(chan struct{}, maxNotifyInFly),
	}
}

type scanRequest struct {
	QR       string `json:"qr"`
	MarkUsed bool   `json:"mark_used"`
}

// Validate - authoritative scan. Rejections are reported in the body with
// 200; only a store outage answers 503 so the scanner knows to retry.
func (h *ScanHandler) Validate(e *core.RequestEvent) error {
	var req scanRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if strings.TrimSpace(req.QR) == "" {
		return apis.NewBadRequestError("qr is required", nil)
	}

	res := h.validation.Validate(e.Request.Context(), req.QR, req.MarkUsed)

	h.notify(e.Request.Context(), res)

	return e.JSON(scanStatusCode(res), res)
}

// notify publishes in the background so a slow realtime service never
// delays the gate. When every slot is busy the notification is dropped.
func (h *ScanHandler) notify(ctx context.Context, res models.ValidationResult) {
	if h.notifier == nil {
		return
	}

	outcome := services.Outcome(res)
	select {
	case h.notifySlots <- struct{}{}:
	default:
		slog.Warn("gate notification dropped, too many in flight", "outcome", outcome)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	go func() {
		defer func() { <-h.notifySlots }()
		defer cancel()
		h.notifier.NotifyScan(ctx, outcome, res)
	}()
}

// PreCheck - offline style check on the gate device. Never touches the
// store, so it cannot say whether the ticket was already used.
func (h *ScanHandler) PreCheck(e *core.RequestEvent) error {
	var req scanRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if strings.TrimSpace(req.QR) == "" {
		return apis.NewBadRequestError("qr is required", nil)
	}

	return e.JSON(http.StatusOK, h.verifier.PreCheck(req.QR, h.clock.Now()))
}

func scanStatusCode(res models.ValidationResult) int {
	if res.Error.Retryable() {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
