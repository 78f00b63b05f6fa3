// Package notify pushes scan outcomes to the realtime channel gate
// dashboards listen on.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go/v7"

	"ticket-admission/internal/status"
	"ticket-admission/models"
	"ticket-admission/monitoring"
)

const scanMessageType = "ticket_scanned"

// Publisher delivers one message to one channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(cfg PubNubConfig) *PubNubPublisher {
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey

	return &PubNubPublisher{pn: pubnub.NewPubNub(pnConfig)}
}

func (p *PubNubPublisher) Publish(ctx context.Context, channel string, message any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	return err
}

// ScanMessage is what gate dashboards receive.
type ScanMessage struct {
	Type      string        `json:"type"`
	TicketID  string        `json:"ticket_id"`
	EventID   string        `json:"event_id"`
	Outcome   string        `json:"outcome"`
	Reason    status.Reason `json:"reason,omitempty"`
	UsedAt    *time.Time    `json:"used_at,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// GateNotifier is best effort: failures are logged and counted, never
// returned. A nil *GateNotifier is disabled.
type GateNotifier struct {
	publisher Publisher
	monitor   *monitoring.Monitor
	now       func() time.Time
}

func NewGateNotifier(publisher Publisher, monitor *monitoring.Monitor) *GateNotifier {
	return &GateNotifier{publisher: publisher, monitor: monitor, now: time.Now}
}

func GateChannel(eventID string) string {
	return fmt.Sprintf("gate-%s", eventID)
}

// NotifyScan publishes an authoritative scan result. Results without a
// decoded payload and advisory pre-checks are skipped.
func (n *GateNotifier) NotifyScan(ctx context.Context, outcome string, res models.ValidationResult) {
	if n == nil || res.Advisory || res.TicketData == nil || res.TicketData.EventID == "" {
		return
	}

	msg := ScanMessage{
		Type:      scanMessageType,
		TicketID:  res.TicketData.TicketID,
		EventID:   res.TicketData.EventID,
		Outcome:   outcome,
		Reason:    res.Error,
		UsedAt:    res.UsedAt,
		Timestamp: n.now().Unix(),
	}

	if err := n.publisher.Publish(ctx, GateChannel(msg.EventID), msg); err != nil {
		n.monitor.TrackNotification("failed")
		slog.Warn("gate notification failed", "ticket_id", msg.TicketID, "event_id", msg.EventID, "error", err)
		return
	}
	n.monitor.TrackNotification("sent")
}
