package models

import (
	"time"

	"github.com/shopspring/decimal"

	"ticket-admission/internal/status"
)

type TicketStatus string

const (
	TicketStatusActive    TicketStatus = "ACTIVE"
	TicketStatusUsed      TicketStatus = "USED"
	TicketStatusCancelled TicketStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusUsed || s == TicketStatusCancelled
}

// CanTransition reports whether s may move to next. Only ACTIVE moves.
func (s TicketStatus) CanTransition(next TicketStatus) bool {
	return s == TicketStatusActive && next.Terminal()
}

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusActive, TicketStatusUsed, TicketStatusCancelled:
		return true
	}
	return false
}

// Ticket is the persisted admission record. ID equals the payload ticketId.
type Ticket struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	CategoryID string          `json:"category_id"`
	Price      decimal.Decimal `json:"price"`
	Status     TicketStatus    `json:"status"`
	UsedAt     *time.Time      `json:"used_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TicketPayload is the signed record carried in the QR code. Field order is
// the wire order and must not change within a version. Every value is kept
// as the exact text that was signed.
type TicketPayload struct {
	Version      int    `json:"version"`
	TicketID     string `json:"ticketId"`
	EventID      string `json:"eventId"`
	EventTitle   string `json:"eventTitle"`
	UserID       string `json:"userId"`
	UserEmail    string `json:"userEmail"`
	TierName     string `json:"tierName"`
	SeatNumber   string `json:"seatNumber"`
	PurchaseDate string `json:"purchaseDate"`
	EventDate    string `json:"eventDate"`
	EventTime    string `json:"eventTime"`
	Venue        string `json:"venue"`
	Price        string `json:"price"`
	IssuedAt     string `json:"issuedAt"`
	ExpiryDate   string `json:"expiryDate"`
	Signature    string `json:"signature,omitempty"`
}

// ExpiresAt parses ExpiryDate.
func (p TicketPayload) ExpiresAt() (time.Time, error) {
	return time.Parse(time.RFC3339, p.ExpiryDate)
}

// Unsigned returns a copy of p without its signature.
func (p TicketPayload) Unsigned() TicketPayload {
	p.Signature = ""
	return p
}

// ValidationResult is what a scanner renders. It is never persisted.
type ValidationResult struct {
	IsValid     bool           `json:"isValid"`
	IsExpired   bool           `json:"isExpired"`
	AlreadyUsed bool           `json:"alreadyUsed"`
	Advisory    bool           `json:"advisory,omitempty"`
	TicketData  *TicketPayload `json:"ticketData,omitempty"`
	Error       status.Reason  `json:"error,omitempty"`
	Status      TicketStatus   `json:"status,omitempty"`
	UsedAt      *time.Time     `json:"usedAt,omitempty"`
}

// Admitted reports whether this result let the holder in on this scan.
func (r ValidationResult) Admitted() bool {
	return r.IsValid && !r.IsExpired && !r.AlreadyUsed && r.Error == status.ReasonNone && r.Status == TicketStatusUsed
}

// IssueSource is what the order flow hands over once an order is confirmed.
type IssueSource struct {
	TicketID     string          `json:"ticket_id"`
	OrderID      string          `json:"order_id"`
	CategoryID   string          `json:"category_id"`
	Event        Event           `json:"event"`
	UserID       string          `json:"user_id"`
	UserEmail    string          `json:"user_email"`
	TierName     string          `json:"tier_name"`
	SeatNumber   string          `json:"seat_number"`
	Price        decimal.Decimal `json:"price"`
	PurchaseDate time.Time       `json:"purchase_date"`
}

// IssuedTicket bundles the persisted ticket with the QR text handed to the
// renderer.
type IssuedTicket struct {
	Ticket  Ticket        `json:"ticket"`
	Payload TicketPayload `json:"payload"`
	QR      string        `json:"qr"`
}
