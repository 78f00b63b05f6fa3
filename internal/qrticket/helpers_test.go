package qrticket

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ticket-admission/internal/clock"
	"ticket-admission/models"
)

var (
	testSecret   = []byte(strings.Repeat("k", 32))
	eventStart   = time.Date(2025, 7, 15, 20, 0, 0, 0, time.UTC)
	issuedAtTime = time.Date(2025, 6, 1, 9, 30, 15, 0, time.UTC)
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := DeriveKey(testSecret)
	require.NoError(t, err)
	s, err := NewSigner(key)
	require.NoError(t, err)
	return s
}

func testSource() models.IssueSource {
	return models.IssueSource{
		TicketID:   "T1",
		OrderID:    "order-1",
		CategoryID: "cat-vip",
		Event: models.Event{
			ID:        "evt-1",
			Title:     "Summer Night Live",
			Venue:     "National Stadium",
			StartTime: eventStart,
		},
		UserID:       "user-1",
		UserEmail:    "fan@example.com",
		TierName:     "VIP",
		SeatNumber:   "A-12",
		Price:        decimal.RequireFromString("150"),
		PurchaseDate: time.Date(2025, 5, 30, 12, 0, 0, 0, time.UTC),
	}
}

func signedTestPayload(t *testing.T, s *Signer) models.TicketPayload {
	t.Helper()
	b := NewBuilder(DefaultExpiryPolicy(), time.UTC, clock.NewFixed(issuedAtTime))
	p, err := b.Build(testSource())
	require.NoError(t, err)
	p.Signature, err = s.Sign(p)
	require.NoError(t, err)
	return p
}

func encodedTestPayload(t *testing.T, s *Signer) string {
	t.Helper()
	raw, err := Encode(signedTestPayload(t, s))
	require.NoError(t, err)
	return raw
}
