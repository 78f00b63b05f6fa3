package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ticket-admission/internal/qrticket"
	"ticket-admission/internal/store"
	"ticket-admission/models"
)

var (
	eventStart = time.Date(2025, 7, 15, 20, 0, 0, 0, time.UTC)
	issueTime  = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	doorsOpen  = time.Date(2025, 7, 15, 19, 30, 0, 0, time.UTC)
	expiryTime = time.Date(2025, 7, 17, 0, 0, 0, 0, time.UTC)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	clock        *testClock
	store        *store.MemoryTicketStore
	signer       *qrticket.Signer
	builder      *qrticket.Builder
	issuance     *IssuanceService
	validation   *ValidationService
	cancellation *CancellationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := qrticket.DeriveKey([]byte(strings.Repeat("s", 32)))
	require.NoError(t, err)
	signer, err := qrticket.NewSigner(key)
	require.NoError(t, err)

	f := &fixture{
		clock:  &testClock{now: issueTime},
		store:  store.NewMemoryTicketStore(),
		signer: signer,
	}
	f.builder = qrticket.NewBuilder(qrticket.DefaultExpiryPolicy(), time.UTC, f.clock)
	f.issuance = NewIssuanceService(f.builder, signer, f.store, f.clock, nil)
	f.validation = f.validationWith(f.store, time.Second)
	f.cancellation = NewCancellationService(f.store, nil)
	return f
}

func (f *fixture) validationWith(s store.TicketStore, timeout time.Duration) *ValidationService {
	return NewValidationService(qrticket.NewVerifier(f.signer), s, f.clock, nil, timeout)
}

func issueSource(ticketID string) models.IssueSource {
	return models.IssueSource{
		TicketID:   ticketID,
		OrderID:    "order-" + ticketID,
		CategoryID: "cat-ga",
		Event: models.Event{
			ID:        "evt-1",
			Title:     "Summer Night Live",
			Venue:     "National Stadium",
			StartTime: eventStart,
		},
		UserID:       "user-1",
		UserEmail:    "fan@example.com",
		TierName:     "General Admission",
		SeatNumber:   "GA",
		Price:        decimal.RequireFromString("45"),
		PurchaseDate: issueTime.Add(-time.Hour),
	}
}

func (f *fixture) issue(t *testing.T, ticketID string) models.IssuedTicket {
	t.Helper()
	issued, err := f.issuance.Issue(context.Background(), issueSource(ticketID))
	require.NoError(t, err)
	return issued
}

func (f *fixture) storedStatus(t *testing.T, ticketID string) models.TicketStatus {
	t.Helper()
	ticket, err := f.store.FindByTicketID(context.Background(), ticketID)
	require.NoError(t, err)
	return ticket.Status
}

// hookedStore lets a test run code or inject errors around the store calls.
type hookedStore struct {
	store.TicketStore
	findErr   error
	setErr    error
	beforeSet func()
	block     bool
}

func (s *hookedStore) FindByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.TicketStore.FindByTicketID(ctx, ticketID)
}

func (s *hookedStore) SetStatusIfCurrentStatus(ctx context.Context, ticketID string, expected, next models.TicketStatus, usedAt *time.Time) (bool, error) {
	if s.beforeSet != nil {
		s.beforeSet()
	}
	if s.setErr != nil {
		return false, s.setErr
	}
	return s.TicketStore.SetStatusIfCurrentStatus(ctx, ticketID, expected, next, usedAt)
}

func mustEncode(t *testing.T, p models.TicketPayload) string {
	t.Helper()
	raw, err := qrticket.Encode(p)
	require.NoError(t, err)
	return raw
}
