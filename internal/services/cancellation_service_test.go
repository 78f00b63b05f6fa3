package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-admission/internal/status"
	"ticket-admission/models"
)

func TestCancellationService_Cancel(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "T1")
	ctx := context.Background()

	ticket, err := f.cancellation.Cancel(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusCancelled, ticket.Status)
	assert.Nil(t, ticket.UsedAt)

	again, err := f.cancellation.Cancel(ctx, "T1")
	require.NoError(t, err, "cancelling twice is idempotent")
	assert.Equal(t, models.TicketStatusCancelled, again.Status)
}

func TestCancellationService_UsedTicket(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")
	f.clock.Set(doorsOpen)
	ctx := context.Background()

	require.True(t, f.validation.Validate(ctx, issued.QR, true).Admitted())

	ticket, err := f.cancellation.Cancel(ctx, "T1")
	assert.ErrorIs(t, err, status.ErrTicketNotCancellable)
	assert.Equal(t, models.TicketStatusUsed, ticket.Status)
	assert.Equal(t, models.TicketStatusUsed, f.storedStatus(t, "T1"))
}

func TestCancellationService_UnknownTicket(t *testing.T) {
	f := newFixture(t)

	_, err := f.cancellation.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
}
