package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMonitor_TrackValidation(t *testing.T) {
	m := NewMonitor()
	before := testutil.ToFloat64(validationsTotal.WithLabelValues("admitted"))

	m.TrackValidation("admitted", 3*time.Millisecond)
	m.TrackValidation("admitted", 5*time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(validationsTotal.WithLabelValues("admitted")))
}

func TestMonitor_Counters(t *testing.T) {
	m := NewMonitor()

	transitions := testutil.ToFloat64(statusTransitions.WithLabelValues("ACTIVE", "USED"))
	issued := testutil.ToFloat64(ticketsIssued)
	storeErrs := testutil.ToFloat64(storeErrors.WithLabelValues("find"))
	notified := testutil.ToFloat64(gateNotifications.WithLabelValues("sent"))

	m.TrackTransition("ACTIVE", "USED")
	m.TrackIssued()
	m.TrackStoreError("find")
	m.TrackNotification("sent")
	m.TrackBreakerState("ticket-store", 2)

	assert.Equal(t, transitions+1, testutil.ToFloat64(statusTransitions.WithLabelValues("ACTIVE", "USED")))
	assert.Equal(t, issued+1, testutil.ToFloat64(ticketsIssued))
	assert.Equal(t, storeErrs+1, testutil.ToFloat64(storeErrors.WithLabelValues("find")))
	assert.Equal(t, notified+1, testutil.ToFloat64(gateNotifications.WithLabelValues("sent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("ticket-store")))
}

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor

	assert.NotPanics(t, func() {
		m.TrackValidation("admitted", time.Millisecond)
		m.TrackTransition("ACTIVE", "USED")
		m.TrackIssued()
		m.TrackStoreError("find")
		m.TrackBreakerState("ticket-store", 1)
		m.TrackNotification("failed")
	})
}
