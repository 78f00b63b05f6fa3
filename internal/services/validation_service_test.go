package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-admission/internal/status"
	"ticket-admission/models"
)

func TestValidationService_ScenarioA_FirstScanAdmits(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")
	f.clock.Set(doorsOpen)

	res := f.validation.Validate(context.Background(), issued.QR, true)

	assert.True(t, res.IsValid)
	assert.False(t, res.IsExpired)
	assert.False(t, res.AlreadyUsed)
	assert.Empty(t, res.Error)
	assert.True(t, res.Admitted())
	require.NotNil(t, res.TicketData)
	assert.Equal(t, issued.Payload, *res.TicketData)
	require.NotNil(t, res.UsedAt)
	assert.True(t, doorsOpen.Equal(*res.UsedAt))

	stored, err := f.store.FindByTicketID(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusUsed, stored.Status)
	require.NotNil(t, stored.UsedAt)
	assert.True(t, doorsOpen.Equal(*stored.UsedAt))
}

func TestValidationService_ScenarioB_RescanReportsAlreadyUsed(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")
	f.clock.Set(doorsOpen)
	ctx := context.Background()

	first := f.validation.Validate(ctx, issued.QR, true)
	require.True(t, first.Admitted())

	f.clock.Set(doorsOpen.Add(10 * time.Minute))
	for i := 0; i < 3; i++ {
		res := f.validation.Validate(ctx, issued.QR, true)
		assert.True(t, res.IsValid)
		assert.False(t, res.IsExpired)
		assert.True(t, res.AlreadyUsed)
		assert.Empty(t, res.Error)
		assert.False(t, res.Admitted())
		require.NotNil(t, res.UsedAt)
		assert.True(t, doorsOpen.Equal(*res.UsedAt), "used_at must keep the first admission time")
	}

	assert.Equal(t, models.TicketStatusUsed, f.storedStatus(t, "T1"))
}

func TestValidationService_ScenarioC_ExpiredLeavesStatus(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")

	for _, now := range []time.Time{expiryTime, expiryTime.Add(time.Hour)} {
		f.clock.Set(now)
		res := f.validation.Validate(context.Background(), issued.QR, true)

		assert.True(t, res.IsValid)
		assert.True(t, res.IsExpired)
		assert.False(t, res.AlreadyUsed)
		assert.Equal(t, status.ReasonExpired, res.Error)
		require.NotNil(t, res.TicketData)
	}

	assert.Equal(t, models.TicketStatusActive, f.storedStatus(t, "T1"))
}

func TestValidationService_LastInstantBeforeExpiryAdmits(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")
	f.clock.Set(expiryTime.Add(-time.Nanosecond))

	res := f.validation.Validate(context.Background(), issued.QR, true)

	assert.True(t, res.Admitted())
}

func TestValidationService_ScenarioD_FlippedSignature(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")
	f.clock.Set(doorsOpen)

	idx := strings.Index(issued.QR, `"signature":"`) + len(`"signature":"`)
	tampered := []byte(issued.QR)
	if tampered[idx] == 'a' {
		tampered[idx] = 'b'
	} else {
		tampered[idx] = 'a'
	}

	res := f.validation.Validate(context.Background(), string(tampered), true)

	assert.False(t, res.IsValid)
	assert.Equal(t, status.ReasonSignatureMismatch, res.Error)
	require.NotNil(t, res.TicketData)
	assert.Equal(t, "T1", res.TicketData.TicketID)
	assert.Equal(t, models.TicketStatusActive, f.storedStatus(t, "T1"))
}

func TestValidationService_TamperedFieldIsRejected(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")
	f.clock.Set(doorsOpen)

	tampered := strings.Replace(issued.QR, `"tierName":"General Admission"`, `"tierName":"VIP"`, 1)
	require.NotEqual(t, issued.QR, tampered)

	res := f.validation.Validate(context.Background(), tampered, true)

	assert.False(t, res.IsValid)
	assert.Equal(t, status.ReasonSignatureMismatch, res.Error)
	assert.Equal(t, "VIP", res.TicketData.TierName)
}

func TestValidationService_ScenarioE_TwoSimultaneousScans(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")
	f.clock.Set(doorsOpen)

	results := scanConcurrently(f.validation, issued.QR, 2)

	fresh, used := countOutcomes(t, results)
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, used)
	assert.Equal(t, models.TicketStatusUsed, f.storedStatus(t, "T1"))
}

func TestValidationService_AtMostOnceAdmission(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")
	f.clock.Set(doorsOpen)

	const scanners = 64
	results := scanConcurrently(f.validation, issued.QR, scanners)

	fresh, used := countOutcomes(t, results)
	assert.Equal(t, 1, fresh)
	assert.Equal(t, scanners-1, used)
	assert.Equal(t, models.TicketStatusUsed, f.storedStatus(t, "T1"))
}

func TestValidationService_DistinctTicketsAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "T1")
	f.issue(t, "T2")
	qr1 := f.issue(t, "T3").QR
	f.clock.Set(doorsOpen)

	ctx := context.Background()
	first := f.validation.Validate(ctx, qr1, true)
	assert.True(t, first.Admitted())
	assert.Equal(t, models.TicketStatusActive, f.storedStatus(t, "T1"))
	assert.Equal(t, models.TicketStatusActive, f.storedStatus(t, "T2"))
}

func TestValidationService_CheckWithoutMarking(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")
	f.clock.Set(doorsOpen)

	res := f.validation.Validate(context.Background(), issued.QR, false)

	assert.True(t, res.IsValid)
	assert.False(t, res.AlreadyUsed)
	assert.False(t, res.Admitted())
	assert.Equal(t, models.TicketStatusActive, res.Status)
	assert.Equal(t, models.TicketStatusActive, f.storedStatus(t, "T1"))
}

func TestValidationService_Rejections(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(doorsOpen)
	ctx := context.Background()

	t.Run("malformed", func(t *testing.T) {
		for _, raw := range []string{"", "not a ticket", `{"version":1}`, `{"version":9,"ticketId":"T1"}`} {
			res := f.validation.Validate(ctx, raw, true)
			assert.False(t, res.IsValid)
			assert.Equal(t, status.ReasonMalformedPayload, res.Error)
			assert.Nil(t, res.TicketData)
		}
	})

	t.Run("unknown ticket", func(t *testing.T) {
		payload, err := f.builder.Build(issueSource("never-stored"))
		require.NoError(t, err)
		payload.Signature, err = f.signer.Sign(payload)
		require.NoError(t, err)
		raw := mustEncode(t, payload)

		res := f.validation.Validate(ctx, raw, true)
		assert.False(t, res.IsValid)
		assert.Equal(t, status.ReasonUnknownTicket, res.Error)
		require.NotNil(t, res.TicketData)
		assert.Equal(t, "never-stored", res.TicketData.TicketID)
	})

	t.Run("cancelled", func(t *testing.T) {
		issued := f.issue(t, "T-cancel")
		_, err := f.cancellation.Cancel(ctx, "T-cancel")
		require.NoError(t, err)

		res := f.validation.Validate(ctx, issued.QR, true)
		assert.False(t, res.IsValid)
		assert.Equal(t, status.ReasonCancelled, res.Error)
		assert.False(t, res.AlreadyUsed)
		assert.Equal(t, models.TicketStatusCancelled, f.storedStatus(t, "T-cancel"))
	})
}

func TestValidationService_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")
	f.clock.Set(doorsOpen)
	ctx := context.Background()

	t.Run("lookup fails", func(t *testing.T) {
		svc := f.validationWith(&hookedStore{TicketStore: f.store, findErr: errors.New("connection refused")}, time.Second)

		res := svc.Validate(ctx, issued.QR, true)
		assert.False(t, res.IsValid)
		assert.Equal(t, status.ReasonStoreUnavailable, res.Error)
		assert.True(t, res.Error.Retryable())
		require.NotNil(t, res.TicketData)
	})

	t.Run("lookup times out", func(t *testing.T) {
		svc := f.validationWith(&hookedStore{TicketStore: f.store, block: true}, 20*time.Millisecond)

		started := time.Now()
		res := svc.Validate(ctx, issued.QR, true)
		assert.Equal(t, status.ReasonStoreUnavailable, res.Error)
		assert.Less(t, time.Since(started), time.Second)
	})

	t.Run("transition fails", func(t *testing.T) {
		svc := f.validationWith(&hookedStore{TicketStore: f.store, setErr: context.DeadlineExceeded}, time.Second)

		res := svc.Validate(ctx, issued.QR, true)
		assert.False(t, res.IsValid)
		assert.Equal(t, status.ReasonStoreUnavailable, res.Error)
		assert.Equal(t, models.TicketStatusActive, f.storedStatus(t, "T1"), "failed transition must leave status unchanged")
	})

	t.Run("retry after recovery admits once", func(t *testing.T) {
		res := f.validation.Validate(ctx, issued.QR, true)
		assert.True(t, res.Admitted())

		res = f.validation.Validate(ctx, issued.QR, true)
		assert.True(t, res.AlreadyUsed)
	})
}

func TestValidationService_LosesRaceToCancellation(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")
	f.clock.Set(doorsOpen)
	ctx := context.Background()

	hooked := &hookedStore{TicketStore: f.store}
	hooked.beforeSet = func() {
		_, err := f.cancellation.Cancel(ctx, "T1")
		require.NoError(t, err)
	}

	res := f.validationWith(hooked, time.Second).Validate(ctx, issued.QR, true)

	assert.False(t, res.IsValid)
	assert.False(t, res.AlreadyUsed)
	assert.Equal(t, status.ReasonCancelled, res.Error)
	assert.Equal(t, models.TicketStatusCancelled, f.storedStatus(t, "T1"))
}

func TestValidationService_LosesRaceToOtherScanner(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "T1")
	f.clock.Set(doorsOpen)
	ctx := context.Background()

	hooked := &hookedStore{TicketStore: f.store}
	hooked.beforeSet = func() {
		hooked.beforeSet = nil
		other := f.validation.Validate(ctx, issued.QR, true)
		require.True(t, other.Admitted())
	}

	res := f.validationWith(hooked, time.Second).Validate(ctx, issued.QR, true)

	assert.True(t, res.IsValid)
	assert.True(t, res.AlreadyUsed)
	assert.Empty(t, res.Error)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeAdmitted, Outcome(models.ValidationResult{IsValid: true, Status: models.TicketStatusUsed}))
	assert.Equal(t, OutcomeAlreadyUsed, Outcome(models.ValidationResult{IsValid: true, AlreadyUsed: true, Status: models.TicketStatusUsed}))
	assert.Equal(t, OutcomeValid, Outcome(models.ValidationResult{IsValid: true, Status: models.TicketStatusActive}))
	assert.Equal(t, "expired", Outcome(models.ValidationResult{IsValid: true, IsExpired: true, Error: status.ReasonExpired}))
	assert.Equal(t, "signature_mismatch", Outcome(models.ValidationResult{Error: status.ReasonSignatureMismatch}))
}

func scanConcurrently(svc *ValidationService, raw string, n int) []models.ValidationResult {
	results := make([]models.ValidationResult, n)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = svc.Validate(context.Background(), raw, true)
		}(i)
	}
	close(start)
	wg.Wait()
	return results
}

func countOutcomes(t *testing.T, results []models.ValidationResult) (fresh, alreadyUsed int) {
	t.Helper()
	for _, res := range results {
		require.True(t, res.IsValid)
		require.Empty(t, res.Error)
		if res.AlreadyUsed {
			alreadyUsed++
		} else {
			fresh++
		}
	}
	return fresh, alreadyUsed
}
