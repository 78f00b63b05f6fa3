package qrticket

import "time"

const (
	DefaultGracePeriod   = 24 * time.Hour
	DefaultEventDuration = 4 * time.Hour
)

// ExpiryPolicy fixes how long a ticket stays valid after its event.
type ExpiryPolicy struct {
	GracePeriod          time.Duration
	DefaultEventDuration time.Duration
}

func DefaultExpiryPolicy() ExpiryPolicy {
	return ExpiryPolicy{
		GracePeriod:          DefaultGracePeriod,
		DefaultEventDuration: DefaultEventDuration,
	}
}

// ComputeExpiry returns event end plus grace. Without a usable end time the
// end is taken as start plus DefaultEventDuration. An end before the start
// is treated as missing.
func (p ExpiryPolicy) ComputeExpiry(eventStart time.Time, eventEnd *time.Time) time.Time {
	end := eventStart.Add(p.DefaultEventDuration)
	if eventEnd != nil && !eventEnd.Before(eventStart) {
		end = *eventEnd
	}
	return end.Add(p.GracePeriod).UTC()
}

// IsExpired is inclusive: a ticket is already expired at its expiry instant.
func IsExpired(expiry, now time.Time) bool {
	return !now.Before(expiry)
}
