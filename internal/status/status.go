package status

import "errors"

var (
	ErrMalformedPayload     = errors.New("ticket: malformed payload")
	ErrTicketNotFound       = errors.New("ticket: ticket not found")
	ErrTicketExists         = errors.New("ticket: ticket already exists")
	ErrTicketNotCancellable = errors.New("ticket: only active tickets can be cancelled")
	ErrStoreUnavailable     = errors.New("ticket: store unavailable")
	ErrIncompleteSource     = errors.New("ticket: incomplete issuance source")
	ErrPayloadTooLarge      = errors.New("ticket: encoded payload exceeds qr capacity")
	ErrWeakKey              = errors.New("ticket: signing key too short")
)

// Reason is the machine readable code scanners render from. It is never
// derived from an error message.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonMalformedPayload  Reason = "MALFORMED_PAYLOAD"
	ReasonSignatureMismatch Reason = "SIGNATURE_MISMATCH"
	ReasonUnknownTicket     Reason = "UNKNOWN_TICKET"
	ReasonExpired           Reason = "EXPIRED"
	ReasonCancelled         Reason = "CANCELLED"
	ReasonAlreadyUsed       Reason = "ALREADY_USED"
	ReasonStoreUnavailable  Reason = "STORE_UNAVAILABLE"
	ReasonIncompleteSource  Reason = "INCOMPLETE_SOURCE"
	ReasonTicketExists      Reason = "TICKET_EXISTS"
)

// Retryable reports whether a caller may safely repeat the request.
func (r Reason) Retryable() bool {
	return r == ReasonStoreUnavailable
}

// ReasonFor maps an issuance or store error to its reason code. Anything
// unrecognised is treated as the store being unavailable.
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrMalformedPayload), errors.Is(err, ErrPayloadTooLarge):
		return ReasonMalformedPayload
	case errors.Is(err, ErrTicketNotFound):
		return ReasonUnknownTicket
	case errors.Is(err, ErrIncompleteSource):
		return ReasonIncompleteSource
	case errors.Is(err, ErrTicketExists):
		return ReasonTicketExists
	default:
		return ReasonStoreUnavailable
	}
}
