package qrticket

import (
	"time"

	"ticket-admission/internal/status"
	"ticket-admission/models"
)

// Inspection is the stateless part of a scan: decode, signature and expiry.
// Both the authoritative validation path and the client pre-check start
// from it.
type Inspection struct {
	Payload        *models.TicketPayload
	SignatureValid bool
	Expired        bool
	ExpiresAt      time.Time
	Reason         status.Reason
}

// Verifier runs the checks that need only the payload and a key.
type Verifier struct {
	signer *Signer
}

func NewVerifier(signer *Signer) *Verifier {
	return &Verifier{signer: signer}
}

// Inspect decodes raw and checks its signature and expiry at now. A payload
// that decodes is returned even when the signature fails, for display.
func (v *Verifier) Inspect(raw string, now time.Time) Inspection {
	p, err := Decode(raw)
	if err != nil {
		return Inspection{Reason: status.ReasonMalformedPayload}
	}
	in := Inspection{Payload: &p}
	if !v.signer.Verify(p, p.Signature) {
		in.Reason = status.ReasonSignatureMismatch
		return in
	}
	in.SignatureValid = true

	expiresAt, err := p.ExpiresAt()
	if err != nil {
		in.SignatureValid = false
		in.Reason = status.ReasonMalformedPayload
		return in
	}
	in.ExpiresAt = expiresAt
	if IsExpired(expiresAt, now) {
		in.Expired = true
		in.Reason = status.ReasonExpired
	}
	return in
}

// PreCheck is the advisory scan a gate device runs before the server
// round trip. It never looks at ticket status, so it cannot report
// alreadyUsed; the server result always wins.
func (v *Verifier) PreCheck(raw string, now time.Time) models.ValidationResult {
	in := v.Inspect(raw, now)
	return models.ValidationResult{
		IsValid:    in.SignatureValid,
		IsExpired:  in.Expired,
		Advisory:   true,
		TicketData: in.Payload,
		Error:      in.Reason,
	}
}
