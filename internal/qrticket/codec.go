package qrticket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ticket-admission/internal/status"
	"ticket-admission/models"
)

// MaxEncodedSize keeps an encoded payload inside what common QR versions
// hold at medium error correction.
const MaxEncodedSize = 2048

// ParseError is returned by Decode for any input it cannot turn into a
// payload. It matches status.ErrMalformedPayload under errors.Is.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("qrticket: %s: %v", e.Reason, e.Err)
	}
	return "qrticket: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool {
	return target == status.ErrMalformedPayload
}

func parseError(reason string, err error) *ParseError {
	return &ParseError{Reason: reason, Err: err}
}

// Encode renders a signed payload as the compact JSON string carried by the
// QR code.
func Encode(p models.TicketPayload) (string, error) {
	if p.Signature == "" {
		return "", fmt.Errorf("qrticket: payload %q is not signed: %w", p.TicketID, status.ErrMalformedPayload)
	}
	if p.Version != Version {
		return "", fmt.Errorf("qrticket: unsupported version %d: %w", p.Version, status.ErrMalformedPayload)
	}
	if field, ok := invalidUTF8Field(p); ok {
		return "", fmt.Errorf("qrticket: %s is not valid utf-8: %w", field, status.ErrMalformedPayload)
	}
	data, err := marshal(p)
	if err != nil {
		return "", fmt.Errorf("qrticket: encoding payload: %w", err)
	}
	if len(data) > MaxEncodedSize {
		return "", fmt.Errorf("qrticket: %d bytes: %w", len(data), status.ErrPayloadTooLarge)
	}
	return string(data), nil
}

// Decode parses a scanned string. It returns a *ParseError for anything that
// is not a complete payload of the current version in the exact form Encode
// produces: keys in wire order and case, compact, no escapes Encode would not
// write. Surrounding whitespace is ignored.
func Decode(raw string) (models.TicketPayload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.TicketPayload{}, parseError("empty payload", nil)
	}
	if len(raw) > MaxEncodedSize {
		return models.TicketPayload{}, parseError(fmt.Sprintf("payload exceeds %d bytes", MaxEncodedSize), status.ErrPayloadTooLarge)
	}
	if !utf8.ValidString(raw) {
		return models.TicketPayload{}, parseError("invalid utf-8", nil)
	}

	// The probe also rejects trailing data, since Unmarshal requires exactly
	// one JSON value.
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return models.TicketPayload{}, parseError("invalid json", err)
	}
	if probe.Version == nil {
		return models.TicketPayload{}, parseError("missing version", nil)
	}
	if *probe.Version != Version {
		return models.TicketPayload{}, parseError(fmt.Sprintf("unsupported version %d", *probe.Version), nil)
	}

	var p models.TicketPayload
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return models.TicketPayload{}, parseError("invalid payload", err)
	}

	switch {
	case p.TicketID == "":
		return models.TicketPayload{}, parseError("missing ticketId", nil)
	case p.Signature == "":
		return models.TicketPayload{}, parseError("missing signature", nil)
	case p.ExpiryDate == "":
		return models.TicketPayload{}, parseError("missing expiryDate", nil)
	}
	if _, err := time.Parse(time.RFC3339, p.ExpiryDate); err != nil {
		return models.TicketPayload{}, parseError("invalid expiryDate", err)
	}

	// encoding/json matches keys case-insensitively and in any order.
	canonical, err := marshal(p)
	if err != nil {
		return models.TicketPayload{}, parseError("invalid payload", err)
	}
	if string(canonical) != raw {
		return models.TicketPayload{}, parseError("non-canonical payload", nil)
	}
	return p, nil
}
