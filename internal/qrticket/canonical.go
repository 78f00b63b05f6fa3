package qrticket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"ticket-admission/internal/status"
	"ticket-admission/models"
)

// Version is the wire schema written by Encode. Decode accepts only this
// value.
const Version = 1

// canonicalBytes is the byte sequence the signature covers: the payload
// object in wire key order without the signature key. Text that is not
// valid UTF-8 is refused: the encoder would replace it with U+FFFD and two
// different payloads would share one signature.
func canonicalBytes(p models.TicketPayload) ([]byte, error) {
	if field, ok := invalidUTF8Field(p); ok {
		return nil, fmt.Errorf("qrticket: %s is not valid utf-8: %w", field, status.ErrMalformedPayload)
	}
	return marshal(p.Unsigned())
}

func marshal(p models.TicketPayload) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func invalidUTF8Field(p models.TicketPayload) (string, bool) {
	fields := []struct{ name, value string }{
		{"ticketId", p.TicketID},
		{"eventId", p.EventID},
		{"eventTitle", p.EventTitle},
		{"userId", p.UserID},
		{"userEmail", p.UserEmail},
		{"tierName", p.TierName},
		{"seatNumber", p.SeatNumber},
		{"purchaseDate", p.PurchaseDate},
		{"eventDate", p.EventDate},
		{"eventTime", p.EventTime},
		{"venue", p.Venue},
		{"price", p.Price},
		{"issuedAt", p.IssuedAt},
		{"expiryDate", p.ExpiryDate},
		{"signature", p.Signature},
	}
	for _, f := range fields {
		if !utf8.ValidString(f.value) {
			return f.name, true
		}
	}
	return "", false
}
