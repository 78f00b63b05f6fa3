package qrticket

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"ticket-admission/internal/status"
)

// KeySize is the length of a derived signing key.
const KeySize = 32

var hkdfInfoTicketSigning = []byte("ticket-admission.qr.hmac.v1")

// DeriveKey turns an operator supplied secret into a fixed length HMAC key.
// The same secret always yields the same key, so payloads signed before a
// restart still verify after it.
func DeriveKey(secret []byte) ([]byte, error) {
	if len(secret) < KeySize {
		return nil, status.ErrWeakKey
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfoTicketSigning), key); err != nil {
		return nil, fmt.Errorf("qrticket: deriving signing key: %w", err)
	}
	return key, nil
}
