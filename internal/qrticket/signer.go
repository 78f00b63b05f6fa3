package qrticket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"ticket-admission/internal/status"
	"ticket-admission/models"
)

const signatureHexLen = sha256.Size * 2

// Signer computes and checks payload signatures. It owns its keys; callers
// hand them over once at startup.
type Signer struct {
	current  []byte
	previous [][]byte
}

// NewSigner returns a signer that signs with key and also accepts
// signatures made with any of previous. previous keys exist so tickets
// issued before a key rotation keep verifying until they expire.
func NewSigner(key []byte, previous ...[]byte) (*Signer, error) {
	if len(key) < KeySize {
		return nil, status.ErrWeakKey
	}
	s := &Signer{current: append([]byte(nil), key...)}
	for i, k := range previous {
		if len(k) < KeySize {
			return nil, fmt.Errorf("qrticket: previous key #%d: %w", i+1, status.ErrWeakKey)
		}
		s.previous = append(s.previous, append([]byte(nil), k...))
	}
	return s, nil
}

// Sign returns the lowercase hex HMAC-SHA256 of the payload's canonical
// bytes. Any signature already set on p is ignored.
func (s *Signer) Sign(p models.TicketPayload) (string, error) {
	msg, err := canonicalBytes(p)
	if err != nil {
		return "", fmt.Errorf("qrticket: canonicalizing payload: %w", err)
	}
	return hex.EncodeToString(mac(s.current, msg)), nil
}

// Verify reports whether signature was produced over p by one of the
// signer's keys. It never fails loudly; malformed input is just false.
func (s *Signer) Verify(p models.TicketPayload, signature string) bool {
	got, ok := decodeSignature(signature)
	if !ok {
		return false
	}
	msg, err := canonicalBytes(p)
	if err != nil {
		return false
	}

	valid := hmac.Equal(got, mac(s.current, msg))
	for _, k := range s.previous {
		if hmac.Equal(got, mac(k, msg)) {
			valid = true
		}
	}
	return valid
}

func mac(key, msg []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	return h.Sum(nil)
}

// decodeSignature accepts only the exact form Sign produces. Uppercase hex
// would decode to the same bytes, so it is rejected up front.
func decodeSignature(sig string) ([]byte, bool) {
	if len(sig) != signatureHexLen {
		return nil, false
	}
	for i := 0; i < len(sig); i++ {
		c := sig[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return nil, false
		}
	}
	b, err := hex.DecodeString(sig)
	if err != nil {
		return nil, false
	}
	return b, true
}
