package utils

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

const (
	TrackingPrefix    = "RF-"
	trackingIDLength  = 10
	crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
)

func GenerateUUID() string {
	return uuid.New().String()
}

// NewTrackingID returns a customer-facing order code such as RF-7K2M9QXD4T.
// It is drawn from crypto/rand and shares nothing with the internal order ID.
func NewTrackingID() string {
	b := make([]byte, trackingIDLength)
	_, _ = rand.Read(b)
	out := make([]byte, trackingIDLength)
	for i, v := range b {
		out[i] = crockfordAlphabet[v&31]
	}
	return TrackingPrefix + string(out)
}

// NormalizeTrackingID upper-cases a customer-typed code and maps the
// ambiguous letters Crockford base32 excludes onto their digits.
func NormalizeTrackingID(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(s, TrackingPrefix) {
		return s
	}
	body := strings.NewReplacer("O", "0", "I", "1", "L", "1").Replace(s[len(TrackingPrefix):])
	return TrackingPrefix + body
}

func IsTrackingID(s string) bool {
	s = NormalizeTrackingID(s)
	if len(s) != len(TrackingPrefix)+trackingIDLength || !strings.HasPrefix(s, TrackingPrefix) {
		return false
	}
	for _, r := range s[len(TrackingPrefix):] {
		if !strings.ContainsRune(crockfordAlphabet, r) {
			return false
		}
	}
	return true
}
