package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

func mac(secret string, payload []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(payload)
	return m.Sum(nil)
}

// SignHex returns the hex HMAC-SHA256 of payload.
func SignHex(secret string, payload []byte) string {
	return hex.EncodeToString(mac(secret, payload))
}

// SignBase64 returns the standard base64 HMAC-SHA256 of payload.
func SignBase64(secret string, payload []byte) string {
	return base64.StdEncoding.EncodeToString(mac(secret, payload))
}

func verifyHex(secret string, payload []byte, signature string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil || len(provided) == 0 {
		return false
	}
	return hmac.Equal(provided, mac(secret, payload))
}

func verifyBase64(secret string, payload []byte, signature string) bool {
	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(provided) == 0 {
		return false
	}
	return hmac.Equal(provided, mac(secret, payload))
}
