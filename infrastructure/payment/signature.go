package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature accepts a bare hex digest or one prefixed with "sha256=".
func verifySignature(secret, payload []byte, signature string) error {
	if len(secret) == 0 {
		return &SignatureError{Reason: "no webhook secret configured"}
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		log.Printf("🚨 Webhook without signature (%d bytes)", len(payload))
		return &SignatureError{Reason: "missing signature"}
	}

	got, err := hex.DecodeString(signature)
	if err != nil {
		log.Printf("🚨 Webhook with malformed signature")
		return &SignatureError{Reason: "malformed signature"}
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		log.Printf("🚨 Webhook signature mismatch (%d bytes)", len(payload))
		return &SignatureError{Reason: "signature mismatch"}
	}
	return nil
}
