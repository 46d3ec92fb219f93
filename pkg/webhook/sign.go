// Package webhook implements signed, at-least-once delivery of run
// lifecycle events: canonical payload serialization, HMAC signing, bounded
// retry with an immutable attempt log, and operator notification when
// delivery fails permanently.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Sign computes the delivery signature for a serialized payload. The bytes
// signed here must be the exact bytes sent on the wire.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header against the payload in constant time.
func Verify(payload []byte, signature, secret string) bool {
	digest, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(digest), []byte(expected))
}
