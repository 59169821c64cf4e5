package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEnvelopeID computes a deterministic envelope id using SHA256.
// Formula: SHA256(signature|topic)
// Returns hex-encoded hash (64 characters). Used as the outbox dedupe key.
func ComputeEnvelopeID(signature, topic string) string {
	data := fmt.Sprintf("%s|%s", signature, topic)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
