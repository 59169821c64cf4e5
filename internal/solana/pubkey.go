package solana

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PubkeyLength is the size of a decoded Solana public key.
const PubkeyLength = 32

// DecodePubkey decodes a base58 public key and checks its length.
func DecodePubkey(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(b) != PubkeyLength {
		return nil, fmt.Errorf("pubkey %q: length %d, want %d", s, len(b), PubkeyLength)
	}
	return b, nil
}

// IsOnCurve reports whether pubkey is a point on the ed25519 curve, i.e. an
// address that can have a private key. Program derived addresses are off curve.
// Invalid keys report false.
func IsOnCurve(pubkey string) bool {
	b, err := DecodePubkey(pubkey)
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(b)
	return err == nil
}
