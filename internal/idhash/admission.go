package idhash

import "github.com/cespare/xxhash/v2"

// AdmissionFraction maps a signature to a stable point in [0,1).
// The top 53 bits of the xxhash64 digest become the float mantissa, so the
// full hash contributes and the result has no visible quantization.
func AdmissionFraction(signature string) float64 {
	h := xxhash.Sum64String(signature)
	return float64(h>>11) / (1 << 53)
}
