package idhash

import (
	"fmt"
	"testing"
)

func TestAdmissionFraction_Range(t *testing.T) {
	for i := 0; i < 10000; i++ {
		u := AdmissionFraction(fmt.Sprintf("sig-%d", i))
		if u < 0 || u >= 1 {
			t.Fatalf("AdmissionFraction() = %v, want [0,1)", u)
		}
	}
}

func TestAdmissionFraction_Deterministic(t *testing.T) {
	sig := "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi"
	if AdmissionFraction(sig) != AdmissionFraction(sig) {
		t.Error("same signature produced different fractions")
	}
	if AdmissionFraction(sig) == AdmissionFraction(sig+"x") {
		t.Error("different signatures produced the same fraction")
	}
}

func TestAdmissionFraction_NotQuantized(t *testing.T) {
	seen := make(map[float64]struct{})
	for i := 0; i < 1000; i++ {
		seen[AdmissionFraction(fmt.Sprintf("sig-%d", i))] = struct{}{}
	}
	// a single-byte hash could produce at most 256 distinct values
	if len(seen) <= 256 {
		t.Errorf("got %d distinct values, want > 256", len(seen))
	}
}
