package idhash

import "testing"

func TestComputeEnvelopeID(t *testing.T) {
	tests := []struct {
		name      string
		signature string
		topic     string
	}{
		{"global topic", "5xSig111", "events:all"},
		{"program topic", "5xSig111", "events:program:675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"},
		{"empty inputs", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeEnvelopeID(tt.signature, tt.topic)

			if len(got) != 64 {
				t.Errorf("ComputeEnvelopeID() length = %d, want 64", len(got))
			}
			if again := ComputeEnvelopeID(tt.signature, tt.topic); again != got {
				t.Errorf("ComputeEnvelopeID() not deterministic: %s != %s", got, again)
			}
		})
	}
}

func TestComputeEnvelopeID_TopicsDiffer(t *testing.T) {
	a := ComputeEnvelopeID("sig", "events:all")
	b := ComputeEnvelopeID("sig", "events:account:x")
	if a == b {
		t.Error("different topics should produce different ids")
	}

	// separator keeps field boundaries distinct
	if ComputeEnvelopeID("ab", "c") == ComputeEnvelopeID("a", "bc") {
		t.Error("field boundary collision")
	}
}
