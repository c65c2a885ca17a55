package audit

import (
	"testing"
	"time"
)

func TestDrawSigner_SignVerify(t *testing.T) {
	signer := NewDrawSigner("test-secret")
	drawnAt := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	tickets := []string{"T1", "T2"}

	sig := signer.Sign(42, drawnAt, "ab12", tickets)
	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig))
	}
	if sig != signer.Sign(42, drawnAt, "ab12", tickets) {
		t.Error("signature is not deterministic")
	}
	if !signer.Verify(42, drawnAt, "ab12", tickets, sig) {
		t.Error("expected signature to verify")
	}
}

func TestDrawSigner_TimezoneIndependent(t *testing.T) {
	signer := NewDrawSigner("k")
	utc := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("CET", 3600))

	if signer.Sign(1, utc, "", nil) != signer.Sign(1, local, "", nil) {
		t.Error("same instant in different zones should sign identically")
	}
}

func TestDrawSigner_VerifyRejectsTampering(t *testing.T) {
	signer := NewDrawSigner("test-secret")
	drawnAt := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	sig := signer.Sign(42, drawnAt, "ab12", []string{"T1", "T2"})

	tests := []struct {
		name    string
		id      int64
		at      time.Time
		seed    string
		tickets []string
	}{
		{"other lottery", 43, drawnAt, "ab12", []string{"T1", "T2"}},
		{"other time", 42, drawnAt.Add(time.Second), "ab12", []string{"T1", "T2"}},
		{"other seed", 42, drawnAt, "ab13", []string{"T1", "T2"}},
		{"reordered winners", 42, drawnAt, "ab12", []string{"T2", "T1"}},
		{"dropped winner", 42, drawnAt, "ab12", []string{"T1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if signer.Verify(tt.id, tt.at, tt.seed, tt.tickets, sig) {
				t.Error("expected verification to fail")
			}
		})
	}

	if NewDrawSigner("other-secret").Verify(42, drawnAt, "ab12", []string{"T1", "T2"}, sig) {
		t.Error("expected verification with another key to fail")
	}
}
