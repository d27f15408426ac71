package certs

import (
	"net"
	"testing"
	"time"
)

func TestGenerateFingerprintShortIsPrefixOfFull(t *testing.T) {
	id, err := Generate(net.ParseIP("192.168.1.50"), time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	full := id.FingerprintHex()
	short := id.FingerprintShort()
	if len(short) != 16 {
		t.Fatalf("expected 16-char short fingerprint, got %d", len(short))
	}
	if full[:16] != short {
		t.Fatalf("short fingerprint %q is not a prefix of full %q", short, full)
	}
}

func TestTOFUClientTLSConfigRejectsMismatch(t *testing.T) {
	id, err := Generate(nil, time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	cfg := TOFUClientTLSConfig(id.FingerprintShort())
	if err := cfg.VerifyPeerCertificate([][]byte{id.TLSCert.Certificate[0]}, nil); err != nil {
		t.Fatalf("expected matching fingerprint to verify, got %v", err)
	}

	other, err := Generate(nil, time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := cfg.VerifyPeerCertificate([][]byte{other.TLSCert.Certificate[0]}, nil); err == nil {
		t.Fatal("expected mismatched fingerprint to be rejected")
	}
}

func TestTOFUClientTLSConfigRejectsEmptyChain(t *testing.T) {
	cfg := TOFUClientTLSConfig("deadbeefdeadbeef")
	if err := cfg.VerifyPeerCertificate(nil, nil); err == nil {
		t.Fatal("expected empty certificate chain to be rejected")
	}
}

func TestTOFUClientTLSConfigRejectsEmptyPin(t *testing.T) {
	id, err := Generate(nil, time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	cfg := TOFUClientTLSConfig("")
	if err := cfg.VerifyPeerCertificate([][]byte{id.TLSCert.Certificate[0]}, nil); err == nil {
		t.Fatal("expected an empty pinned fingerprint to reject every certificate, not trust-on-any")
	}
}
