// Package certs generates the ephemeral self-signed ECDSA P-256 identity a
// receiver presents for its signaling TLS server, and the trust-on-first-use
// verification callback a sender uses to pin it.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

// Identity holds one receiver process's TLS certificate and its SHA-256
// fingerprint. Lifetime equals the receiver process lifetime — unlike a
// web-facing certificate there is no renewal: the process exits and the
// next launch mints a fresh one.
type Identity struct {
	TLSCert     tls.Certificate
	Fingerprint [32]byte
}

// FingerprintHex returns the full lower-case hex SHA-256 fingerprint.
func (id *Identity) FingerprintHex() string {
	return hex.EncodeToString(id.Fingerprint[:])
}

// FingerprintShort returns the first 16 hex characters, the form published
// in the discovery TXT record's "fp" key.
func (id *Identity) FingerprintShort() string {
	return id.FingerprintHex()[:16]
}

// Generate mints a new self-signed ECDSA P-256 certificate covering
// localhost, the local hostname, and lanIP, valid for the given duration.
// Receivers should pass a duration comfortably longer than any expected
// process lifetime; there is no rotation.
func Generate(lanIP net.IP, validity time.Duration) (*Identity, error) {
	if validity <= 0 {
		validity = 24 * 365 * time.Hour
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("certs: generate private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("certs: generate serial number: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "duallink-receiver"
	}

	now := time.Now()
	notBefore := now.Add(-1 * time.Minute)

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "duallink-receiver"},
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost", hostname},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	if lanIP != nil {
		template.IPAddresses = append(template.IPAddresses, lanIP)
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("certs: create certificate: %w", err)
	}

	return &Identity{
		TLSCert:     tls.Certificate{Certificate: [][]byte{certDER}, PrivateKey: key},
		Fingerprint: sha256.Sum256(certDER),
	}, nil
}

// ServerTLSConfig returns a minimal server-side TLS config presenting id,
// requiring TLS 1.2 at minimum per the wire contract.
func (id *Identity) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{id.TLSCert},
		MinVersion:   tls.VersionTLS12,
	}
}

// TOFUClientTLSConfig returns a client-side TLS config that accepts any
// certificate whose SHA-256 fingerprint equals expectedFingerprintHex
// (full hex, or a prefix as published in discovery — at least the first
// 16 hex chars). All other certificates are rejected; this is the only
// verification performed, so InsecureSkipVerify is paired with an explicit
// VerifyPeerCertificate callback rather than left wide open.
func TOFUClientTLSConfig(expectedFingerprintHex string) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if expectedFingerprintHex == "" {
				return fmt.Errorf("certs: no pinned fingerprint configured, refusing to trust any certificate")
			}
			if len(expectedFingerprintHex) < 16 {
				return fmt.Errorf("certs: pinned fingerprint %q is shorter than 16 hex characters", expectedFingerprintHex)
			}
			if len(rawCerts) == 0 {
				return fmt.Errorf("certs: peer presented no certificate")
			}
			sum := sha256.Sum256(rawCerts[0])
			got := hex.EncodeToString(sum[:])
			if len(got) < len(expectedFingerprintHex) || got[:len(expectedFingerprintHex)] != expectedFingerprintHex {
				return fmt.Errorf("certs: TOFU fingerprint mismatch: expected prefix %s, got %s", expectedFingerprintHex, got)
			}
			return nil
		},
	}
}
