package tlsverify

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
)

// spkiPinLen is the fixed length of a base64url-nopad SHA-256 digest (32
// raw bytes -> 43 base64url characters without padding).
const spkiPinLen = 43

// ValidatePins returns the pin list unchanged if every entry is a
// well-formed base64url-nopad SHA-256 digest and the list has at most 10
// entries; otherwise it returns (nil, false), meaning the caller should
// treat pinning as disabled for this connection.
func ValidatePins(pins []string) ([]string, bool) {
	if len(pins) == 0 {
		return nil, false
	}
	if len(pins) > 10 {
		return nil, false
	}
	for _, p := range pins {
		if len(p) != spkiPinLen {
			return nil, false
		}
		if _, err := base64.RawURLEncoding.DecodeString(p); err != nil {
			return nil, false
		}
	}
	return pins, true
}

// ComputeSPKISHA256 returns the base64url-nopad SHA-256 digest of the
// certificate's SubjectPublicKeyInfo, falling back to hashing the whole
// certificate DER when re-encoding the SPKI is not possible.
func ComputeSPKISHA256(cert *x509.Certificate) (digest string, fromWholeCert bool) {
	if len(cert.RawSubjectPublicKeyInfo) > 0 {
		sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
		return base64.RawURLEncoding.EncodeToString(sum[:]), false
	}
	sum := sha256.Sum256(cert.Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:]), true
}

// PinMatches reports whether digest equals any entry in pins.
func PinMatches(pins []string, digest string) bool {
	for _, p := range pins {
		if p == digest {
			return true
		}
	}
	return false
}
