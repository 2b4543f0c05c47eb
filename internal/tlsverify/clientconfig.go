package tlsverify

import (
	"crypto/tls"
	"crypto/x509"
	"time"

	"github.com/gitcollab/core/internal/classerr"
)

// VerifyPeerCertificate builds the tls.Config.VerifyPeerCertificate hook
// implementing C1's decision table. It is used with InsecureSkipVerify=true
// on the underlying tls.Config so Go's default hostname/chain verification
// never runs ahead of this one (the original implementation layers its own
// verifier rather than delegating to net/http's).
func VerifyPeerCertificate(opts Options) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		chain := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return classerr.WrapError(err, classerr.CategoryVerify, "failed to parse peer certificate").Build()
			}
			chain = append(chain, cert)
		}
		return Verify(opts, chain, time.Now())
	}
}

// NewClientTLSConfig returns a *tls.Config wired to VerifyPeerCertificate,
// bypassing the stdlib verifier so the SAN whitelist / SPKI pin / Real-Host
// rules apply exclusively. serverName is the SNI value sent on the wire
// (possibly a fake SNI; the real host is carried in opts.OverrideHost).
func NewClientTLSConfig(serverName string, opts Options) *tls.Config {
	opts.PresentedName = serverName
	return &tls.Config{
		ServerName:            serverName,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: VerifyPeerCertificate(opts),
		MinVersion:            tls.VersionTLS12,
	}
}
