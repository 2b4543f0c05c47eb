package tlsverify

import (
	"crypto/x509"
	"time"

	"github.com/gitcollab/core/internal/classerr"
	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/events"
)

// Options configures one connection attempt's verification. OverrideHost is
// set to the real destination host when the handshake used a fake SNI
// (Real-Host binding); PresentedName is the SNI value actually sent.
type Options struct {
	TLS           config.TLSConfig
	PresentedName string
	OverrideHost  string
	TaskID        string
	Sink          events.Sink
}

func (o Options) sink() events.Sink {
	if o.Sink == nil {
		return events.NopSink{}
	}
	return o.Sink
}

func (o Options) effectiveHost() string {
	if o.TLS.RealHostVerifyEnabled && o.OverrideHost != "" {
		return o.OverrideHost
	}
	return o.PresentedName
}

// Verify implements the C1 decision table against a completed TLS chain.
// chain[0] is the end-entity (leaf) certificate; the remainder are
// intermediates presented by the peer. now is injectable for testing.
func Verify(opts Options, chain []*x509.Certificate, now time.Time) error {
	if len(chain) == 0 {
		return classerr.VerifyError("empty certificate chain").Build()
	}
	leaf := chain[0]
	host := opts.effectiveHost()

	switch {
	case opts.TLS.InsecureSkipVerify && opts.TLS.SkipSANWhitelist:
		// unconditional accept
	case opts.TLS.InsecureSkipVerify:
		if !MatchAny(opts.TLS.SANWhitelist, host) {
			return classerr.VerifyError("SAN whitelist mismatch").
				WithContext("host", host).Build()
		}
	case opts.TLS.SkipSANWhitelist:
		if err := verifyWebPKI(leaf, chain[1:], opts.PresentedName, now); err != nil {
			return err
		}
	default:
		if err := verifyWebPKI(leaf, chain[1:], opts.PresentedName, now); err != nil {
			return err
		}
		if !MatchAny(opts.TLS.SANWhitelist, host) {
			return classerr.VerifyError("SAN whitelist mismatch").
				WithContext("host", host).Build()
		}
	}

	return checkSPKIPins(opts, leaf, host)
}

func verifyWebPKI(leaf *x509.Certificate, intermediates []*x509.Certificate, presentedName string, now time.Time) error {
	pool := x509.NewCertPool()
	for _, c := range intermediates {
		pool.AddCert(c)
	}
	opts := x509.VerifyOptions{
		DNSName:       presentedName,
		Intermediates: pool,
		CurrentTime:   now,
	}
	if _, err := leaf.Verify(opts); err != nil {
		return classerr.WrapError(err, classerr.CategoryVerify, "certificate chain verification failed").Build()
	}
	return nil
}

func checkSPKIPins(opts Options, leaf *x509.Certificate, host string) error {
	validPins, ok := ValidatePins(opts.TLS.SPKIPins)
	if !ok {
		// Invalid or empty pin list: pinning disabled for this connection.
		return nil
	}
	digest, _ := ComputeSPKISHA256(leaf)
	if PinMatches(validPins, digest) {
		return nil
	}
	opts.sink().Publish(events.CertFpPinMismatch{
		ID:         host,
		Host:       host,
		SPKISha256: digest,
		PinCount:   uint8(len(validPins)),
	})
	return classerr.VerifyError("cert_fp_pin_mismatch").
		WithContext("host", host).Build()
}
