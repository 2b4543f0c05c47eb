// Package adaptivetransport implements C3: TCP+TLS connection establishment
// with staged Fake->Real->Default fallback, per-connection observability,
// the auto-disable safeguard, and the URL-rewrite rollout policy.
package adaptivetransport

// Stage is one step in the Fake -> Real -> Default fallback partial order.
type Stage string

const (
	StageFake    Stage = "Fake"
	StageReal    Stage = "Real"
	StageDefault Stage = "Default"
)

// next returns the stage to advance to after the current stage exhausts its
// candidates: Fake->Real on fake-handshake errors, Real->Default otherwise.
// Default is terminal: next returns ("", false).
func (s Stage) next() (Stage, bool) {
	switch s {
	case StageFake:
		return StageReal, true
	case StageReal:
		return StageDefault, true
	default:
		return "", false
	}
}

// sni returns the SNI value to present for this stage, and whether the
// verifier should be configured with a real-host override (Fake only).
func (s Stage) sni(fakeHost, realHost string) (presented string, override string) {
	if s == StageFake && fakeHost != "" {
		return fakeHost, realHost
	}
	return realHost, ""
}
