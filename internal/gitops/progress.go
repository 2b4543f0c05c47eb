package gitops

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Progress is one normalized progress observation from a running operation.
type Progress struct {
	Phase     string
	Percent   uint32
	Objects   *int64
	Bytes     *int64
	TotalHint *int64
}

// Phase names reported through Options.OnProgress. Sideband lines from the
// remote are normalized onto this fixed set; "Upload" marks the point in a
// push after which object data has left the client.
const (
	PhaseStarting    = "Starting"
	PhaseNegotiating = "Negotiating"
	PhaseCounting    = "Counting"
	PhaseCompressing = "Compressing"
	PhaseReceiving   = "Receiving"
	PhaseResolving   = "Resolving"
	PhaseUpload      = "Upload"
	PhaseCheckout    = "Checkout"
	PhaseRetrying    = "Retrying"
)

var progressLine = regexp.MustCompile(`^(remote: )?([A-Za-z ]+):\s+(\d+)% \((\d+)/(\d+)\)`)

// progressWriter adapts go-git's sideband progress stream (an io.Writer
// receiving human-readable progress text) into Progress callbacks. It also
// polls the interrupt flag so a cancel takes effect at the next sideband
// message even when the transport is mid-transfer.
type progressWriter struct {
	mu        sync.Mutex
	onEvent   func(Progress)
	interrupt func() bool
	partial   string
	upload    bool
	canceled  bool
}

func newProgressWriter(onEvent func(Progress), interrupt func() bool) *progressWriter {
	return &progressWriter{onEvent: onEvent, interrupt: interrupt}
}

// canceledObserved reports whether the writer aborted the transfer after
// seeing the interrupt flag.
func (w *progressWriter) canceledObserved() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canceled
}

// uploadStarted reports whether a push has begun sending object data.
func (w *progressWriter) uploadStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.upload
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.interrupt != nil && w.interrupt() {
		w.canceled = true
		return 0, errInterrupted
	}

	w.partial += string(p)
	for {
		idx := strings.IndexAny(w.partial, "\r\n")
		if idx < 0 {
			break
		}
		line := w.partial[:idx]
		w.partial = w.partial[idx+1:]
		if ev, ok := parseProgressLine(line); ok {
			if ev.Phase == PhaseUpload {
				w.upload = true
			}
			if w.onEvent != nil {
				w.onEvent(ev)
			}
		}
	}
	return len(p), nil
}

func parseProgressLine(line string) (Progress, bool) {
	m := progressLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Progress{}, false
	}
	pct, _ := strconv.ParseUint(m[3], 10, 32)
	done, _ := strconv.ParseInt(m[4], 10, 64)
	total, _ := strconv.ParseInt(m[5], 10, 64)

	var phase string
	switch {
	case strings.HasPrefix(m[2], "Counting"):
		phase = PhaseCounting
	case strings.HasPrefix(m[2], "Compressing"):
		phase = PhaseCompressing
	case strings.HasPrefix(m[2], "Receiving"):
		phase = PhaseReceiving
	case strings.HasPrefix(m[2], "Resolving"):
		phase = PhaseResolving
	case strings.HasPrefix(m[2], "Writing"):
		phase = PhaseUpload
	case strings.HasPrefix(m[2], "Enumerating"):
		phase = PhaseNegotiating
	default:
		phase = strings.TrimSpace(m[2])
	}
	return Progress{Phase: phase, Percent: uint32(pct), Objects: &done, TotalHint: &total}, true
}
