package metrics

import (
	"sync"
	"time"

	"github.com/gitcollab/core/internal/events"
)

// BridgeEvents subscribes to the structured event bus and feeds the
// corresponding Recorder hooks, so Prometheus counters track the same
// facts the event stream reports. Returns a stop function that
// unsubscribes and waits for the drains to finish.
func BridgeEvents(bus *events.Bus, rec Recorder) func() {
	if rec == nil {
		rec = NoopRecorder{}
	}
	var cancels []func()
	done := make(chan struct{}, 16)
	track := func(cancel func()) { cancels = append(cancels, cancel) }

	drain := func(loop func()) {
		go func() {
			loop()
			done <- struct{}{}
		}()
	}

	var startedMu sync.Mutex
	startedAt := make(map[string]time.Time)

	chStart, c1 := events.Subscribe[events.TaskStarted](bus, 64)
	track(c1)
	drain(func() {
		for e := range chStart {
			startedMu.Lock()
			startedAt[e.TaskID] = e.At
			startedMu.Unlock()
		}
	})

	chDone, c2 := events.Subscribe[events.TaskCompleted](bus, 64)
	track(c2)
	drain(func() {
		for e := range chDone {
			rec.IncTaskOutcome(e.Kind, OutcomeSuccess)
			startedMu.Lock()
			at, ok := startedAt[e.TaskID]
			delete(startedAt, e.TaskID)
			startedMu.Unlock()
			if ok {
				rec.ObserveTaskDuration(e.Kind, e.At.Sub(at))
			}
		}
	})

	chFail, c3 := events.Subscribe[events.TaskFailed](bus, 64)
	track(c3)
	drain(func() {
		for e := range chFail {
			rec.IncTaskOutcome(e.Kind, OutcomeFailed)
			if e.RetriedTimes > 0 {
				rec.IncTaskRetry(e.Kind)
			}
		}
	})

	chCancel, c4 := events.Subscribe[events.TaskCanceled](bus, 64)
	track(c4)
	drain(func() {
		for e := range chCancel {
			rec.IncTaskOutcome(e.Kind, OutcomeCanceled)
		}
	})

	chTiming, c5 := events.Subscribe[events.AdaptiveTLSTiming](bus, 64)
	track(c5)
	drain(func() {
		for e := range chTiming {
			rec.ObserveConnectDuration(e.Host, time.Duration(e.ConnectMs)*time.Millisecond)
			rec.ObserveTLSHandshakeDuration(e.Host, time.Duration(e.TLSMs)*time.Millisecond)
		}
	})

	chFallback, c6 := events.Subscribe[events.AdaptiveTLSFallback](bus, 64)
	track(c6)
	drain(func() {
		for e := range chFallback {
			rec.IncFallbackTransition(e.From, e.To)
		}
	})

	chAuto, c7 := events.Subscribe[events.AdaptiveTLSAutoDisable](bus, 64)
	track(c7)
	drain(func() {
		for e := range chAuto {
			rec.IncAutoDisable(e.Enabled)
		}
	})

	chSel, c8 := events.Subscribe[events.IPPoolSelection](bus, 64)
	track(c8)
	drain(func() {
		for e := range chSel {
			rec.IncIPPoolSelection(e.Strategy, "")
		}
	})

	chRefresh, c9 := events.Subscribe[events.IPPoolRefresh](bus, 64)
	track(c9)
	drain(func() {
		for e := range chRefresh {
			rec.IncIPPoolRefresh(e.Success)
		}
	})

	chProxy, c10 := events.Subscribe[events.ProxyState](bus, 64)
	track(c10)
	drain(func() {
		for e := range chProxy {
			rec.IncProxyStateChange(e.Previous, e.Current)
		}
	})

	chHealth, c11 := events.Subscribe[events.ProxyHealthCheck](bus, 64)
	track(c11)
	drain(func() {
		for e := range chHealth {
			rec.IncProxyHealthCheck(e.Success)
		}
	})

	total := 11
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
		for i := 0; i < total; i++ {
			<-done
		}
	}
}
