package events

import (
	"time"
)

// Sink receives structured events from any subsystem without requiring the
// publisher to depend on Bus. Bus satisfies this via BusSink.
type Sink interface {
	Publish(evt any)
}

// NopSink discards every event published to it.
type NopSink struct{}

func (NopSink) Publish(any) {}

// BusSink adapts a *Bus to the Sink interface; publish errors (nil event,
// closed bus) are swallowed, matching the fire-and-forget Sink contract.
type BusSink struct {
	Bus *Bus
}

func (s BusSink) Publish(evt any) {
	if s.Bus == nil {
		return
	}
	_ = s.Bus.Publish(evt)
}

// Task lifecycle events.

type TaskStarted struct {
	TaskID string    `json:"taskId"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
}

type TaskProgress struct {
	TaskID       string `json:"taskId"`
	Kind         string `json:"kind"`
	Phase        string `json:"phase"`
	Percent      uint32 `json:"percent"`
	Objects      *int64 `json:"objects,omitempty"`
	Bytes        *int64 `json:"bytes,omitempty"`
	TotalHint    *int64 `json:"totalHint,omitempty"`
	RetriedTimes *int   `json:"retriedTimes,omitempty"`
}

type TaskCompleted struct {
	TaskID string    `json:"taskId"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
}

type TaskFailed struct {
	TaskID       string `json:"taskId"`
	Kind         string `json:"kind"`
	Category     string `json:"category"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message"`
	RetriedTimes int    `json:"retriedTimes"`
}

type TaskCanceled struct {
	TaskID string    `json:"taskId"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
}

// Strategy / transport / policy events.

type StrategyHTTPApplied struct {
	TaskID          string `json:"taskId"`
	FollowRedirects bool   `json:"followRedirects"`
	MaxRedirects    int    `json:"maxRedirects"`
}

type StrategyTLSApplied struct {
	TaskID           string `json:"taskId"`
	InsecureSkip     bool   `json:"insecureSkipVerify"`
	SkipSANWhitelist bool   `json:"skipSanWhitelist"`
}

type StrategyRetryApplied struct {
	TaskID        string   `json:"taskId"`
	Max           int      `json:"max"`
	BaseMs        int      `json:"baseMs"`
	Factor        float64  `json:"factor"`
	Jitter        bool     `json:"jitter"`
	ChangedFields []string `json:"changedFields"`
}

type StrategySummary struct {
	TaskID        string   `json:"taskId"`
	AppliedCodes  []string `json:"appliedCodes"`
	IgnoredFields []string `json:"ignoredFields"`
}

type StrategyIgnoredFields struct {
	TaskID string   `json:"taskId"`
	Fields []string `json:"fields"`
}

type StrategyConflict struct {
	TaskID string `json:"taskId"`
	Detail string `json:"detail"`
}

type AdaptiveTLSTiming struct {
	TaskID      string `json:"taskId"`
	Host        string `json:"host"`
	ConnectMs   int64  `json:"connectMs"`
	TLSMs       int64  `json:"tlsMs"`
	FirstByteMs int64  `json:"firstByteMs"`
	TotalMs     int64  `json:"totalMs"`
	UsedFake    bool   `json:"usedFake"`
}

type AdaptiveTLSFallback struct {
	TaskID string `json:"taskId"`
	Host   string `json:"host"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

type AdaptiveTLSAutoDisable struct {
	Host         string `json:"host"`
	Enabled      bool   `json:"enabled"`
	ThresholdPct int    `json:"thresholdPct,omitempty"`
}

type AdaptiveTLSRollout struct {
	Host     string `json:"host"`
	Percent  int    `json:"percent"`
	Rewrote  bool   `json:"rewrote"`
}

type CertFpChanged struct {
	Host   string `json:"host"`
	OldFp  string `json:"oldFp"`
	NewFp  string `json:"newFp"`
}

type CertFpPinMismatch struct {
	ID        string `json:"id"`
	Host      string `json:"host"`
	SPKISha256 string `json:"spkiSha256"`
	PinCount  uint8  `json:"pinCount"`
}

type IPPoolSelection struct {
	Host     string `json:"host"`
	Port     uint16 `json:"port"`
	Strategy string `json:"strategy"` // Cached|SystemDefault
	Source   string `json:"source,omitempty"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
}

type IPPoolRefresh struct {
	Host    string `json:"host"`
	Port    uint16 `json:"port"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

type ProxyState struct {
	Previous string    `json:"previous"`
	Current  string    `json:"current"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

type ProxyFallback struct {
	Automatic    bool    `json:"automatic"`
	FailureRate  float64 `json:"failureRate"`
	WindowSecs   int     `json:"windowSecs"`
	SanitizedURL string  `json:"sanitizedUrl,omitempty"`
}

type ProxyRecovered struct {
	At time.Time `json:"at"`
}

type ProxyHealthCheck struct {
	Success   bool   `json:"success"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
	Error     string `json:"error,omitempty"`
}

type SystemProxyDetected struct {
	URL string `json:"url"`
}

type MetricMemoryPressure struct {
	EstimatedBytes int64 `json:"estimatedBytes"`
	LimitBytes     int64 `json:"limitBytes"`
}

type MetricAlert struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type TransportPartialFilterCapability struct {
	Supported bool `json:"supported"`
}

type TransportPartialFilterUnsupported struct {
	Filter string `json:"filter"`
}

type TransportPartialFilterFallback struct {
	Shallow bool `json:"shallow"`
}
