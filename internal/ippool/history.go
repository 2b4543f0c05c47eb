package ippool

import (
	"encoding/json"
	"net"
	"os"
	"sync"
	"time"
)

// historyRecord is the on-disk shape for one (host,port) entry, matching
// a JSON list of per-(host,port) records with measurement timestamps.
type historyRecord struct {
	Host         string         `json:"host"`
	Port         uint16         `json:"port"`
	Best         historyStat    `json:"best"`
	Alternatives []historyStat  `json:"alternatives"`
}

type historyStat struct {
	Address    string   `json:"address"`
	Port       uint16   `json:"port"`
	Sources    []Source `json:"sources"`
	LatencyMs  int64    `json:"latencyMs"`
	MeasuredAt int64    `json:"measuredAt"`
	ExpiresAt  int64    `json:"expiresAt"`
}

func toHistoryStat(s Stat) historyStat {
	return historyStat{
		Address:    s.Candidate.IP.String(),
		Port:       s.Candidate.Port,
		Sources:    s.Candidate.Sources,
		LatencyMs:  s.LatencyMs,
		MeasuredAt: s.MeasuredAt.UnixMilli(),
		ExpiresAt:  s.ExpiresAt.UnixMilli(),
	}
}

func fromHistoryStat(h historyStat) Stat {
	return Stat{
		Candidate:  Candidate{IP: net.ParseIP(h.Address), Port: h.Port, Sources: h.Sources},
		LatencyMs:  h.LatencyMs,
		MeasuredAt: time.UnixMilli(h.MeasuredAt),
		ExpiresAt:  time.UnixMilli(h.ExpiresAt),
	}
}

// History is a JSON append-with-upsert file keyed by (host,port). It can be
// re-bound to a new path at runtime when history_path changes.
type History struct {
	mu   sync.Mutex
	path string
	recs map[slotKey]historyRecord
}

func NewHistory(path string) *History {
	h := &History{path: path, recs: make(map[slotKey]historyRecord)}
	h.load()
	return h
}

// Rebind points the history at a new file path, discarding in-memory state
// and reloading from the new location if it exists.
func (h *History) Rebind(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
	h.recs = make(map[slotKey]historyRecord)
	h.loadLocked()
}

func (h *History) load() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loadLocked()
}

func (h *History) loadLocked() {
	if h.path == "" {
		return
	}
	data, err := os.ReadFile(h.path)
	if err != nil {
		return
	}
	var records []historyRecord
	if json.Unmarshal(data, &records) != nil {
		return
	}
	for _, r := range records {
		h.recs[key(r.Host, r.Port)] = r
	}
}

// Get returns the best+alternatives stats recorded for (host,port).
func (h *History) Get(host string, port uint16) []Stat {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.recs[key(host, port)]
	if !ok {
		return nil
	}
	out := []Stat{fromHistoryStat(r.Best)}
	for _, alt := range r.Alternatives {
		out = append(out, fromHistoryStat(alt))
	}
	return out
}

// Upsert records a fresh ranking for (host,port) and persists to disk.
func (h *History) Upsert(host string, port uint16, ranked []Stat) error {
	if len(ranked) == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := historyRecord{Host: host, Port: port, Best: toHistoryStat(ranked[0])}
	for _, s := range ranked[1:] {
		rec.Alternatives = append(rec.Alternatives, toHistoryStat(s))
	}
	h.recs[key(host, port)] = rec
	return h.saveLocked()
}

func (h *History) saveLocked() error {
	if h.path == "" {
		return nil
	}
	records := make([]historyRecord, 0, len(h.recs))
	for _, r := range h.recs {
		records = append(records, r)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(h.path, data, 0o644)
}
