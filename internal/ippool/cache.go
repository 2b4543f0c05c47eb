package ippool

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gitcollab/core/internal/util/sets"
)

type slotKey struct {
	host string
	port uint16
}

func key(host string, port uint16) slotKey { return slotKey{host, port} }

// slot holds the ranked stats for one (host,port), satisfying
// best.LatencyMs <= min(alternatives.LatencyMs) as a class invariant.
type slot struct {
	best         Stat
	alternatives []Stat
}

// Cache is the TTL-bounded IP score cache: one mutex guards the whole map,
// matching the single-mutex shared-resource policy for IP-pool state.
type Cache struct {
	mu    sync.Mutex
	slots map[slotKey]slot
}

func NewCache() *Cache {
	return &Cache{slots: make(map[slotKey]slot)}
}

// Get returns the best non-expired stat for (host,port), or false if the
// slot is absent or its best entry has expired.
func (c *Cache) Get(host string, port uint16, now time.Time) (Stat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key(host, port)]
	if !ok || s.best.Expired(now) {
		return Stat{}, false
	}
	return s.best, true
}

// Put stores a freshly-sampled ranking, discarding already-expired entries.
func (c *Cache) Put(host string, port uint16, ranked []Stat, now time.Time) {
	if len(ranked) == 0 {
		return
	}
	live := make([]Stat, 0, len(ranked))
	for _, s := range ranked {
		if !s.Expired(now) {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[key(host, port)] = slot{best: live[0], alternatives: live[1:]}
}

// Alternatives returns the current non-best ranked stats for (host,port).
func (c *Cache) Alternatives(host string, port uint16) []Stat {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key(host, port)]
	if !ok {
		return nil
	}
	out := make([]Stat, len(s.alternatives))
	copy(out, s.alternatives)
	return out
}

// Prune drops expired slots (unless preheated) and enforces maxEntries by
// evicting the oldest non-preheat slots first.
func (c *Cache) Prune(now time.Time, preheat sets.Set[string], maxEntries int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, s := range c.slots {
		if preheat.Has(k.host) {
			continue
		}
		if s.best.Expired(now) {
			delete(c.slots, k)
		}
	}

	if maxEntries <= 0 || len(c.slots) <= maxEntries {
		return
	}

	type ordered struct {
		k          slotKey
		measuredAt time.Time
	}
	candidates := make([]ordered, 0, len(c.slots))
	for k, s := range c.slots {
		if preheat.Has(k.host) {
			continue
		}
		candidates = append(candidates, ordered{k, s.best.MeasuredAt})
	}
	for len(c.slots) > maxEntries && len(candidates) > 0 {
		oldestIdx := 0
		for i, cd := range candidates {
			if cd.measuredAt.Before(candidates[oldestIdx].measuredAt) {
				oldestIdx = i
			}
		}
		delete(c.slots, candidates[oldestIdx].k)
		candidates = append(candidates[:oldestIdx], candidates[oldestIdx+1:]...)
	}
}

// Len reports the number of cached slots (diagnostics/tests).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

func addrString(ip net.IP, port uint16) string {
	return fmt.Sprintf("%s:%d", ip.String(), port)
}
