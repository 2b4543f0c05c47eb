package ippool

import (
	"context"
	"net"

	"github.com/gitcollab/core/internal/config"
)

// CandidateSource discovers Candidates for (host,port). Implementations
// never probe latency themselves; PickBest merges and probes afterward.
type CandidateSource interface {
	Name() Source
	Resolve(ctx context.Context, host string, port uint16) ([]Candidate, error)
}

// BuiltinSource serves a static, compiled-in map of well-known hosts; it
// has no entries by default and exists so operators can ship a fallback
// table without relying on DNS at all.
type BuiltinSource struct {
	Table map[string][]net.IP
}

func (BuiltinSource) Name() Source { return SourceBuiltin }

func (s BuiltinSource) Resolve(_ context.Context, host string, port uint16) ([]Candidate, error) {
	ips, ok := s.Table[host]
	if !ok {
		return nil, nil
	}
	out := make([]Candidate, 0, len(ips))
	for _, ip := range ips {
		out = append(out, Candidate{IP: ip, Port: port, Sources: []Source{SourceBuiltin}})
	}
	return out, nil
}

// DNSSource resolves via the system resolver (preset-backed DoH/DoT
// resolvers are a configuration surface for a future net.Resolver.Dial
// hook; UseSystem is always honored here).
type DNSSource struct {
	Cfg config.DNSRuntimeConfig
}

func (DNSSource) Name() Source { return SourceDNS }

func (s DNSSource) Resolve(ctx context.Context, host string, port uint16) ([]Candidate, error) {
	if !s.Cfg.UseSystem {
		return nil, nil
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(ips))
	for _, ip := range ips {
		out = append(out, Candidate{IP: ip, Port: port, Sources: []Source{SourceDNS}})
	}
	return out, nil
}

// HistorySource replays the most recent cached best/alternatives for
// (host,port) from the on-disk history file (see History in history.go).
type HistorySource struct {
	History *History
}

func (HistorySource) Name() Source { return SourceHistory }

func (s HistorySource) Resolve(_ context.Context, host string, port uint16) ([]Candidate, error) {
	if s.History == nil {
		return nil, nil
	}
	stats := s.History.Get(host, port)
	out := make([]Candidate, 0, len(stats))
	for _, st := range stats {
		out = append(out, Candidate{IP: st.Candidate.IP, Port: st.Candidate.Port, Sources: []Source{SourceHistory}})
	}
	return out, nil
}

// UserStaticSource serves operator-supplied entries from ip-config.json.
type UserStaticSource struct {
	Entries []config.UserStaticEntry
}

func (UserStaticSource) Name() Source { return SourceUserStatic }

func (s UserStaticSource) Resolve(_ context.Context, host string, port uint16) ([]Candidate, error) {
	var out []Candidate
	for _, e := range s.Entries {
		if e.Host != host {
			continue
		}
		ip := net.ParseIP(e.IP)
		if ip == nil {
			continue
		}
		ports := e.Ports
		if len(ports) == 0 {
			ports = []uint16{port}
		}
		for _, p := range ports {
			if p != port {
				continue
			}
			out = append(out, Candidate{IP: ip, Port: p, Sources: []Source{SourceUserStatic}})
		}
	}
	return out, nil
}

// FallbackSource is the last-resort source: it resolves nothing itself.
// PickBest returns SystemDefault whenever no source yields a reachable
// candidate.
type FallbackSource struct{}

func (FallbackSource) Name() Source { return SourceFallback }

func (FallbackSource) Resolve(context.Context, string, uint16) ([]Candidate, error) {
	return nil, nil
}

// mergeCandidates combines candidates for the same address, union-ing their
// source lists.
func mergeCandidates(groups ...[]Candidate) []Candidate {
	byAddr := make(map[string]*Candidate)
	var order []string
	for _, group := range groups {
		for _, c := range group {
			a := addrString(c.IP, c.Port)
			existing, ok := byAddr[a]
			if !ok {
				cc := c
				byAddr[a] = &cc
				order = append(order, a)
				continue
			}
			existing.Sources = append(existing.Sources, c.Sources...)
		}
	}
	out := make([]Candidate, 0, len(order))
	for _, a := range order {
		out = append(out, *byAddr[a])
	}
	return out
}
