package credstore

import (
	"sync"
	"time"
)

func memKey(host, username string) string { return username + "@" + host }

// MemoryStore is an in-process Store backed by a map under a read-write
// lock.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]Credential
	now   func() time.Time
}

// NewMemoryStore builds an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]Credential), now: time.Now}
}

// Get looks up a credential; an empty username matches any non-expired
// credential stored for the host.
func (s *MemoryStore) Get(host, username string) (Credential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	if username == "" {
		for _, c := range s.creds {
			if c.Host == host && !c.Expired(now) {
				return c, true, nil
			}
		}
		return Credential{}, false, nil
	}
	c, ok := s.creds[memKey(host, username)]
	if !ok || c.Expired(now) {
		return Credential{}, false, nil
	}
	return c, true, nil
}

func (s *MemoryStore) Add(cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(cred.Host, cred.Username)
	if _, exists := s.creds[k]; exists {
		return &ErrAlreadyExists{Host: cred.Host, Username: cred.Username}
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = s.now()
	}
	s.creds[k] = cred
	return nil
}

func (s *MemoryStore) Remove(host, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(host, username)
	c, ok := s.creds[k]
	if !ok {
		return false, nil
	}
	c.wipe()
	delete(s.creds, k)
	return true, nil
}

func (s *MemoryStore) List() ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]Credential, 0, len(s.creds))
	for _, c := range s.creds {
		if !c.Expired(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateLastUsed(host, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(host, username)
	c, ok := s.creds[k]
	if !ok {
		return &ErrNotFound{Host: host, Username: username}
	}
	c.LastUsedAt = s.now()
	s.creds[k] = c
	return nil
}

func (s *MemoryStore) Exists(host, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[memKey(host, username)]
	if !ok {
		return false, nil
	}
	return !c.Expired(s.now()), nil
}
