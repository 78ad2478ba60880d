package scoring

import (
	"strings"
	"sync"
)

// SenderDirectory reports whether a sender domain has been seen before.
type SenderDirectory interface {
	Known(domain string) bool
}

// DomainSet is a concurrency-safe SenderDirectory that can learn domains.
type DomainSet struct {
	mu      sync.RWMutex
	domains map[string]struct{}
}

// NewDomainSet returns a set seeded with domains (case-insensitive).
func NewDomainSet(domains ...string) *DomainSet {
	s := &DomainSet{domains: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		s.Add(d)
	}
	return s
}

// Add records domain as known. Empty domains are ignored.
func (s *DomainSet) Add(domain string) {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return
	}
	s.mu.Lock()
	s.domains[d] = struct{}{}
	s.mu.Unlock()
}

// Known implements SenderDirectory.
func (s *DomainSet) Known(domain string) bool {
	if domain == "" {
		return false
	}
	s.mu.RLock()
	_, ok := s.domains[strings.ToLower(domain)]
	s.mu.RUnlock()
	return ok
}

// Len returns the number of known domains.
func (s *DomainSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.domains)
}
