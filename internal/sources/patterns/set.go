package patterns

import (
	"sync"
	"time"

	"github.com/x402hub/paygate/internal/domain"
)

// Set holds the currently active single-tenant rules. The reloader replaces
// them wholesale; the request pipeline only reads.
type Set struct {
	mu         sync.RWMutex
	rules      []domain.RouteRule
	lastReload time.Time
}

// NewSet creates an empty rule set.
func NewSet() *Set {
	return &Set{}
}

// Replace swaps in a new rule list.
func (s *Set) Replace(rules []domain.RouteRule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = rules
	s.lastReload = time.Now()
}

// Rules returns the current rules. The returned slice must not be modified.
func (s *Set) Rules() []domain.RouteRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rules
}

// LastReload returns when the rules were last replaced.
func (s *Set) LastReload() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastReload
}
