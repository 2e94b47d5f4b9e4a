package breaker

import "sync"

// Set holds one breaker per provider, created lazily on first use so a hot
// config reload introducing a provider needs no coordination.
type Set struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewSet creates an empty breaker set sharing one config.
func NewSet(cfg Config) *Set {
	return &Set{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for a provider, creating it closed if absent.
func (s *Set) For(provider string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.breakers[provider]
	if !exists {
		b = New(s.cfg)
		s.breakers[provider] = b
	}
	return b
}

// Snapshot returns provider -> state name for the readiness endpoint.
func (s *Set) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]string, len(s.breakers))
	for provider, b := range s.breakers {
		states[provider] = b.State().String()
	}
	return states
}

// AnyOpen reports whether any provider circuit is currently open.
func (s *Set) AnyOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.breakers {
		if b.State() == StateOpen {
			return true
		}
	}
	return false
}
