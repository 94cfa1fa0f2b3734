package server

import "sync"

// Session holds the per-process mutable state the tool surface needs:
// the landing-page flag and the per-project completion ordering locks.
// It lives on the Server rather than in package globals so tests can run
// isolated instances side by side.
type Session struct {
	mu           sync.Mutex
	landingShown bool
	completions  map[string]*sync.Mutex
}

func NewSession() *Session {
	return &Session{completions: make(map[string]*sync.Mutex)}
}

// consumeLanding reports whether the landing payload must be injected
// into this call's response. The first tool call of the process flips
// the flag whatever it is; only non-whitelisted first calls get the
// injection.
func (s *Session) consumeLanding(tool string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.landingShown {
		return false
	}
	s.landingShown = true
	return !landingWhitelist[tool]
}

// completionLock serializes completions per project so events land in
// the history in arrival order.
func (s *Session) completionLock(project string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.completions[project]
	if !ok {
		l = &sync.Mutex{}
		s.completions[project] = l
	}
	return l
}
