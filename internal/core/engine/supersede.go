package engine

import (
	"context"
	"sync"
)

// Superseder cancels a session's in-flight call when a newer one starts.
type Superseder struct {
	mu       sync.Mutex
	seq      uint64
	inflight map[string]inflightCall
}

type inflightCall struct {
	id     uint64
	cancel context.CancelFunc
}

// NewSuperseder returns an empty superseder.
func NewSuperseder() *Superseder {
	return &Superseder{inflight: make(map[string]inflightCall)}
}

// Begin derives a context for session and cancels the previous call for the
// same session. The returned release func must be called when the call ends.
// An empty session is never superseded.
func (s *Superseder) Begin(parent context.Context, session string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	if s == nil || session == "" {
		return ctx, cancel
	}

	s.mu.Lock()
	s.seq++
	id := s.seq
	if prev, ok := s.inflight[session]; ok {
		prev.cancel()
	}
	s.inflight[session] = inflightCall{id: id, cancel: cancel}
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		if current, ok := s.inflight[session]; ok && current.id == id {
			delete(s.inflight, session)
		}
		s.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// InFlight returns the number of sessions with a running call.
func (s *Superseder) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
