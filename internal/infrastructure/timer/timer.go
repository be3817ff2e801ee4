// Package timer provides the in-process expiry scheduler used by the payment
// lifecycle. Timers do not survive a restart; the reconciliation sweep covers
// payments whose timer was lost.
package timer

import (
	"sync"
	"time"
)

type Service struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New() *Service {
	return &Service{timers: make(map[string]*time.Timer)}
}

// Arm schedules fire after d. Re-arming an id replaces the pending timer.
func (s *Service) Arm(id string, d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fire()
	})
}

func (s *Service) Disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Service) Armed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// Stop cancels every pending timer, for shutdown.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
