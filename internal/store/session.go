// Package store holds the engine's state: per-session beep/dispatch sets in
// memory and the durable order cache and printer preferences in Redis.
package store

import (
	"sync"

	"cinepos/internal/model"
)

// SessionState tracks which orders have already beeped and which prints are
// in flight. It lives for the process lifetime only — a restarted agent is
// allowed to alert again on orders that are still in flight.
type SessionState struct {
	mu       sync.Mutex
	beeped   map[string]struct{}
	inFlight map[string]struct{}
}

func NewSessionState() *SessionState {
	return &SessionState{
		beeped:   make(map[string]struct{}),
		inFlight: make(map[string]struct{}),
	}
}

// RecordBeep marks every alias form of the identity as beeped.
func (s *SessionState) RecordBeep(id model.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range id.Forms() {
		s.beeped[f] = struct{}{}
	}
}

// HasBeeped reports whether any alias form of the identity has beeped.
func (s *SessionState) HasBeeped(id model.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range id.Forms() {
		if _, ok := s.beeped[f]; ok {
			return true
		}
	}
	return false
}

// ReserveDispatch claims the identity for printing. It returns false when
// any alias form is already in flight, coalescing the duplicate triggered by
// overlapping push and poll deliveries of the same order.
func (s *SessionState) ReserveDispatch(id model.Identity) bool {
	if !id.Valid() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range id.Forms() {
		if _, ok := s.inFlight[f]; ok {
			return false
		}
	}
	for _, f := range id.Forms() {
		s.inFlight[f] = struct{}{}
	}
	return true
}

// ReleaseDispatch removes the identity's reservation.
func (s *SessionState) ReleaseDispatch(id model.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range id.Forms() {
		delete(s.inFlight, f)
	}
}

// ReleaseAllDispatches clears every reservation. Called when the bridge is
// torn down so pending holders do not leak.
func (s *SessionState) ReleaseAllDispatches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = make(map[string]struct{})
}
