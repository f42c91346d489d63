package service

import (
	"sync"
	"time"
)

// VotingSession bounds the window during which registrations and votes are
// accepted. Ending the session is irreversible.
type VotingSession struct {
	startTime time.Time
	endTime   time.Time
	isActive  bool
	mu        sync.RWMutex
}

func NewVotingSession(duration time.Duration) *VotingSession {
	now := time.Now()
	return &VotingSession{
		startTime: now,
		endTime:   now.Add(duration),
		isActive:  true,
	}
}

func (vs *VotingSession) IsActive() bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.isActive && time.Now().Before(vs.endTime)
}

func (vs *VotingSession) End() {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.isActive = false
}

// Remaining reports how long the session stays open; zero once closed.
func (vs *VotingSession) Remaining() time.Duration {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	if !vs.isActive {
		return 0
	}
	if left := time.Until(vs.endTime); left > 0 {
		return left
	}
	return 0
}
