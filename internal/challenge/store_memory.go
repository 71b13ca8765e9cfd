package challenge

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps challenges in-process. Expired entries are swept
// opportunistically every few writes so an unconsumed backlog cannot grow
// without bound.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]Challenge
	puts uint64
	now  func() time.Time
}

const sweepEvery = 64

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]Challenge),
		now:  time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, ch Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[ch.ID] = ch

	s.puts++
	if s.puts%sweepEvery == 0 {
		cutoff := s.now()
		for id, c := range s.byID {
			if !cutoff.Before(c.ExpiresAt) {
				delete(s.byID, id)
			}
		}
	}
	return nil
}

// Take removes and returns the challenge under one lock acquisition, so a
// concurrent second Take of the same id always misses.
func (s *MemoryStore) Take(_ context.Context, id string) (Challenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.byID[id]
	if !ok {
		return Challenge{}, false, nil
	}
	delete(s.byID, id)
	return ch, true, nil
}
