package chain

import (
	"context"
	"sync"
)

// Sequencer hands out strictly increasing transaction nonces. It is injected
// into anything that broadcasts, never reached through package state.
type Sequencer interface {
	Next(ctx context.Context) (uint64, error)
}

// MutexSequencer is a FIFO mutex over an integer counter.
type MutexSequencer struct {
	mu   sync.Mutex
	next uint64
}

// NewMutexSequencer starts the sequence at the account's current on-chain
// nonce.
func NewMutexSequencer(start uint64) *MutexSequencer {
	return &MutexSequencer{next: start}
}

func (s *MutexSequencer) Next(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	s.next++
	return n, nil
}
