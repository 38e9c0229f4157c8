// Package mailbox implements a single-slot, latest-wins frame handoff
// between a capture pipeline and a consumer loop. A new frame overwrites
// an unconsumed one, so a slow consumer never builds a queue; the consumer
// blocks on a signal instead of polling.
package mailbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoFrame is returned by Next when no frame arrives within the wait window.
var ErrNoFrame = errors.New("no frame within wait window")

type Mailbox struct {
	mu    sync.Mutex
	frame []byte
	seq   uint64
	drops uint64

	ready chan struct{}
}

func New() *Mailbox {
	return &Mailbox{
		ready: make(chan struct{}, 1),
	}
}

// Put stores a frame, overwriting any pending one, and wakes the consumer.
// Never blocks.
func (m *Mailbox) Put(frame []byte) {
	m.mu.Lock()
	if m.frame != nil {
		atomic.AddUint64(&m.drops, 1)
	}
	m.frame = frame
	m.seq++
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Next returns the most recent unconsumed frame, blocking up to wait for
// one to arrive. Returns ErrNoFrame on timeout and ctx.Err() on cancellation.
func (m *Mailbox) Next(ctx context.Context, wait time.Duration) ([]byte, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		if frame, ok := m.take(); ok {
			return frame, nil
		}
		select {
		case <-m.ready:
			// A pending signal may refer to an already-consumed frame,
			// so loop and re-check the slot.
		case <-timer.C:
			return nil, ErrNoFrame
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Mailbox) take() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frame == nil {
		return nil, false
	}
	frame := m.frame
	m.frame = nil
	return frame, true
}

// Drops reports how many frames were overwritten before being consumed.
func (m *Mailbox) Drops() uint64 {
	return atomic.LoadUint64(&m.drops)
}
