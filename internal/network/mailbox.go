package network

import (
	"context"
	"sync"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
)

// envelope is one unit of work for a node actor.
type envelope struct {
	start bool
	msg   ghs.Message
}

// mailbox is an unbounded FIFO. put never blocks, so a handler can always send.
type mailbox struct {
	mu     sync.Mutex
	items  []envelope
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) put(e envelope) {
	m.mu.Lock()
	m.items = append(m.items, e)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// take blocks until an envelope is available or ctx ends.
func (m *mailbox) take(ctx context.Context) (envelope, error) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			e := m.items[0]
			m.items[0] = envelope{}
			m.items = m.items[1:]
			m.mu.Unlock()
			return e, nil
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-ctx.Done():
			return envelope{}, ctx.Err()
		}
	}
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
