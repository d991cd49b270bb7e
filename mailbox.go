package shadow

//
// Cross-worker event delivery (spec.md §5 "Conservative synchronization":
// "a mailbox per worker merges incoming cross-host events while
// preserving (deliver_time, origin_host, local_seq) order"). Events are
// already stamped with their final tie-break key by the originating
// host before they ever reach a mailbox, so draining never needs to
// invent an order of its own.
//

import "sync"

// Mailbox is a thread-safe inbox for events crossing from a host owned by
// one [Worker] to a host owned by another. Order is only meaningful once
// drained back into the destination host's [EventQueue] (a heap); the
// mailbox itself holds events in arbitrary append order.
type Mailbox struct {
	mu     sync.Mutex
	events []*Event
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Post appends ev to the mailbox. Safe to call from any worker goroutine.
func (m *Mailbox) Post(ev *Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

// Drain removes and returns every pending event. The caller is expected
// to push each into its target host's [EventQueue] to re-establish
// (deliver_time, origin_host, local_seq) order.
func (m *Mailbox) Drain() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	out := m.events
	m.events = nil
	return out
}
