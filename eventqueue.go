package shadow

//
// Per-host event queue (spec.md §4.1): a min-heap keyed by
// (deliver_time, origin_host, local_seq), grounded on the container/heap
// priority-queue idiom used throughout the corpus (e.g. the cluster event
// heap in the inference-sim reference code).
//

import (
	"container/heap"
)

// eventHeap is the underlying container/heap.Interface implementation.
// It is unexported: callers only ever see it through [EventQueue].
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool { return h[i].Less(h[j]) }

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// EventQueue is the priority queue owned by exactly one [Host] (spec.md
// §4.1). It holds every event destined to that host, ordered by
// [Event.Less]: (DeliverTime, OriginHost, LocalSeq), with an
// [EventEngineKill] first among events at the same DeliverTime. The zero value is not ready for
// use; construct with [NewEventQueue].
type EventQueue struct {
	heap eventHeap
}

// NewEventQueue creates an empty [EventQueue].
func NewEventQueue() *EventQueue {
	q := &EventQueue{heap: make(eventHeap, 0, 64)}
	heap.Init(&q.heap)
	return q
}

// Push inserts ev into the queue. O(log n).
func (q *EventQueue) Push(ev *Event) {
	heap.Push(&q.heap, ev)
}

// Peek returns the minimum event without removing it, and whether the
// queue is non-empty. O(1).
func (q *EventQueue) Peek() (*Event, bool) {
	if len(q.heap) == 0 {
		return nil, false
	}
	return q.heap[0], true
}

// Pop removes and returns the minimum event. O(log n). Panics if the
// queue is empty; callers must check [EventQueue.Len] or
// [EventQueue.Peek] first.
func (q *EventQueue) Pop() *Event {
	return heap.Pop(&q.heap).(*Event)
}

// Len returns the number of events currently queued.
func (q *EventQueue) Len() int {
	return len(q.heap)
}

// MinTime returns the deliver time of the earliest queued event, or
// [SimTimeInvalid] if the queue is empty.
func (q *EventQueue) MinTime() SimTime {
	ev, ok := q.Peek()
	if !ok {
		return SimTimeInvalid
	}
	return ev.DeliverTime
}
