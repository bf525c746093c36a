package net

import "sync"

// EventQueue is the FIFO between engine callbacks and the game tick.
// Enqueue may be called from any goroutine; TryDequeue is called from the tick.
//
// Every queue carries a session generation. Reset starts a new generation and
// drops everything queued so far; events tagged with an older generation are
// discarded on arrival, which is how completions from a stopped session are
// kept out of the next one.
type EventQueue struct {
	mu     sync.Mutex
	events []Event
	head   int
	gen    uint64
}

// NewEventQueue creates an empty queue at generation 0.
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Reset clears the queue and returns the new generation.
func (q *EventQueue) Reset() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.events)
	q.events = q.events[:0]
	q.head = 0
	q.gen++
	return q.gen
}

// Generation returns the current generation.
func (q *EventQueue) Generation() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.gen
}

// Enqueue appends ev to the current generation.
func (q *EventQueue) Enqueue(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// EnqueueGen appends ev only if gen is still current. It reports whether the
// event was accepted.
func (q *EventQueue) EnqueueGen(gen uint64, ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen != q.gen {
		return false
	}
	q.events = append(q.events, ev)
	return true
}

// TryDequeue pops the oldest event. A Data event without payload is consumed
// and reported as no event.
func (q *EventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.events) {
		return Event{}, false
	}
	ev := q.events[q.head]
	q.events[q.head] = Event{}
	q.head++

	// compact once the consumed prefix dominates the backing array
	if q.head == len(q.events) {
		q.events = q.events[:0]
		q.head = 0
	} else if q.head >= 64 && q.head*2 >= len(q.events) {
		n := copy(q.events, q.events[q.head:])
		clear(q.events[n:])
		q.events = q.events[:n]
		q.head = 0
	}

	if ev.Type == EventData && len(ev.Payload) == 0 {
		return Event{}, false
	}
	return ev, true
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events) - q.head
}
