package net

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueueEmpty(t *testing.T) {
	q := NewEventQueue()
	_, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestEventQueueFIFO(t *testing.T) {
	q := NewEventQueue()
	q.Enqueue(Event{Type: EventConnect, ConnID: 1})
	q.Enqueue(Event{Type: EventData, ConnID: 1, Payload: []byte("a")})
	q.Enqueue(Event{Type: EventDisconnect, ConnID: 1})
	require.Equal(t, 3, q.Len())

	for _, want := range []EventType{EventConnect, EventData, EventDisconnect} {
		ev, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, ev.Type)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestEventQueueDropsEmptyData(t *testing.T) {
	q := NewEventQueue()
	q.Enqueue(Event{Type: EventData, ConnID: 2})
	q.Enqueue(Event{Type: EventData, ConnID: 2, Payload: []byte{}})
	q.Enqueue(Event{Type: EventData, ConnID: 2, Payload: []byte{9}})

	_, ok := q.TryDequeue()
	assert.False(t, ok)
	_, ok = q.TryDequeue()
	assert.False(t, ok)
	ev, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, []byte{9}, ev.Payload)
}

func TestEventQueueGeneration(t *testing.T) {
	q := NewEventQueue()
	q.Enqueue(Event{Type: EventConnect})

	gen := q.Reset()
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, 0, q.Len())

	assert.True(t, q.EnqueueGen(gen, Event{Type: EventConnect}))
	next := q.Reset()
	assert.False(t, q.EnqueueGen(gen, Event{Type: EventError}))
	assert.True(t, q.EnqueueGen(next, Event{Type: EventError}))

	ev, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, next, q.Generation())
}

func TestEventQueueCompacts(t *testing.T) {
	q := NewEventQueue()
	for i := 0; i < 1000; i++ {
		q.Enqueue(Event{Type: EventData, ConnID: ConnID(i), Payload: []byte{1}})
		if i%3 == 0 {
			_, ok := q.TryDequeue()
			require.True(t, ok)
		}
	}

	var last ConnID = -1
	for {
		ev, ok := q.TryDequeue()
		if !ok {
			break
		}
		assert.Greater(t, ev.ConnID, last)
		last = ev.ConnID
	}
	assert.Equal(t, ConnID(999), last)
}

func TestEventQueueConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 500
	q := NewEventQueue()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(Event{Type: EventData, ConnID: ConnID(p), Payload: []byte{byte(i >> 8), byte(i)}})
			}
		}(p)
	}
	wg.Wait()

	next := make([]int, producers)
	for {
		ev, ok := q.TryDequeue()
		if !ok {
			break
		}
		seq := int(ev.Payload[0])<<8 | int(ev.Payload[1])
		require.Equal(t, next[ev.ConnID], seq, "producer %d out of order", ev.ConnID)
		next[ev.ConnID]++
	}
	for p := 0; p < producers; p++ {
		assert.Equal(t, perProducer, next[p])
	}
}
