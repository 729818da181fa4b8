package simnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueueOrdersByTime(t *testing.T) {
	q := NewEventQueue()
	q.Push(5, "second")
	q.Push(1, "first")
	q.Push(10, "third")

	time, payload, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(1), time)
	assert.Equal(t, "first", payload)

	time, payload, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(5), time)
	assert.Equal(t, "second", payload)

	_, payload, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "third", payload)
}

func TestEventQueueBreaksTiesByInsertionOrder(t *testing.T) {
	q := NewEventQueue()
	q.Push(1, "a")
	q.Push(1, "b")
	q.Push(1, "c")

	var order []string
	for {
		_, payload, ok := q.Pop()
		if !ok {
			break
		}
		order = append(order, payload.(string))
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestEventQueuePeekDoesNotRemove(t *testing.T) {
	q := NewEventQueue()
	q.Push(3, "x")

	time, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, int64(3), time)
	assert.Equal(t, 1, q.Len())
}

func TestEventQueueEmptyPopAndPeek(t *testing.T) {
	q := NewEventQueue()
	_, ok := q.Peek()
	assert.False(t, ok)

	_, _, ok = q.Pop()
	assert.False(t, ok)
}
