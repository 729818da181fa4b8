// Package simnet implements the discrete-event simulation engine: a
// min-heap event queue ordered by (time, insertion sequence), an
// integer virtual clock, and the Simulator that ties node registration,
// message delivery, and the distance-weighted loss model together
// (spec §5).
package simnet

import "container/heap"

// queueEntry pairs a dht.Event with the insertion sequence number used
// to break time ties in FIFO order (spec §4.8: "events scheduled for
// the same timestamp are dispatched in the order they were scheduled").
type queueEntry struct {
	time  int64
	seq   uint64
	event interface{}
	index int
}

// eventHeap implements container/heap.Interface. Unlike the teacher's
// TxPriorityQueue, this heap is never touched concurrently: spec §5
// mandates the simulator is the sole, single-threaded owner of the
// queue, so there is no mutex here.
type eventHeap []*queueEntry

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x interface{}) {
	entry := x.(*queueEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}

// EventQueue is a deterministic priority queue of scheduled events,
// keyed by (time, insertion sequence). It carries opaque interface{}
// payloads so the same queue type can schedule both dht.Event values
// and the simulator's own internal message-delivery entries.
type EventQueue struct {
	h       eventHeap
	nextSeq uint64
}

// NewEventQueue returns an empty queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{}
	heap.Init(&q.h)
	return q
}

// Push schedules payload for dispatch at time, preserving FIFO order
// among entries scheduled for the same time.
func (q *EventQueue) Push(time int64, payload interface{}) {
	entry := &queueEntry{time: time, seq: q.nextSeq, event: payload}
	q.nextSeq++
	heap.Push(&q.h, entry)
}

// Len returns the number of pending entries.
func (q *EventQueue) Len() int { return q.h.Len() }

// Peek returns the time of the next entry to be popped, without
// removing it. The second return value is false if the queue is empty.
func (q *EventQueue) Peek() (int64, bool) {
	if q.h.Len() == 0 {
		return 0, false
	}
	return q.h[0].time, true
}

// Pop removes and returns the earliest-scheduled, lowest-sequence
// entry. The second return value is false if the queue is empty.
func (q *EventQueue) Pop() (int64, interface{}, bool) {
	if q.h.Len() == 0 {
		return 0, nil, false
	}
	entry := heap.Pop(&q.h).(*queueEntry)
	return entry.time, entry.event, true
}
