package dht

// Network is the narrow capability surface a Node uses to interact
// with its simulator, instead of holding a full back-reference to it
// (spec §9 "Cyclic references" design note). A Node can send messages,
// schedule events, and ask for the current virtual time; it cannot
// enumerate other nodes, touch the event queue directly, or draw from
// the RNG — those remain exclusively owned by the simulator.
type Network interface {
	// SendMessage hands a message to the simulator for delay/loss
	// sampling and eventual delivery (or drop). at is the virtual time
	// the send is attributed to.
	SendMessage(msg Message, at int64)
	// ScheduleEvent enqueues an event for later dispatch.
	ScheduleEvent(event Event)
	// Now returns the simulator's current virtual time.
	Now() int64
}
