package dht

// EventType tags a simulation event (spec §3).
type EventType string

const (
	EventSimStart       EventType = "SIM_START"
	EventSimTick        EventType = "SIM_TICK"
	EventSimEnd         EventType = "SIM_END"
	EventNodeJoin       EventType = "NODE_JOIN"
	EventNodeLeave      EventType = "NODE_LEAVE"
	EventFilePublish    EventType = "FILE_PUBLISH"
	EventFileRetrieve   EventType = "FILE_RETRIEVE"
	EventMessageSent    EventType = "MESSAGE_SENT"
	EventMessageReceived EventType = "MESSAGE_RECEIVED"
	EventMessageDropped EventType = "MESSAGE_DROPPED"
)

// Event is an immutable (once enqueued) simulation event. Params holds
// event-specific data; which keys are populated depends on Type — see
// the simnet package for the producers of each event kind.
type Event struct {
	Type   EventType
	Time   int64
	Params map[string]interface{}
}

// NewEvent builds an event, defaulting Params to an empty, non-nil map
// so handlers never need a nil check before reading from it.
func NewEvent(eventType EventType, time int64, params map[string]interface{}) Event {
	if params == nil {
		params = map[string]interface{}{}
	}
	return Event{Type: eventType, Time: time, Params: params}
}
