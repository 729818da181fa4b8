package simnet

import (
	"encoding/binary"
	"math/rand"
	"sort"

	"github.com/opd-ai/dhtsim/dht"
	"github.com/sirupsen/logrus"
)

// Config bundles the network-model tunables a Simulator needs: delay
// bounds, the base packet-loss rate, the clock's tick duration, and the
// seed for the single deterministic random stream (spec §5, §6).
type Config struct {
	TickMS         int64
	RandomSeed     int64
	MinDelay       int64
	MaxDelay       int64
	BasePacketLoss float64
}

// Subscriber receives every dispatched event, regardless of type; it is
// the hook a report/logging layer uses to observe the simulation
// without participating in it (spec §7).
type Subscriber func(dht.Event)

// Simulator is the single-threaded discrete-event engine. It owns the
// event queue, the virtual clock, the node registry, and the sole
// seeded random stream — nothing else in this module draws from a
// seeded source or reads wall-clock time (spec §5). Message transaction
// IDs are the one unseeded value: dht.NewMessage generates them as
// random UUIDs.
type Simulator struct {
	clock *Clock
	queue *EventQueue
	rng   *rand.Rand
	cfg   Config
	log   *logrus.Entry

	nodes       map[string]*dht.Node
	subscribers map[dht.EventType][]Subscriber
	allEvents   []Subscriber

	// runMaxTime mirrors the maxTime argument of the in-flight Run call,
	// so the self-rescheduling SIM_TICK handler knows when to stop.
	// -1 means unbounded.
	runMaxTime int64
}

// NewSimulator creates a simulator with its own seeded RNG and clock.
// logger may be nil, in which case a discarding logger is used.
func NewSimulator(cfg Config, logger *logrus.Entry) *Simulator {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(discardWriter{})
		logger = logrus.NewEntry(l)
	}
	return &Simulator{
		clock:       NewClock(cfg.TickMS),
		queue:       NewEventQueue(),
		rng:         rand.New(rand.NewSource(cfg.RandomSeed)),
		cfg:         cfg,
		log:         logger,
		nodes:       make(map[string]*dht.Node),
		subscribers: make(map[dht.EventType][]Subscriber),
		runMaxTime:  -1,
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Now implements dht.Network.
func (s *Simulator) Now() int64 { return s.clock.Now() }

// RNG exposes the simulator's single deterministic random stream, for
// callers (scenario generators, tests) that need to draw from the same
// reproducible sequence rather than an independent one.
func (s *Simulator) RNG() *rand.Rand { return s.rng }

// RegisterNode adds node to the registry it will deliver messages and
// events to. Re-registering an already-known ID logs a warning and
// otherwise no-ops, matching the original simulator's defensive check.
func (s *Simulator) RegisterNode(node *dht.Node) {
	key := node.ID().String()
	if _, exists := s.nodes[key]; exists {
		s.log.WithField("node", key).Warn("node already registered")
		return
	}
	s.nodes[key] = node
	s.log.WithField("node", key).Debug("node registered")
}

// UnregisterNode removes a node from the registry.
func (s *Simulator) UnregisterNode(id dht.ID) {
	key := id.String()
	if _, exists := s.nodes[key]; exists {
		delete(s.nodes, key)
		s.log.WithField("node", key).Debug("node unregistered")
	}
}

// Node looks up a registered node by ID.
func (s *Simulator) Node(id dht.ID) (*dht.Node, bool) {
	n, ok := s.nodes[id.String()]
	return n, ok
}

// NodeCount returns the number of registered nodes.
func (s *Simulator) NodeCount() int { return len(s.nodes) }

// Subscribe registers fn to be called whenever an event of the given
// type is dispatched. A zero-value EventType subscribes to every event.
func (s *Simulator) Subscribe(eventType dht.EventType, fn Subscriber) {
	if eventType == "" {
		s.allEvents = append(s.allEvents, fn)
		return
	}
	s.subscribers[eventType] = append(s.subscribers[eventType], fn)
}

// ScheduleEvent implements dht.Network: it enqueues event for dispatch
// at event.Time.
func (s *Simulator) ScheduleEvent(event dht.Event) {
	s.queue.Push(event.Time, event)
}

// SendMessage implements dht.Network. It samples a delivery delay and a
// distance-weighted drop, then either schedules MESSAGE_RECEIVED at the
// computed delivery time or, for FIND_NODE/FIND_VALUE messages only,
// schedules MESSAGE_DROPPED. This asymmetry — other message types are
// dropped with no observable event at all — reproduces the original
// simulator's behavior rather than "fixing" it into something more
// uniform; it is documented, not accidental, in this implementation.
func (s *Simulator) SendMessage(msg dht.Message, at int64) {
	msg.SendTime = at

	target, ok := s.nodes[msg.TargetID.String()]
	if !ok {
		s.log.WithField("target", msg.TargetID.String()).Warn("message target node not found")
		return
	}
	source, ok := s.nodes[msg.SourceID.String()]
	if !ok {
		s.log.WithField("source", msg.SourceID.String()).Warn("message source node not found")
		return
	}

	delaySpan := s.cfg.MaxDelay - s.cfg.MinDelay + 1
	delay := s.cfg.MinDelay
	if delaySpan > 0 {
		delay += s.rng.Int63n(delaySpan)
	}

	loss := s.packetLossRate(source.Address(), target.Address())

	s.log.WithFields(logrus.Fields{
		"from": msg.SourceID.String(),
		"to":   msg.TargetID.String(),
		"type": msg.Type,
		"delay": delay,
	}).Debug("message sent")

	if s.rng.Float64() < loss {
		if msg.Type == dht.MsgFindNode || msg.Type == dht.MsgFindValue {
			dropTime := msg.SendTime + delay/2
			s.queue.Push(dropTime, dht.NewEvent(dht.EventMessageDropped, dropTime, map[string]interface{}{"message": msg}))
		}
		return
	}

	msg.DeliveryTime = msg.SendTime + delay
	s.queue.Push(msg.DeliveryTime, dht.NewEvent(dht.EventMessageReceived, msg.DeliveryTime, map[string]interface{}{"message": msg}))
	s.dispatchNow(dht.NewEvent(dht.EventMessageSent, msg.SendTime, map[string]interface{}{"message": msg}))
}

// packetLossRate implements the distance-weighted loss model of spec
// §4.9: addresses are normalized to 4 bytes, their XOR distance is
// normalized against the maximum 32-bit value, and the result is
// blended with the configured base rate and a small uniform jitter.
func (s *Simulator) packetLossRate(a, b dht.Address) float64 {
	na := normalizeAddress(a)
	nb := normalizeAddress(b)

	dist, err := dht.Distance(dht.ID(na[:]), dht.ID(nb[:]))
	if err != nil {
		return s.cfg.BasePacketLoss
	}
	distVal := binary.BigEndian.Uint32(dist)
	normalized := float64(distVal) / float64(^uint32(0))

	rate := s.cfg.BasePacketLoss + normalized*0.20
	variation := s.rng.Float64()*0.10 - 0.05
	rate += variation

	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return rate
}

// normalizeAddress left-zero-pads or truncates addr to exactly 4 bytes.
func normalizeAddress(addr dht.Address) [4]byte {
	var out [4]byte
	if len(addr) >= 4 {
		copy(out[:], addr[len(addr)-4:])
		return out
	}
	copy(out[4-len(addr):], addr)
	return out
}

// dispatchNow emits event directly to subscribers without round-
// tripping through the queue; used for events that the original
// simulator fires synchronously within the send path.
func (s *Simulator) dispatchNow(event dht.Event) {
	s.emit(event)
}

func (s *Simulator) emit(event dht.Event) {
	for _, fn := range s.subscribers[event.Type] {
		fn(event)
	}
	for _, fn := range s.allEvents {
		fn(event)
	}
}

// Run drives the simulation to completion: it schedules SIM_START,
// drains the event queue in non-decreasing time order (processing every
// event scheduled for the same timestamp in FIFO order before advancing
// further), and finally emits SIM_END. If maxTime is non-negative,
// dispatch stops once the next scheduled time exceeds it.
//
// When maxTime is non-negative, Run also self-schedules a SIM_TICK for
// every integer time unit from 1 through maxTime, independent of
// whatever other activity is happening. This is what lets a node's PING
// timeout/retry sweep (dht.Node.OnEvent) fire even during a quiet
// stretch of the network with no other traffic. With an unbounded
// maxTime (-1) there is no such heartbeat — bounding that case would
// mean scheduling an unbounded number of ticks up front — so in that
// mode SIM_TICK is only emitted opportunistically when some other event
// happens to land on a new time value.
func (s *Simulator) Run(maxTime int64) {
	s.runMaxTime = maxTime
	s.ScheduleEvent(dht.NewEvent(dht.EventSimStart, s.clock.Now(), nil))
	if maxTime >= 1 {
		s.ScheduleEvent(dht.NewEvent(dht.EventSimTick, 1, map[string]interface{}{"time": int64(1)}))
	}

	lastTickTime := int64(-1)

	for {
		t, ok := s.queue.Peek()
		if !ok {
			break
		}
		if maxTime >= 0 && t > maxTime {
			break
		}

		s.clock.Advance(t)
		if maxTime < 0 && t != lastTickTime {
			s.tick(t)
			lastTickTime = t
		}

		for {
			pt, ok := s.queue.Peek()
			if !ok || pt != t {
				break
			}
			_, payload, _ := s.queue.Pop()
			event, ok := payload.(dht.Event)
			if !ok {
				continue
			}
			s.process(event)
		}
	}

	endTime := s.clock.Now()
	s.process(dht.NewEvent(dht.EventSimEnd, endTime, nil))
}

// tick delivers a SIM_TICK to every registered node and to subscribers;
// used by the opportunistic (unbounded maxTime) path in Run, which does
// not route through process.
func (s *Simulator) tick(t int64) {
	event := dht.NewEvent(dht.EventSimTick, t, map[string]interface{}{"time": t})
	s.deliverTick(event)
	s.emit(event)
}

// handleSimTick is process's case for a self-rescheduled SIM_TICK
// (bounded maxTime path); process emits the event to subscribers itself
// once this returns.
func (s *Simulator) handleSimTick(event dht.Event) {
	s.deliverTick(event)
	if s.runMaxTime >= 0 && event.Time+1 <= s.runMaxTime {
		next := event.Time + 1
		s.ScheduleEvent(dht.NewEvent(dht.EventSimTick, next, map[string]interface{}{"time": next}))
	}
}

// deliverTick hands a SIM_TICK event to every registered node, in
// ascending ID order so that any sends the nodes make draw from the RNG
// in the same order on every run.
func (s *Simulator) deliverTick(event dht.Event) {
	keys := make([]string, 0, len(s.nodes))
	for key := range s.nodes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		s.nodes[key].OnEvent(event)
	}
}

// process handles a single dequeued (or synthetic SIM_END) event, then
// notifies subscribers.
func (s *Simulator) process(event dht.Event) {
	s.log.WithFields(logrus.Fields{"event": event.Type, "time": event.Time}).Debug("processing event")

	switch event.Type {
	case dht.EventSimTick:
		s.handleSimTick(event)
	case dht.EventNodeJoin:
		s.handleNodeJoin(event)
	case dht.EventNodeLeave:
		s.handleNodeLeave(event)
	case dht.EventFilePublish:
		s.handleFilePublish(event)
	case dht.EventFileRetrieve:
		s.handleFileRetrieve(event)
	case dht.EventMessageReceived:
		s.handleMessageReceived(event)
	}

	s.emit(event)
}

func (s *Simulator) handleNodeJoin(event dht.Event) {
	id, ok := event.Params["node_id"].(dht.ID)
	if !ok {
		return
	}
	node, ok := s.nodes[id.String()]
	if !ok {
		return
	}
	seed, _ := event.Params["seed_id"].(dht.ID)
	node.Join(seed)
	s.log.WithField("node", id.String()).Info("node joined")
}

func (s *Simulator) handleNodeLeave(event dht.Event) {
	id, ok := event.Params["node_id"].(dht.ID)
	if !ok {
		return
	}
	node, ok := s.nodes[id.String()]
	if !ok {
		return
	}
	node.Leave()
	s.log.WithField("node", id.String()).Info("node left")
}

func (s *Simulator) handleFilePublish(event dht.Event) {
	id, ok := event.Params["node_id"].(dht.ID)
	fileID, ok2 := event.Params["file_id"].(dht.ID)
	if !ok || !ok2 {
		return
	}
	node, ok := s.nodes[id.String()]
	if !ok {
		return
	}
	node.Publish(fileID)
	s.log.WithFields(logrus.Fields{"node": id.String(), "file": fileID.String()}).Info("file published")
}

func (s *Simulator) handleFileRetrieve(event dht.Event) {
	id, ok := event.Params["node_id"].(dht.ID)
	fileID, ok2 := event.Params["file_id"].(dht.ID)
	if !ok || !ok2 {
		return
	}
	node, ok := s.nodes[id.String()]
	if !ok {
		return
	}
	node.Retrieve(fileID)
	s.log.WithFields(logrus.Fields{"node": id.String(), "file": fileID.String()}).Info("file retrieval requested")
}

func (s *Simulator) handleMessageReceived(event dht.Event) {
	msg, ok := event.Params["message"].(dht.Message)
	if !ok {
		return
	}
	target, ok := s.nodes[msg.TargetID.String()]
	if !ok {
		s.log.WithField("target", msg.TargetID.String()).Warn("message target node not found")
		return
	}
	if resp := target.OnMessage(msg); resp != nil {
		s.SendMessage(*resp, event.Time)
	}
}
