package dht

import (
	"fmt"
	"sort"
)

// NodeConfig bundles the tunables spec §6 lists under the `dht` and
// timeout-related keys. K and IDBits size the routing table; the rest
// govern PING liveness checking and defensive bounds the spec invites
// implementations to add (§4.7, §9 open question 3).
type NodeConfig struct {
	K      int
	IDBits int

	// PingTimeoutTicks is how long a PING may go unanswered before a
	// retry or eviction (spec default: 20 ticks == 2000ms at 100ms/tick).
	PingTimeoutTicks int64
	// MaxRetries is how many times a PING is resent before the target
	// is evicted from the routing table.
	MaxRetries int
	// PendingMaxAgeTicks bounds how long a non-PING pending request may
	// sit unanswered before it is silently dropped. Spec §4.7 treats
	// this as a documented extension rather than a hard requirement.
	PendingMaxAgeTicks int64
	// MaxLookupDepth caps how many iterative FIND_VALUE hops a single
	// lookup chain may take, guarding against a malformed or adversarial
	// responder that never converges (spec §9 open question 3).
	MaxLookupDepth int
}

// DefaultNodeConfig returns the defaults named in spec §6.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		K:                  8,
		IDBits:             DefaultIDBits,
		PingTimeoutTicks:   20,
		MaxRetries:         2,
		PendingMaxAgeTicks: 2000,
		MaxLookupDepth:     20,
	}
}

// Node is the per-peer Kademlia protocol state machine: routing table,
// provider index, owned-files set, and pending-request table. A Node
// never holds a reference to the simulator itself, only the narrow
// Network capability (spec §9).
type Node struct {
	nodeID  ID
	address Address
	net     Network
	cfg     NodeConfig

	routingTable  *RoutingTable
	fileProviders map[string][]ProviderRecord
	ownedFiles    map[string]struct{}
	pending       map[string]PendingRequest

	online bool
}

// NewNode creates an offline node. It does not register with any
// simulator; registration is the simulator's responsibility (spec §3
// Lifecycle).
func NewNode(id ID, address Address, net Network, cfg NodeConfig) *Node {
	return &Node{
		nodeID:        id,
		address:       address,
		net:           net,
		cfg:           cfg,
		routingTable:  NewRoutingTable(id, cfg.K, cfg.IDBits),
		fileProviders: make(map[string][]ProviderRecord),
		ownedFiles:    make(map[string]struct{}),
		pending:       make(map[string]PendingRequest),
	}
}

// ID returns the node's identity.
func (n *Node) ID() ID { return n.nodeID }

// Address returns the node's network location.
func (n *Node) Address() Address { return n.address }

// Online reports whether the node is currently reachable.
func (n *Node) Online() bool { return n.online }

// RoutingTable exposes the node's routing table for read-only
// inspection (diagnostics, snapshots, tests).
func (n *Node) RoutingTable() *RoutingTable { return n.routingTable }

// OwnedFileIDs returns the hex-encoded IDs of files this node has
// published.
func (n *Node) OwnedFileIDs() []string {
	out := make([]string, 0, len(n.ownedFiles))
	for id := range n.ownedFiles {
		out = append(out, id)
	}
	return out
}

// Providers returns a copy of the provider records this node knows
// about for fileID.
func (n *Node) Providers(fileID ID) []ProviderRecord {
	recs := n.fileProviders[fileID.String()]
	out := make([]ProviderRecord, len(recs))
	copy(out, recs)
	return out
}

// Join brings the node online. If seedID is non-nil and not the
// node's own ID, it sends a FIND_NODE(self) to the seed as a
// JOIN_BOOTSTRAP request, seeding the routing table from the response.
// Join is idempotent: a second call while already online is a no-op.
func (n *Node) Join(seedID ID) {
	if n.online {
		return
	}
	n.online = true

	if seedID != nil && !seedID.Equal(n.nodeID) {
		n.sendFindNode(seedID, n.nodeID, PendingJoinBootstrap, nil, 0)
	}
}

// Leave takes the node offline. No further messages are sent, and
// incoming messages are dropped silently (see OnMessage).
func (n *Node) Leave() {
	n.online = false
}

// Publish adds fileID to the node's owned-files set and sends
// FIND_NODE(fileID) to the K closest contacts it already knows about.
// Each responder's closest-node answer is then asked to STORE a
// provider record (see OnMessage's STORE_FILE branch); the responders
// themselves are not sent STORE unless they appear in such an answer.
// This fans the provider
// record out toward the nodes closest to fileID in XOR space, without
// the publisher needing to know them directly.
func (n *Node) Publish(fileID ID) {
	if !n.online {
		return
	}
	n.ownedFiles[fileID.String()] = struct{}{}

	for _, c := range n.routingTable.FindClosest(fileID, n.cfg.K) {
		n.sendFindNode(c.NodeID, fileID, PendingStoreFile, fileID, 0)
	}
}

// Retrieve returns immediately (no network traffic) if the node
// already owns fileID. Otherwise it sends FIND_VALUE to the K closest
// known contacts; any providers discovered populate Providers(fileID)
// asynchronously as responses arrive.
func (n *Node) Retrieve(fileID ID) {
	if !n.online {
		return
	}
	if _, owned := n.ownedFiles[fileID.String()]; owned {
		return
	}

	for _, c := range n.routingTable.FindClosest(fileID, n.cfg.K) {
		n.sendFindValue(c.NodeID, fileID, 0)
	}
}

// OnEvent handles a dispatched simulation event. The only event kind a
// node reacts to is SIM_TICK, which drives the PING timeout/retry sweep
// and the bounded eviction of stale non-PING pending requests.
func (n *Node) OnEvent(e Event) {
	if e.Type != EventSimTick {
		return
	}
	n.sweepPending(e.Time)
}

// OnMessage processes a received message and optionally returns a
// response for the simulator to send back. A message delivered to an
// offline node is dropped silently, matching Leave's contract.
func (n *Node) OnMessage(msg Message) *Message {
	if !n.online {
		return nil
	}

	now := n.net.Now()

	// Known quirk (spec §9 open question 1): the address passed here is
	// the sender's node ID reinterpreted as an address, not its real
	// network address. The original implementation never threaded the
	// real address through from the transport layer, and this spec
	// preserves that observable behavior rather than silently fixing it.
	n.routingTable.Update(msg.SourceID, Address(msg.SourceID), now)

	switch msg.Type {
	case MsgPing:
		return n.handlePing(msg)
	case MsgPong:
		n.handlePong(msg)
	case MsgFindNode:
		return n.handleFindNode(msg)
	case MsgFindNodeResponse:
		n.handleFindNodeResponse(msg, now)
	case MsgFindValue:
		return n.handleFindValue(msg)
	case MsgFindValueResponse:
		n.handleFindValueResponse(msg, now)
	case MsgStore:
		return n.handleStore(msg, now)
	case MsgStoreResponse:
		delete(n.pending, msg.TransactionID)
	}
	return nil
}

func (n *Node) handlePing(msg Message) *Message {
	content, ok := msg.Content.(PingContent)
	if !ok {
		return nil
	}
	resp, err := msg.CreateResponse(PongContent{RetryCount: content.RetryCount})
	if err != nil {
		return nil
	}
	return &resp
}

func (n *Node) handlePong(msg Message) {
	pr, ok := n.pending[msg.TransactionID]
	if !ok || pr.Kind != PendingPing {
		return
	}
	delete(n.pending, msg.TransactionID)
}

func (n *Node) handleFindNode(msg Message) *Message {
	req, ok := msg.Content.(FindNodeRequest)
	if !ok || len(req.Target) == 0 {
		return nil
	}

	nodes := n.closestExcluding(req.Target, msg.SourceID)
	resp, err := msg.CreateResponse(FindNodeResponseContent{Nodes: nodes})
	if err != nil {
		return nil
	}
	return &resp
}

func (n *Node) handleFindNodeResponse(msg Message, now int64) {
	content, ok := msg.Content.(FindNodeResponseContent)
	if !ok {
		return
	}
	pr, ok := n.pending[msg.TransactionID]
	if !ok {
		return
	}
	delete(n.pending, msg.TransactionID)

	for _, ni := range content.Nodes {
		n.routingTable.Update(ni.ID, ni.Address, now)
	}

	switch pr.Kind {
	case PendingJoinBootstrap:
		for _, ni := range content.Nodes {
			if ni.ID.Equal(n.nodeID) {
				continue
			}
			n.sendPing(ni.ID)
		}
	case PendingStoreFile:
		for _, ni := range content.Nodes {
			if ni.ID.Equal(n.nodeID) {
				continue
			}
			n.sendStore(ni.ID, pr.FileID)
		}
	}
}

func (n *Node) handleFindValue(msg Message) *Message {
	req, ok := msg.Content.(FindValueRequest)
	if !ok || len(req.Key) == 0 {
		return nil
	}

	if providers := n.fileProviders[req.Key.String()]; len(providers) > 0 {
		infos := make([]ProviderInfo, len(providers))
		for i, p := range providers {
			infos[i] = ProviderInfo{Address: p.Address, LastSeen: p.LastSeen}
		}
		resp, err := msg.CreateResponse(FindValueResponseContent{Found: true, Key: req.Key, Providers: infos})
		if err != nil {
			return nil
		}
		return &resp
	}

	nodes := n.closestExcluding(req.Key, msg.SourceID)
	resp, err := msg.CreateResponse(FindValueResponseContent{Found: false, Key: req.Key, Nodes: nodes})
	if err != nil {
		return nil
	}
	return &resp
}

func (n *Node) handleFindValueResponse(msg Message, now int64) {
	content, ok := msg.Content.(FindValueResponseContent)
	if !ok {
		return
	}
	pr, ok := n.pending[msg.TransactionID]
	if !ok || pr.Kind != PendingFindValue {
		return
	}
	delete(n.pending, msg.TransactionID)

	if content.Found {
		n.mergeProviders(pr.FileID, content.Providers, now)
		return
	}

	for _, ni := range content.Nodes {
		n.routingTable.Update(ni.ID, ni.Address, now)
		if ni.ID.Equal(n.nodeID) {
			continue
		}
		n.sendFindValue(ni.ID, pr.FileID, pr.Depth+1)
	}
}

func (n *Node) handleStore(msg Message, now int64) *Message {
	req, ok := msg.Content.(StoreRequest)
	if !ok || len(req.Key) == 0 || len(req.Provider) == 0 {
		return nil
	}

	key := req.Key.String()
	records := n.fileProviders[key]
	updated := false
	for i, r := range records {
		if r.Address.Equal(req.Provider) {
			records[i].LastSeen = now
			updated = true
			break
		}
	}
	if !updated {
		records = append(records, ProviderRecord{Address: req.Provider, LastSeen: now})
	}
	n.fileProviders[key] = records

	resp, err := msg.CreateResponse(StoreResponseContent{Status: "success"})
	if err != nil {
		return nil
	}
	return &resp
}

func (n *Node) mergeProviders(fileID ID, providers []ProviderInfo, now int64) {
	key := fileID.String()
	records := n.fileProviders[key]
	for _, p := range providers {
		lastSeen := p.LastSeen
		if lastSeen == 0 {
			lastSeen = now
		}
		found := false
		for i, r := range records {
			if r.Address.Equal(p.Address) {
				records[i].LastSeen = lastSeen
				found = true
				break
			}
		}
		if !found {
			records = append(records, ProviderRecord{Address: p.Address, LastSeen: lastSeen})
		}
	}
	n.fileProviders[key] = records
}

// closestExcluding returns the K closest known contacts to target,
// excluding exclude (typically the requester, since returning it back
// to itself is never useful) and rendered as wire NodeInfo values.
func (n *Node) closestExcluding(target, exclude ID) []NodeInfo {
	contacts := n.routingTable.FindClosest(target, n.cfg.K+1)
	nodes := make([]NodeInfo, 0, len(contacts))
	for _, c := range contacts {
		if c.NodeID.Equal(exclude) {
			continue
		}
		if len(nodes) == n.cfg.K {
			break
		}
		nodes = append(nodes, NodeInfo{ID: c.NodeID, Address: c.Address})
	}
	return nodes
}

func (n *Node) sendPing(target ID) {
	msg := NewMessage(MsgPing, n.nodeID, target, PingContent{RetryCount: 0})
	n.pending[msg.TransactionID] = PendingRequest{Kind: PendingPing, TargetID: target, SentAt: n.net.Now()}
	n.net.SendMessage(msg, n.net.Now())
}

func (n *Node) sendFindNode(target, lookupTarget ID, kind PendingKind, fileID ID, depth int) {
	msg := NewMessage(MsgFindNode, n.nodeID, target, FindNodeRequest{Target: lookupTarget})
	n.pending[msg.TransactionID] = PendingRequest{Kind: kind, TargetID: target, FileID: fileID, SentAt: n.net.Now(), RetryCount: depth}
	n.net.SendMessage(msg, n.net.Now())
}

func (n *Node) sendFindValue(target, fileID ID, depth int) {
	if depth > n.cfg.MaxLookupDepth {
		return
	}
	msg := NewMessage(MsgFindValue, n.nodeID, target, FindValueRequest{Key: fileID})
	n.pending[msg.TransactionID] = PendingRequest{Kind: PendingFindValue, TargetID: target, FileID: fileID, SentAt: n.net.Now(), Depth: depth}
	n.net.SendMessage(msg, n.net.Now())
}

func (n *Node) sendStore(target, fileID ID) {
	msg := NewMessage(MsgStore, n.nodeID, target, StoreRequest{Key: fileID, Provider: n.address})
	n.pending[msg.TransactionID] = PendingRequest{Kind: PendingStore, TargetID: target, FileID: fileID, SentAt: n.net.Now()}
	n.net.SendMessage(msg, n.net.Now())
}

// sweepPending runs the PING timeout/retry policy and the bounded
// eviction of aged-out non-PING pending requests (spec §4.7, §9 open
// question 4). Entries are visited in (SentAt, TargetID) order rather
// than map order, so resent PINGs reach the network in the same order on
// every run.
func (n *Node) sweepPending(now int64) {
	txIDs := make([]string, 0, len(n.pending))
	for txID := range n.pending {
		txIDs = append(txIDs, txID)
	}
	sort.Slice(txIDs, func(i, j int) bool {
		a, b := n.pending[txIDs[i]], n.pending[txIDs[j]]
		if a.SentAt != b.SentAt {
			return a.SentAt < b.SentAt
		}
		return a.TargetID.Less(b.TargetID)
	})

	for _, txID := range txIDs {
		pr := n.pending[txID]
		if pr.Kind != PendingPing {
			if now-pr.SentAt > n.cfg.PendingMaxAgeTicks {
				delete(n.pending, txID)
			}
			continue
		}

		if now-pr.SentAt < n.cfg.PingTimeoutTicks {
			continue
		}

		delete(n.pending, txID)
		if pr.RetryCount < n.cfg.MaxRetries {
			n.resendPing(pr.TargetID, pr.RetryCount+1)
		} else {
			n.routingTable.Remove(pr.TargetID)
		}
	}
}

func (n *Node) resendPing(target ID, retryCount int) {
	msg := NewMessage(MsgPing, n.nodeID, target, PingContent{RetryCount: retryCount})
	n.pending[msg.TransactionID] = PendingRequest{Kind: PendingPing, TargetID: target, SentAt: n.net.Now(), RetryCount: retryCount}
	n.net.SendMessage(msg, n.net.Now())
}

// String implements fmt.Stringer for diagnostics.
func (n *Node) String() string {
	return fmt.Sprintf("Node{id=%s, address=%s, online=%v}", n.nodeID, n.address, n.online)
}
