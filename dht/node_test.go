package dht

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNetwork is an in-memory dht.Network that records every message
// and event a Node hands it, instead of performing any delay or loss
// modeling. It lets the node tests exercise the protocol state machine
// without pulling in the simnet package.
type fakeNetwork struct {
	now      int64
	sent     []Message
	events   []Event
	onSend   func(Message)
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{}
}

func (n *fakeNetwork) SendMessage(msg Message, at int64) {
	n.sent = append(n.sent, msg)
	if n.onSend != nil {
		n.onSend(msg)
	}
}

func (n *fakeNetwork) ScheduleEvent(event Event) {
	n.events = append(n.events, event)
}

func (n *fakeNetwork) Now() int64 { return n.now }

func (n *fakeNetwork) lastSent() Message {
	return n.sent[len(n.sent)-1]
}

func testNode(id byte, net Network) *Node {
	return NewNode(ID{id}, Address{id}, net, DefaultNodeConfig())
}

func TestNodeJoinSendsFindNodeToSeed(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)

	n.Join(ID{0x02})

	require.True(t, n.Online())
	require.Len(t, net.sent, 1)
	msg := net.lastSent()
	assert.Equal(t, MsgFindNode, msg.Type)
	assert.Equal(t, ID{0x02}, msg.TargetID)

	req, ok := msg.Content.(FindNodeRequest)
	require.True(t, ok)
	assert.Equal(t, n.ID(), req.Target)
}

func TestNodeJoinIsIdempotent(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)

	n.Join(ID{0x02})
	n.Join(ID{0x03})

	assert.Len(t, net.sent, 1)
}

func TestNodeJoinWithNilSeedSendsNothing(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)

	n.Join(nil)

	assert.True(t, n.Online())
	assert.Empty(t, net.sent)
}

func TestNodeLeaveDropsIncomingMessages(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)
	n.Join(nil)
	n.Leave()

	ping := NewMessage(MsgPing, ID{0x02}, n.ID(), PingContent{})
	resp := n.OnMessage(ping)
	assert.Nil(t, resp)
}

func TestNodeRespondsToPingWithPong(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)
	n.Join(nil)

	ping := NewMessage(MsgPing, ID{0x02}, n.ID(), PingContent{RetryCount: 2})
	resp := n.OnMessage(ping)

	require.NotNil(t, resp)
	assert.Equal(t, MsgPong, resp.Type)
	content, ok := resp.Content.(PongContent)
	require.True(t, ok)
	assert.Equal(t, 2, content.RetryCount)
}

func TestNodeOnMessageUpdatesRoutingTableWithSourceIDAsAddress(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)
	n.Join(nil)

	source := ID{0x02}
	ping := NewMessage(MsgPing, source, n.ID(), PingContent{})
	n.OnMessage(ping)

	contact, ok := n.RoutingTable().Get(source)
	require.True(t, ok)
	// The known quirk: the contact's recorded address is the sender's
	// node ID reinterpreted as an address, not a real network address.
	assert.Equal(t, Address(source), contact.Address)
}

func TestNodeRespondsToFindNodeExcludingRequester(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)
	n.Join(nil)

	n.RoutingTable().Update(ID{0x02}, Address{0x02}, 0)
	n.RoutingTable().Update(ID{0x03}, Address{0x03}, 0)

	req := NewMessage(MsgFindNode, ID{0x02}, n.ID(), FindNodeRequest{Target: ID{0x09}})
	resp := n.OnMessage(req)

	require.NotNil(t, resp)
	content, ok := resp.Content.(FindNodeResponseContent)
	require.True(t, ok)
	for _, ni := range content.Nodes {
		assert.NotEqual(t, ID{0x02}, ni.ID)
	}
}

func TestNodePublishAddsToOwnedFilesAndQueriesKnownContacts(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)
	n.Join(nil)
	n.RoutingTable().Update(ID{0x02}, Address{0x02}, 0)

	fileID := ID{0xaa}
	n.Publish(fileID)

	assert.Contains(t, n.OwnedFileIDs(), fileID.String())
	require.Len(t, net.sent, 1)
	assert.Equal(t, MsgFindNode, net.sent[0].Type)
}

func TestNodeRetrieveOfOwnedFileSendsNothing(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)
	n.Join(nil)
	n.RoutingTable().Update(ID{0x02}, Address{0x02}, 0)

	fileID := ID{0xaa}
	n.Publish(fileID)
	net.sent = nil

	n.Retrieve(fileID)
	assert.Empty(t, net.sent)
}

func TestNodeRetrieveOfUnknownFileSendsFindValue(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)
	n.Join(nil)
	n.RoutingTable().Update(ID{0x02}, Address{0x02}, 0)

	fileID := ID{0xaa}
	n.Retrieve(fileID)

	require.Len(t, net.sent, 1)
	assert.Equal(t, MsgFindValue, net.sent[0].Type)
}

func TestNodeStoreCreatesProviderRecord(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)
	n.Join(nil)

	fileID := ID{0xaa}
	store := NewMessage(MsgStore, ID{0x02}, n.ID(), StoreRequest{Key: fileID, Provider: Address{0x02}})
	resp := n.OnMessage(store)

	require.NotNil(t, resp)
	assert.Equal(t, MsgStoreResponse, resp.Type)

	providers := n.Providers(fileID)
	require.Len(t, providers, 1)
	assert.Equal(t, Address{0x02}, providers[0].Address)
}

func TestNodeFindValueReturnsProvidersWhenKnown(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)
	n.Join(nil)

	fileID := ID{0xaa}
	store := NewMessage(MsgStore, ID{0x02}, n.ID(), StoreRequest{Key: fileID, Provider: Address{0x02}})
	n.OnMessage(store)

	query := NewMessage(MsgFindValue, ID{0x03}, n.ID(), FindValueRequest{Key: fileID})
	resp := n.OnMessage(query)

	require.NotNil(t, resp)
	content, ok := resp.Content.(FindValueResponseContent)
	require.True(t, ok)
	assert.True(t, content.Found)
	require.Len(t, content.Providers, 1)
}

func TestNodeFindValueReturnsClosestNodesWhenUnknown(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)
	n.Join(nil)
	n.RoutingTable().Update(ID{0x02}, Address{0x02}, 0)

	query := NewMessage(MsgFindValue, ID{0x03}, n.ID(), FindValueRequest{Key: ID{0xaa}})
	resp := n.OnMessage(query)

	require.NotNil(t, resp)
	content, ok := resp.Content.(FindValueResponseContent)
	require.True(t, ok)
	assert.False(t, content.Found)
}

func TestNodePingTimeoutTriggersRetryThenEviction(t *testing.T) {
	net := newFakeNetwork()
	cfg := DefaultNodeConfig()
	cfg.PingTimeoutTicks = 5
	cfg.MaxRetries = 1
	n := NewNode(ID{0x01}, Address{0x01}, net, cfg)
	n.Join(nil)
	n.RoutingTable().Update(ID{0x02}, Address{0x02}, 0)

	n.sendPing(ID{0x02})
	require.Len(t, net.sent, 1)

	net.now = 5
	n.OnEvent(NewEvent(EventSimTick, 5, nil))
	require.Len(t, net.sent, 2, "expected a retry ping")
	assert.True(t, n.RoutingTable().Contains(ID{0x02}))

	net.now = 10
	n.OnEvent(NewEvent(EventSimTick, 10, nil))
	assert.False(t, n.RoutingTable().Contains(ID{0x02}), "expected eviction after exhausting retries")
}

func TestNodePongClearsPendingPing(t *testing.T) {
	net := newFakeNetwork()
	n := testNode(0x01, net)
	n.Join(nil)

	n.sendPing(ID{0x02})
	txID := net.lastSent().TransactionID

	pong := Message{Type: MsgPong, SourceID: ID{0x02}, TargetID: n.ID(), Content: PongContent{}, TransactionID: txID}
	n.OnMessage(pong)

	net.now = 1000
	n.OnEvent(NewEvent(EventSimTick, 1000, nil))
	// No retry should fire since the pending ping was cleared by the pong.
	assert.Len(t, net.sent, 1)
}
