package dht

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageType is the wire-level tag for a message, stable across
// serialization (spec §6).
type MessageType string

const (
	MsgPing               MessageType = "ping"
	MsgPong               MessageType = "pong"
	MsgFindNode           MessageType = "find_node"
	MsgFindNodeResponse   MessageType = "find_node_response"
	MsgFindValue          MessageType = "find_value"
	MsgFindValueResponse  MessageType = "find_value_response"
	MsgStore              MessageType = "store"
	MsgStoreResponse      MessageType = "store_response"
	MsgBootstrap          MessageType = "bootstrap"
	MsgAnnounce           MessageType = "announce"
)

// ErrUnmappableResponse indicates CreateResponse was asked to
// auto-derive a response type for a message type that has none (only
// PING, FIND_NODE, FIND_VALUE, and STORE do). Calling this a
// programming error matches spec §4.4.
var ErrUnmappableResponse = fmt.Errorf("dht: no automatic response type for this message type")

// NodeInfo is the wire representation of a routing-table contact,
// carried inside FIND_NODE and FIND_VALUE responses.
type NodeInfo struct {
	ID      ID      `json:"id"`
	Address Address `json:"address"`
}

// ProviderInfo is the wire representation of a ProviderRecord.
type ProviderInfo struct {
	Address  Address `json:"address"`
	LastSeen int64   `json:"last_seen"`
}

// PingContent is the payload of a PING request.
type PingContent struct {
	RetryCount int `json:"retry_count"`
}

// PongContent is the payload of a PONG response; it echoes the
// originating request's retry count (spec §4.7).
type PongContent struct {
	RetryCount int `json:"retry_count"`
}

// FindNodeRequest is the payload of a FIND_NODE request.
type FindNodeRequest struct {
	Target ID `json:"target"`
}

// FindNodeResponseContent is the payload of a FIND_NODE_RESPONSE.
type FindNodeResponseContent struct {
	Nodes []NodeInfo `json:"nodes"`
}

// FindValueRequest is the payload of a FIND_VALUE request.
type FindValueRequest struct {
	Key ID `json:"key"`
}

// FindValueResponseContent is the payload of a FIND_VALUE_RESPONSE. If
// Found is true, Providers carries the known holders of Key; otherwise
// Nodes carries the closest contacts the receiver knows, for the
// requester to continue the iterative lookup.
type FindValueResponseContent struct {
	Found     bool           `json:"found"`
	Key       ID             `json:"key"`
	Providers []ProviderInfo `json:"providers,omitempty"`
	Nodes     []NodeInfo     `json:"nodes,omitempty"`
}

// StoreRequest is the payload of a STORE request.
type StoreRequest struct {
	Key      ID      `json:"key"`
	Provider Address `json:"provider"`
}

// StoreResponseContent is the payload of a STORE_RESPONSE.
type StoreResponseContent struct {
	Status string `json:"status"`
}

// Message is a tagged request/response record exchanged between nodes
// through the simulator. Messages are values: they pass by copy
// through the event queue and are never shared mutably (spec §3
// Ownership).
type Message struct {
	Type          MessageType
	SourceID      ID
	TargetID      ID
	Content       interface{}
	TransactionID string
	SendTime      int64
	DeliveryTime  int64
}

// NewMessage constructs a request message with a fresh, globally
// unique transaction ID. Using a real UUID rather than a per-node
// counter makes "unique across the sender's pending table" trivially
// true without the sender needing to track anything.
func NewMessage(msgType MessageType, source, target ID, content interface{}) Message {
	return Message{
		Type:          msgType,
		SourceID:      source,
		TargetID:      target,
		Content:       content,
		TransactionID: uuid.NewString(),
	}
}

// autoResponseType maps a request type to its canonical response type.
func autoResponseType(reqType MessageType) (MessageType, bool) {
	switch reqType {
	case MsgPing:
		return MsgPong, true
	case MsgFindNode:
		return MsgFindNodeResponse, true
	case MsgFindValue:
		return MsgFindValueResponse, true
	case MsgStore:
		return MsgStoreResponse, true
	default:
		return "", false
	}
}

// CreateResponse builds a response to m: source and target are
// swapped, the transaction ID is preserved, and the response type is
// either the explicitly supplied responseType or the automatic mapping
// for m.Type. Passing no responseType for a message type without an
// automatic mapping returns ErrUnmappableResponse.
func (m Message) CreateResponse(content interface{}, responseType ...MessageType) (Message, error) {
	var rt MessageType
	if len(responseType) > 0 && responseType[0] != "" {
		rt = responseType[0]
	} else {
		mapped, ok := autoResponseType(m.Type)
		if !ok {
			return Message{}, fmt.Errorf("%w: %s", ErrUnmappableResponse, m.Type)
		}
		rt = mapped
	}
	return Message{
		Type:          rt,
		SourceID:      m.TargetID,
		TargetID:      m.SourceID,
		Content:       content,
		TransactionID: m.TransactionID,
	}, nil
}

// wireEnvelope is the JSON-compatible serialized form of a Message
// (spec §6): {type, source_id, target_id, content, transaction_id,
// send_time, delivery_time}, with IDs and addresses hex-encoded.
type wireEnvelope struct {
	Type          MessageType     `json:"type"`
	SourceID      string          `json:"source_id"`
	TargetID      string          `json:"target_id"`
	Content       json.RawMessage `json:"content"`
	TransactionID string          `json:"transaction_id"`
	SendTime      int64           `json:"send_time"`
	DeliveryTime  int64           `json:"delivery_time"`
}

// MarshalJSON implements the wire envelope described in spec §6.
func (m Message) MarshalJSON() ([]byte, error) {
	contentJSON, err := json.Marshal(m.Content)
	if err != nil {
		return nil, fmt.Errorf("dht: marshal message content: %w", err)
	}
	env := wireEnvelope{
		Type:          m.Type,
		SourceID:      m.SourceID.String(),
		TargetID:      m.TargetID.String(),
		Content:       contentJSON,
		TransactionID: m.TransactionID,
		SendTime:      m.SendTime,
		DeliveryTime:  m.DeliveryTime,
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the wire envelope, dispatching the content
// field into the concrete payload type for m.Type so that round-tripping
// (UnmarshalJSON(MarshalJSON(m)) == m) holds for every field, including
// the typed content.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("dht: unmarshal message envelope: %w", err)
	}

	source, err := IDFromHex(env.SourceID)
	if err != nil {
		return fmt.Errorf("dht: decode source_id: %w", err)
	}
	target, err := IDFromHex(env.TargetID)
	if err != nil {
		return fmt.Errorf("dht: decode target_id: %w", err)
	}

	content, err := decodeContent(env.Type, env.Content)
	if err != nil {
		return err
	}

	m.Type = env.Type
	m.SourceID = source
	m.TargetID = target
	m.Content = content
	m.TransactionID = env.TransactionID
	m.SendTime = env.SendTime
	m.DeliveryTime = env.DeliveryTime
	return nil
}

func decodeContent(msgType MessageType, raw json.RawMessage) (interface{}, error) {
	var (
		content interface{}
		err     error
	)
	switch msgType {
	case MsgPing:
		var c PingContent
		err = json.Unmarshal(raw, &c)
		content = c
	case MsgPong:
		var c PongContent
		err = json.Unmarshal(raw, &c)
		content = c
	case MsgFindNode:
		var c FindNodeRequest
		err = json.Unmarshal(raw, &c)
		content = c
	case MsgFindNodeResponse:
		var c FindNodeResponseContent
		err = json.Unmarshal(raw, &c)
		content = c
	case MsgFindValue:
		var c FindValueRequest
		err = json.Unmarshal(raw, &c)
		content = c
	case MsgFindValueResponse:
		var c FindValueResponseContent
		err = json.Unmarshal(raw, &c)
		content = c
	case MsgStore:
		var c StoreRequest
		err = json.Unmarshal(raw, &c)
		content = c
	case MsgStoreResponse:
		var c StoreResponseContent
		err = json.Unmarshal(raw, &c)
		content = c
	default:
		var c map[string]interface{}
		err = json.Unmarshal(raw, &c)
		content = c
	}
	if err != nil {
		return nil, fmt.Errorf("dht: decode content for %s: %w", msgType, err)
	}
	return content, nil
}
