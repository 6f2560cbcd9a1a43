package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is the envelope framing every body on the wire.
type Message struct {
	Src  string          `json:"src"`
	Dest string          `json:"dest"`
	Body json.RawMessage `json:"body"`
}

// Header is the subset of fields common to all bodies. It is decoded first
// so the runtime can dispatch on Type and correlate replies on InReplyTo
// before the full typed body is unmarshalled.
type Header struct {
	Type      string `json:"type"`
	MsgID     uint64 `json:"msg_id,omitempty"`
	InReplyTo uint64 `json:"in_reply_to,omitempty"`
}

// ParseHeader decodes the common body fields from a raw body.
func ParseHeader(body json.RawMessage) (Header, error) {
	var h Header
	if err := json.Unmarshal(body, &h); err != nil {
		return Header{}, fmt.Errorf("failed to decode body header: %w", err)
	}
	if h.Type == "" {
		return Header{}, fmt.Errorf("body has no type field")
	}
	return h, nil
}

// Body type discriminants.
const (
	TypeInit   = "init"
	TypeInitOk = "init_ok"

	TypeEcho   = "echo"
	TypeEchoOk = "echo_ok"

	TypeGenerate   = "generate"
	TypeGenerateOk = "generate_ok"

	TypeBroadcast   = "broadcast"
	TypeBroadcastOk = "broadcast_ok"
	TypeRead        = "read"
	TypeReadOk      = "read_ok"
	TypeTopology    = "topology"
	TypeTopologyOk  = "topology_ok"
	TypeGossip      = "gossip"
	TypeGossipOk    = "gossip_ok"

	TypeAdd   = "add"
	TypeAddOk = "add_ok"
	TypeSync  = "sync"

	TypeSend                   = "send"
	TypeSendOk                 = "send_ok"
	TypePoll                   = "poll"
	TypePollOk                 = "poll_ok"
	TypeCommitOffsets          = "commit_offsets"
	TypeCommitOffsetsOk        = "commit_offsets_ok"
	TypeListCommittedOffsets   = "list_committed_offsets"
	TypeListCommittedOffsetsOk = "list_committed_offsets_ok"

	TypeError = "error"
)

// Error codes from the external harness's shared taxonomy. Only the codes
// the node actually emits are listed.
const (
	ErrNotSupported           = 10
	ErrTemporarilyUnavailable = 11
	ErrMalformedRequest       = 12
)

// Init assigns the node its identity and the full cluster member list.
type Init struct {
	Type    string   `json:"type"`
	MsgID   uint64   `json:"msg_id"`
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

// InitOk acknowledges Init.
type InitOk struct {
	Type      string `json:"type"`
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
}

// Echo asks the node to echo back an opaque payload.
type Echo struct {
	Type  string `json:"type"`
	MsgID uint64 `json:"msg_id"`
	Echo  string `json:"echo"`
}

// EchoOk carries the echoed payload back to the caller.
type EchoOk struct {
	Type      string `json:"type"`
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
	Echo      string `json:"echo"`
}

// Generate requests a cluster-unique identifier.
type Generate struct {
	Type  string `json:"type"`
	MsgID uint64 `json:"msg_id"`
}

// GenerateOk returns the generated identifier.
type GenerateOk struct {
	Type      string `json:"type"`
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
	ID        string `json:"id"`
}

// Broadcast inserts a single value into the replicated set.
type Broadcast struct {
	Type    string `json:"type"`
	MsgID   uint64 `json:"msg_id"`
	Message int64  `json:"message"`
}

// BroadcastOk acknowledges Broadcast.
type BroadcastOk struct {
	Type      string `json:"type"`
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
}

// Read requests the current replicated state. Both the broadcast and the
// counter workloads answer it, with ReadOkMessages and ReadOkValue
// respectively.
type Read struct {
	Type  string `json:"type"`
	MsgID uint64 `json:"msg_id"`
}

// ReadOkMessages is the broadcast workload's Read reply: a snapshot of the
// replicated set.
type ReadOkMessages struct {
	Type      string  `json:"type"`
	MsgID     uint64  `json:"msg_id"`
	InReplyTo uint64  `json:"in_reply_to"`
	Messages  []int64 `json:"messages"`
}

// ReadOkValue is the counter workload's Read reply: the summed counter.
type ReadOkValue struct {
	Type      string `json:"type"`
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
	Value     int64  `json:"value"`
}

// Topology delivers the harness-chosen neighbor adjacency for the whole
// cluster; each node keeps only its own row.
type Topology struct {
	Type     string              `json:"type"`
	MsgID    uint64              `json:"msg_id"`
	Topology map[string][]string `json:"topology"`
}

// TopologyOk acknowledges Topology.
type TopologyOk struct {
	Type      string `json:"type"`
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
}

// Gossip carries a delta of set values believed missing from the destination.
type Gossip struct {
	Type     string  `json:"type"`
	MsgID    uint64  `json:"msg_id"`
	Messages []int64 `json:"messages"`
}

// GossipOk acknowledges Gossip, echoing exactly the values received so the
// sender can advance its per-neighbor bookkeeping.
type GossipOk struct {
	Type      string  `json:"type"`
	MsgID     uint64  `json:"msg_id"`
	InReplyTo uint64  `json:"in_reply_to"`
	Messages  []int64 `json:"messages"`
}

// Add increments the caller-facing counter by a non-negative delta.
type Add struct {
	Type  string `json:"type"`
	MsgID uint64 `json:"msg_id"`
	Delta int64  `json:"delta"`
}

// AddOk acknowledges Add.
type AddOk struct {
	Type      string `json:"type"`
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
}

// Sync carries a node's full counter vector to a peer. It expects no reply.
type Sync struct {
	Type     string           `json:"type"`
	MsgID    uint64           `json:"msg_id"`
	Counters map[string]int64 `json:"counters"`
}

// Send appends a message to the keyed log.
type Send struct {
	Type  string `json:"type"`
	MsgID uint64 `json:"msg_id"`
	Key   string `json:"key"`
	Msg   int64  `json:"msg"`
}

// SendOk returns the offset the message was appended at.
type SendOk struct {
	Type      string `json:"type"`
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
	Offset    int64  `json:"offset"`
}

// Poll requests log entries at or after the given per-key offsets.
type Poll struct {
	Type    string           `json:"type"`
	MsgID   uint64           `json:"msg_id"`
	Offsets map[string]int64 `json:"offsets"`
}

// PollOk returns, per key, [offset, msg] pairs starting from the requested
// offsets.
type PollOk struct {
	Type      string               `json:"type"`
	MsgID     uint64               `json:"msg_id"`
	InReplyTo uint64               `json:"in_reply_to"`
	Msgs      map[string][][2]int64 `json:"msgs"`
}

// CommitOffsets records client-committed offsets per key.
type CommitOffsets struct {
	Type    string           `json:"type"`
	MsgID   uint64           `json:"msg_id"`
	Offsets map[string]int64 `json:"offsets"`
}

// CommitOffsetsOk acknowledges CommitOffsets.
type CommitOffsetsOk struct {
	Type      string `json:"type"`
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
}

// ListCommittedOffsets requests the committed offsets for a set of keys.
type ListCommittedOffsets struct {
	Type  string   `json:"type"`
	MsgID uint64   `json:"msg_id"`
	Keys  []string `json:"keys"`
}

// ListCommittedOffsetsOk returns committed offsets for the keys that have one.
type ListCommittedOffsetsOk struct {
	Type      string           `json:"type"`
	MsgID     uint64           `json:"msg_id"`
	InReplyTo uint64           `json:"in_reply_to"`
	Offsets   map[string]int64 `json:"offsets"`
}

// Error is the standard failure reply for requests the node cannot serve.
type Error struct {
	Type      string `json:"type"`
	InReplyTo uint64 `json:"in_reply_to"`
	Code      int    `json:"code"`
	Text      string `json:"text"`
}
