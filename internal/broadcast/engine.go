package broadcast

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/internal/protocol"
	"github.com/rafald1/distributed-system/internal/runtime"
	"github.com/rafald1/distributed-system/internal/telemetry"
)

// Engine is the gossip broadcast engine. All state is owned by the runtime's
// actor goroutine; handlers and the tick callback never run concurrently.
type Engine struct {
	node   *runtime.Node
	logger *zap.Logger
	mode   Mode
	fanout int

	seen      map[int64]struct{}
	knownBy   map[string]map[int64]struct{}
	neighbors []string
}

// New creates the engine and registers its handlers and tick callback on n.
func New(n *runtime.Node, logger *zap.Logger, mode Mode, fanout int) *Engine {
	e := &Engine{
		node:    n,
		logger:  logger,
		mode:    mode,
		fanout:  fanout,
		seen:    make(map[int64]struct{}),
		knownBy: make(map[string]map[int64]struct{}),
	}

	n.Handle(protocol.TypeBroadcast, e.handleBroadcast)
	n.Handle(protocol.TypeRead, e.handleRead)
	n.Handle(protocol.TypeTopology, e.handleTopology)
	n.Handle(protocol.TypeGossip, e.handleGossip)
	n.OnInit(e.applyInitialTopology)
	n.OnTick(e.gossip)

	return e
}

func (e *Engine) applyInitialTopology() {
	if e.mode != ModeTree {
		return
	}
	e.neighbors = Tree(e.node.ClusterIDs(), e.node.ID(), e.fanout)
	e.logger.Info("derived tree topology", zap.Strings("neighbors", e.neighbors))
}

func (e *Engine) handleBroadcast(req runtime.Request) error {
	var body protocol.Broadcast
	if err := json.Unmarshal(req.Msg.Body, &body); err != nil {
		return e.node.ReplyError(req, protocol.ErrMalformedRequest, "malformed broadcast body")
	}

	// Insertion is idempotent; duplicates are a no-op.
	e.seen[body.Message] = struct{}{}

	return e.node.Reply(req, protocol.BroadcastOk{
		Type:      protocol.TypeBroadcastOk,
		MsgID:     e.node.NextMsgID(),
		InReplyTo: req.Header.MsgID,
	})
}

func (e *Engine) handleRead(req runtime.Request) error {
	return e.node.Reply(req, protocol.ReadOkMessages{
		Type:      protocol.TypeReadOk,
		MsgID:     e.node.NextMsgID(),
		InReplyTo: req.Header.MsgID,
		Messages:  e.snapshot(),
	})
}

func (e *Engine) handleTopology(req runtime.Request) error {
	var body protocol.Topology
	if err := json.Unmarshal(req.Msg.Body, &body); err != nil {
		return e.node.ReplyError(req, protocol.ErrMalformedRequest, "malformed topology body")
	}

	if e.mode == ModeTree {
		// The derived tree stays in force; the harness adjacency is only
		// acknowledged.
		e.logger.Debug("ignoring harness topology in tree mode")
	} else if row, ok := body.Topology[e.node.ID()]; ok {
		e.neighbors = append([]string(nil), row...)
		e.logger.Info("installed topology", zap.Strings("neighbors", e.neighbors))
	}

	return e.node.Reply(req, protocol.TopologyOk{
		Type:      protocol.TypeTopologyOk,
		MsgID:     e.node.NextMsgID(),
		InReplyTo: req.Header.MsgID,
	})
}

func (e *Engine) handleGossip(req runtime.Request) error {
	var body protocol.Gossip
	if err := json.Unmarshal(req.Msg.Body, &body); err != nil {
		return fmt.Errorf("failed to decode gossip body: %w", err)
	}

	for _, v := range body.Messages {
		e.seen[v] = struct{}{}
	}

	// The sender also holds everything it just sent us.
	e.markKnown(req.Msg.Src, body.Messages)

	// Echo exactly the values received so the sender can advance its
	// known-by table; a duplicate delivery produces the same ack.
	return e.node.Reply(req, protocol.GossipOk{
		Type:      protocol.TypeGossipOk,
		MsgID:     e.node.NextMsgID(),
		InReplyTo: req.Header.MsgID,
		Messages:  body.Messages,
	})
}

// gossip runs one anti-entropy round: per neighbor, send the values we hold
// that the neighbor is not yet known to hold. Recomputing the delta from the
// authoritative set each round is what makes the protocol self-healing.
func (e *Engine) gossip() {
	for _, neighbor := range e.neighbors {
		delta := e.delta(neighbor)
		if len(delta) == 0 {
			continue
		}

		telemetry.GossipDeltaSize.Observe(float64(len(delta)))

		neighbor := neighbor
		msgID := e.node.NextMsgID()
		err := e.node.RPC(neighbor, msgID, protocol.Gossip{
			Type:     protocol.TypeGossip,
			MsgID:    msgID,
			Messages: delta,
		}, func(reply runtime.Request) {
			e.handleGossipOk(neighbor, reply)
		})
		if err != nil {
			e.logger.Error("failed to send gossip",
				zap.String("neighbor", neighbor), zap.Error(err))
		}
	}
}

// handleGossipOk records the values a neighbor acknowledged. Stale or
// duplicate acks only re-add values already present.
func (e *Engine) handleGossipOk(neighbor string, reply runtime.Request) {
	var body protocol.GossipOk
	if err := json.Unmarshal(reply.Msg.Body, &body); err != nil {
		e.logger.Warn("dropping undecodable gossip ack",
			zap.String("neighbor", neighbor), zap.Error(err))
		return
	}
	e.markKnown(neighbor, body.Messages)
}

func (e *Engine) markKnown(nodeID string, values []int64) {
	known, ok := e.knownBy[nodeID]
	if !ok {
		known = make(map[int64]struct{})
		e.knownBy[nodeID] = known
	}
	for _, v := range values {
		known[v] = struct{}{}
	}
}

// delta returns the values in the seen-set not yet known to be held by
// neighbor, in sorted order.
func (e *Engine) delta(neighbor string) []int64 {
	known := e.knownBy[neighbor]

	var out []int64
	for v := range e.seen {
		if _, ok := known[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// snapshot returns the seen-set contents in sorted order.
func (e *Engine) snapshot() []int64 {
	out := make([]int64, 0, len(e.seen))
	for v := range e.seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
