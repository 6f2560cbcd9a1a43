package counter

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/internal/crdt"
	"github.com/rafald1/distributed-system/internal/protocol"
	"github.com/rafald1/distributed-system/internal/runtime"
	"github.com/rafald1/distributed-system/internal/telemetry"
)

// Engine is the counter replication engine. All state is owned by the
// runtime's actor goroutine.
type Engine struct {
	node   *runtime.Node
	logger *zap.Logger
	counts crdt.Vector
}

// New creates the engine and registers its handlers and tick callback on n.
func New(n *runtime.Node, logger *zap.Logger) *Engine {
	e := &Engine{
		node:   n,
		logger: logger,
		counts: crdt.New(),
	}

	n.Handle(protocol.TypeAdd, e.handleAdd)
	n.Handle(protocol.TypeRead, e.handleRead)
	n.Handle(protocol.TypeSync, e.handleSync)
	n.OnInit(e.initVector)
	n.OnTick(e.syncPeers)

	return e
}

func (e *Engine) initVector() {
	e.counts = crdt.NewForNodes(e.node.ClusterIDs())
}

func (e *Engine) handleAdd(req runtime.Request) error {
	var body protocol.Add
	if err := json.Unmarshal(req.Msg.Body, &body); err != nil {
		return e.node.ReplyError(req, protocol.ErrMalformedRequest, "malformed add body")
	}
	if body.Delta < 0 {
		return e.node.ReplyError(req, protocol.ErrMalformedRequest, "delta must be non-negative")
	}

	e.counts.Add(e.node.ID(), body.Delta)

	// Eager fan-out keeps steady-state latency low; the tick covers any
	// peer this misses.
	e.syncPeers()

	return e.node.Reply(req, protocol.AddOk{
		Type:      protocol.TypeAddOk,
		MsgID:     e.node.NextMsgID(),
		InReplyTo: req.Header.MsgID,
	})
}

func (e *Engine) handleRead(req runtime.Request) error {
	return e.node.Reply(req, protocol.ReadOkValue{
		Type:      protocol.TypeReadOk,
		MsgID:     e.node.NextMsgID(),
		InReplyTo: req.Header.MsgID,
		Value:     e.counts.Sum(),
	})
}

func (e *Engine) handleSync(req runtime.Request) error {
	var body protocol.Sync
	if err := json.Unmarshal(req.Msg.Body, &body); err != nil {
		return fmt.Errorf("failed to decode sync body: %w", err)
	}

	e.counts.Merge(crdt.Vector(body.Counters))
	telemetry.SyncMerges.Inc()
	return nil
}

// syncPeers sends the full vector to every peer, fire-and-forget. No reply
// is expected; a lost sync is repaired by the next one.
func (e *Engine) syncPeers() {
	peers := e.node.Peers()
	if len(peers) == 0 {
		return
	}

	counters := e.counts.Copy()
	for _, peer := range peers {
		err := e.node.Send(peer, protocol.Sync{
			Type:     protocol.TypeSync,
			MsgID:    e.node.NextMsgID(),
			Counters: counters,
		})
		if err != nil {
			e.logger.Error("failed to send sync", zap.String("peer", peer), zap.Error(err))
		}
	}
}
