package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/internal/protocol"
	"github.com/rafald1/distributed-system/internal/telemetry"
	"github.com/rafald1/distributed-system/internal/transport"
)

// eventQueueSize bounds the unified event queue. Producers block when it
// fills, which back-pressures the transport reader.
const eventQueueSize = 1024

// Request is an inbound envelope with its decoded common fields.
type Request struct {
	Msg    protocol.Message
	Header protocol.Header
}

// HandlerFunc processes one inbound request on the actor goroutine.
type HandlerFunc func(req Request) error

// ReplyFunc consumes the reply to an outstanding request.
type ReplyFunc func(req Request)

type event struct {
	msg      protocol.Message
	tick     bool
	shutdown bool
	err      error
}

// Node is the actor core owning all mutable node state. Handlers, tick
// callbacks and init callbacks all run on the single Run goroutine;
// registration must finish before Run is called.
type Node struct {
	sender       transport.Sender
	logger       *zap.Logger
	tickInterval time.Duration

	id    string
	ids   []string
	ready bool

	nextMsgID uint64
	handlers  map[string]HandlerFunc
	tickFns   []func()
	initFns   []func()
	pending   map[uint64]ReplyFunc

	events chan event
}

// New creates a node runtime writing outbound messages to sender.
// A tickInterval of zero disables the internal timer; ticks can still be
// injected with Tick, which the test harness uses for deterministic runs.
func New(sender transport.Sender, logger *zap.Logger, tickInterval time.Duration) *Node {
	n := &Node{
		sender:       sender,
		logger:       logger,
		tickInterval: tickInterval,
		handlers:     make(map[string]HandlerFunc),
		pending:      make(map[uint64]ReplyFunc),
		events:       make(chan event, eventQueueSize),
	}
	n.Handle(protocol.TypeInit, n.handleInit)
	return n
}

// Handle registers the handler for a body type. Registering the same type
// twice is a programming error.
func (n *Node) Handle(msgType string, h HandlerFunc) {
	if _, exists := n.handlers[msgType]; exists {
		panic(fmt.Sprintf("duplicate handler for message type %q", msgType))
	}
	n.handlers[msgType] = h
}

// OnTick registers a callback invoked on every timer tick.
func (n *Node) OnTick(fn func()) {
	n.tickFns = append(n.tickFns, fn)
}

// OnInit registers a callback invoked once the node becomes ready.
func (n *Node) OnInit(fn func()) {
	n.initFns = append(n.initFns, fn)
}

// ID returns the node's identity. Empty until initialized.
func (n *Node) ID() string {
	return n.id
}

// ClusterIDs returns all node IDs in the cluster, including this node.
func (n *Node) ClusterIDs() []string {
	return n.ids
}

// Peers returns all cluster node IDs except this node.
func (n *Node) Peers() []string {
	peers := make([]string, 0, len(n.ids))
	for _, id := range n.ids {
		if id != n.id {
			peers = append(peers, id)
		}
	}
	return peers
}

// NextMsgID returns a fresh process-unique message identifier.
func (n *Node) NextMsgID() uint64 {
	n.nextMsgID++
	return n.nextMsgID
}

// Send emits a message to dest. body must marshal to a JSON object carrying
// its own type discriminant.
func (n *Node) Send(dest string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to serialize body: %w", err)
	}
	return n.sender.Send(protocol.Message{Src: n.id, Dest: dest, Body: raw})
}

// Reply emits a message answering req. The caller sets in_reply_to on the
// body itself.
func (n *Node) Reply(req Request, body any) error {
	return n.Send(req.Msg.Src, body)
}

// ReplyError answers req with a standard error body.
func (n *Node) ReplyError(req Request, code int, text string) error {
	return n.Reply(req, protocol.Error{
		Type:      protocol.TypeError,
		InReplyTo: req.Header.MsgID,
		Code:      code,
		Text:      text,
	})
}

// RPC emits a request and registers onReply for the given msgID. The reply,
// if it ever arrives, is delivered on the actor goroutine. Lost replies are
// simply never delivered; retry policy belongs to the calling engine.
func (n *Node) RPC(dest string, msgID uint64, body any, onReply ReplyFunc) error {
	n.pending[msgID] = onReply
	if err := n.Send(dest, body); err != nil {
		delete(n.pending, msgID)
		return err
	}
	return nil
}

// Enqueue pushes an inbound envelope onto the event queue. Safe to call from
// any goroutine.
func (n *Node) Enqueue(msg protocol.Message) {
	n.events <- event{msg: msg}
}

// Tick injects a timer tick. Safe to call from any goroutine.
func (n *Node) Tick() {
	n.events <- event{tick: true}
}

// Run drains the event queue until the input stream closes or ctx is
// cancelled. If input is non-nil a reader goroutine feeds the queue from it;
// the harness instead injects events directly via Enqueue and Tick.
// Returns the transport error if the input stream failed.
func (n *Node) Run(ctx context.Context, input io.Reader) error {
	if input != nil {
		logger := n.logger
		go func() {
			err := transport.ReadLoop(input, n.Enqueue, logger)
			n.events <- event{shutdown: true, err: err}
		}()
	}

	if n.tickInterval > 0 {
		go func() {
			ticker := time.NewTicker(n.tickInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					select {
					case n.events <- event{tick: true}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.events:
			if ev.shutdown {
				return ev.err
			}
			n.process(ev)
		}
	}
}

// Step processes at most one queued event without blocking and reports
// whether one was processed. It must not be used while Run is active; the
// in-memory test harness drives nodes deterministically this way.
func (n *Node) Step() bool {
	select {
	case ev := <-n.events:
		if ev.shutdown {
			return false
		}
		n.process(ev)
		return true
	default:
		return false
	}
}

func (n *Node) process(ev event) {
	if ev.tick {
		for _, fn := range n.tickFns {
			fn()
		}
		return
	}
	n.dispatch(ev.msg)
}

// dispatch routes one inbound envelope. Per-message failures are logged and
// dropped; nothing here is fatal.
func (n *Node) dispatch(msg protocol.Message) {
	header, err := protocol.ParseHeader(msg.Body)
	if err != nil {
		n.logger.Warn("dropping message with undecodable body",
			zap.String("src", msg.Src), zap.Error(err))
		return
	}

	req := Request{Msg: msg, Header: header}

	// Replies are matched against outstanding requests; anything unmatched
	// is stale or duplicated and is discarded.
	if header.InReplyTo != 0 {
		onReply, ok := n.pending[header.InReplyTo]
		if !ok {
			telemetry.DroppedReplies.Inc()
			n.logger.Debug("dropping reply with no outstanding request",
				zap.String("src", msg.Src),
				zap.String("type", header.Type),
				zap.Uint64("in_reply_to", header.InReplyTo))
			return
		}
		delete(n.pending, header.InReplyTo)
		onReply(req)
		return
	}

	telemetry.HandledMessages.WithLabelValues(header.Type).Inc()

	if !n.ready && header.Type != protocol.TypeInit {
		n.logger.Warn("rejecting message before init", zap.String("type", header.Type))
		if header.MsgID != 0 {
			if err := n.ReplyError(req, protocol.ErrTemporarilyUnavailable, "node is not initialized"); err != nil {
				n.logger.Error("failed to send error reply", zap.Error(err))
			}
		}
		return
	}

	h, ok := n.handlers[header.Type]
	if !ok {
		n.logger.Warn("unrecognized message type", zap.String("type", header.Type))
		if header.MsgID != 0 {
			if err := n.ReplyError(req, protocol.ErrNotSupported, fmt.Sprintf("unsupported message type %q", header.Type)); err != nil {
				n.logger.Error("failed to send error reply", zap.Error(err))
			}
		}
		return
	}

	if err := h(req); err != nil {
		n.logger.Error("handler failed",
			zap.String("type", header.Type),
			zap.String("src", msg.Src),
			zap.Error(err))
	}
}

// handleInit performs the one-time Uninitialized -> Ready transition.
func (n *Node) handleInit(req Request) error {
	var body protocol.Init
	if err := json.Unmarshal(req.Msg.Body, &body); err != nil {
		return n.ReplyError(req, protocol.ErrMalformedRequest, "malformed init body")
	}

	if n.ready {
		// Ready is terminal; acknowledge but do not re-initialize.
		n.logger.Warn("ignoring duplicate init", zap.String("src", req.Msg.Src))
		return n.Reply(req, protocol.InitOk{
			Type:      protocol.TypeInitOk,
			MsgID:     n.NextMsgID(),
			InReplyTo: req.Header.MsgID,
		})
	}

	n.id = body.NodeID
	n.ids = append([]string(nil), body.NodeIDs...)
	n.ready = true
	n.logger = n.logger.With(zap.String("node", n.id))

	for _, fn := range n.initFns {
		fn()
	}

	n.logger.Info("node initialized", zap.Strings("cluster", n.ids))

	return n.Reply(req, protocol.InitOk{
		Type:      protocol.TypeInitOk,
		MsgID:     n.NextMsgID(),
		InReplyTo: req.Header.MsgID,
	})
}
