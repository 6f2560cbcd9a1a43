// Package echo implements the stateless echo workload.
package echo

import (
	"encoding/json"

	"github.com/rafald1/distributed-system/internal/protocol"
	"github.com/rafald1/distributed-system/internal/runtime"
)

// Engine answers echo requests with their own payload.
type Engine struct {
	node *runtime.Node
}

// New creates the engine and registers its handler on n.
func New(n *runtime.Node) *Engine {
	e := &Engine{node: n}
	n.Handle(protocol.TypeEcho, e.handleEcho)
	return e
}

func (e *Engine) handleEcho(req runtime.Request) error {
	var body protocol.Echo
	if err := json.Unmarshal(req.Msg.Body, &body); err != nil {
		return e.node.ReplyError(req, protocol.ErrMalformedRequest, "malformed echo body")
	}

	return e.node.Reply(req, protocol.EchoOk{
		Type:      protocol.TypeEchoOk,
		MsgID:     e.node.NextMsgID(),
		InReplyTo: req.Header.MsgID,
		Echo:      body.Echo,
	})
}
