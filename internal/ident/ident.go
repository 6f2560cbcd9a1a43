// Package ident implements the unique-ID generation workload. IDs combine
// the node's cluster-unique identity with a process-unique sequence number,
// so no coordination between nodes is needed.
package ident

import (
	"fmt"

	"github.com/rafald1/distributed-system/internal/protocol"
	"github.com/rafald1/distributed-system/internal/runtime"
)

// Engine answers generate requests.
type Engine struct {
	node *runtime.Node
}

// New creates the engine and registers its handler on n.
func New(n *runtime.Node) *Engine {
	e := &Engine{node: n}
	n.Handle(protocol.TypeGenerate, e.handleGenerate)
	return e
}

func (e *Engine) handleGenerate(req runtime.Request) error {
	msgID := e.node.NextMsgID()
	return e.node.Reply(req, protocol.GenerateOk{
		Type:      protocol.TypeGenerateOk,
		MsgID:     msgID,
		InReplyTo: req.Header.MsgID,
		ID:        fmt.Sprintf("%s_%d", e.node.ID(), msgID),
	})
}
