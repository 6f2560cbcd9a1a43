package mlog

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/internal/protocol"
	"github.com/rafald1/distributed-system/internal/runtime"
)

// Engine serves the keyed-log message types on top of a Store.
type Engine struct {
	node   *runtime.Node
	logger *zap.Logger
	store  *Store
}

// New creates the engine and registers its handlers on n.
func New(n *runtime.Node, logger *zap.Logger) *Engine {
	e := &Engine{
		node:   n,
		logger: logger,
		store:  NewStore(),
	}

	n.Handle(protocol.TypeSend, e.handleSend)
	n.Handle(protocol.TypePoll, e.handlePoll)
	n.Handle(protocol.TypeCommitOffsets, e.handleCommitOffsets)
	n.Handle(protocol.TypeListCommittedOffsets, e.handleListCommittedOffsets)

	return e
}

func (e *Engine) handleSend(req runtime.Request) error {
	var body protocol.Send
	if err := json.Unmarshal(req.Msg.Body, &body); err != nil {
		return e.node.ReplyError(req, protocol.ErrMalformedRequest, "malformed send body")
	}

	offset := e.store.Append(body.Key, body.Msg)

	return e.node.Reply(req, protocol.SendOk{
		Type:      protocol.TypeSendOk,
		MsgID:     e.node.NextMsgID(),
		InReplyTo: req.Header.MsgID,
		Offset:    offset,
	})
}

func (e *Engine) handlePoll(req runtime.Request) error {
	var body protocol.Poll
	if err := json.Unmarshal(req.Msg.Body, &body); err != nil {
		return e.node.ReplyError(req, protocol.ErrMalformedRequest, "malformed poll body")
	}

	msgs := make(map[string][][2]int64)
	for key, from := range body.Offsets {
		msgs[key] = e.store.Read(key, from)
	}

	return e.node.Reply(req, protocol.PollOk{
		Type:      protocol.TypePollOk,
		MsgID:     e.node.NextMsgID(),
		InReplyTo: req.Header.MsgID,
		Msgs:      msgs,
	})
}

func (e *Engine) handleCommitOffsets(req runtime.Request) error {
	var body protocol.CommitOffsets
	if err := json.Unmarshal(req.Msg.Body, &body); err != nil {
		return e.node.ReplyError(req, protocol.ErrMalformedRequest, "malformed commit_offsets body")
	}

	e.store.Commit(body.Offsets)

	return e.node.Reply(req, protocol.CommitOffsetsOk{
		Type:      protocol.TypeCommitOffsetsOk,
		MsgID:     e.node.NextMsgID(),
		InReplyTo: req.Header.MsgID,
	})
}

func (e *Engine) handleListCommittedOffsets(req runtime.Request) error {
	var body protocol.ListCommittedOffsets
	if err := json.Unmarshal(req.Msg.Body, &body); err != nil {
		return e.node.ReplyError(req, protocol.ErrMalformedRequest, "malformed list_committed_offsets body")
	}

	return e.node.Reply(req, protocol.ListCommittedOffsetsOk{
		Type:      protocol.TypeListCommittedOffsetsOk,
		MsgID:     e.node.NextMsgID(),
		InReplyTo: req.Header.MsgID,
		Offsets:   e.store.Committed(body.Keys),
	})
}
