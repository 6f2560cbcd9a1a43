package counter

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/internal/protocol"
	"github.com/rafald1/distributed-system/internal/runtime"
)

type captureSender struct {
	msgs []protocol.Message
}

func (s *captureSender) Send(msg protocol.Message) error {
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *captureSender) take() []protocol.Message {
	out := s.msgs
	s.msgs = nil
	return out
}

func envelope(t *testing.T, src, dest string, body any) protocol.Message {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}
	return protocol.Message{Src: src, Dest: dest, Body: raw}
}

func newEngine(t *testing.T, self string, cluster []string) (*Engine, *runtime.Node, *captureSender) {
	t.Helper()
	sender := &captureSender{}
	node := runtime.New(sender, zap.NewNop(), 0)
	e := New(node, zap.NewNop())

	node.Enqueue(envelope(t, "c0", self, protocol.Init{
		Type: protocol.TypeInit, MsgID: 1, NodeID: self, NodeIDs: cluster,
	}))
	if !node.Step() {
		t.Fatal("Expected init to be processed")
	}
	sender.take()
	return e, node, sender
}

func readValue(t *testing.T, node *runtime.Node, sender *captureSender, self string) int64 {
	t.Helper()
	node.Enqueue(envelope(t, "c0", self, protocol.Read{Type: protocol.TypeRead, MsgID: 99}))
	node.Step()

	msgs := sender.take()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 read reply, got %d", len(msgs))
	}
	var body protocol.ReadOkValue
	if err := json.Unmarshal(msgs[0].Body, &body); err != nil {
		t.Fatalf("Failed to decode read_ok: %v", err)
	}
	return body.Value
}

func TestEngine_InitZeroesVectorForCluster(t *testing.T) {
	e, _, _ := newEngine(t, "n1", []string{"n1", "n2", "n3"})

	if len(e.counts) != 3 {
		t.Fatalf("Expected 3 vector entries, got %d", len(e.counts))
	}
	if e.counts.Sum() != 0 {
		t.Errorf("Expected zero initial sum, got %d", e.counts.Sum())
	}
}

func TestEngine_AddAcksAndSyncsPeers(t *testing.T) {
	_, node, sender := newEngine(t, "n1", []string{"n1", "n2", "n3"})

	node.Enqueue(envelope(t, "c0", "n1", protocol.Add{
		Type: protocol.TypeAdd, MsgID: 5, Delta: 4,
	}))
	node.Step()

	msgs := sender.take()
	// One sync per peer plus the client ack.
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 outbound messages, got %d", len(msgs))
	}

	syncDests := map[string]bool{}
	var acked bool
	for _, m := range msgs {
		h, err := protocol.ParseHeader(m.Body)
		if err != nil {
			t.Fatalf("Failed to parse header: %v", err)
		}
		switch h.Type {
		case protocol.TypeSync:
			var body protocol.Sync
			if err := json.Unmarshal(m.Body, &body); err != nil {
				t.Fatalf("Failed to decode sync: %v", err)
			}
			if body.Counters["n1"] != 4 {
				t.Errorf("Expected sync carrying n1=4, got %v", body.Counters)
			}
			syncDests[m.Dest] = true
		case protocol.TypeAddOk:
			if h.InReplyTo != 5 {
				t.Errorf("Expected in_reply_to=5, got %d", h.InReplyTo)
			}
			acked = true
		default:
			t.Errorf("Unexpected message type %s", h.Type)
		}
	}
	if !acked {
		t.Error("Expected an add_ok reply")
	}
	if !syncDests["n2"] || !syncDests["n3"] {
		t.Errorf("Expected sync to both peers, got %v", syncDests)
	}
}

func TestEngine_AddAccumulatesLocally(t *testing.T) {
	_, node, sender := newEngine(t, "n1", []string{"n1", "n2"})

	for i, delta := range []int64{1, 2, 3} {
		node.Enqueue(envelope(t, "c0", "n1", protocol.Add{
			Type: protocol.TypeAdd, MsgID: uint64(5 + i), Delta: delta,
		}))
		node.Step()
	}
	sender.take()

	if got := readValue(t, node, sender, "n1"); got != 6 {
		t.Errorf("Expected value 6, got %d", got)
	}
}

func TestEngine_NegativeDeltaRejected(t *testing.T) {
	_, node, sender := newEngine(t, "n1", []string{"n1"})

	node.Enqueue(envelope(t, "c0", "n1", protocol.Add{
		Type: protocol.TypeAdd, MsgID: 5, Delta: -1,
	}))
	node.Step()

	msgs := sender.take()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 error reply, got %d", len(msgs))
	}
	var errBody protocol.Error
	if err := json.Unmarshal(msgs[0].Body, &errBody); err != nil {
		t.Fatalf("Failed to decode error: %v", err)
	}
	if errBody.Code != protocol.ErrMalformedRequest {
		t.Errorf("Expected code %d, got %d", protocol.ErrMalformedRequest, errBody.Code)
	}
	if got := readValue(t, node, sender, "n1"); got != 0 {
		t.Errorf("Rejected add must not change the counter, got %d", got)
	}
}

func TestEngine_SyncMergesPointwiseMax(t *testing.T) {
	_, node, sender := newEngine(t, "n1", []string{"n1", "n2", "n3"})

	node.Enqueue(envelope(t, "c0", "n1", protocol.Add{
		Type: protocol.TypeAdd, MsgID: 5, Delta: 10,
	}))
	node.Step()
	sender.take()

	node.Enqueue(envelope(t, "n2", "n1", protocol.Sync{
		Type:     protocol.TypeSync,
		MsgID:    7,
		Counters: map[string]int64{"n1": 3, "n2": 5, "n3": 2},
	}))
	node.Step()

	// A sync expects no reply.
	if msgs := sender.take(); len(msgs) != 0 {
		t.Errorf("Expected no reply to sync, got %d messages", len(msgs))
	}

	// Own entry keeps the local max (10), foreign entries adopt the remote
	// values: 10 + 5 + 2.
	if got := readValue(t, node, sender, "n1"); got != 17 {
		t.Errorf("Expected merged value 17, got %d", got)
	}
}

func TestEngine_SyncIsIdempotent(t *testing.T) {
	_, node, sender := newEngine(t, "n1", []string{"n1", "n2"})

	sync := envelope(t, "n2", "n1", protocol.Sync{
		Type:     protocol.TypeSync,
		MsgID:    7,
		Counters: map[string]int64{"n1": 0, "n2": 5},
	})

	for i := 0; i < 3; i++ {
		node.Enqueue(sync)
		node.Step()
	}

	if got := readValue(t, node, sender, "n1"); got != 5 {
		t.Errorf("Expected duplicate syncs to merge to 5, got %d", got)
	}
}

func TestEngine_TickSyncsWithoutLocalAdds(t *testing.T) {
	// The tick propagates state even when this node saw no add traffic,
	// which is what lets a healed partition converge.
	_, node, sender := newEngine(t, "n1", []string{"n1", "n2"})

	node.Enqueue(envelope(t, "n2", "n1", protocol.Sync{
		Type:     protocol.TypeSync,
		MsgID:    7,
		Counters: map[string]int64{"n1": 0, "n2": 5},
	}))
	node.Step()
	sender.take()

	node.Tick()
	node.Step()

	msgs := sender.take()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 sync on tick, got %d messages", len(msgs))
	}
	var body protocol.Sync
	if err := json.Unmarshal(msgs[0].Body, &body); err != nil {
		t.Fatalf("Failed to decode sync: %v", err)
	}
	if body.Counters["n2"] != 5 {
		t.Errorf("Expected tick sync to carry merged state, got %v", body.Counters)
	}
}

func TestEngine_SingleNodeTickIsQuiet(t *testing.T) {
	_, node, sender := newEngine(t, "n1", []string{"n1"})

	node.Tick()
	node.Step()

	if msgs := sender.take(); len(msgs) != 0 {
		t.Errorf("Expected no sync without peers, got %d messages", len(msgs))
	}
}
