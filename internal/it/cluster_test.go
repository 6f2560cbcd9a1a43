package it

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/internal/broadcast"
	"github.com/rafald1/distributed-system/internal/counter"
	"github.com/rafald1/distributed-system/internal/protocol"
	"github.com/rafald1/distributed-system/internal/runtime"
)

func decodeBody[T any](t *testing.T, msg protocol.Message) T {
	t.Helper()
	var body T
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	return body
}

func broadcastValue(t *testing.T, c *Cluster, nodeID string, value int64) {
	t.Helper()
	replies := c.Request("c1", nodeID, protocol.Broadcast{
		Type:    protocol.TypeBroadcast,
		MsgID:   c.NextMsgID(),
		Message: value,
	})
	require.Len(t, replies, 1)
	ack := decodeBody[protocol.BroadcastOk](t, replies[0])
	assert.Equal(t, protocol.TypeBroadcastOk, ack.Type)
}

func readMessages(t *testing.T, c *Cluster, nodeID string) []int64 {
	t.Helper()
	replies := c.Request("c1", nodeID, protocol.Read{
		Type:  protocol.TypeRead,
		MsgID: c.NextMsgID(),
	})
	require.Len(t, replies, 1)
	return decodeBody[protocol.ReadOkMessages](t, replies[0]).Messages
}

// installTopology delivers the same adjacency to every node, the way the
// workload harness does at startup.
func installTopology(t *testing.T, c *Cluster, adj map[string][]string) {
	t.Helper()
	for id := range adj {
		replies := c.Request("c1", id, protocol.Topology{
			Type:     protocol.TypeTopology,
			MsgID:    c.NextMsgID(),
			Topology: adj,
		})
		require.Len(t, replies, 1)
	}
}

func TestSingleNodeBroadcastStaysQuiet(t *testing.T) {
	c := NewCluster(1, func(n *runtime.Node) {
		broadcast.New(n, zap.NewNop(), broadcast.ModeStatic, 0)
	})
	installTopology(t, c, map[string][]string{"n1": {}})

	broadcastValue(t, c, "n1", 7)
	for i := 0; i < 3; i++ {
		c.TickAll()
	}

	assert.Equal(t, []int64{7}, readMessages(t, c, "n1"))
	assert.Zero(t, c.InterNodeMessages(), "a lone node should stay silent between ticks")
}

func TestBroadcastConvergesAcrossLineTopology(t *testing.T) {
	c := NewCluster(5, func(n *runtime.Node) {
		broadcast.New(n, zap.NewNop(), broadcast.ModeStatic, 0)
	})
	installTopology(t, c, map[string][]string{
		"n1": {"n2"},
		"n2": {"n1", "n3"},
		"n3": {"n2", "n4"},
		"n4": {"n3", "n5"},
		"n5": {"n4"},
	})

	broadcastValue(t, c, "n1", 10)
	broadcastValue(t, c, "n3", 20)
	broadcastValue(t, c, "n5", 30)

	// The line has diameter four; a few extra rounds cost nothing.
	for i := 0; i < 6; i++ {
		c.TickAll()
	}

	want := []int64{10, 20, 30}
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("n%d", i)
		assert.Equal(t, want, readMessages(t, c, id), "node %s", id)
	}
}

func TestGossipRecoversAfterPartitionHeals(t *testing.T) {
	c := NewCluster(3, func(n *runtime.Node) {
		broadcast.New(n, zap.NewNop(), broadcast.ModeStatic, 0)
	})
	installTopology(t, c, map[string][]string{
		"n1": {"n2", "n3"},
		"n2": {"n1", "n3"},
		"n3": {"n1", "n2"},
	})

	c.Partition("n1", "n2")
	c.Partition("n1", "n3")

	broadcastValue(t, c, "n1", 1)
	broadcastValue(t, c, "n2", 2)
	c.TickAll()
	c.TickAll()

	assert.Equal(t, []int64{1}, readMessages(t, c, "n1"))
	assert.Equal(t, []int64{2}, readMessages(t, c, "n2"))
	assert.Equal(t, []int64{2}, readMessages(t, c, "n3"), "n2 and n3 still converge on their side")

	c.Heal("n1", "n2")
	c.Heal("n1", "n3")
	c.TickAll()
	c.TickAll()

	want := []int64{1, 2}
	for _, id := range []string{"n1", "n2", "n3"} {
		assert.Equal(t, want, readMessages(t, c, id), "node %s", id)
	}
}

func TestCounterConvergesToClusterSum(t *testing.T) {
	c := NewCluster(3, func(n *runtime.Node) {
		counter.New(n, zap.NewNop())
	})

	for _, id := range []string{"n1", "n2", "n3"} {
		replies := c.Request("c1", id, protocol.Add{
			Type:  protocol.TypeAdd,
			MsgID: c.NextMsgID(),
			Delta: 1,
		})
		require.Len(t, replies, 1)
		ack := decodeBody[protocol.AddOk](t, replies[0])
		assert.Equal(t, protocol.TypeAddOk, ack.Type)
	}

	c.TickAll()

	for _, id := range []string{"n1", "n2", "n3"} {
		replies := c.Request("c1", id, protocol.Read{
			Type:  protocol.TypeRead,
			MsgID: c.NextMsgID(),
		})
		require.Len(t, replies, 1)
		body := decodeBody[protocol.ReadOkValue](t, replies[0])
		assert.Equal(t, int64(3), body.Value, "node %s", id)
	}
}

func TestDuplicateGossipDeliveryIsIdempotent(t *testing.T) {
	c := NewCluster(1, func(n *runtime.Node) {
		broadcast.New(n, zap.NewNop(), broadcast.ModeStatic, 0)
	})

	gossip := protocol.Gossip{
		Type:     protocol.TypeGossip,
		MsgID:    c.NextMsgID(),
		Messages: []int64{4, 5},
	}

	for i := 0; i < 2; i++ {
		replies := c.Request("n9", "n1", gossip)
		require.Len(t, replies, 1)
		ack := decodeBody[protocol.GossipOk](t, replies[0])
		assert.Equal(t, []int64{4, 5}, ack.Messages, "the ack echoes exactly what was delivered")
	}

	assert.Equal(t, []int64{4, 5}, readMessages(t, c, "n1"))
}
