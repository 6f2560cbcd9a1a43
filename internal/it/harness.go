// Package it holds the in-memory cluster harness and the scenario tests
// built on it. Nodes exchange envelopes through a router instead of
// stdin/stdout pipes; the router can cut links to simulate partitions, and
// the tests drive delivery deterministically with Settle and TickAll
// instead of running the node event loops.
package it

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/internal/protocol"
	"github.com/rafald1/distributed-system/internal/runtime"
)

// Cluster is a set of runtime nodes wired through an in-memory router.
// All methods must be called from a single goroutine; delivery happens
// inside Settle, never concurrently.
type Cluster struct {
	nodes map[string]*runtime.Node
	order []string
	inbox map[string][]protocol.Message
	cut   map[string]bool

	nodeSends int
	msgID     uint64
}

// memSender routes one node's outbound envelopes back into the cluster.
type memSender struct {
	cluster *Cluster
	from    string
}

func (s *memSender) Send(msg protocol.Message) error {
	return s.cluster.route(msg)
}

// NewCluster builds and initializes count nodes named n1..nN. attach is
// called once per node to register its workload engine before init runs.
func NewCluster(count int, attach func(n *runtime.Node)) *Cluster {
	c := &Cluster{
		nodes: make(map[string]*runtime.Node),
		inbox: make(map[string][]protocol.Message),
		cut:   make(map[string]bool),
	}

	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("n%d", i+1)
	}

	for _, id := range ids {
		n := runtime.New(&memSender{cluster: c, from: id}, zap.NewNop(), 0)
		attach(n)
		c.nodes[id] = n
		c.order = append(c.order, id)
	}

	for _, id := range ids {
		c.Request("c0", id, protocol.Init{
			Type:    protocol.TypeInit,
			MsgID:   c.NextMsgID(),
			NodeID:  id,
			NodeIDs: ids,
		})
	}

	// Init traffic is client-driven; inter-node accounting starts clean.
	c.nodeSends = 0
	return c
}

// Node returns the runtime node with the given ID, or nil.
func (c *Cluster) Node(id string) *runtime.Node {
	return c.nodes[id]
}

// NextMsgID hands out message IDs for client-originated requests.
func (c *Cluster) NextMsgID() uint64 {
	c.msgID++
	return c.msgID
}

// Request delivers body to dest as from, runs the cluster until quiet and
// returns every envelope addressed back to from, in arrival order.
func (c *Cluster) Request(from, dest string, body any) []protocol.Message {
	raw, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("marshal request body: %v", err))
	}
	if err := c.route(protocol.Message{Src: from, Dest: dest, Body: raw}); err != nil {
		panic(fmt.Sprintf("route request: %v", err))
	}
	c.Settle()

	replies := c.inbox[from]
	c.inbox[from] = nil
	return replies
}

// TickAll fires one timer tick on every node and runs the cluster until
// quiet. One call propagates gossip one hop along the topology.
func (c *Cluster) TickAll() {
	for _, id := range c.order {
		c.nodes[id].Tick()
	}
	c.Settle()
}

// Settle steps every node until no node has queued events left.
func (c *Cluster) Settle() {
	for {
		progressed := false
		for _, id := range c.order {
			for c.nodes[id].Step() {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// Partition silently drops all traffic between a and b, both directions.
func (c *Cluster) Partition(a, b string) {
	c.cut[linkKey(a, b)] = true
}

// Heal restores the link between a and b.
func (c *Cluster) Heal(a, b string) {
	delete(c.cut, linkKey(a, b))
}

// InterNodeMessages reports how many envelopes nodes have sent to other
// nodes since the cluster finished initializing. Dropped envelopes count;
// client traffic does not.
func (c *Cluster) InterNodeMessages() int {
	return c.nodeSends
}

// route delivers one envelope: to a node's event queue, or to a client
// inbox for unknown destinations. Cut links swallow traffic without error,
// the same as a lost datagram.
func (c *Cluster) route(msg protocol.Message) error {
	if _, fromNode := c.nodes[msg.Src]; fromNode {
		if _, toNode := c.nodes[msg.Dest]; toNode {
			c.nodeSends++
		}
	}

	if c.cut[linkKey(msg.Src, msg.Dest)] {
		return nil
	}

	if n, ok := c.nodes[msg.Dest]; ok {
		n.Enqueue(msg)
		return nil
	}

	c.inbox[msg.Dest] = append(c.inbox[msg.Dest], msg)
	return nil
}

func linkKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
