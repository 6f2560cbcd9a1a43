// Package broadcast implements gossip replication of an append-only value
// set. Values enter through broadcast requests and spread exclusively via
// periodic delta anti-entropy: each tick the engine recomputes, per neighbor,
// the set of values that neighbor is not yet known to hold and sends it as a
// gossip message. Acknowledgments narrow the next delta; losing one only
// costs a redundant retransmission, never data.
//
// The per-neighbor known-by table is an optimization hint, not a correctness
// requirement: the tick loop recomputes deltas from the authoritative set, so
// propagation resumes after any partition heals even if the table is stale.
package broadcast
