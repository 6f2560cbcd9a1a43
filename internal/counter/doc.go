// Package counter implements grow-only counter replication. Each node only
// increments its own entry of a per-node counter vector; full vectors travel
// to peers in sync messages and merge by point-wise maximum. Sync is sent
// both immediately after a local add and unconditionally on every tick, so a
// partitioned node still converges once the partition heals even if it sees
// no further adds.
package counter
