// Package crdt provides the state-based grow-only counter vector used for
// counter replication. The merge takes the point-wise maximum of per-node
// entries, which is commutative, associative and idempotent, so replicas
// converge under arbitrary message reordering, duplication and loss.
package crdt
