// Package mlog implements the replicated-log workload: append-only logs
// keyed by name with monotonically assigned offsets, plus client-committed
// offset tracking. The state is node-local; the external harness routes all
// traffic for a key to one node.
package mlog
