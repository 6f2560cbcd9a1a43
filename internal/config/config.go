// Package config holds the node's startup configuration. Everything here is
// fixed for the process lifetime; cluster identity and topology arrive later
// over the wire in the one-time init and topology messages.
package config

import (
	"fmt"
	"time"

	"github.com/rafald1/distributed-system/internal/broadcast"
)

// Workload names for the engines a node process can serve. The broadcast and
// counter workloads both answer read, so exactly one workload is active per
// process, matching how the external harness runs nodes.
const (
	WorkloadBroadcast = "broadcast"
	WorkloadCounter   = "counter"
	WorkloadLog       = "log"
	WorkloadEcho      = "echo"
	WorkloadUniqueIDs = "unique-ids"
)

// Config holds the node configuration.
type Config struct {
	// Workload selects which engine set to register.
	Workload string

	// TickInterval drives the anti-entropy timer. Shorter intervals trade
	// bandwidth for faster convergence.
	TickInterval time.Duration

	// TopologyMode selects between the harness-supplied adjacency and an
	// internally derived bounded-degree tree (broadcast workload only).
	TopologyMode broadcast.Mode

	// TreeFanout is the per-node child count in tree mode.
	TreeFanout int

	// MetricsAddr optionally exposes prometheus metrics over HTTP on a side
	// port. Empty disables exposition.
	MetricsAddr string
}

// Default returns the configuration used when no flags are given.
func Default() Config {
	return Config{
		Workload:     WorkloadBroadcast,
		TickInterval: 150 * time.Millisecond,
		TopologyMode: broadcast.ModeStatic,
		TreeFanout:   4,
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Workload {
	case WorkloadBroadcast, WorkloadCounter, WorkloadLog, WorkloadEcho, WorkloadUniqueIDs:
	default:
		return fmt.Errorf("unknown workload: %q", c.Workload)
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}

	if !c.TopologyMode.Valid() {
		return fmt.Errorf("unknown topology mode: %q", c.TopologyMode)
	}

	if c.TreeFanout < 2 {
		return fmt.Errorf("tree fanout must be at least 2, got %d", c.TreeFanout)
	}

	return nil
}
