// Command node runs a single cluster node speaking newline-delimited JSON
// over stdin/stdout. The external harness assigns identity and topology via
// the init and topology messages; flags only select the workload and local
// tuning knobs. All logging goes to stderr: stdout belongs to the protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/internal/broadcast"
	"github.com/rafald1/distributed-system/internal/config"
	"github.com/rafald1/distributed-system/internal/counter"
	"github.com/rafald1/distributed-system/internal/echo"
	"github.com/rafald1/distributed-system/internal/ident"
	"github.com/rafald1/distributed-system/internal/mlog"
	"github.com/rafald1/distributed-system/internal/runtime"
	"github.com/rafald1/distributed-system/internal/telemetry"
	"github.com/rafald1/distributed-system/internal/transport"
)

func main() {
	cfg := config.Default()

	flag.StringVar(&cfg.Workload, "workload", cfg.Workload,
		"workload to serve: broadcast, counter, log, echo or unique-ids")
	flag.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval,
		"anti-entropy tick interval")
	topologyMode := flag.String("topology", string(cfg.TopologyMode),
		"gossip topology: static (harness adjacency) or tree (derived)")
	flag.IntVar(&cfg.TreeFanout, "tree-fanout", cfg.TreeFanout,
		"children per node in tree topology mode")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr,
		"optional HTTP listen address for prometheus metrics")
	flag.Parse()
	cfg.TopologyMode = broadcast.Mode(*topologyMode)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	node := runtime.New(transport.NewLineWriter(os.Stdout), logger, cfg.TickInterval)

	switch cfg.Workload {
	case config.WorkloadBroadcast:
		broadcast.New(node, logger, cfg.TopologyMode, cfg.TreeFanout)
	case config.WorkloadCounter:
		counter.New(node, logger)
	case config.WorkloadLog:
		mlog.New(node, logger)
	case config.WorkloadEcho:
		echo.New(node)
	case config.WorkloadUniqueIDs:
		ident.New(node)
	}

	logger.Info("starting node",
		zap.String("workload", cfg.Workload),
		zap.Duration("tick", cfg.TickInterval))

	if err := node.Run(context.Background(), os.Stdin); err != nil {
		logger.Fatal("transport failed", zap.Error(err))
	}
}
