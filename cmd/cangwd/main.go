// cangwd is the CAN gateway daemon.
//
// It forwards, filters, and modifies CAN frames between network
// interfaces under control of a small set of gateway jobs, configured
// over a gRPC control plane.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/psaab/cangwd/pkg/daemon"
)

func main() {
	configFile := flag.String("config", "", "YAML daemon-settings file (grpc_addr, metrics_addr, reclaim_period, dev_poll_period, debug)")
	grpcAddr := flag.String("grpc-addr", ":8473", "gRPC control-plane listen address")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus /metrics listen address (empty to disable)")
	reclaimPeriod := flag.Duration("reclaim-period", time.Second, "Job Table reclamation sweep interval")
	devPollPeriod := flag.Duration("dev-poll-period", time.Second, "network device link-state poll interval")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	opts := daemon.Options{
		GRPCAddr:      *grpcAddr,
		MetricsAddr:   *metricsAddr,
		ReclaimPeriod: *reclaimPeriod,
		DevPollPeriod: *devPollPeriod,
	}

	debugEnabled := *debug
	if *configFile != "" {
		fc, err := daemon.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cangwd: %v\n", err)
			os.Exit(1)
		}
		if err := fc.ApplyTo(&opts, explicit); err != nil {
			fmt.Fprintf(os.Stderr, "cangwd: %v\n", err)
			os.Exit(1)
		}
		if fc.Debug && !explicit["debug"] {
			debugEnabled = true
		}
	}

	logLevel := slog.LevelInfo
	if debugEnabled {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	d, err := daemon.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cangwd: %v\n", err)
		os.Exit(1)
	}

	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "cangwd: %v\n", err)
		os.Exit(1)
	}
}
