// Package daemon implements the cangwd process lifecycle: wiring the Job
// Table, device registry, frame bus, dispatcher, and control plane
// together and running them until a shutdown signal arrives.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psaab/cangwd/pkg/canbus"
	"github.com/psaab/cangwd/pkg/gwapi"
	"github.com/psaab/cangwd/pkg/gwdispatch"
	"github.com/psaab/cangwd/pkg/gwtable"
	"github.com/psaab/cangwd/pkg/netdev"
)

// Options configures the daemon.
type Options struct {
	GRPCAddr      string        // control-plane listen address
	MetricsAddr   string        // Prometheus /metrics listen address, empty disables it
	ReclaimPeriod time.Duration // Job Table graveyard sweep interval
	DevPollPeriod time.Duration // netdev link-state poll interval
}

func (o *Options) setDefaults() {
	if o.GRPCAddr == "" {
		o.GRPCAddr = ":8473"
	}
	if o.ReclaimPeriod <= 0 {
		o.ReclaimPeriod = time.Second
	}
	if o.DevPollPeriod <= 0 {
		o.DevPollPeriod = time.Second
	}
}

// Daemon is the cangwd process: it owns the Job Table and the
// background goroutines that keep it healthy (reclamation, device
// polling) plus the control-plane and metrics servers.
type Daemon struct {
	opts Options

	table *gwtable.Table
	devs  *netdev.Registry
	bus   canbus.Bus
	disp  *gwdispatch.Dispatcher
	api   *gwapi.Server
}

// New wires a Daemon around a freshly created Job Table, device
// registry, and SocketCAN bus.
func New(opts Options) (*Daemon, error) {
	opts.setDefaults()

	devs, err := netdev.New(opts.DevPollPeriod)
	if err != nil {
		return nil, fmt.Errorf("daemon: device registry: %w", err)
	}

	table := gwtable.New()
	bus := canbus.NewSocketCANBus()
	disp := gwdispatch.New(bus)
	api := gwapi.NewServer(table, devs, bus, disp)

	d := &Daemon{
		opts:  opts,
		table: table,
		devs:  devs,
		bus:   bus,
		disp:  disp,
		api:   api,
	}

	devs.OnUnregister(d.onDeviceUnregistered)
	return d, nil
}

// onDeviceUnregistered removes every job referencing a device that has
// disappeared from the kernel's interface table (spec §4.5
// "DEVICE-UNREGISTER event"), unregistering each job's receive callback
// before its Job Record is buried for reclamation.
func (d *Daemon) onDeviceUnregistered(devIndex int) {
	removed := d.table.RemoveByDevice(devIndex)
	for _, r := range removed {
		d.bus.UnregisterRX(r.SrcIndex(), r.CANCAN.Filter, r)
	}
	if len(removed) > 0 {
		slog.Info("daemon: removed jobs for unregistered device", "dev", devIndex, "count", len(removed))
	}
}

// Run starts the daemon and blocks until ctx is cancelled or a shutdown
// signal (SIGTERM/SIGINT) arrives.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting cangwd", "pid", os.Getpid(), "grpc_addr", d.opts.GRPCAddr)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var wg sync.WaitGroup

	d.devs.Start(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.reclaimLoop(ctx)
	}()

	var metricsSrv *http.Server
	if d.opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(gwapi.NewCollector(d.table))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: d.opts.MetricsAddr, Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("daemon: metrics listening", "addr", d.opts.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("daemon: metrics server failed", "err", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.api.Run(ctx, d.opts.GRPCAddr)
	}()

	var runErr error
	select {
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("gwapi: %w", err)
		}
	case <-ctx.Done():
		slog.Info("daemon: signal received, shutting down")
	}

	stop()
	d.devs.Stop()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	wg.Wait()

	removed := d.table.RemoveAll()
	d.onRemoveAll(removed)

	slog.Info("daemon: shutdown complete")
	return runErr
}

func (d *Daemon) onRemoveAll(removed []*gwtable.Record) {
	for _, r := range removed {
		d.bus.UnregisterRX(r.SrcIndex(), r.CANCAN.Filter, r)
	}
	d.table.Reclaim()
}

// reclaimLoop periodically frees Job Records no in-flight reader can
// still observe (spec §5 "while waiting for the grace-period barrier").
func (d *Daemon) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(d.opts.ReclaimPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.table.Reclaim(); n > 0 {
				slog.Debug("daemon: reclaimed job records", "count", n)
			}
		}
	}
}
