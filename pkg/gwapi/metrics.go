package gwapi

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/psaab/cangwd/pkg/gwtable"
)

// collector implements prometheus.Collector, reading the Job Table on
// each scrape (spec ambient stack: metrics), generalizing bpfrx's
// bpfrxCollector.
type collector struct {
	table *gwtable.Table

	jobsTotal    *prometheus.Desc
	handledTotal *prometheus.Desc
	droppedTotal *prometheus.Desc
}

// NewCollector returns a prometheus.Collector exposing the Job Table's
// size and per-job handled/dropped counters.
func NewCollector(table *gwtable.Table) prometheus.Collector {
	return &collector{
		table: table,
		jobsTotal: prometheus.NewDesc(
			"cangw_jobs",
			"Current number of installed gateway jobs.",
			nil, nil,
		),
		handledTotal: prometheus.NewDesc(
			"cangw_job_handled_total",
			"Total frames forwarded by a gateway job.",
			[]string{"src", "dst"}, nil,
		),
		droppedTotal: prometheus.NewDesc(
			"cangw_job_dropped_total",
			"Total frames dropped by a gateway job.",
			[]string{"src", "dst"}, nil,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsTotal
	ch <- c.handledTotal
	ch <- c.droppedTotal
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	g := c.table.Enter()
	defer c.table.Exit(g)

	snap := c.table.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.jobsTotal, prometheus.GaugeValue, float64(len(snap)))

	for _, r := range snap {
		src := strconv.Itoa(r.SrcIndex())
		dst := strconv.Itoa(r.DstIndex())
		ch <- prometheus.MustNewConstMetric(c.handledTotal, prometheus.CounterValue, float64(r.Handled()), src, dst)
		ch <- prometheus.MustNewConstMetric(c.droppedTotal, prometheus.CounterValue, float64(r.Dropped()), src, dst)
	}
}
