package procmgr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	reg        *prometheus.Registry
	spawns     prometheus.Counter
	clones     prometheus.Counter
	exits      prometheus.Counter
	reaps      prometheus.Counter
	futexWakes prometheus.Counter
	procs      prometheus.Gauge
	threads    prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &metrics{
		reg: reg,
		spawns: f.NewCounter(prometheus.CounterOpts{
			Name: "libos_spawns_total",
			Help: "Processes created by spawn.",
		}),
		clones: f.NewCounter(prometheus.CounterOpts{
			Name: "libos_clones_total",
			Help: "Threads and processes created by clone.",
		}),
		exits: f.NewCounter(prometheus.CounterOpts{
			Name: "libos_exits_total",
			Help: "Processes that became zombies.",
		}),
		reaps: f.NewCounter(prometheus.CounterOpts{
			Name: "libos_reaps_total",
			Help: "Zombies reaped by wait4.",
		}),
		futexWakes: f.NewCounter(prometheus.CounterOpts{
			Name: "libos_futex_wakes_total",
			Help: "Futex waiters woken.",
		}),
		procs: f.NewGauge(prometheus.GaugeOpts{
			Name: "libos_processes",
			Help: "Processes in the process table, zombies included.",
		}),
		threads: f.NewGauge(prometheus.GaugeOpts{
			Name: "libos_threads",
			Help: "Live threads.",
		}),
	}
}

// Registry returns the registry holding this ProcMgr's collectors.
func (mgr *ProcMgr) Registry() *prometheus.Registry {
	return mgr.metrics.reg
}
