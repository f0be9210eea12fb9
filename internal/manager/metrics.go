package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "manager",
		Name:      "loads_total",
		Help:      "Total number of successful instance loads",
	})

	loadFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "manager",
		Name:      "load_failures_total",
		Help:      "Total number of failed instance loads",
	}, []string{"reason"})

	evictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "manager",
		Name:      "evictions_total",
		Help:      "Total number of instance evictions",
	}, []string{"reason"})

	nuclearResetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "manager",
		Name:      "full_resets_total",
		Help:      "Total number of full-reset fallbacks after load failures",
	})

	crashesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "manager",
		Name:      "backend_crashes_total",
		Help:      "Backend processes that exited unexpectedly",
	})

	inflightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "inferd",
		Subsystem: "manager",
		Name:      "inflight_requests",
		Help:      "Requests currently holding a busy guard",
	})
)

func init() {
	prometheus.MustRegister(loadsTotal, loadFailuresTotal, evictionsTotal, nuclearResetsTotal, crashesTotal, inflightGauge)
}
