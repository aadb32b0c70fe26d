// Package metrics wires the fork engine's runtime counters into a
// namespaced Prometheus registry alongside the standard Go/process
// collectors.
package metrics

import (
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the fork engine's Prometheus instruments.
type Metrics struct {
	Registry *prometheus.Registry

	ActiveForks   prometheus.Gauge
	ActiveBranches prometheus.Gauge
	LateBranches  prometheus.Counter
	ForksFinished prometheus.Counter
	ForkDuration  prometheus.Histogram
}

// New initializes a registry namespaced by ua (the user-agent string
// minus its version suffix) and registers every fork-engine
// instrument alongside the standard Go/process collectors.
func New(ua string) *Metrics {
	ua = strings.Split(ua, "/")[0]

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
		PidFn:        func() (int, error) { return os.Getpid(), nil },
		Namespace:    ua,
		ReportErrors: true,
	}))

	m := &Metrics{Registry: reg}

	m.ActiveForks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ua,
		Name:      "ActiveForkContexts",
		Help:      "Number of fork contexts currently in the Active state",
	})
	m.ActiveBranches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ua,
		Name:      "ActiveBranches",
		Help:      "Number of outgoing branches belonging to fork contexts that have not finished yet",
	})
	m.LateBranches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ua,
		Name:      "LateBranchesAdded",
		Help:      "Total branches added to a fork after its initial fan-out",
	})
	m.ForksFinished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ua,
		Name:      "ForkContextsFinished",
		Help:      "Total fork contexts that have reached the Finished state",
	})
	m.ForkDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ua,
		Name:      "ForkContextDurationSeconds",
		Help:      "Time from fork creation to the Finished state",
		Buckets:   prometheus.DefBuckets,
	})

	reg.MustRegister(m.ActiveForks, m.ActiveBranches, m.LateBranches, m.ForksFinished, m.ForkDuration)

	return m
}

// Handler returns an HTTP handler serving the registry in the
// Prometheus exposition format, mounted at GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
