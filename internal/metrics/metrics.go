// Package metrics exposes agent counters on a private Prometheus registry and
// exports them to a node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "snare"

// Recorder holds the agent's collectors. A nil *Recorder is a valid no-op.
type Recorder struct {
	registry *prometheus.Registry

	cycles          prometheus.Counter
	walkFailures    prometheus.Counter
	deployed        prometheus.Counter
	deployFailures  *prometheus.CounterVec
	reconciled      prometheus.Counter
	tamper          *prometheus.CounterVec
	ledgerEntries   prometheus.Gauge
	pendingDirs     prometheus.Gauge
	watchedDirs     prometheus.Gauge
	cycleDuration   prometheus.Gauge
	lastCycleUnixTS prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed monitor cycles",
		}),
		walkFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walk_failures_total",
			Help:      "Cycles skipped because the root could not be walked",
		}),
		deployed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoy",
			Name:      "deployed_total",
			Help:      "Decoys planted",
		}),
		deployFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoy",
			Name:      "deploy_failures_total",
			Help:      "Failed decoy deployments by reason",
		}, []string{"reason"}),
		reconciled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "reconciled_total",
			Help:      "Ledger entries removed because their directory was deleted",
		}),
		tamper: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoy",
			Name:      "tamper_events_total",
			Help:      "Events on tracked decoys by source",
		}, []string{"source"}),
		ledgerEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries",
			Help:      "Rows currently in the ledger",
		}),
		pendingDirs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_dirs",
			Help:      "Directories awaiting a deployment retry",
		}),
		watchedDirs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "dirs",
			Help:      "Directories watched with fsnotify",
		}),
		cycleDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_duration_seconds",
			Help:      "Wall time of the most recent cycle",
		}),
		lastCycleUnixTS: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the most recent cycle finished",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// CycleCompleted records a finished cycle.
func (r *Recorder) CycleCompleted(took time.Duration, finished time.Time) {
	if r == nil {
		return
	}
	r.cycles.Inc()
	r.cycleDuration.Set(took.Seconds())
	r.lastCycleUnixTS.Set(float64(finished.Unix()))
}

// WalkFailed records a skipped cycle.
func (r *Recorder) WalkFailed() {
	if r == nil {
		return
	}
	r.walkFailures.Inc()
}

// Deployed records a planted decoy.
func (r *Recorder) Deployed() {
	if r == nil {
		return
	}
	r.deployed.Inc()
}

// DeployFailed records a failed deployment.
func (r *Recorder) DeployFailed(reason string) {
	if r == nil {
		return
	}
	r.deployFailures.WithLabelValues(reason).Inc()
}

// Reconciled records removed ledger rows.
func (r *Recorder) Reconciled(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.reconciled.Add(float64(n))
}

// Tamper records an event on a tracked decoy. Source is "poll", "watch" or
// "audit".
func (r *Recorder) Tamper(source string) {
	if r == nil {
		return
	}
	r.tamper.WithLabelValues(source).Inc()
}

// SetLedgerEntries records the current ledger size.
func (r *Recorder) SetLedgerEntries(n int) {
	if r == nil {
		return
	}
	r.ledgerEntries.Set(float64(n))
}

// SetPending records the pending retry set size.
func (r *Recorder) SetPending(n int) {
	if r == nil {
		return
	}
	r.pendingDirs.Set(float64(n))
}

// SetWatched records the number of watched directories.
func (r *Recorder) SetWatched(n int) {
	if r == nil {
		return
	}
	r.watchedDirs.Set(float64(n))
}

// WriteTextfile writes the registry in the text exposition format. The
// write goes through a temp file and rename so the collector never reads a
// partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
