package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "talksync"

// Message outcomes recorded per member
const (
	OutcomeWritten = "written"
	OutcomeDeleted = "deleted"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Recorder holds the run metrics. A nil *Recorder is valid and records
// nothing, so callers never need to check whether metrics are enabled.
type Recorder struct {
	registry *prometheus.Registry

	messages       *prometheus.CounterVec
	files          *prometheus.CounterVec
	memberSyncs    *prometheus.CounterVec
	tokenFailures  *prometheus.CounterVec
	groupState     *prometheus.GaugeVec
	runDuration    prometheus.Gauge
	lastRunSuccess prometheus.Gauge
	lastRunEnd     prometheus.Gauge
}

// New creates a Recorder with its own registry
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Timeline messages processed, by outcome.",
		}, []string{"group", "member", "outcome"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_written_total",
			Help:      "Artifact files committed to disk.",
		}, []string{"group", "member"}),
		memberSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "member_syncs_total",
			Help:      "Member syncs, by result.",
		}, []string{"group", "result"}),
		tokenFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_exchange_failures_total",
			Help:      "Failed refresh-token exchanges.",
		}, []string{"group"}),
		groupState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "group_state",
			Help:      "1 for the current state of each group.",
		}, []string{"group", "state"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last sync run.",
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run had no disabled group and no failed member.",
		}),
		lastRunEnd: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last sync run finished.",
		}),
	}

	r.registry.MustRegister(
		r.messages,
		r.files,
		r.memberSyncs,
		r.tokenFailures,
		r.groupState,
		r.runDuration,
		r.lastRunSuccess,
		r.lastRunEnd,
	)
	return r
}

// Registry exposes the underlying registry, e.g. for an HTTP handler
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// MemberCounts are the per-member tallies of one sync
type MemberCounts struct {
	Written int
	Files   int
	Deleted int
	Skipped int
	Failed  int
}

// ObserveMember records the outcome of one member sync
func (r *Recorder) ObserveMember(group, member string, c MemberCounts, err error) {
	if r == nil {
		return
	}
	r.messages.WithLabelValues(group, member, OutcomeWritten).Add(float64(c.Written))
	r.messages.WithLabelValues(group, member, OutcomeDeleted).Add(float64(c.Deleted))
	r.messages.WithLabelValues(group, member, OutcomeSkipped).Add(float64(c.Skipped))
	r.messages.WithLabelValues(group, member, OutcomeFailed).Add(float64(c.Failed))
	r.files.WithLabelValues(group, member).Add(float64(c.Files))

	result := "ok"
	if err != nil {
		result = "error"
	}
	r.memberSyncs.WithLabelValues(group, result).Inc()
}

// TokenFailure counts a failed token exchange
func (r *Recorder) TokenFailure(group string) {
	if r == nil {
		return
	}
	r.tokenFailures.WithLabelValues(group).Inc()
}

// SetGroupState marks state as the current one for group. states lists
// every possible state so the previous one drops back to 0.
func (r *Recorder) SetGroupState(group, state string, states []string) {
	if r == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		r.groupState.WithLabelValues(group, s).Set(v)
	}
}

// FinishRun records the run duration and end time
func (r *Recorder) FinishRun(started, finished time.Time, success bool) {
	if r == nil {
		return
	}
	r.runDuration.Set(finished.Sub(started).Seconds())
	r.lastRunEnd.Set(float64(finished.Unix()))
	if success {
		r.lastRunSuccess.Set(1)
	} else {
		r.lastRunSuccess.Set(0)
	}
}

// WriteTextfile writes the registry in the node_exporter textfile format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
