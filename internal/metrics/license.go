package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LicenseMetrics records per-state lifecycle activity.
type LicenseMetrics struct {
	transitions      *prometheus.CounterVec
	syncFailures     *prometheus.CounterVec
	conflictsBlocked *prometheus.CounterVec
	sseClients       prometheus.Gauge
}

// NewLicenseMetrics registers the license metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewLicenseMetrics(reg prometheus.Registerer) *LicenseMetrics {
	if reg == nil {
		return &LicenseMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aet_transitions_total",
		Help: "Per-state status transitions committed.",
	}, []string{"state", "status"})
	syncFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aet_ledger_sync_failures_total",
		Help: "Issued-license ledger synchronizations that failed after a committed approval.",
	}, []string{"state"})
	conflictsBlocked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aet_conflicts_blocked_total",
		Help: "License requests blocked by an active permit outside the renewal window.",
	}, []string{"state"})
	sseClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aet_sse_clients",
		Help: "Connected real-time clients.",
	})
	reg.MustRegister(transitions, syncFailures, conflictsBlocked, sseClients)
	return &LicenseMetrics{
		transitions:      transitions,
		syncFailures:     syncFailures,
		conflictsBlocked: conflictsBlocked,
		sseClients:       sseClients,
	}
}

func (m *LicenseMetrics) IncTransition(state, status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(state), normalizeLabel(status)).Inc()
}

func (m *LicenseMetrics) IncSyncFailure(state string) {
	if m == nil || m.syncFailures == nil {
		return
	}
	m.syncFailures.WithLabelValues(normalizeLabel(state)).Inc()
}

func (m *LicenseMetrics) IncConflictBlocked(state string) {
	if m == nil || m.conflictsBlocked == nil {
		return
	}
	m.conflictsBlocked.WithLabelValues(normalizeLabel(state)).Inc()
}

// SetSSEClients implements sse.ClientGauge.
func (m *LicenseMetrics) SetSSEClients(n int) {
	if m == nil || m.sseClients == nil {
		return
	}
	m.sseClients.Set(float64(n))
}
