package netcode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// MultiplayerTelemetry exposes session-level counters both as Prometheus
// metrics (for operators) and as throttled structured log lines (for local
// debugging without a metrics scrape target), matching how the engine's
// existing logging conventions favor structured fields over formatted
// strings.
type MultiplayerTelemetry struct {
	logger *logrus.Entry

	snapshotsReceived prometheus.Counter
	inputsSent        prometheus.Counter
	reconciliations   prometheus.Counter
	snaps             prometheus.Counter
	predictedAdopted  prometheus.Counter
	predictedExpired  prometheus.Counter
	reconnects        prometheus.Counter
	droppedSnapshots  prometheus.Counter

	rttMs        prometheus.Gauge
	pendingInputs prometheus.Gauge

	logEvery  int64
	tickCount int64
}

// NewMultiplayerTelemetry creates and registers the counters/gauges against
// reg. Pass a dedicated *prometheus.Registry in tests to avoid colliding
// with the default global registry across test runs.
func NewMultiplayerTelemetry(reg prometheus.Registerer, logger *logrus.Entry) *MultiplayerTelemetry {
	t := &MultiplayerTelemetry{
		logger:   logger,
		logEvery: 300, // roughly once every 5 seconds at 60 ticks/s

		snapshotsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skirmish_netcode_snapshots_received_total",
			Help: "Authoritative world snapshots received from the server.",
		}),
		inputsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skirmish_netcode_inputs_sent_total",
			Help: "Player inputs sent to the server.",
		}),
		reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skirmish_netcode_reconciliations_total",
			Help: "Reconciliation passes performed against the local player.",
		}),
		snaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skirmish_netcode_snaps_total",
			Help: "Reconciliations that exceeded the snap threshold.",
		}),
		predictedAdopted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skirmish_netcode_predicted_bullets_adopted_total",
			Help: "Client-predicted bullets matched to an authoritative bullet.",
		}),
		predictedExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skirmish_netcode_predicted_bullets_expired_total",
			Help: "Client-predicted bullets discarded as a misprediction.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skirmish_netcode_reconnects_total",
			Help: "Automatic session reconnect attempts.",
		}),
		droppedSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skirmish_netcode_dropped_snapshots_total",
			Help: "Snapshots dropped due to backpressure or stale ordering.",
		}),
		rttMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skirmish_netcode_rtt_milliseconds",
			Help: "Estimated round-trip time to the server.",
		}),
		pendingInputs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skirmish_netcode_pending_inputs",
			Help: "Unacknowledged inputs currently buffered for replay.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			t.snapshotsReceived, t.inputsSent, t.reconciliations, t.snaps,
			t.predictedAdopted, t.predictedExpired, t.reconnects, t.droppedSnapshots,
			t.rttMs, t.pendingInputs,
		)
	}

	return t
}

func (t *MultiplayerTelemetry) RecordSnapshotReceived()  { t.snapshotsReceived.Inc() }
func (t *MultiplayerTelemetry) RecordInputSent()         { t.inputsSent.Inc() }
func (t *MultiplayerTelemetry) RecordReconciliation()    { t.reconciliations.Inc() }
func (t *MultiplayerTelemetry) RecordSnap()              { t.snaps.Inc() }
func (t *MultiplayerTelemetry) RecordPredictedAdopted()  { t.predictedAdopted.Inc() }
func (t *MultiplayerTelemetry) RecordPredictedExpired()  { t.predictedExpired.Inc() }
func (t *MultiplayerTelemetry) RecordReconnect()         { t.reconnects.Inc() }
func (t *MultiplayerTelemetry) RecordDroppedSnapshot()   { t.droppedSnapshots.Inc() }

// SetRTT updates the current round-trip time gauge.
func (t *MultiplayerTelemetry) SetRTT(ms int64) {
	t.rttMs.Set(float64(ms))
}

// SetPendingInputs updates the unacknowledged-input-count gauge.
func (t *MultiplayerTelemetry) SetPendingInputs(n int) {
	t.pendingInputs.Set(float64(n))
}

// Tick should be called once per simulation tick; it throttles a debug log
// line summarizing session health to roughly once every logEvery ticks,
// following the engine's existing GetLevel() >= logrus.DebugLevel guard
// convention for hot-path logging.
func (t *MultiplayerTelemetry) Tick(rttMs int64, pendingInputs int) {
	t.tickCount++
	if t.logger == nil || t.logger.Logger.GetLevel() < logrus.DebugLevel {
		return
	}
	if t.tickCount%t.logEvery != 0 {
		return
	}
	t.logger.WithFields(logrus.Fields{
		"rttMs":         rttMs,
		"pendingInputs": pendingInputs,
	}).Debug("netcode session health")
}
