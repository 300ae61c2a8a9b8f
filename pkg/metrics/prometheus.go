package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes pipeline health and throughput to Prometheus. Values are
// synced from the orchestrator's aggregate view on each health tick.
type Recorder struct {
	agentsRunning    *prometheus.GaugeVec
	streamLength     *prometheus.GaugeVec
	signalsProcessed *prometheus.GaugeVec
	signalsRejected  *prometheus.GaugeVec
	healthPercent    prometheus.Gauge
	uptimeSeconds    prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		agentsRunning: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradefloor_agents_running",
				Help: "Running units per hierarchy tier",
			},
			[]string{"tier"},
		),
		streamLength: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradefloor_stream_length",
				Help: "Messages appended to each pipeline stream",
			},
			[]string{"stream"},
		),
		signalsProcessed: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradefloor_signals_processed_total",
				Help: "Signals processed per hierarchy tier",
			},
			[]string{"tier"},
		),
		signalsRejected: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradefloor_signals_rejected_total",
				Help: "Signals rejected per hierarchy tier",
			},
			[]string{"tier"},
		),
		healthPercent: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradefloor_health_percent",
				Help: "Fraction of units running, 0-100",
			},
		),
		uptimeSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradefloor_uptime_seconds",
				Help: "Seconds since the orchestrator started",
			},
		),
	}
}

// SetAgentsRunning records the running unit count for a tier.
func (r *Recorder) SetAgentsRunning(tier string, n float64) {
	r.agentsRunning.WithLabelValues(tier).Set(n)
}

// SetStreamLength records the appended length of a pipeline stream.
func (r *Recorder) SetStreamLength(stream string, n float64) {
	r.streamLength.WithLabelValues(stream).Set(n)
}

// SetSignalsProcessed records total processed signals for a tier.
func (r *Recorder) SetSignalsProcessed(tier string, n float64) {
	r.signalsProcessed.WithLabelValues(tier).Set(n)
}

// SetSignalsRejected records total rejected signals for a tier.
func (r *Recorder) SetSignalsRejected(tier string, n float64) {
	r.signalsRejected.WithLabelValues(tier).Set(n)
}

// SetHealthPercent records orchestrator-level aggregate health.
func (r *Recorder) SetHealthPercent(pct float64) {
	r.healthPercent.Set(pct)
}

// SetUptime records orchestrator uptime.
func (r *Recorder) SetUptime(seconds float64) {
	r.uptimeSeconds.Set(seconds)
}
