// ============================================================================
// Dispatch Metrics - Prometheus collector
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Function: Exposes scheduler activity as Prometheus metrics
//
// Metrics:
//
//   Counters:
//     - dispatch_messages_dispatched_total{campaign}: contacts handed to the sender
//     - dispatch_sender_failures_total{campaign}:     sender returned an error
//     - dispatch_window_waits_total{campaign}:        polls spent on a closed window
//     - dispatch_delay_fallbacks_total:                delays drawn from the fallback range
//     - dispatch_runs_started_total
//     - dispatch_runs_finished_total{state}
//
//   Histogram:
//     - dispatch_delay_seconds: humanized delay distribution, 5s..300s buckets
//
//   Gauge:
//     - dispatch_runs_active: runs that have started but not finished
//
// Example queries:
//
//   # messages per minute, per campaign
//   rate(dispatch_messages_dispatched_total[1m])
//
//   # median humanized delay
//   histogram_quantile(0.5, rate(dispatch_delay_seconds_bucket[10m]))
//
//   # sender error ratio
//   rate(dispatch_sender_failures_total[5m]) / rate(dispatch_messages_dispatched_total[5m])
//
// ============================================================================

package metrics

import (
	"net/http"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// delayBuckets spans the valid delay range (5s to 300s)
var delayBuckets = []float64{5, 10, 15, 20, 30, 45, 60, 90, 120, 180, 240, 300}

// Collector records scheduler events. It satisfies scheduler.Recorder.
type Collector struct {
	dispatched     *prometheus.CounterVec
	senderFailures *prometheus.CounterVec
	windowWaits    *prometheus.CounterVec
	fallbacks      prometheus.Counter
	runsStarted    prometheus.Counter
	runsFinished   *prometheus.CounterVec
	delay          prometheus.Histogram
	runsActive     prometheus.Gauge
}

// NewCollector creates the collector and registers it on reg.
// Registering twice on the same registry panics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_messages_dispatched_total",
			Help: "Total number of contacts handed to the sender",
		}, []string{"campaign"}),
		senderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_sender_failures_total",
			Help: "Total number of dispatches the sender rejected",
		}, []string{"campaign"}),
		windowWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_window_waits_total",
			Help: "Total number of polls spent waiting for a sending window",
		}, []string{"campaign"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_delay_fallbacks_total",
			Help: "Total number of delays drawn from the fallback range",
		}),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_runs_started_total",
			Help: "Total number of campaign runs started",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_runs_finished_total",
			Help: "Total number of campaign runs finished, by terminal state",
		}, []string{"state"}),
		delay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_delay_seconds",
			Help:    "Humanized inter-message delay in seconds",
			Buckets: delayBuckets,
		}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_runs_active",
			Help: "Current number of active campaign runs",
		}),
	}

	reg.MustRegister(
		c.dispatched,
		c.senderFailures,
		c.windowWaits,
		c.fallbacks,
		c.runsStarted,
		c.runsFinished,
		c.delay,
		c.runsActive,
	)
	return c
}

// RunStarted counts a started run
func (c *Collector) RunStarted(types.CampaignID) {
	c.runsStarted.Inc()
	c.runsActive.Inc()
}

// RunFinished counts a run reaching a terminal state
func (c *Collector) RunFinished(_ types.CampaignID, state types.RunState) {
	c.runsFinished.WithLabelValues(string(state)).Inc()
	c.runsActive.Dec()
}

// Dispatched counts a contact handed to the sender
func (c *Collector) Dispatched(id types.CampaignID) {
	c.dispatched.WithLabelValues(string(id)).Inc()
}

// SenderFailed counts a sender error
func (c *Collector) SenderFailed(id types.CampaignID) {
	c.senderFailures.WithLabelValues(string(id)).Inc()
}

// DelayObserved records a humanized delay
func (c *Collector) DelayObserved(d time.Duration) {
	c.delay.Observe(d.Seconds())
}

// WindowWait counts one poll of a closed sending window
func (c *Collector) WindowWait(id types.CampaignID) {
	c.windowWaits.WithLabelValues(string(id)).Inc()
}

// RecordFallback counts a delay drawn from the fallback range
func (c *Collector) RecordFallback() {
	c.fallbacks.Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
