// Package metrics holds the Prometheus collectors of the identity bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the bridge counters. A nil *Metrics records nothing.
type Metrics struct {
	CallbackOutcomes *prometheus.CounterVec
	CallbackLatency  *prometheus.HistogramVec
	Verifications    *prometheus.CounterVec
	ProfileFetches   *prometheus.CounterVec
	ChatActivities   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CallbackOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_oauth_callbacks_total",
				Help: "OAuth callbacks by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		CallbackLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_oauth_callback_duration_seconds",
				Help:    "Time spent handling an OAuth callback.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		Verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_verifications_total",
				Help: "Verification code confirmations by provider and result.",
			},
			[]string{"provider", "result"},
		),
		ProfileFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_profile_fetches_total",
				Help: "Provider profile reads by provider and result.",
			},
			[]string{"provider", "result"},
		),
		ChatActivities: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_chat_activities_total",
				Help: "Chat activities handled by kind.",
			},
			[]string{"kind"},
		),
	}
}

// RecordCallback records the outcome and latency of one OAuth callback.
func (m *Metrics) RecordCallback(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CallbackOutcomes.WithLabelValues(provider, outcome).Inc()
	m.CallbackLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) RecordVerification(provider, result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) RecordProfileFetch(provider, result string) {
	if m == nil {
		return
	}
	m.ProfileFetches.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) RecordActivity(kind string) {
	if m == nil {
		return
	}
	m.ChatActivities.WithLabelValues(kind).Inc()
}
