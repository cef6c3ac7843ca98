package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-identity-bridge/internal/metrics"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.RecordCallback("google", "success", 10*time.Millisecond)
	m.RecordCallback("google", "success", 20*time.Millisecond)
	m.RecordCallback("google", "state_mismatch", time.Millisecond)
	m.RecordVerification("google", "activated")
	m.RecordProfileFetch("linkedIn", "error")
	m.RecordActivity("message")

	require.Equal(t, 2.0, testutil.ToFloat64(m.CallbackOutcomes.WithLabelValues("google", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CallbackOutcomes.WithLabelValues("google", "state_mismatch")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues("google", "activated")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ProfileFetches.WithLabelValues("linkedIn", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ChatActivities.WithLabelValues("message")))
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.RecordCallback("google", "success", time.Second)
		m.RecordVerification("google", "activated")
		m.RecordProfileFetch("google", "ok")
		m.RecordActivity("message")
	})
}
