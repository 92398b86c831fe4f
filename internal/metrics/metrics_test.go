package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordAnalysis("PNEUMONIA", true)
	m.RecordAnalysis("PNEUMONIA", true)
	m.RecordAnalysis("NORMAL", false)
	m.ObserveInference(20*time.Millisecond, nil)
	m.ObserveInference(30*time.Millisecond, errors.New("invoke failed"))
	m.RecordStorageError("upload")
	m.RecordTier("HIGH")
	m.RecordAuth("login", "success")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("PNEUMONIA", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("NORMAL", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InferenceErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageErrors.WithLabelValues("upload")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VulnerabilityTiers.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthEvents.WithLabelValues("login", "success")))
}

func TestMetricsDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAnalysis("NORMAL", false)
		m.ObserveInference(time.Second, nil)
		m.RecordStorageError("save")
		m.RecordTier("LOW")
		m.RecordAuth("logout", "success")
	})
}
