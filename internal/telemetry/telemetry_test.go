package telemetry

import (
	"testing"
	"time"

	"github.com/RyanBlaney/magictales/emotion"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ emotion.Observer = (*Metrics)(nil)
	_ emotion.Observer = (*Collector)(nil)
)

func sample() *emotion.Analysis {
	return &emotion.Analysis{
		Label:   emotion.Happy,
		Variant: emotion.VariantFallback,
		Format:  "wav",
		Elapsed: 1500 * time.Millisecond,
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.ObserveAnalysis(sample())
	m.ObserveAnalysis(sample())
	m.ObserveError("decode")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Analyses.WithLabelValues("fallback", "happy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("decode")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Duration))

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["magictales_analyses_total"])
	assert.True(t, names["magictales_analysis_duration_seconds"])
	assert.True(t, names["go_goroutines"])
}

type sent struct {
	name  string
	value int64
	tags  []string
}

func TestCollector(t *testing.T) {
	var got []sent
	c := NewCollectorWith([]string{"service:magictales"}, func(name string, value int64, tags []string) {
		got = append(got, sent{name, value, tags})
	})

	c.ObserveAnalysis(sample())
	c.ObserveError("record")

	require.Len(t, got, 3)
	assert.Equal(t, MetricDuration, got[0].name)
	assert.Equal(t, int64(1500), got[0].value)
	assert.Equal(t, []string{"service:magictales", "label:happy", "variant:fallback", "format:wav"}, got[0].tags)
	assert.Equal(t, MetricDetected, got[1].name)
	assert.Equal(t, int64(1), got[1].value)
	assert.Equal(t, MetricError, got[2].name)
	assert.Equal(t, []string{"service:magictales", "stage:record"}, got[2].tags)
}
