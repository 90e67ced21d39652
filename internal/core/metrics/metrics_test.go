package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildKey_SortsLabels(t *testing.T) {
	assert.Equal(t, "jobs", BuildKey("jobs", nil))
	assert.Equal(t, "jobs{outcome=failed,queue=images}",
		BuildKey("jobs", map[string]string{"queue": "images", "outcome": "failed"}))
}

func TestMemoryMetrics_Counters(t *testing.T) {
	m := NewMemoryMetrics()
	labels := map[string]string{"queue": "views"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter(JobsTotal, labels)
		}()
	}
	wg.Wait()
	m.AddCounter(JobsTotal, 2.5, labels)
	m.AddCounter(JobsTotal, -10, labels)

	assert.Equal(t, 52.5, m.GetCounter(JobsTotal, labels))
	assert.Zero(t, m.GetCounter(JobsTotal, map[string]string{"queue": "images"}))
}

func TestMemoryMetrics_GaugesAndSnapshot(t *testing.T) {
	m := NewMemoryMetrics()
	m.SetGauge("workers", 3, nil)
	m.SetGauge("workers", 2, nil)
	m.IncrementCounter(ViewsFlushedTotal, nil)

	assert.Equal(t, 2.0, m.GetGauge("workers", nil))
	assert.Equal(t, map[string]float64{"workers": 2, ViewsFlushedTotal: 1}, m.Snapshot())
}

func TestOrNop(t *testing.T) {
	assert.IsType(t, Nop{}, OrNop(nil))
	m := NewMemoryMetrics()
	assert.Same(t, m, OrNop(m))
}
