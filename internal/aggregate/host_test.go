package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchpost/internal/model"
)

func stateRecord(cpu float64, processes int, ts time.Time) *model.StateRecord {
	return &model.StateRecord{
		Timestamp: ts,
		CPU:       model.CPUStat{Percent: cpu, Count: 4},
		Memory:    model.MemoryStat{Percent: 40},
		Disk:      model.DiskStat{Percent: 50},
		Processes: processes,
	}
}

func TestHostAggregatorBaselineIsWriteOnce(t *testing.T) {
	agg := NewHostAggregator(testLogger(), nil)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	agg.Observe(stateRecord(10, 100, base))
	agg.Observe(stateRecord(90, 200, base.Add(time.Second)))
	agg.Observe(stateRecord(50, 150, base.Add(2*time.Second)))

	baseline := agg.Baseline()
	require.NotNil(t, baseline)
	assert.Equal(t, 10.0, baseline.CPU.Percent)
	assert.Equal(t, 100, baseline.Processes)

	current := agg.Current()
	require.NotNil(t, current)
	assert.Equal(t, 50.0, current.CPU.Percent)
}

func TestHostAggregatorBaselineCopyIsIsolated(t *testing.T) {
	agg := NewHostAggregator(testLogger(), nil)
	agg.Observe(stateRecord(10, 100, time.Now()))

	baseline := agg.Baseline()
	baseline.CPU.Percent = 99

	assert.Equal(t, 10.0, agg.Baseline().CPU.Percent)
}

func TestHostAggregatorSampleLog(t *testing.T) {
	agg := NewHostAggregator(testLogger(), nil)
	base := time.Now()

	for i := 0; i < 5; i++ {
		agg.Observe(stateRecord(float64(10*i), 100+i, base.Add(time.Duration(i)*time.Second)))
	}

	samples := agg.Samples()
	require.Len(t, samples, 5)
	for i, s := range samples {
		assert.Equal(t, float64(10*i), s.CPU.Percent)
	}
}

func TestHostAggregatorInvalidRecordNoOp(t *testing.T) {
	agg := NewHostAggregator(testLogger(), nil)

	agg.Observe(nil)
	agg.Observe(&model.StateRecord{}) // zero timestamp

	assert.Nil(t, agg.Baseline())
	assert.Nil(t, agg.Current())
	assert.Empty(t, agg.Samples())

	// A later invalid record must not disturb existing state either.
	agg.Observe(stateRecord(10, 100, time.Now()))
	agg.Observe(&model.StateRecord{Timestamp: time.Now(), Processes: -1})

	require.NotNil(t, agg.Current())
	assert.Equal(t, 10.0, agg.Current().CPU.Percent)
	assert.Len(t, agg.Samples(), 1)
}
