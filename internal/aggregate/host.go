package aggregate

import (
	"log/slog"
	"sync"

	"watchpost/internal/metrics"
	"watchpost/internal/model"
)

// HostAggregator holds the rolling host state for one observation session:
// the most recent snapshot, the write-once baseline, and the full sample log
// retained for the report.
type HostAggregator struct {
	mu       sync.Mutex
	baseline *model.StateRecord
	current  *model.StateRecord
	samples  []model.StateRecord
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewHostAggregator creates a host aggregator. metrics may be nil.
func NewHostAggregator(logger *slog.Logger, m *metrics.Metrics) *HostAggregator {
	return &HostAggregator{
		logger:  logger,
		metrics: m,
	}
}

// Observe replaces the current snapshot wholesale and appends it to the
// sample log. The first valid snapshot also becomes the baseline, which is
// never mutated afterward. A malformed or nil snapshot is logged and the
// call is a no-op.
func (a *HostAggregator) Observe(rec *model.StateRecord) {
	if err := rec.Validate(); err != nil {
		a.logger.Warn("Dropping malformed state record", "error", err)
		if a.metrics != nil {
			a.metrics.IncRecordsInvalid("host")
		}
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cp := *rec
	if a.baseline == nil {
		baseline := cp
		a.baseline = &baseline
		a.logger.Info("Baseline captured",
			"cpu_percent", baseline.CPU.Percent,
			"memory_percent", baseline.Memory.Percent,
			"processes", baseline.Processes,
			"connections", baseline.Connections)
	}
	a.current = &cp
	a.samples = append(a.samples, cp)

	if a.metrics != nil {
		a.metrics.IncRecordsProcessed("host")
	}
}

// Baseline returns a copy of the session baseline, or nil before the first
// valid observation.
func (a *HostAggregator) Baseline() *model.StateRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.baseline == nil {
		return nil
	}
	cp := *a.baseline
	return &cp
}

// Current returns a copy of the most recent snapshot, or nil.
func (a *HostAggregator) Current() *model.StateRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return nil
	}
	cp := *a.current
	return &cp
}

// Samples returns a copy of the full snapshot sequence in observation order.
func (a *HostAggregator) Samples() []model.StateRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]model.StateRecord, len(a.samples))
	copy(out, a.samples)
	return out
}
