package aggregate

import (
	"log/slog"
	"sort"
	"sync"

	"watchpost/internal/metrics"
	"watchpost/internal/model"
)

// FlowAggregator folds flow records into per-connection aggregates keyed by
// the (source, destination) pair. Aggregates are created lazily on first
// observation of a key and live for the duration of the session.
type FlowAggregator struct {
	mu          sync.Mutex
	connections map[string]*model.ConnectionAggregate
	protocols   map[model.Protocol]bool
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// FlowSnapshot is a point-in-time copy of the aggregate state, safe to read
// while the aggregator keeps observing.
type FlowSnapshot struct {
	Connections map[string]*model.ConnectionAggregate
	Protocols   []model.Protocol
}

// NewFlowAggregator creates a flow aggregator. metrics may be nil.
func NewFlowAggregator(logger *slog.Logger, m *metrics.Metrics) *FlowAggregator {
	return &FlowAggregator{
		connections: make(map[string]*model.ConnectionAggregate),
		protocols:   make(map[model.Protocol]bool),
		logger:      logger,
		metrics:     m,
	}
}

// ConnectionKey derives the aggregate key for a record.
func ConnectionKey(src, dst string) string {
	return src + ":" + dst
}

// Observe folds one record into the aggregate map and returns the key it was
// folded under. A malformed or nil record is logged and dropped; the call is
// a no-op and returns "". This must never raise: the capture source is
// best-effort and cannot guarantee well-formed input.
func (a *FlowAggregator) Observe(rec *model.FlowRecord) string {
	if err := rec.Validate(); err != nil {
		a.logger.Warn("Dropping malformed flow record", "error", err)
		if a.metrics != nil {
			a.metrics.IncRecordsInvalid("flow")
		}
		return ""
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := ConnectionKey(rec.SrcIP, rec.DstIP)
	conn, exists := a.connections[key]
	if !exists {
		conn = &model.ConnectionAggregate{
			SrcIP:     rec.SrcIP,
			DstIP:     rec.DstIP,
			Protocols: make(map[model.Protocol]bool),
			FirstSeen: rec.Timestamp,
		}
		a.connections[key] = conn
	}

	conn.Packets++
	conn.Bytes += int64(rec.Length)
	conn.LastSeen = rec.Timestamp

	proto := rec.Protocol
	if proto == "" {
		proto = model.ProtocolOther
	}
	conn.Protocols[proto] = true
	a.protocols[proto] = true
	if rec.AppProtocol != "" {
		conn.Protocols[rec.AppProtocol] = true
		a.protocols[rec.AppProtocol] = true
	}

	if a.metrics != nil {
		a.metrics.IncRecordsProcessed("flow")
	}

	return key
}

// Snapshot returns a deep copy of the current aggregate state.
func (a *FlowAggregator) Snapshot() *FlowSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := &FlowSnapshot{
		Connections: make(map[string]*model.ConnectionAggregate, len(a.connections)),
		Protocols:   make([]model.Protocol, 0, len(a.protocols)),
	}
	for key, conn := range a.connections {
		snap.Connections[key] = conn.Clone()
	}
	for proto := range a.protocols {
		snap.Protocols = append(snap.Protocols, proto)
	}
	sort.Slice(snap.Protocols, func(i, j int) bool { return snap.Protocols[i] < snap.Protocols[j] })

	return snap
}

// Len returns the number of tracked connections.
func (a *FlowAggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.connections)
}

// SortedKeys returns the connection keys of a snapshot in sorted order, for
// deterministic iteration.
func (s *FlowSnapshot) SortedKeys() []string {
	keys := make([]string, 0, len(s.Connections))
	for key := range s.Connections {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
