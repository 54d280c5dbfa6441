package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchpost/internal/model"
)

func testFinding(id string, sev model.Severity, ts time.Time) *model.Finding {
	return &model.Finding{
		ID:        id,
		Type:      model.FindingCPU,
		Severity:  sev,
		Message:   "finding " + id,
		Timestamp: ts,
	}
}

func TestMemoryStoreAdd(t *testing.T) {
	s := NewMemoryStore(10, 100)
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	assert.True(t, s.Add(testFinding("a", model.SeverityHigh, ts)))
	assert.True(t, s.Add(testFinding("b", model.SeverityLow, ts)))
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStoreAddNil(t *testing.T) {
	s := NewMemoryStore(10, 100)
	assert.False(t, s.Add(nil))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreDedupe(t *testing.T) {
	s := NewMemoryStore(10, 100)
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	// Same type, severity, timestamp, and message: a republication.
	assert.True(t, s.Add(testFinding("a", model.SeverityHigh, ts)))
	assert.False(t, s.Add(testFinding("a", model.SeverityHigh, ts)))
	assert.Equal(t, 1, s.Len())

	// Same content at a later sample is a distinct finding.
	assert.True(t, s.Add(testFinding("a", model.SeverityHigh, ts.Add(time.Second))))
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStoreAllOrder(t *testing.T) {
	s := NewMemoryStore(10, 100)
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.True(t, s.Add(testFinding(fmt.Sprintf("f%d", i), model.SeverityLow, ts.Add(time.Duration(i)*time.Second))))
	}

	all := s.All()
	require.Len(t, all, 5)
	for i, f := range all {
		assert.Equal(t, fmt.Sprintf("f%d", i), f.ID)
	}
}

func TestMemoryStoreRingEviction(t *testing.T) {
	s := NewMemoryStore(3, 100)
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.True(t, s.Add(testFinding(fmt.Sprintf("f%d", i), model.SeverityLow, ts.Add(time.Duration(i)*time.Second))))
	}

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, "f2", all[0].ID)
	assert.Equal(t, "f4", all[2].ID)
}

func TestMemoryStoreBySeverity(t *testing.T) {
	s := NewMemoryStore(10, 100)
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	require.True(t, s.Add(testFinding("low", model.SeverityLow, ts)))
	require.True(t, s.Add(testFinding("med", model.SeverityMedium, ts)))
	require.True(t, s.Add(testFinding("high", model.SeverityHigh, ts)))
	require.True(t, s.Add(testFinding("crit", model.SeverityCritical, ts)))

	assert.Len(t, s.BySeverity(model.SeverityLow), 4)
	assert.Len(t, s.BySeverity(model.SeverityMedium), 3)
	assert.Len(t, s.BySeverity(model.SeverityHigh), 2)
	assert.Len(t, s.BySeverity(model.SeverityCritical), 1)
}

func TestMemoryStoreClear(t *testing.T) {
	s := NewMemoryStore(10, 100)
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	require.True(t, s.Add(testFinding("a", model.SeverityHigh, ts)))
	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.All())
	// Dedupe cache resets too, so the same finding can be recorded again.
	assert.True(t, s.Add(testFinding("a", model.SeverityHigh, ts)))
}

func TestMemoryStoreStats(t *testing.T) {
	s := NewMemoryStore(10, 100)
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	require.True(t, s.Add(testFinding("a", model.SeverityHigh, ts)))

	stats := s.Stats()
	assert.Equal(t, 1, stats["total_findings"])
	assert.Equal(t, 10, stats["max_findings"])
	assert.Equal(t, 100, stats["dedupe_cap"])
	assert.Equal(t, 1, stats["dedupe_size"])
}
