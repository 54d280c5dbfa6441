package store

import (
	"container/ring"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"watchpost/internal/model"
)

// MemoryStore provides thread-safe storage for findings with a bounded ring
// buffer and LRU-backed deduplication of exact duplicates. Distinct findings
// are append-only; only a finding republished with the same type, timestamp
// and message is treated as a duplicate.
type MemoryStore struct {
	mu          sync.RWMutex
	findings    *ring.Ring
	dedupe      *lru.Cache[string, bool]
	maxFindings int
	dedupeCap   int
}

// NewMemoryStore creates a new memory store with specified capacities
func NewMemoryStore(maxFindings, dedupeCap int) *MemoryStore {
	dedupeCache, _ := lru.New[string, bool](dedupeCap)

	return &MemoryStore{
		findings:    ring.New(maxFindings),
		dedupe:      dedupeCache,
		maxFindings: maxFindings,
		dedupeCap:   dedupeCap,
	}
}

// Add appends a finding to the ring buffer. It returns false when the exact
// finding was already recorded.
func (s *MemoryStore) Add(finding *model.Finding) bool {
	if finding == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupeKey(finding)
	if _, exists := s.dedupe.Get(key); exists {
		return false
	}
	s.dedupe.Add(key, true)

	s.findings.Value = finding
	s.findings = s.findings.Next()

	return true
}

// All returns findings in append order (oldest first)
func (s *MemoryStore) All() []*model.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var findings []*model.Finding
	s.findings.Do(func(value interface{}) {
		if value != nil {
			if finding, ok := value.(*model.Finding); ok {
				findings = append(findings, finding)
			}
		}
	})

	return findings
}

// BySeverity returns findings with the given severity or higher
func (s *MemoryStore) BySeverity(min model.Severity) []*model.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	minRank := min.Rank()

	var findings []*model.Finding
	s.findings.Do(func(value interface{}) {
		if value != nil {
			if finding, ok := value.(*model.Finding); ok && finding.Severity.Rank() >= minRank {
				findings = append(findings, finding)
			}
		}
	})

	return findings
}

// Len returns the number of findings currently held
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	s.findings.Do(func(value interface{}) {
		if value != nil {
			count++
		}
	})
	return count
}

// Clear removes all findings and resets the dedupe cache
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.findings.Len(); i++ {
		s.findings.Value = nil
		s.findings = s.findings.Next()
	}
	s.dedupe.Purge()
}

// Stats returns store statistics
func (s *MemoryStore) Stats() map[string]interface{} {
	return map[string]interface{}{
		"total_findings": s.Len(),
		"max_findings":   s.maxFindings,
		"dedupe_cap":     s.dedupeCap,
		"dedupe_size":    s.dedupe.Len(),
	}
}

func dedupeKey(finding *model.Finding) string {
	return string(finding.Type) + ":" + string(finding.Severity) + ":" +
		strconv.FormatInt(finding.Timestamp.UnixNano(), 10) + ":" + finding.Message
}
