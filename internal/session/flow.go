package session

import (
	"fmt"
	"log/slog"
	"time"

	"watchpost/internal/aggregate"
	"watchpost/internal/metrics"
	"watchpost/internal/model"
	"watchpost/internal/report"
	"watchpost/internal/rules"
	"watchpost/internal/source"
	"watchpost/internal/store"
)

// FlowConfig configures one flow observation session.
type FlowConfig struct {
	Source    source.FlowSource
	Engine    *rules.Engine
	Interface string
	Store     *store.MemoryStore
	Sink      FindingSink
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// FlowSession drains records from an asynchronous capture source into the
// aggregator through a single consumer, then evaluates the protocol-class
// and traffic-shape rules once over the final aggregate set.
type FlowSession struct {
	cfg FlowConfig
	agg *aggregate.FlowAggregator
}

// NewFlowSession validates the configuration and creates a session.
func NewFlowSession(cfg FlowConfig) (*FlowSession, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("flow session: flow source is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("flow session: rule engine is required")
	}
	if cfg.Interface == "" {
		cfg.Interface = "any"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &FlowSession{
		cfg: cfg,
		agg: aggregate.NewFlowAggregator(cfg.Logger, cfg.Metrics),
	}, nil
}

// Aggregator exposes the live aggregate state for observation endpoints.
func (s *FlowSession) Aggregator() *aggregate.FlowAggregator {
	return s.agg
}

// Run consumes the record stream until the source closes it, then builds
// the report. A capture failure surfaces as an error alongside the partial
// report; accumulated aggregates are never silently dropped.
func (s *FlowSession) Run() (*report.FlowReport, error) {
	start := time.Now()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SessionsActive.Inc()
		defer s.cfg.Metrics.SessionsActive.Dec()
	}

	// Single-writer drain: nil records are the source's invalid-unit signal
	// and fall through to the aggregator's no-op policy.
	for rec := range s.cfg.Source.Records() {
		s.agg.Observe(rec)
	}
	end := time.Now()

	snap := s.agg.Snapshot()
	findings := s.evaluate(snap)

	meta := report.FlowMeta{Start: start, End: end, Interface: s.cfg.Interface}
	rep := report.BuildFlow(meta, snap, findings)

	s.cfg.Logger.Info("Flow session finished",
		"connections", rep.TotalConnections,
		"protocols", rep.UniqueProtocols,
		"findings", len(rep.Findings),
		"risk_level", rep.Summary.RiskLevel)

	if err := s.cfg.Source.Err(); err != nil {
		return rep, fmt.Errorf("flow source failed: %w", err)
	}
	return rep, nil
}

func (s *FlowSession) evaluate(snap *aggregate.FlowSnapshot) []model.Finding {
	findings := s.cfg.Engine.EvaluateFlows(snap)

	for i := range findings {
		f := findings[i]
		if s.cfg.Store != nil {
			s.cfg.Store.Add(&f)
		}
		if s.cfg.Sink != nil {
			if err := s.cfg.Sink.PublishFinding(&f); err != nil {
				s.cfg.Logger.Warn("Failed to publish finding", "finding_id", f.ID, "error", err)
			}
		}
	}

	return findings
}
