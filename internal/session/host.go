package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"watchpost/internal/aggregate"
	"watchpost/internal/metrics"
	"watchpost/internal/model"
	"watchpost/internal/report"
	"watchpost/internal/rules"
	"watchpost/internal/source"
	"watchpost/internal/store"
)

// HostConfig configures one host observation session.
type HostConfig struct {
	Source     source.StateSource
	Engine     *rules.Engine
	Duration   time.Duration
	Interval   time.Duration
	SystemInfo *report.SystemInfo
	Store      *store.MemoryStore
	Sink       FindingSink
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// HostSession drives the sampling loop:
// IDLE -> BASELINE_CAPTURED -> SAMPLING -> FINISHED.
// The session is strictly sequential; the only suspension point is the
// sleep between samples, and no locks are held across it.
type HostSession struct {
	cfg      HostConfig
	agg      *aggregate.HostAggregator
	findings []model.Finding

	mu    sync.Mutex
	state State
}

// NewHostSession validates the configuration and creates a session. An
// invalid configuration is fatal before any sampling begins.
func NewHostSession(cfg HostConfig) (*HostSession, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("host session: state source is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("host session: rule engine is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("host session: interval must be positive, got %v", cfg.Interval)
	}
	if cfg.Duration < cfg.Interval {
		return nil, fmt.Errorf("host session: duration %v is shorter than interval %v", cfg.Duration, cfg.Interval)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &HostSession{
		cfg:   cfg,
		agg:   aggregate.NewHostAggregator(cfg.Logger, cfg.Metrics),
		state: StateIdle,
	}, nil
}

// State returns the current driver phase.
func (s *HostSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run executes the session. It always terminates with either a report or an
// explicit error; a mid-loop source failure returns the partial report
// together with the error, and cancellation returns the partial report
// without one.
func (s *HostSession) Run(ctx context.Context) (*report.HostReport, error) {
	start := time.Now()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SessionsActive.Inc()
		defer s.cfg.Metrics.SessionsActive.Dec()
	}

	// Baseline is captured exactly once, before any finding evaluation.
	// Failing here produces no partial report: nothing has been observed.
	baseline, err := s.sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("baseline capture failed: %w", err)
	}
	s.agg.Observe(baseline)
	if s.agg.Baseline() == nil {
		return nil, fmt.Errorf("baseline capture failed: source returned invalid record")
	}
	s.setState(StateBaselineCaptured)

	iterations := int(s.cfg.Duration / s.cfg.Interval)
	s.cfg.Logger.Info("Sampling started",
		"duration", s.cfg.Duration,
		"interval", s.cfg.Interval,
		"iterations", iterations)
	s.setState(StateSampling)

	for i := 0; i < iterations; i++ {
		if ctx.Err() != nil {
			s.cfg.Logger.Info("Session cancelled, assembling partial report", "samples", i)
			break
		}

		rec, err := s.sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			// Fatal to the session, but accumulated samples and findings
			// still flow to the report builder.
			rep := s.finish(start, time.Now())
			return rep, fmt.Errorf("state source failed at sample %d: %w", i+1, err)
		}

		s.agg.Observe(rec)
		s.append(s.cfg.Engine.EvaluateState(rec, s.agg.Baseline()))

		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	return s.finish(start, time.Now()), nil
}

// Findings returns the findings appended so far, in evaluation order.
func (s *HostSession) Findings() []model.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Finding, len(s.findings))
	copy(out, s.findings)
	return out
}

func (s *HostSession) sample(ctx context.Context) (*model.StateRecord, error) {
	begin := time.Now()
	rec, err := s.cfg.Source.Sample(ctx)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveSampleDuration(time.Since(begin).Seconds())
	}
	return rec, err
}

func (s *HostSession) append(findings []model.Finding) {
	s.mu.Lock()
	s.findings = append(s.findings, findings...)
	s.mu.Unlock()

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
}

func (s *HostSession) finish(start, end time.Time) *report.HostReport {
	s.setState(StateFinished)

	meta := report.HostMeta{
		Start:      start,
		End:        end,
		Interval:   s.cfg.Interval,
		SystemInfo: s.cfg.SystemInfo,
	}
	rep := report.BuildHost(meta, s.agg.Baseline(), s.agg.Samples(), s.Findings())

	s.cfg.Logger.Info("Host session finished",
		"samples", len(rep.Samples),
		"anomalies", len(rep.Anomalies),
		"risk_level", rep.Summary.RiskLevel)

	return rep
}

func (s *HostSession) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
