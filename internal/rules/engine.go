package rules

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"watchpost/internal/aggregate"
	"watchpost/internal/metrics"
	"watchpost/internal/model"
)

// Engine evaluates the configured rule set against aggregates and samples.
// Evaluation is a pure function of (current, baseline, config); findings are
// appended in a fixed rule order so output is deterministic for a given
// input.
type Engine struct {
	cfg     *Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine creates a rule engine. metrics may be nil.
func NewEngine(cfg *Config, logger *slog.Logger, m *metrics.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule config: %w", err)
	}
	return &Engine{cfg: cfg, logger: logger, metrics: m}, nil
}

// EvaluateState runs the host rule set against one state snapshot.
// Rule order is fixed: CPU, memory, disk, process count, connections.
// Baseline-relative rules are skipped (not an error) when baseline is nil.
func (e *Engine) EvaluateState(current, baseline *model.StateRecord) []model.Finding {
	if current == nil {
		return nil
	}

	var findings []model.Finding

	if f := e.checkThreshold("cpu", current.CPU.Percent, model.FindingCPU, model.SeverityHigh,
		"High CPU usage", current); f != nil {
		findings = append(findings, *f)
	}
	if f := e.checkThreshold("memory", current.Memory.Percent, model.FindingMemory, model.SeverityHigh,
		"High memory usage", current); f != nil {
		findings = append(findings, *f)
	}
	if f := e.checkThreshold("disk", current.Disk.Percent, model.FindingDisk, model.SeverityMedium,
		"High disk usage", current); f != nil {
		findings = append(findings, *f)
	}

	if baseline != nil {
		if f := e.checkBaseline("processes", current.Processes, baseline.Processes,
			model.FindingProcessCount, model.SeverityMedium, "Process count", current); f != nil {
			findings = append(findings, *f)
		}
		if f := e.checkBaseline("connections", current.Connections, baseline.Connections,
			model.FindingConnections, model.SeverityHigh, "Connection count", current); f != nil {
			findings = append(findings, *f)
		}
	}

	for i := range findings {
		e.logger.Info("New finding",
			"type", findings[i].Type,
			"severity", findings[i].Severity,
			"message", findings[i].Message)
		if e.metrics != nil {
			e.metrics.IncFindings(string(findings[i].Severity))
		}
	}

	return findings
}

// EvaluateFlows runs the protocol-class and traffic-shape rules over the
// final aggregate set. It is called once at report time: plaintext findings
// are emitted per observed protocol, not per connection, so many connections
// carrying the same plaintext protocol yield a single finding.
func (e *Engine) EvaluateFlows(snap *aggregate.FlowSnapshot) []model.Finding {
	if snap == nil {
		return nil
	}

	var findings []model.Finding

	observed := make(map[model.Protocol]bool, len(snap.Protocols))
	for _, proto := range snap.Protocols {
		observed[proto] = true
	}
	for _, proto := range e.cfg.PlaintextProtocols {
		e.countRule()
		if !observed[proto] {
			continue
		}
		last := latestSeen(snap)
		f := model.Finding{
			ID:             uuid.NewString(),
			Type:           model.FindingPlaintext,
			Severity:       model.SeverityHigh,
			Message:        fmt.Sprintf("Unencrypted protocol %s observed on the wire", proto),
			Timestamp:      last,
			Recommendation: PlaintextRecommendation,
		}
		findings = append(findings, f)
	}

	window := e.cfg.Burst.Window()
	for _, key := range snap.SortedKeys() {
		e.countRule()
		conn := snap.Connections[key]
		if conn.Packets <= e.cfg.Burst.PacketThreshold {
			continue
		}
		span := conn.LastSeen.Sub(conn.FirstSeen)
		if span >= window {
			continue
		}
		f := model.Finding{
			ID:       uuid.NewString(),
			Type:     model.FindingTrafficRate,
			Severity: model.SeverityMedium,
			Message: fmt.Sprintf("Traffic burst on %s: %d packets in %.1fs",
				key, conn.Packets, span.Seconds()),
			Timestamp: conn.LastSeen,
		}
		findings = append(findings, f)
	}

	for i := range findings {
		e.logger.Info("New finding",
			"type", findings[i].Type,
			"severity", findings[i].Severity,
			"message", findings[i].Message)
		if e.metrics != nil {
			e.metrics.IncFindings(string(findings[i].Severity))
		}
	}

	return findings
}

// checkThreshold evaluates one absolute-threshold rule.
func (e *Engine) checkThreshold(name string, value float64, typ model.FindingType, sev model.Severity, label string, current *model.StateRecord) *model.Finding {
	e.countRule()

	limit, ok := e.cfg.Thresholds[name]
	if !ok {
		return nil
	}
	if value <= limit {
		return nil
	}

	return &model.Finding{
		ID:        uuid.NewString(),
		Type:      typ,
		Severity:  sev,
		Message:   fmt.Sprintf("%s: %.1f%%", label, value),
		Timestamp: current.Timestamp,
	}
}

// checkBaseline evaluates one baseline-relative rule: the rule fires when
// current exceeds baseline times the configured multiplier.
func (e *Engine) checkBaseline(name string, current, baseline int, typ model.FindingType, sev model.Severity, label string, rec *model.StateRecord) *model.Finding {
	e.countRule()

	mult, ok := e.cfg.BaselineMultipliers[name]
	if !ok {
		return nil
	}
	if float64(current) <= float64(baseline)*mult {
		return nil
	}

	return &model.Finding{
		ID:       uuid.NewString(),
		Type:     typ,
		Severity: sev,
		Message: fmt.Sprintf("%s %d exceeds baseline %d (multiplier %.1f)",
			label, current, baseline, mult),
		Timestamp: rec.Timestamp,
	}
}

func (e *Engine) countRule() {
	if e.metrics != nil {
		e.metrics.IncRulesEvaluated()
	}
}

// latestSeen returns the most recent LastSeen across all connections, used
// to timestamp report-time findings without reading the clock.
func latestSeen(snap *aggregate.FlowSnapshot) time.Time {
	var last time.Time
	for _, conn := range snap.Connections {
		if conn.LastSeen.After(last) {
			last = conn.LastSeen
		}
	}
	return last
}
