package report

import (
	"time"

	"watchpost/internal/aggregate"
	"watchpost/internal/model"
)

// SystemInfo identifies the observed host in the report summary.
type SystemInfo struct {
	Platform  string `json:"platform"`
	Hostname  string `json:"hostname"`
	GoVersion string `json:"go_version"`
}

// Summary holds the computed reduction over the finding set.
type Summary struct {
	TotalAnomalies      int                       `json:"total_anomalies"`
	TotalSecurityIssues int                       `json:"total_security_issues"`
	RiskLevel           model.Severity            `json:"risk_level"`
	ByType              map[model.FindingType]int `json:"findings_by_type"`
	BySeverity          map[model.Severity]int    `json:"findings_by_severity"`
	SystemInfo          *SystemInfo               `json:"system_info,omitempty"`
}

// HostReport is the output document of one host observation session.
type HostReport struct {
	Timestamp time.Time          `json:"timestamp"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
	Duration  float64            `json:"duration"`
	Interval  float64            `json:"interval"`
	Baseline  *model.StateRecord `json:"baseline,omitempty"`
	Samples   []model.StateRecord `json:"samples"`
	Anomalies []model.Finding    `json:"anomalies"`
	Summary   Summary            `json:"summary"`
}

// FlowReport is the output document of one flow observation session.
type FlowReport struct {
	Timestamp        time.Time                             `json:"timestamp"`
	StartTime        time.Time                             `json:"start_time"`
	EndTime          time.Time                             `json:"end_time"`
	Interface        string                                `json:"interface"`
	Protocols        []model.Protocol                      `json:"protocols"`
	Connections      map[string]*model.ConnectionAggregate `json:"connections"`
	TotalConnections int                                   `json:"total_connections"`
	UniqueProtocols  int                                   `json:"unique_protocols"`
	Findings         []model.Finding                       `json:"findings"`
	Summary          Summary                               `json:"summary"`
}

// HostMeta carries the session timestamps already captured by the driver.
// The builder reads no clock of its own.
type HostMeta struct {
	Start      time.Time
	End        time.Time
	Interval   time.Duration
	SystemInfo *SystemInfo
}

// FlowMeta carries the flow session boundary data.
type FlowMeta struct {
	Start     time.Time
	End       time.Time
	Interface string
}

// BuildHost assembles the host report. It is a pure function of its inputs:
// the same samples and findings always produce the same document.
func BuildHost(meta HostMeta, baseline *model.StateRecord, samples []model.StateRecord, findings []model.Finding) *HostReport {
	return &HostReport{
		Timestamp: meta.End,
		StartTime: meta.Start,
		EndTime:   meta.End,
		Duration:  meta.End.Sub(meta.Start).Seconds(),
		Interval:  meta.Interval.Seconds(),
		Baseline:  baseline,
		Samples:   samples,
		Anomalies: findings,
		Summary:   summarize(findings, meta.SystemInfo),
	}
}

// BuildFlow assembles the flow report from the final aggregate snapshot.
func BuildFlow(meta FlowMeta, snap *aggregate.FlowSnapshot, findings []model.Finding) *FlowReport {
	connections := snap.Connections
	if connections == nil {
		connections = map[string]*model.ConnectionAggregate{}
	}
	return &FlowReport{
		Timestamp:        meta.End,
		StartTime:        meta.Start,
		EndTime:          meta.End,
		Interface:        meta.Interface,
		Protocols:        snap.Protocols,
		Connections:      connections,
		TotalConnections: len(connections),
		UniqueProtocols:  len(snap.Protocols),
		Findings:         findings,
		Summary:          summarize(findings, nil),
	}
}

// OverallRisk reduces a finding set to the worst-case severity, LOW when the
// set is empty. A single CRITICAL finding dominates any number of LOW ones.
func OverallRisk(findings []model.Finding) model.Severity {
	risk := model.SeverityLow
	for i := range findings {
		if findings[i].Severity.Rank() > risk.Rank() {
			risk = findings[i].Severity
		}
	}
	return risk
}

func summarize(findings []model.Finding, info *SystemInfo) Summary {
	s := Summary{
		RiskLevel:  OverallRisk(findings),
		ByType:     make(map[model.FindingType]int),
		BySeverity: make(map[model.Severity]int),
		SystemInfo: info,
	}
	for i := range findings {
		f := &findings[i]
		s.ByType[f.Type]++
		s.BySeverity[f.Severity]++
		if f.Type.SecurityIssue() {
			s.TotalSecurityIssues++
		} else {
			s.TotalAnomalies++
		}
	}
	return s
}
