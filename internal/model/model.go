package model

import (
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// Severity levels for findings, ordered LOW < MEDIUM < HIGH < CRITICAL
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank maps a severity to its ordinal value (LOW=1 .. CRITICAL=4).
// Unknown severities rank below LOW.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether the severity is one of the defined levels.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Protocol is a protocol tag observed on a flow. Transport tags come from
// the capture source; application tags (HTTP, FTP, TELNET) are derived from
// well-known ports and drive the plaintext-protocol rule.
type Protocol string

const (
	ProtocolTCP    Protocol = "TCP"
	ProtocolUDP    Protocol = "UDP"
	ProtocolICMP   Protocol = "ICMP"
	ProtocolOther  Protocol = "OTHER"
	ProtocolHTTP   Protocol = "HTTP"
	ProtocolFTP    Protocol = "FTP"
	ProtocolTelnet Protocol = "TELNET"
)

// AppProtocolForPort returns the plaintext application protocol associated
// with a well-known TCP port, or "" when the port carries none.
func AppProtocolForPort(port int) Protocol {
	switch port {
	case 80, 8080:
		return ProtocolHTTP
	case 21:
		return ProtocolFTP
	case 23:
		return ProtocolTelnet
	default:
		return ""
	}
}

// FlowRecord is one captured unit of network traffic.
type FlowRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Protocol    Protocol  `json:"protocol"`
	AppProtocol Protocol  `json:"app_protocol,omitempty"`
	SrcIP       string    `json:"src_ip"`
	DstIP       string    `json:"dst_ip"`
	SrcPort     int       `json:"src_port"`
	DstPort     int       `json:"dst_port"`
	Length      int       `json:"length"`
}

// ErrInvalidRecord marks a record that fails validation. The aggregator
// recovers locally and never raises it to the caller.
var ErrInvalidRecord = errors.New("invalid record")

// Validate checks the record for the fields the aggregator requires.
func (r *FlowRecord) Validate() error {
	if r == nil {
		return ErrInvalidRecord
	}
	if r.SrcIP == "" || r.DstIP == "" {
		return ErrInvalidRecord
	}
	if r.Length < 0 {
		return ErrInvalidRecord
	}
	if r.Timestamp.IsZero() {
		return ErrInvalidRecord
	}
	return nil
}

// CPUStat is the CPU portion of a state snapshot.
type CPUStat struct {
	Percent float64 `json:"percent"`
	Count   int     `json:"count"`
}

// MemoryStat is the memory portion of a state snapshot.
type MemoryStat struct {
	Total     uint64  `json:"total"`
	Available uint64  `json:"available"`
	Percent   float64 `json:"percent"`
}

// DiskStat is the disk portion of a state snapshot.
type DiskStat struct {
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Free    uint64  `json:"free"`
	Percent float64 `json:"percent"`
}

// NetworkStat holds cumulative interface counters at snapshot time.
type NetworkStat struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

// StateRecord is one periodic snapshot of host state.
type StateRecord struct {
	Timestamp   time.Time   `json:"timestamp"`
	CPU         CPUStat     `json:"cpu"`
	Memory      MemoryStat  `json:"memory"`
	Disk        DiskStat    `json:"disk"`
	Network     NetworkStat `json:"network"`
	Processes   int         `json:"processes"`
	Connections int         `json:"connections"`
	BootTime    time.Time   `json:"boot_time"`
}

// Validate checks the snapshot for the fields rule evaluation requires.
func (r *StateRecord) Validate() error {
	if r == nil {
		return ErrInvalidRecord
	}
	if r.Timestamp.IsZero() {
		return ErrInvalidRecord
	}
	if r.CPU.Percent < 0 || r.Memory.Percent < 0 || r.Disk.Percent < 0 {
		return ErrInvalidRecord
	}
	if r.Processes < 0 || r.Connections < 0 {
		return ErrInvalidRecord
	}
	return nil
}

// FindingType tags the rule class that produced a finding.
type FindingType string

const (
	FindingCPU          FindingType = "CPU"
	FindingMemory       FindingType = "MEMORY"
	FindingDisk         FindingType = "DISK"
	FindingProcessCount FindingType = "PROCESS_COUNT"
	FindingConnections  FindingType = "NETWORK_CONNECTIONS"
	FindingPlaintext    FindingType = "PLAINTEXT_PROTOCOL"
	FindingTrafficRate  FindingType = "TRAFFIC_RATE"
)

// SecurityIssue reports whether findings of this type count as security
// issues in the report summary, as opposed to resource anomalies.
func (t FindingType) SecurityIssue() bool {
	switch t {
	case FindingPlaintext, FindingTrafficRate:
		return true
	default:
		return false
	}
}

// Finding is a timestamped, severity-tagged detection produced by the
// rule engine. Findings are append-only and never retracted.
type Finding struct {
	ID             string      `json:"id"`
	Type           FindingType `json:"type"`
	Severity       Severity    `json:"severity"`
	Message        string      `json:"message"`
	Timestamp      time.Time   `json:"timestamp"`
	Recommendation string      `json:"recommendation,omitempty"`
}

// ConnectionAggregate is the running state for one (source, destination)
// endpoint pair. Packet and byte counts only grow; the protocol set only
// grows.
type ConnectionAggregate struct {
	SrcIP     string            `json:"src_ip"`
	DstIP     string            `json:"dst_ip"`
	Protocols map[Protocol]bool `json:"-"`
	Packets   int64             `json:"packets"`
	Bytes     int64             `json:"bytes"`
	FirstSeen time.Time         `json:"first_seen"`
	LastSeen  time.Time         `json:"last_seen"`
}

// ProtocolList returns the observed protocols in sorted order.
func (c *ConnectionAggregate) ProtocolList() []Protocol {
	out := make([]Protocol, 0, len(c.Protocols))
	for p := range c.Protocols {
		out = append(out, p)
	}
	sortProtocols(out)
	return out
}

// HasProtocol reports whether the protocol was observed on this connection.
func (c *ConnectionAggregate) HasProtocol(p Protocol) bool {
	return c.Protocols[p]
}

// Clone returns a deep copy of the aggregate.
func (c *ConnectionAggregate) Clone() *ConnectionAggregate {
	dup := *c
	dup.Protocols = make(map[Protocol]bool, len(c.Protocols))
	for p := range c.Protocols {
		dup.Protocols[p] = true
	}
	return &dup
}

// MarshalJSON emits the protocol set as a sorted list so the encoded
// aggregate is deterministic.
func (c *ConnectionAggregate) MarshalJSON() ([]byte, error) {
	type alias ConnectionAggregate
	return json.Marshal(struct {
		*alias
		ProtocolList []Protocol `json:"protocols"`
	}{
		alias:        (*alias)(c),
		ProtocolList: c.ProtocolList(),
	})
}

func sortProtocols(ps []Protocol) {
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
}
