package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRank(t *testing.T) {
	tests := []struct {
		severity Severity
		rank     int
	}{
		{SeverityLow, 1},
		{SeverityMedium, 2},
		{SeverityHigh, 3},
		{SeverityCritical, 4},
		{Severity("weird"), 0},
		{Severity(""), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			assert.Equal(t, tt.rank, tt.severity.Rank())
			assert.Equal(t, tt.rank > 0, tt.severity.Valid())
		})
	}
}

func TestAppProtocolForPort(t *testing.T) {
	assert.Equal(t, ProtocolHTTP, AppProtocolForPort(80))
	assert.Equal(t, ProtocolHTTP, AppProtocolForPort(8080))
	assert.Equal(t, ProtocolFTP, AppProtocolForPort(21))
	assert.Equal(t, ProtocolTelnet, AppProtocolForPort(23))
	assert.Equal(t, Protocol(""), AppProtocolForPort(443))
	assert.Equal(t, Protocol(""), AppProtocolForPort(0))
}

func TestFlowRecordValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		record  *FlowRecord
		wantErr bool
	}{
		{
			name: "valid record",
			record: &FlowRecord{
				Timestamp: now,
				Protocol:  ProtocolTCP,
				SrcIP:     "192.168.1.1",
				DstIP:     "192.168.1.2",
				Length:    64,
			},
			wantErr: false,
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: true,
		},
		{
			name: "missing source",
			record: &FlowRecord{
				Timestamp: now,
				DstIP:     "192.168.1.2",
				Length:    64,
			},
			wantErr: true,
		},
		{
			name: "missing destination",
			record: &FlowRecord{
				Timestamp: now,
				SrcIP:     "192.168.1.1",
				Length:    64,
			},
			wantErr: true,
		},
		{
			name: "negative length",
			record: &FlowRecord{
				Timestamp: now,
				SrcIP:     "192.168.1.1",
				DstIP:     "192.168.1.2",
				Length:    -1,
			},
			wantErr: true,
		},
		{
			name: "zero timestamp",
			record: &FlowRecord{
				SrcIP:  "192.168.1.1",
				DstIP:  "192.168.1.2",
				Length: 64,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRecord)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStateRecordValidate(t *testing.T) {
	valid := &StateRecord{
		Timestamp: time.Now(),
		CPU:       CPUStat{Percent: 12.5, Count: 4},
		Memory:    MemoryStat{Percent: 40},
		Disk:      DiskStat{Percent: 55},
		Processes: 120,
	}
	assert.NoError(t, valid.Validate())

	var nilRec *StateRecord
	assert.ErrorIs(t, nilRec.Validate(), ErrInvalidRecord)

	noTS := *valid
	noTS.Timestamp = time.Time{}
	assert.ErrorIs(t, noTS.Validate(), ErrInvalidRecord)

	negCPU := *valid
	negCPU.CPU.Percent = -1
	assert.ErrorIs(t, negCPU.Validate(), ErrInvalidRecord)

	negProc := *valid
	negProc.Processes = -1
	assert.ErrorIs(t, negProc.Validate(), ErrInvalidRecord)
}

func TestFindingTypeSecurityIssue(t *testing.T) {
	assert.True(t, FindingPlaintext.SecurityIssue())
	assert.True(t, FindingTrafficRate.SecurityIssue())
	assert.False(t, FindingCPU.SecurityIssue())
	assert.False(t, FindingMemory.SecurityIssue())
	assert.False(t, FindingDisk.SecurityIssue())
	assert.False(t, FindingProcessCount.SecurityIssue())
	assert.False(t, FindingConnections.SecurityIssue())
}

func TestConnectionAggregateProtocols(t *testing.T) {
	conn := &ConnectionAggregate{
		SrcIP: "10.0.0.1",
		DstIP: "10.0.0.2",
		Protocols: map[Protocol]bool{
			ProtocolUDP:  true,
			ProtocolHTTP: true,
			ProtocolTCP:  true,
		},
	}

	assert.Equal(t, []Protocol{ProtocolHTTP, ProtocolTCP, ProtocolUDP}, conn.ProtocolList())
	assert.True(t, conn.HasProtocol(ProtocolHTTP))
	assert.False(t, conn.HasProtocol(ProtocolFTP))
}

func TestConnectionAggregateClone(t *testing.T) {
	conn := &ConnectionAggregate{
		SrcIP:     "10.0.0.1",
		DstIP:     "10.0.0.2",
		Protocols: map[Protocol]bool{ProtocolTCP: true},
		Packets:   5,
		Bytes:     320,
	}

	dup := conn.Clone()
	dup.Protocols[ProtocolHTTP] = true
	dup.Packets = 99

	assert.False(t, conn.HasProtocol(ProtocolHTTP))
	assert.Equal(t, int64(5), conn.Packets)
	assert.True(t, dup.HasProtocol(ProtocolTCP))
}
