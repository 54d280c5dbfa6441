package publish

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zstd"
	"github.com/nats-io/nats.go"

	"watchpost/internal/model"
)

const (
	findingSubject    = "watchpost.findings"
	reportSubjectBase = "watchpost.reports."

	// Report payloads above this size are zstd-compressed before publishing.
	compressThreshold = 64 * 1024
)

// Publisher forwards findings and finished reports to NATS for downstream
// consumers.
type Publisher struct {
	nc      *nats.Conn
	logger  *slog.Logger
	encoder *zstd.Encoder
}

// NewPublisher creates a publisher on an established NATS connection.
func NewPublisher(nc *nats.Conn, logger *slog.Logger) (*Publisher, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &Publisher{nc: nc, logger: logger, encoder: encoder}, nil
}

// PublishFinding publishes one finding to the findings subject.
func (p *Publisher) PublishFinding(finding *model.Finding) error {
	if p.nc == nil || !p.nc.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	data, err := json.Marshal(finding)
	if err != nil {
		return fmt.Errorf("failed to marshal finding: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-finding-id", finding.ID)
	headers.Set("x-finding-type", string(finding.Type))
	headers.Set("x-severity", string(finding.Severity))

	msg := &nats.Msg{
		Subject: findingSubject,
		Data:    data,
		Header:  headers,
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish finding: %w", err)
	}

	p.logger.Debug("Published finding",
		"finding_id", finding.ID,
		"type", finding.Type,
		"severity", finding.Severity,
		"subject", findingSubject)

	return nil
}

// PublishReport publishes a finished report document under
// watchpost.reports.<pipeline>. Large payloads are zstd-compressed, marked
// with a Content-Encoding header.
func (p *Publisher) PublishReport(pipeline string, doc any) error {
	if p.nc == nil || !p.nc.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	headers := nats.Header{}
	encoded := data
	if len(data) > compressThreshold {
		encoded = p.encoder.EncodeAll(data, nil)
		headers.Set("Content-Encoding", "zstd")
	}

	msg := &nats.Msg{
		Subject: reportSubjectBase + pipeline,
		Data:    encoded,
		Header:  headers,
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}

	p.logger.Info("Published report",
		"pipeline", pipeline,
		"raw_bytes", len(data),
		"wire_bytes", len(encoded),
		"compressed", len(encoded) != len(data))

	return nil
}

// Close releases the compressor.
func (p *Publisher) Close() {
	p.encoder.Close()
}
