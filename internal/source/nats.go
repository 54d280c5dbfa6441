package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"watchpost/internal/model"
)

// NATSFlowSource receives flow records published by an external capture
// agent. Messages are parsed off the NATS callback and handed to a single
// consumer through a buffered channel, so the aggregator sees exactly one
// writer.
type NATSFlowSource struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
	records chan *model.FlowRecord

	mu      sync.Mutex
	sub     *nats.Subscription
	err     error
	started bool
	closed  bool
}

// NewNATSFlowSource creates a flow source reading from the given subject.
func NewNATSFlowSource(nc *nats.Conn, subject string, buffer int, logger *slog.Logger) *NATSFlowSource {
	return &NATSFlowSource{
		nc:      nc,
		subject: subject,
		logger:  logger,
		records: make(chan *model.FlowRecord, buffer),
	}
}

// Start subscribes to the flow subject. The subscription is drained and the
// record channel closed when ctx is cancelled.
func (s *NATSFlowSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("flow source already started")
	}

	sub, err := s.nc.Subscribe(s.subject, s.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub
	s.started = true
	s.logger.Info("Subscribed to flow records", "subject", s.subject)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if s.nc.IsClosed() {
			// Connection died under the subscription; the session must see
			// this as a source failure, not a clean end of capture.
			s.err = nats.ErrConnectionClosed
		} else if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe flow source", "error", err)
			s.err = err
		}
		s.closed = true
		close(s.records)
		s.mu.Unlock()
	}()

	return nil
}

// Records returns the delivery channel.
func (s *NATSFlowSource) Records() <-chan *model.FlowRecord {
	return s.records
}

// Err returns the capture failure, if any.
func (s *NATSFlowSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// handleMessage parses one captured unit. An unparseable unit is delivered
// as nil, keeping the invalid signal distinct from a flow record. When the
// consumer falls behind, records are dropped: capture is best-effort and
// the NATS callback must not block.
func (s *NATSFlowSource) handleMessage(msg *nats.Msg) {
	rec, err := ParseFlowRecord(msg.Data)
	if err != nil {
		s.logger.Debug("Invalid flow payload", "error", err, "data_length", len(msg.Data))
		rec = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.records <- rec:
	default:
		s.logger.Warn("Flow record dropped, consumer lagging", "subject", s.subject)
	}
}

// ParseFlowRecord decodes one published flow record. The application
// protocol is derived from well-known ports when the publisher did not tag
// one.
func ParseFlowRecord(data []byte) (*model.FlowRecord, error) {
	var wire struct {
		Timestamp   string `json:"timestamp"`
		Protocol    string `json:"protocol"`
		AppProtocol string `json:"app_protocol"`
		SrcIP       string `json:"src_ip"`
		DstIP       string `json:"dst_ip"`
		SrcPort     int    `json:"src_port"`
		DstPort     int    `json:"dst_port"`
		Length      int    `json:"length"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow record: %w", err)
	}

	rec := &model.FlowRecord{
		Protocol:    model.Protocol(strings.ToUpper(wire.Protocol)),
		AppProtocol: model.Protocol(strings.ToUpper(wire.AppProtocol)),
		SrcIP:       wire.SrcIP,
		DstIP:       wire.DstIP,
		SrcPort:     wire.SrcPort,
		DstPort:     wire.DstPort,
		Length:      wire.Length,
	}

	if wire.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, wire.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("bad flow timestamp: %w", err)
		}
		rec.Timestamp = ts
	}

	if rec.AppProtocol == "" {
		if app := model.AppProtocolForPort(rec.DstPort); app != "" {
			rec.AppProtocol = app
		} else if app := model.AppProtocolForPort(rec.SrcPort); app != "" {
			rec.AppProtocol = app
		}
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// NATSStateSource acquires host state snapshots from an external collector
// over NATS request/reply. Each Sample issues one request; no responder or
// a malformed reply is a source failure, which the session treats as fatal.
type NATSStateSource struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
	logger  *slog.Logger
}

// NewNATSStateSource creates a state source requesting snapshots on the
// given subject.
func NewNATSStateSource(nc *nats.Conn, subject string, timeout time.Duration, logger *slog.Logger) *NATSStateSource {
	return &NATSStateSource{
		nc:      nc,
		subject: subject,
		timeout: timeout,
		logger:  logger,
	}
}

// Sample requests one snapshot from the collector.
func (s *NATSStateSource) Sample(ctx context.Context) (*model.StateRecord, error) {
	reqCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	msg, err := s.nc.RequestWithContext(reqCtx, s.subject, nil)
	if err != nil {
		return nil, fmt.Errorf("state source request failed: %w", err)
	}

	var rec model.StateRecord
	if err := json.Unmarshal(msg.Data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("state source returned invalid record: %w", err)
	}

	return &rec, nil
}
