package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 256
	flushInterval = 100 * time.Millisecond
	flushBatch    = 64
	drainTimeout  = 2 * time.Second
	insertTimeout = 5 * time.Second
)

// ClickHouseWriter ships security events to ClickHouse asynchronously.
// Write() is non-blocking; Close() drains whatever is still buffered.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *SecurityEvent
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseWriter connects to dsn and starts the background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *SecurityEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues an event for insertion, dropping it if the buffer is full.
func (w *ClickHouseWriter) Write(event *SecurityEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("event_id", event.EventID),
		)
	}
}

// Close signals the flush loop to drain remaining events and closes the connection.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
	_ = w.conn.Close()
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*SecurityEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

// clickHouseRow is the column layout of package_guard_events.
type clickHouseRow struct {
	EventID         string
	Timestamp       time.Time
	SessionID       string
	EventType       string
	Tool            string
	Ecosystem       string
	Package         string
	AlertNames      []string
	AlertSeverities []string
	AlertCategories []string
	Reason          string
	ActionTaken     string
	CommandDigest   string
}

func toClickHouseRow(e *SecurityEvent) clickHouseRow {
	row := clickHouseRow{
		EventID:         e.EventID,
		Timestamp:       e.Timestamp,
		SessionID:       e.SessionID,
		EventType:       string(e.EventType),
		Tool:            e.Tool,
		Ecosystem:       e.Ecosystem,
		Package:         e.Package,
		AlertNames:      make([]string, len(e.Alerts)),
		AlertSeverities: make([]string, len(e.Alerts)),
		AlertCategories: make([]string, len(e.Alerts)),
		Reason:          e.Reason,
		ActionTaken:     e.ActionTaken,
		CommandDigest:   e.CommandDigest,
	}
	for i, a := range e.Alerts {
		row.AlertNames[i] = a.Name
		row.AlertSeverities[i] = a.Severity
		row.AlertCategories[i] = a.Category
	}
	return row
}

func (w *ClickHouseWriter) flush(events []*SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO package_guard_events (
			event_id, timestamp, session_id, event_type, tool, ecosystem, package,
			alert_names, alert_severities, alert_categories,
			reason, action_taken, command_digest
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		r := toClickHouseRow(e)
		if err := batch.Append(
			r.EventID,
			r.Timestamp,
			r.SessionID,
			r.EventType,
			r.Tool,
			r.Ecosystem,
			r.Package,
			r.AlertNames,
			r.AlertSeverities,
			r.AlertCategories,
			r.Reason,
			r.ActionTaken,
			r.CommandDigest,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("event_id", e.EventID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}
