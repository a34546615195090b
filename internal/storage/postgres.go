package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// EventStore abstracts the DB insert for testability.
type EventStore interface {
	InsertEvent(ctx context.Context, row *eventRow) error
}

type eventRow struct {
	EventID       string
	Timestamp     time.Time
	SessionID     string
	EventType     string
	Tool          string
	Ecosystem     string
	Package       string
	AlertsJSON    string // JSONB
	Reason        string
	ActionTaken   string
	CommandDigest string
}

// sqlEventStore is the real implementation using *sql.DB.
type sqlEventStore struct {
	db *sql.DB
}

func (s *sqlEventStore) InsertEvent(ctx context.Context, r *eventRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO package_guard_events (
			event_id, created_at, session_id, event_type, tool, ecosystem,
			package, alerts, reason, action_taken, command_digest
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`,
		r.EventID, r.Timestamp, r.SessionID, r.EventType, r.Tool, r.Ecosystem,
		r.Package, r.AlertsJSON, r.Reason, r.ActionTaken, r.CommandDigest,
	)
	return err
}

// PostgresWriterConfig configures the PostgresWriter.
type PostgresWriterConfig struct {
	DB      *sql.DB
	Timeout time.Duration
	Logger  *zap.Logger
}

// PostgresWriter inserts each event into the package_guard_events table.
// The insert is bounded by Timeout and failures are logged, never returned.
type PostgresWriter struct {
	store   EventStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewPostgresWriter creates a new PostgresWriter.
func NewPostgresWriter(cfg PostgresWriterConfig) *PostgresWriter {
	return newPostgresWriterWithStore(&sqlEventStore{db: cfg.DB}, cfg.Timeout, cfg.Logger)
}

// newPostgresWriterWithStore creates a writer with a custom store (for testing).
func newPostgresWriterWithStore(store EventStore, timeout time.Duration, logger *zap.Logger) *PostgresWriter {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresWriter{store: store, timeout: timeout, logger: logger}
}

func (w *PostgresWriter) Write(event *SecurityEvent) {
	row, err := toEventRow(event)
	if err != nil {
		w.logger.Warn("postgres event encode failed", zap.String("event_id", event.EventID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.store.InsertEvent(ctx, row); err != nil {
		w.logger.Warn("postgres event insert failed, dropping event",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}

func (w *PostgresWriter) Close() {}

func toEventRow(e *SecurityEvent) (*eventRow, error) {
	alerts := e.Alerts
	if alerts == nil {
		alerts = []Alert{}
	}
	alertsJSON, err := json.Marshal(alerts)
	if err != nil {
		return nil, fmt.Errorf("marshal alerts: %w", err)
	}
	return &eventRow{
		EventID:       e.EventID,
		Timestamp:     e.Timestamp,
		SessionID:     e.SessionID,
		EventType:     string(e.EventType),
		Tool:          e.Tool,
		Ecosystem:     e.Ecosystem,
		Package:       e.Package,
		AlertsJSON:    string(alertsJSON),
		Reason:        e.Reason,
		ActionTaken:   e.ActionTaken,
		CommandDigest: e.CommandDigest,
	}, nil
}
