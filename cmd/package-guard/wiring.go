package main

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/triage-ai/palisade/package_guard/internal/config"
	"github.com/triage-ai/palisade/package_guard/internal/engine"
	"github.com/triage-ai/palisade/package_guard/internal/reputation"
	"github.com/triage-ai/palisade/package_guard/internal/storage"
	"go.uber.org/zap"
)

const (
	postgresPingTimeout   = 2 * time.Second
	postgresInsertTimeout = 2 * time.Second
)

// buildWriter assembles the audit sinks: the local file tree always, plus
// ClickHouse and Postgres when their DSNs are set. Remote sinks connect on the
// first event, so commands that are never audited never dial out, and sinks
// that cannot connect are skipped. The returned cleanup closes everything.
func buildWriter(cfg *config.Config, logger *zap.Logger) (storage.EventWriter, func()) {
	writers := []storage.EventWriter{
		storage.NewFileWriter(storage.ResolveRoot(cfg.AuditDir), logger),
	}
	var db *sql.DB

	if dsn := cfg.Sinks.ClickHouseDSN; dsn != "" {
		writers = append(writers, storage.NewLazyWriter(func() storage.EventWriter {
			chWriter, err := storage.NewClickHouseWriter(dsn, logger)
			if err != nil {
				logger.Warn("clickhouse connection failed, skipping sink", zap.Error(err))
				return nil
			}
			logger.Debug("clickhouse writer connected")
			return chWriter
		}))
	}

	if dsn := cfg.Sinks.PostgresDSN; dsn != "" {
		writers = append(writers, storage.NewLazyWriter(func() storage.EventWriter {
			var err error
			db, err = openPostgres(dsn)
			if err != nil {
				logger.Warn("postgres connection failed, skipping sink", zap.Error(err))
				return nil
			}
			logger.Debug("postgres writer connected")
			return storage.NewPostgresWriter(storage.PostgresWriterConfig{
				DB:      db,
				Timeout: postgresInsertTimeout,
				Logger:  logger,
			})
		}))
	}

	w := storage.NewMultiWriter(writers...)
	return w, func() {
		w.Close()
		if db != nil {
			_ = db.Close()
		}
	}
}

func openPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), postgresPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func buildGate(cfg *config.Config, source reputation.Source, writer storage.EventWriter, logger *zap.Logger) *engine.Gate {
	return engine.NewGate(engine.GateConfig{
		Source:        source,
		Writer:        writer,
		ShellTools:    cfg.ShellTools,
		ReadTimeout:   cfg.Hook.StdinTimeout,
		MaxInputBytes: cfg.Hook.MaxInputBytes,
		Logger:        logger,
	})
}

func buildSource(cfg *config.Config, logger *zap.Logger) *reputation.SocketClient {
	return reputation.NewSocketClient(reputation.SocketConfig{
		Binary:         cfg.Reputation.Binary,
		Timeout:        cfg.Reputation.Timeout,
		MaxOutputBytes: cfg.Reputation.MaxOutputBytes,
		Logger:         logger,
	})
}
