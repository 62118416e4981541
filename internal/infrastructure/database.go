// Package infrastructure provides database and job queue setup. River
// shares the application's pgxpool so queue inserts and row updates can
// join the same transactions.
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"alertrelay.io/relay/internal/config"
	"alertrelay.io/relay/internal/pkg/logger"
)

// DatabaseClients bundles the shared connection pool and the River
// client built on top of it.
type DatabaseClients struct {
	Pool        *pgxpool.Pool
	RiverClient *river.Client[pgx.Tx]
}

// NewDatabaseClients creates the shared connection pool.
func NewDatabaseClients(ctx context.Context, cfg config.DatabaseConfig) (*DatabaseClients, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	// Dueness is a calendar comparison in SQL, so every session runs UTC.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET timezone = 'UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database connection pool created",
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
	)

	return &DatabaseClients{Pool: pool}, nil
}

// SchemaDDL creates the relay tables. Idempotent; development setups run
// it on startup, production applies managed migrations instead.
// Integration tests use it to provision throwaway schemas.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS notification_types (
	id          text PRIMARY KEY,
	name        text NOT NULL DEFAULT '',
	recipients  text NOT NULL DEFAULT '',
	subject     text NOT NULL DEFAULT '',
	body        text NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS notifications (
	id               text PRIMARY KEY,
	source_id        text NOT NULL DEFAULT '',
	alert_id         text NOT NULL DEFAULT '',
	type_id          text NOT NULL DEFAULT '',
	subject          text NOT NULL DEFAULT '',
	body             text NOT NULL DEFAULT '',
	channel          text NOT NULL DEFAULT 'email',
	recipients       text NOT NULL DEFAULT '',
	state            text NOT NULL DEFAULT 'pending',
	scheduled_for    timestamptz,
	action_token     text NOT NULL DEFAULT '',
	token_expires_at timestamptz,
	sent_at          timestamptz,
	received_at      timestamptz,
	resolved_at      timestamptz,
	cancelled_at     timestamptz,
	created_at       timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS notifications_due_idx
	ON notifications (channel, scheduled_for) WHERE state = 'pending';
CREATE INDEX IF NOT EXISTS notifications_alert_idx ON notifications (alert_id);
CREATE INDEX IF NOT EXISTS notifications_source_idx ON notifications (source_id);

CREATE TABLE IF NOT EXISTS notification_audit (
	id              text PRIMARY KEY,
	notification_id text NOT NULL,
	action          text NOT NULL,
	detail          text NOT NULL DEFAULT '',
	created_at      timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS notification_audit_notification_idx
	ON notification_audit (notification_id);
CREATE INDEX IF NOT EXISTS notification_audit_created_idx
	ON notification_audit (created_at);
`

// AutoMigrate creates the relay schema and the River queue tables.
func (c *DatabaseClients) AutoMigrate(ctx context.Context) error {
	logger.Info("running schema migration")
	if _, err := c.Pool.Exec(ctx, SchemaDDL); err != nil {
		return fmt.Errorf("create relay schema: %w", err)
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(c.Pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	if len(res.Versions) > 0 {
		logger.Info("river migration completed", zap.Int("versions_applied", len(res.Versions)))
	}
	return nil
}

// InitRiverClient creates a River client over the shared pool with the
// registered workers.
func (c *DatabaseClients) InitRiverClient(workers *river.Workers, cfg config.RiverConfig) error {
	riverClient, err := river.NewClient(riverpgxv5.New(c.Pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers:                     workers,
		CompletedJobRetentionPeriod: cfg.CompletedJobRetentionPeriod,
	})
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}
	c.RiverClient = riverClient
	logger.Info("river client initialized", zap.Int("max_workers", cfg.MaxWorkers))
	return nil
}

// Close closes the connection pool.
func (c *DatabaseClients) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}
