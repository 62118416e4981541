// Package app is the composition root. Bootstrap stays orchestration
// only; behavior lives in the packages it wires together.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"alertrelay.io/relay/internal/api/handlers"
	"alertrelay.io/relay/internal/api/middleware"
	"alertrelay.io/relay/internal/channel"
	"alertrelay.io/relay/internal/config"
	"alertrelay.io/relay/internal/dispatch"
	"alertrelay.io/relay/internal/infrastructure"
	"alertrelay.io/relay/internal/jobs"
	"alertrelay.io/relay/internal/lifecycle"
	"alertrelay.io/relay/internal/pkg/worker"
	"alertrelay.io/relay/internal/repository"
)

// Application holds the composed application dependencies.
type Application struct {
	Config *config.Config
	Router *gin.Engine
	DB     *infrastructure.DatabaseClients
	Pools  *worker.Pools
}

// Bootstrap initializes all dependencies with manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:   cfg.Worker.GeneralPoolSize,
		TransportPoolSize: cfg.Worker.TransportPoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	store := repository.NewPostgres(db.Pool, cfg.Database.QueryTimeout)
	engine := lifecycle.NewEngine(store)
	dispatcher := dispatch.New(
		store,
		engine,
		channel.NewSMTP(cfg.SMTP),
		channel.NewChatClient(cfg.Chat),
		pools,
		cfg.Dispatch,
		cfg.Security.ActionTokenTTL,
	)

	workers := river.NewWorkers()
	river.AddWorker(workers, jobs.NewEmailDispatchWorker(dispatcher))
	river.AddWorker(workers, jobs.NewChatDispatchWorker(dispatcher))
	river.AddWorker(workers, jobs.NewAuditCleanupWorker(store, cfg.Dispatch.AuditRetention))

	if err := db.InitRiverClient(workers, cfg.River); err != nil {
		pools.Shutdown()
		db.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}
	registerPeriodicJobs(db, cfg.Dispatch.Interval)

	jwtCfg := middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSigningKey),
		Issuer:     cfg.Security.JWTIssuer,
		ExpiresIn:  cfg.Security.JWTTTL,
	}
	server := handlers.NewServer(handlers.ServerDeps{
		Store:             store,
		Engine:            engine,
		JWTCfg:            jwtCfg,
		AdminUser:         cfg.Security.AdminUser,
		AdminPasswordHash: cfg.Security.AdminPasswordHash,
		Ready:             func() error { return db.Pool.Ping(context.Background()) },
	})

	return &Application{
		Config: cfg,
		Router: newRouter(server, jwtCfg.SigningKey),
		DB:     db,
		Pools:  pools,
	}, nil
}

// registerPeriodicJobs schedules both dispatch cycles at the configured
// interval and the audit cleanup once a day. RunOnStart drains anything
// that came due while the process was down.
func registerPeriodicJobs(db *infrastructure.DatabaseClients, interval time.Duration) {
	if db.RiverClient == nil {
		return
	}
	db.RiverClient.PeriodicJobs().Add(
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return jobs.EmailDispatchArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	)
	db.RiverClient.PeriodicJobs().Add(
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return jobs.ChatDispatchArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	)
	db.RiverClient.PeriodicJobs().Add(
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return jobs.AuditCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	)
}
