package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/export"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/family"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/pipeline"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/pkg/config"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/pkg/push"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger

	HTTPClient *http.Client
	Family     *family.Family
	Metrics    *pipeline.Metrics
	Pipeline   *pipeline.Service
	Storage    storage.Storage
	Pusher     *push.Service

	// Set only when POSTGRES_ENABLED is true
	Pool *pgxpool.Pool
	Sink *export.PostgresSink
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		HTTPClient: &http.Client{
			Timeout: cfg.Run.FetchTimeout,
		},
	}

	if err := deps.initPipeline(); err != nil {
		return nil, fmt.Errorf("failed to init pipeline: %w", err)
	}

	if err := deps.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	if cfg.Database.Enabled {
		if err := deps.initDatabase(ctx); err != nil {
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
	}

	deps.Pusher = push.NewService(cfg.Observability.PushgatewayURL, cfg.Observability.MetricsJob, logger)

	logger.Info("all dependencies initialized successfully",
		slog.String("family", deps.Family.Name),
		slog.String("storage", string(cfg.Storage.Type)),
		slog.Bool("postgres", deps.Sink != nil),
		slog.Bool("pushgateway", deps.Pusher.Enabled()),
	)
	return deps, nil
}

// initPipeline loads the document family and compiles the pipeline
func (d *Dependencies) initPipeline() error {
	var (
		fam *family.Family
		err error
	)
	if d.Config.Run.FamilyFile != "" {
		fam, err = family.LoadFile(d.Config.Run.FamilyFile)
	} else {
		fam, err = family.Load(d.Config.Run.Family)
	}
	if err != nil {
		return err
	}
	d.Family = fam

	d.Metrics = pipeline.NewMetrics()
	d.Pipeline = pipeline.NewService(fam, d.Logger).
		WithWorkers(d.Config.Run.Workers).
		WithTolerance(d.Config.Run.Tolerance).
		WithMetrics(d.Metrics)
	return nil
}

// initStorage initializes artifact storage
func (d *Dependencies) initStorage(ctx context.Context) error {
	store, err := storage.New(ctx, &d.Config.Storage)
	if err != nil {
		return err
	}
	d.Storage = store
	return nil
}

// initDatabase connects the pool the Postgres sink copies into
func (d *Dependencies) initDatabase(ctx context.Context) error {
	poolCfg, err := pgxpool.ParseConfig(d.Config.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnLifetime = 5 * time.Minute
	poolCfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	d.Pool = pool
	d.Sink = export.NewPostgresSink(pool, d.Logger)
	d.Logger.Info("database connected")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Pool != nil {
		d.Pool.Close()
	}
	d.Logger.Info("cleanup completed")
}
