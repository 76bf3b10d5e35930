// Package app initializes and holds long-lived application services,
// acting as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/labor-market-etl/internal/clock/system"
	"github.com/JakeFAU/labor-market-etl/internal/config"
	"github.com/JakeFAU/labor-market-etl/internal/enrich"
	"github.com/JakeFAU/labor-market-etl/internal/httpclient"
	"github.com/JakeFAU/labor-market-etl/internal/jobads"
	"github.com/JakeFAU/labor-market-etl/internal/logging"
	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
	"github.com/JakeFAU/labor-market-etl/internal/policy/ratelimit"
	publishermem "github.com/JakeFAU/labor-market-etl/internal/publisher/memory"
	publisherps "github.com/JakeFAU/labor-market-etl/internal/publisher/pubsub"
	"github.com/JakeFAU/labor-market-etl/internal/runner"
	"github.com/JakeFAU/labor-market-etl/internal/scb"
	"github.com/JakeFAU/labor-market-etl/internal/server"
	"github.com/JakeFAU/labor-market-etl/internal/storage/gcs"
	"github.com/JakeFAU/labor-market-etl/internal/storage/local"
	"github.com/JakeFAU/labor-market-etl/internal/storage/postgres"
	"github.com/JakeFAU/labor-market-etl/internal/taxonomy"
	"github.com/JakeFAU/labor-market-etl/internal/transform"
)

// App holds the shared, long-lived services for the pipeline. It is
// initialized once at startup and handed to the commands that need it.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	factStore   *postgres.FactStore
	adStore     *postgres.AdStore
	skillStore  *postgres.SkillStore
	checkpoints *postgres.CheckpointStore

	pubsubClient *pubsub.Client
	gcsClient    *gstorage.Client

	runner *Runner
	server *server.Server
}

// Runner aliases the pipeline runner for callers of the container.
type Runner = runner.Runner

// NewApp creates and initializes the service container. It fails fast
// when any critical service cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Info("initializing pipeline services")

	a := &App{cfg: cfg, logger: logger}

	// The limiter lives inside the HTTP client, so every outbound call
	// to a host shares one token bucket.
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.SCB.RPS, Burst: cfg.SCB.Burst}, nil)
	httpClient := httpclient.New(limiter, httpclient.Config{
		Timeout:   time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		UserAgent: cfg.HTTP.UserAgent,
		Retry: httpclient.RetryPolicy{
			MaxAttempts: cfg.HTTP.MaxRetries,
			BaseDelay:   time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		},
	}, logger)
	clock := system.Clock{}

	blobs, err := a.initBlobStore(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	})
	if err != nil {
		return nil, err
	}
	if a.factStore, err = postgres.NewFactStore(pool, cfg.DB.FactTable); err != nil {
		return nil, err
	}
	if a.adStore, err = postgres.NewAdStore(pool, cfg.DB.AdTable); err != nil {
		return nil, err
	}
	if a.skillStore, err = postgres.NewSkillStore(pool, cfg.DB.SkillTable); err != nil {
		return nil, err
	}
	if a.checkpoints, err = postgres.NewCheckpointStore(pool, ""); err != nil {
		return nil, err
	}

	publisher, err := a.initPublisher(ctx)
	if err != nil {
		return nil, err
	}

	taxonomyClient := taxonomy.NewClient(httpClient, cfg.Taxonomy.BaseURL, logger)
	reconciler, err := taxonomy.NewReconciler(ctx, taxonomyClient, logger)
	if err != nil {
		return nil, fmt.Errorf("build reconciler: %w", err)
	}

	cubeClient := scb.NewClient(httpClient, blobs, clock, scb.Config{
		BaseURL: cfg.SCB.BaseURL,
		Table:   cfg.SCB.Table,
	}, logger)
	dispersionTable := cfg.SCB.DispersionTable
	if dispersionTable == "" {
		dispersionTable = scb.DefaultDispersionTable
	}
	dispersionClient := cubeClient.WithTable(dispersionTable)

	adClient := jobads.NewClient(httpClient, jobads.Config{
		HistoricalURL: cfg.JobAds.HistoricalURL,
		StreamURL:     cfg.JobAds.StreamURL,
	}, logger)

	var skills runner.SkillExtractor
	if cfg.Enrichment.Enabled {
		skills = enrich.NewClient(httpClient, enrich.Config{
			BaseURL:   cfg.Enrichment.BaseURL,
			Threshold: cfg.Enrichment.Threshold,
			BatchSize: cfg.Enrichment.BatchSize,
		}, logger)
	}

	transformer := transform.New(reconciler, transform.Options{
		IncludeGenderAggregate: cfg.Pipeline.IncludeGenderAggregate,
	}, logger)

	a.runner = runner.New(cubeClient, dispersionClient, adClient, skills, transformer, reconciler,
		a.factStore, a.adStore, a.skillStore, a.checkpoints, publisher, clock,
		runner.Config{
			Parallelism:     cfg.Pipeline.Parallelism,
			Topic:           cfg.PubSub.TopicName,
			InitialLookback: time.Duration(cfg.JobAds.LookbackDays) * 24 * time.Hour,
		}, logger)

	a.server = server.NewServer(a.factStore, a.adStore, logger)

	logger.Info("pipeline services initialized")
	return a, nil
}

func (a *App) initBlobStore(ctx context.Context) (pipeline.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "", "none":
		return nil, nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.gcsClient = client
		return gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
	case "local":
		return local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
}

func (a *App) initPublisher(ctx context.Context) (pipeline.Publisher, error) {
	if !a.cfg.PubSub.Enabled {
		return publishermem.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	a.pubsubClient = client
	return publisherps.New(client), nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Runner returns the pipeline runner.
func (a *App) Runner() *Runner {
	return a.runner
}

// Server returns the admin HTTP server.
func (a *App) Server() *server.Server {
	return a.server
}

// Close gracefully shuts down all services in the container.
func (a *App) Close() {
	a.logger.Info("shutting down pipeline services")
	if a.factStore != nil {
		// The stores share one pool; closing once is enough.
		a.factStore.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("close pubsub client", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("close gcs client", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		// Best effort; stderr may already be gone.
		_ = err
	}
}
