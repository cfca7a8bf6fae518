package main

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-pipeline/internal/fetcher"
	"github.com/sells-group/esg-pipeline/internal/ingest"
	"github.com/sells-group/esg-pipeline/internal/resilience"
	"github.com/sells-group/esg-pipeline/internal/runlog"
	"github.com/sells-group/esg-pipeline/internal/store"
	"github.com/sells-group/esg-pipeline/internal/transform"
	"github.com/sells-group/esg-pipeline/internal/trigger"
)

// pipelineEnv holds the store, blob source, continuation trigger and
// orchestrator shared by the ingest, serve and worker commands.
type pipelineEnv struct {
	Store        store.Store
	Source       fetcher.BlobSource
	Trigger      trigger.Trigger
	Queue        *trigger.Queue // nil when continuations go over NATS
	NATS         *nats.Conn     // nil without nats.url
	Runs         *runlog.Log    // nil unless the store is Postgres
	Orchestrator *ingest.Orchestrator
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.NATS != nil {
		if err := pe.NATS.Drain(); err != nil {
			pe.NATS.Close()
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens and migrates the store, and
// wires the orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	if env.Runs, err = openRunLog(ctx, st); err != nil {
		env.Close()
		return nil, err
	}

	src, err := initSource()
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Source = src

	if cfg.NATS.URL != "" {
		nc, err := trigger.Connect(cfg.NATS.URL, cfg.NATS.Name)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.NATS = nc
		env.Trigger = trigger.NewNATS(nc, cfg.NATS.Subject)
	} else {
		env.Queue = trigger.NewQueue(cfg.Ingest.QueueSize)
		env.Trigger = env.Queue
	}

	env.Orchestrator = newOrchestrator(env.Store, env.Source, env.Trigger)

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("source", cfg.Source.Driver),
		zap.Bool("nats", env.NATS != nil),
		zap.Bool("run_log", env.Runs != nil),
	)
	return env, nil
}

func newOrchestrator(st store.Store, src fetcher.BlobSource, tr trigger.Trigger) *ingest.Orchestrator {
	validator := transform.NewValidator()
	if cfg.Ingest.RequireEntityName {
		validator = transform.NewValidator(transform.NamedRequired...)
	}
	return &ingest.Orchestrator{
		Source:     src,
		Writer:     ingest.NewWriter(st, cfg.Ingest.ChunkSize),
		Trigger:    tr,
		Validator:  validator,
		WindowSize: cfg.Ingest.WindowSize,
		Budget: ingest.Budget{
			MaxWindows: cfg.Ingest.MaxWindows,
			TimeLimit:  cfg.Ingest.TimeLimit,
		},
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath, cfg.Store.Table)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Table, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSource() (fetcher.BlobSource, error) {
	src := cfg.Source
	switch src.Driver {
	case "file":
		return fetcher.NewFileSource(src.Root), nil
	case "http":
		return fetcher.NewHTTPSource(fetcher.HTTPOptions{
			BaseURL:           src.BaseURL,
			Timeout:           src.Timeout,
			RequestsPerSecond: src.RequestsPerSecond,
			Retry:             resilience.FromRetryConfig(src.RetryAttempts, src.RetryBackoffMs, src.RetryMaxBackoffMs),
		}), nil
	case "ftp":
		return fetcher.NewFTPSource(fetcher.FTPOptions{
			Addr:     src.FTPAddr,
			User:     src.FTPUser,
			Password: src.FTPPassword,
			Timeout:  src.Timeout,
		}), nil
	default:
		return nil, eris.Errorf("unsupported source driver: %s", src.Driver)
	}
}
