package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/esg-pipeline/internal/api"
	"github.com/sells-group/esg-pipeline/internal/model"
	"github.com/sells-group/esg-pipeline/internal/trigger"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ESG history API and process continuations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: api.New(env.Store, env, api.Options{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				RequestTimeout: cfg.Server.RequestTimeout,
			}).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		// Graceful shutdown
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		g.Go(func() error {
			return runContinuations(gctx, env)
		})

		return g.Wait()
	},
}

// runContinuations processes continuations from NATS or the in-process queue
// until ctx is cancelled.
func runContinuations(ctx context.Context, env *pipelineEnv) error {
	if env.NATS != nil {
		return trigger.Consume(ctx, env.NATS, cfg.NATS.Subject, cfg.NATS.Queue, continuationHandler(env))
	}
	return env.Queue.Run(ctx, continuationHandler(env))
}

func continuationHandler(env *pipelineEnv) trigger.Handler {
	return func(ctx context.Context, ref model.SourceRef) error {
		rep := env.Run(ctx, ref)
		if rep.StatusCode != http.StatusOK {
			return eris.Errorf("ingest %s: %s", ref, rep.ErrorMessage)
		}
		return nil
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
