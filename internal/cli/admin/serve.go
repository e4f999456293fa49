package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/unirank/internal/api/handlers"
	"github.com/cloo-solutions/unirank/internal/database"
	"github.com/cloo-solutions/unirank/internal/jobs"
	"github.com/cloo-solutions/unirank/internal/server"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the unirank answering API on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().String("index", "", "Vector index to answer from (overrides UNIRANK_INDEX_NAME)")
	cmd.Flags().String("prompt-version", "", "Prompt template version (overrides UNIRANK_PROMPT_VERSION)")
	cmd.Flags().Int("max-rank", 0, "Only retrieve universities ranked at or above this position (0 = no cut-off)")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")
	cmd.Flags().String("migrations", database.DefaultMigrationsSource, "Migration source URL")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, cmd.Flags())
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		source, _ := cmd.Flags().GetString("migrations")
		if err := a.migrate(source); err != nil {
			return err
		}
	}

	if err := a.verifyIndex(ctx); err != nil {
		return fmt.Errorf("index check failed (run `unirankd index create`): %w", err)
	}

	p, err := a.pipeline()
	if err != nil {
		return err
	}

	// Runs before the deferred a.Close, so no tick outlives the pool.
	background := newBackgroundJobs(ctx)
	defer background.stop()

	if a.cfg.IngestInterval > 0 && (a.cfg.HasSourceDir() || a.cfg.HasS3()) {
		ingestion, err := a.ingestion(ctx)
		if err != nil {
			return err
		}
		background.start(jobs.NewWorker(jobs.NewIngestionProcessor(ingestion, logger), a.cfg.IngestInterval, logger))
		logger.Info("ingestion worker started", slog.Duration("interval", a.cfg.IngestInterval))
	}

	router := server.NewRouter(server.RouterConfig{
		AnswerHandler:  handlers.NewAnswerHandler(p.orchestrator, p.sessions, logger),
		SessionHandler: handlers.NewSessionHandler(p.sessions, p.catalog.Help, p.catalog.Reset),
		HealthCheck:    a.pool.Ping,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.String("port", a.cfg.Port),
			slog.String("index", a.cfg.IndexName),
			slog.String("prompt_version", p.orchestrator.PromptVersion()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("shutting down")
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}

	background.stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// backgroundJobs owns the workers that run alongside the server.
type backgroundJobs struct {
	ctx     context.Context
	cancel  context.CancelFunc
	workers []*jobs.Worker
}

func newBackgroundJobs(ctx context.Context) *backgroundJobs {
	ctx, cancel := context.WithCancel(ctx)
	return &backgroundJobs{ctx: ctx, cancel: cancel}
}

func (b *backgroundJobs) start(w *jobs.Worker) {
	b.workers = append(b.workers, w)
	go w.Start(b.ctx)
}

// stop cancels every worker and waits for in-progress ticks to return.
// It is safe to call more than once.
func (b *backgroundJobs) stop() {
	b.cancel()
	for _, w := range b.workers {
		w.Stop()
	}
}
