// Command screenerd runs the document-screening HTTP service: upload
// intake, the five-stage pipeline, watch-folder ingestion and the
// supervisory timeout sweep.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/docscreen-io/docscreen/internal/async"
	"github.com/docscreen-io/docscreen/internal/common"
	"github.com/docscreen-io/docscreen/internal/export"
	"github.com/docscreen-io/docscreen/internal/ingest"
	"github.com/docscreen-io/docscreen/internal/model"
	"github.com/docscreen-io/docscreen/internal/orchestrator"
	"github.com/docscreen-io/docscreen/internal/repository"
	"github.com/docscreen-io/docscreen/internal/review"
	"github.com/docscreen-io/docscreen/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg.Server.LogFile)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("store ping: %w", err)
	}
	logger.Info("store ready", "driver", cfg.Database.Driver)

	uploads, err := ingest.NewStore(cfg.Upload.Dir, logger)
	if err != nil {
		return err
	}

	orch := orchestrator.New(store, logger)
	orch.SetInputResolver(uploads)

	client := model.NewClient(&http.Client{Timeout: cfg.Pipeline.StageTimeout}, logger)
	runner := model.NewRunner(client, cfg.Models, store, uploads, logger)
	queue := async.NewTaskQueue(runner, orch, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithTaskTimeout(cfg.Pipeline.TaskDeadline),
	)
	orch.SetDispatcher(queue)

	sweeper := orchestrator.NewSweeper(store, orch, cfg.Pipeline.TaskDeadline, cfg.Pipeline.SweepInterval, logger)
	go sweeper.Run(ctx)

	if cfg.Upload.WatchDir != "" {
		if err := startWatchIngest(ctx, cfg.Upload.WatchDir, uploads, orch, logger); err != nil {
			return fmt.Errorf("watch ingest: %w", err)
		}
	}

	reviewSvc := review.NewService(store, logger)
	exportSvc := export.NewService(reviewSvc, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	jobs := server.NewJobHandler(orch, uploads, reviewSvc, exportSvc, cfg.Upload.MaxUploadMiB<<20)
	tasks := server.NewTaskHandler(store, uploads)
	server.SetupRoutes(router, jobs, tasks, store)

	srv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: router}
	go func() {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	return nil
}

// newLogger writes JSON logs to stdout, and additionally to a rotating
// file when LOG_FILE is set.
func newLogger(logFile string) *slog.Logger {
	var w io.Writer = os.Stdout
	if logFile != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // MiB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func openStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (repository.JobStore, error) {
	switch cfg.Database.Driver {
	case "", "memory":
		return repository.NewMemoryStore(), nil
	case "postgres":
		return repository.OpenPostgres(ctx, repository.Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
	case "sqlite":
		return repository.OpenSQLite(ctx, cfg.Database.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Database.Driver)
	}
}

// startWatchIngest copies documents dropped into the watch folder into the
// upload store and submits a job for each.
func startWatchIngest(ctx context.Context, watchDir string, uploads *ingest.Store, orch *orchestrator.Orchestrator, logger *slog.Logger) error {
	evCh, errCh, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{watchDir},
		InitialScan: false,
		Debounce:    500 * time.Millisecond,
	}, logger)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case path, ok := <-evCh:
				if !ok {
					return
				}
				submitWatched(ctx, path, uploads, orch, logger)
			case werr, ok := <-errCh:
				if ok && werr != nil {
					logger.Error("watcher error", "error", werr)
				}
			}
		}
	}()
	logger.Info("watch ingestion active", "dir", watchDir)
	return nil
}

func submitWatched(ctx context.Context, path string, uploads *ingest.Store, orch *orchestrator.Orchestrator, logger *slog.Logger) {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("watched file unreadable", "path", path, "error", err)
		return
	}
	defer f.Close()
	ref, err := uploads.Save(filepath.Base(path), f)
	if err != nil {
		logger.Error("watched file not stored", "path", path, "error", err)
		return
	}
	job, err := orch.CreateJob(ctx, ref)
	if err != nil {
		logger.Error("watched file not submitted", "path", path, "error", err)
		return
	}
	logger.Info("watched file submitted", "path", path, "job_id", job.ID)
}

// requestLogger tags each request with a generated id and logs one line
// per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := uuid.New().String()
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), reqID))
		c.Next()
		logger.Info("http.request",
			"req_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}
