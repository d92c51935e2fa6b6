package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harshraj78/legal-check-ai/config"
	"github.com/harshraj78/legal-check-ai/handler"
	"github.com/harshraj78/legal-check-ai/middleware"
	"github.com/harshraj78/legal-check-ai/pkg/logger"
	"github.com/harshraj78/legal-check-ai/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slog.Info("configuration loaded successfully",
		"database", cfg.Database.Driver,
		"storage", cfg.Storage.Backend,
		"engine", cfg.Analysis.Engine,
	)

	if err := run(cfg); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server exited gracefully")
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	db, err := service.OpenDatabase(&cfg.Database)
	if err != nil {
		return err
	}
	store := service.NewContractStore(db)

	// Nothing from a previous process can still be running.
	if _, err := store.FailInterrupted(ctx, "interrupted: server restarted before processing finished"); err != nil {
		return err
	}

	blobs, err := service.NewBlobStore(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	if c, ok := blobs.(io.Closer); ok {
		defer c.Close()
	}

	analyzer, err := service.NewAnalyzer(ctx, &cfg.Analysis)
	if err != nil {
		return fmt.Errorf("failed to initialize analysis engine: %w", err)
	}
	if c, ok := analyzer.(io.Closer); ok {
		defer c.Close()
	}

	pipeline := service.NewPipeline(store, blobs, service.NewDocumentExtractor(), analyzer, cfg.Analysis.Timeout)
	dispatcher := service.NewDispatcher(pipeline.Run, cfg.Dispatcher.Workers, cfg.Dispatcher.QueueSize)
	dispatcher.Start(ctx)

	contractHandler := handler.NewContractHandler(
		store,
		service.NewCachedReader(store, cfg.Cache.StatusSize, cfg.Cache.StatusTTL),
		blobs,
		dispatcher,
		cfg.Upload,
	)
	healthHandler := handler.NewHealthHandler(store, dispatcher)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.MaxMultipartMemory = min(cfg.Upload.MaxBytes, 32<<20)
	handler.Register(router, contractHandler, healthHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			if stopErr := stopDispatcher(dispatcher, cfg.Dispatcher.ShutdownTimeout); stopErr != nil {
				slog.Warn("dispatcher did not drain in time", "error", stopErr)
			}
			return fmt.Errorf("failed to start server: %w", err)
		}
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Uploads are closed now; let queued contracts finish.
	if err := stopDispatcher(dispatcher, cfg.Dispatcher.ShutdownTimeout); err != nil {
		slog.Warn("dispatcher did not drain in time", "error", err)
	}
	return nil
}

// stopDispatcher waits at most timeout for queued contracts, then cancels
// whatever is still running.
func stopDispatcher(d *service.Dispatcher, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return d.Stop(ctx)
}
