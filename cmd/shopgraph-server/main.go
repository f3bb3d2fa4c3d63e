package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/systemshift/shopgraph/internal/server/api"
	"github.com/systemshift/shopgraph/internal/server/config"
	"github.com/systemshift/shopgraph/internal/server/graph"
	"github.com/systemshift/shopgraph/internal/server/recommend"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Load(logger)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("Invalid log level %q, using info", cfg.LogLevel)
	}

	ctx := context.Background()
	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open graph store: %v", err)
	}
	defer repo.Close(ctx)

	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Fatalf("Failed to ensure indexes: %v", err)
	}

	engine := recommend.New(repo, logger)
	apiServer := api.New(repo, engine, logger)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Mount("/", apiServer.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Starting shopgraph server on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
	logger.Info("Server exited")
}

func openRepository(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (graph.Repository, error) {
	switch cfg.GraphBackend {
	case "sqlite":
		logger.Infof("Using SQLite graph store at %s", cfg.SQLitePath)
		return graph.NewSQLite(ctx, cfg.SQLitePath)
	default:
		logger.Infof("Connecting to Neo4j at %s", cfg.Neo4jURI)
		return graph.New(ctx, graph.Config{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUsername,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		})
	}
}
