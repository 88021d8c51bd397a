package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/citadel-rag/citadel/internal/api"
	"github.com/citadel-rag/citadel/internal/chunker"
	"github.com/citadel-rag/citadel/internal/config"
	"github.com/citadel-rag/citadel/internal/embed"
	"github.com/citadel-rag/citadel/internal/llm"
	"github.com/citadel-rag/citadel/internal/pipeline"
	"github.com/citadel-rag/citadel/internal/store"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	st := store.NewPostgres(pool, cfg.EmbedDimension, log)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Error("schema setup failed", "error", err)
		os.Exit(1)
	}

	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Error("invalid chunking configuration", "error", err)
		os.Exit(1)
	}

	embedder := embed.NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.EmbedModel, cfg.EmbedDimension, log)
	model := llm.NewOllamaModel(cfg.OllamaBaseURL, cfg.GenerateModel)
	generator := llm.NewGenerator(model, cfg.GenerateTimeout, log)

	orch := pipeline.NewOrchestrator(st, embedder, generator, splitter, cfg.WorkerCount, cfg.MaxQueueSize, log)

	srv := api.NewServer(orch, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		pool.Close()
	}()

	log.Info("starting citadel", "port", cfg.Port, "embed_model", cfg.EmbedModel, "generate_model", cfg.GenerateModel)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
