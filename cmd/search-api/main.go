// cmd/search-api/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/36JungKwan/place-search-engine-RAG/internal/ai/compose"
	"github.com/36JungKwan/place-search-engine-RAG/internal/ai/embed"
	"github.com/36JungKwan/place-search-engine-RAG/internal/ai/extract"
	commonaws "github.com/36JungKwan/place-search-engine-RAG/internal/common/aws"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/config"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/database"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/observability"
	"github.com/36JungKwan/place-search-engine-RAG/internal/httpapi"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/cascade"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/pipeline"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/retriever"
	"github.com/36JungKwan/place-search-engine-RAG/internal/session"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting search api...",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rds *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rds, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rds.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rds.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Bedrock ---
	bedrock, err := commonaws.NewBedrockClient(ctx, cfg.Bedrock.Region)
	if err != nil {
		zapLog.Fatal("bedrock client failed", zap.Error(err))
	}
	zapLog.Info("Bedrock client initialized", zap.String("region", cfg.Bedrock.Region))

	// --- Assemble the pipeline ---
	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		zapLog.Fatal("invalid timezone", zap.Error(err), zap.String("timezone", cfg.App.Timezone))
	}
	localNow := func() time.Time { return time.Now().In(loc) }

	temperature := float32(cfg.Bedrock.Temperature)
	embedder := embed.New(bedrock, cfg.Bedrock.EmbedModel, log)
	extractor := extract.New(bedrock, cfg.Bedrock.IntentModel, temperature, log, extract.WithClock(localNow))
	composer := compose.New(bedrock, cfg.Bedrock.ChatModel, temperature, log)

	hybrid := retriever.New(pg.DB, embedder, log, retriever.WithClock(localNow))
	relaxation := cascade.New(hybrid, log)
	history := session.NewStore(rds.Client, cfg.History, log)
	search := pipeline.New(extractor, relaxation, composer, history, log)

	handler := httpapi.NewHandler(search, pg, rds, log)
	server := httpapi.NewServer(cfg.Server, handler, log)

	// pprof on a side port, kept off the public listener.
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			zapLog.Warn("pprof listener stopped", zap.Error(err))
		}
	}()

	go func() {
		if err := server.Run(); err != nil {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("shutdown did not complete cleanly", zap.Error(err))
	}
	zapLog.Info("Search api stopped")
}
