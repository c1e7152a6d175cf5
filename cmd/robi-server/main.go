// Command robi-server runs the Robi companion robot backend: the WebSocket
// session endpoint, the REST API, and the storage and LLM plumbing behind
// them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/robilabs/robi/internal/config"
	"github.com/robilabs/robi/internal/history"
	"github.com/robilabs/robi/internal/llm"
	"github.com/robilabs/robi/internal/media"
	"github.com/robilabs/robi/internal/server"
	"github.com/robilabs/robi/internal/session"
	"github.com/robilabs/robi/internal/storage"
	"github.com/robilabs/robi/internal/storage/postgres"
	"github.com/robilabs/robi/internal/storage/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "robi-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()
	logger.Info("storage ready", zap.String("engine", cfg.Storage.Engine))

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build llm provider: %w", err)
	}
	breaker := llm.NewBreakerProvider(provider, llm.BreakerConfig{})
	logger.Info("llm provider ready", zap.String("provider", cfg.LLM.Provider))

	mediaStore, err := media.NewStore(cfg.Media.Dir, logger)
	if err != nil {
		return fmt.Errorf("failed to prepare media storage: %w", err)
	}

	hist := history.NewService(store, breaker,
		cfg.Conversation.CompactionThreshold, cfg.Conversation.KeepRecent, logger)

	tasks := session.NewTaskRunner(logger)
	engine := session.NewEngine(cfg, store, breaker, hist, mediaStore, tasks, logger)

	srv := server.New(cfg, store, engine, mediaStore, tasks, breaker, logger)
	return srv.Run(ctx)
}

func openStore(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN, logger)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.New(filepath.Join(cfg.Storage.DataPath, "robi.db"))
	}
}

func buildProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "ollama":
		return llm.NewOllamaProvider(llm.OllamaConfig{
			BaseURL: cfg.LLM.OllamaURL,
			Model:   cfg.LLM.OllamaModel,
		}), nil
	default:
		return llm.NewGeminiProvider(ctx, llm.GeminiConfig{
			APIKey: cfg.LLM.GeminiAPIKey,
			Model:  cfg.LLM.GeminiModel,
		})
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
