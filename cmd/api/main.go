package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/zhouzirui/finpilot/backend/internal/checkpoint"
	"github.com/zhouzirui/finpilot/backend/internal/config"
	"github.com/zhouzirui/finpilot/backend/internal/engine"
	"github.com/zhouzirui/finpilot/backend/internal/handler"
	"github.com/zhouzirui/finpilot/backend/internal/logging"
	"github.com/zhouzirui/finpilot/backend/internal/model/transaction"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
	"github.com/zhouzirui/finpilot/backend/internal/service/categorize"
	"github.com/zhouzirui/finpilot/backend/internal/service/intent"
	"github.com/zhouzirui/finpilot/backend/internal/service/memory"
	"github.com/zhouzirui/finpilot/backend/internal/service/txsource"
	"github.com/zhouzirui/finpilot/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, using process environment only")
	}

	logLevel := logger.Silent
	if cfg.Store.Debug {
		logLevel = logger.Info
	}
	db, err := store.NewStore(store.Config{
		Driver:   cfg.Store.Driver,
		DSN:      cfg.Store.DSN,
		MaxConns: cfg.Store.MaxConns,
		LogLevel: logLevel,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open database")
	}
	defer db.Close()

	profiles := store.NewProfileRepository(db)
	transactions := store.NewTransactionRepository(db)
	episodes := store.NewEpisodeRepository(db)

	checkpoints := newCheckpointStore(cfg.Checkpoint, db)

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.AI.Provider).Msg("failed to initialize chat model")
	}
	aiService, err := ai.NewService(ctx, chatModel, ai.Config{HistoryLimit: cfg.AI.HistoryLimit})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize AI service")
	}
	log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("AI service initialized")

	prompts := ai.NewPromptManager()
	intentSvc := intent.NewService(aiService, prompts, intent.Config{
		Enabled:      cfg.AI.IntentLLMEnabled,
		HistoryLimit: cfg.AI.HistoryLimit,
	})
	if !intentSvc.Enabled() {
		log.Info().Msg("intent classifier disabled, using keyword fallback")
	}
	categorizer := categorize.NewService(aiService, prompts, categorize.Config{UseModel: cfg.AI.CategorizeEnabled})

	turns, err := engine.NewService(ctx, engine.Dependencies{
		Model:        aiService,
		Prompts:      prompts,
		Profiles:     profiles,
		Transactions: transactions,
		Source:       newTransactionSource(cfg.Spending),
		Categorizer:  categorizer,
		Intent:       intentSvc,
		Memory:       memory.NewService(episodes),
		Checkpoints:  checkpoints,
	}, engine.Config{
		HistoryLimit:      cfg.AI.HistoryLimit,
		FetchTimeout:      cfg.Spending.FetchTimeout,
		FetchMaxAttempts:  cfg.Spending.FetchMaxAttempts,
		CategorizeWorkers: cfg.Spending.CategorizeWorkers,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to compile turn engine")
	}

	router := handler.NewRouter(handler.Options{
		Engine:      turns,
		Profiles:    profiles,
		CORSOrigins: cfg.Server.CORSOrigins,
		Ping:        db.Ping,
	})

	startServer(ctx, cfg.Server, router)
}

func newCheckpointStore(cfg config.CheckpointConfig, db *store.Store) checkpoint.Store {
	switch cfg.Backend {
	case config.CheckpointRedis:
		redisCfg := checkpoint.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL,
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("checkpoints stored in redis")
		return checkpoint.NewRedisStore(checkpoint.NewRedisPool(redisCfg), redisCfg)
	case config.CheckpointMemory:
		log.Warn().Msg("checkpoints kept in memory, sessions are lost on restart")
		return checkpoint.NewMemoryStore()
	default:
		return store.NewCheckpointRepository(db)
	}
}

func newTransactionSource(cfg config.SpendingConfig) transaction.Source {
	if cfg.SourceURL == "" {
		log.Warn().Msg("TX_SOURCE_URL not set, serving sample transactions")
		return txsource.NewStaticSource(nil)
	}
	source, err := txsource.NewHTTPSource(txsource.Config{
		BaseURL: cfg.SourceURL,
		Token:   cfg.SourceToken,
		Client:  &http.Client{Timeout: cfg.FetchTimeout},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure transaction source")
	}
	return source
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("finpilot backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
