package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/reviewai/internal/analysis"
	"github.com/xaenox/reviewai/internal/api"
	"github.com/xaenox/reviewai/internal/auth"
	"github.com/xaenox/reviewai/internal/bot"
	"github.com/xaenox/reviewai/internal/chat"
	"github.com/xaenox/reviewai/internal/scraper"
	"github.com/xaenox/reviewai/internal/storage"
	"github.com/xaenox/reviewai/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	// Initialize logger
	logger, _ := zap.NewProduction()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", *configPath))
	}
	if cfg.Log.Development {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}
		store, err = storage.NewPostgresStorage(ctx, dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	completer := analysis.NewOpenAICompleter(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.BaseURL,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		logger,
	)
	fetcher := scraper.NewFetcher(cfg.Scraper.UserAgent, cfg.Scraper.Timeout, logger)
	pipeline := analysis.NewPipeline(fetcher, analysis.NewAnalyzer(completer, logger), store, logger)
	chatService := chat.NewService(store, pipeline, completer, chat.StreamConfig{
		ChunkSize:  cfg.Stream.ChunkSize,
		ChunkDelay: cfg.Stream.ChunkDelay,
	}, logger)

	resolver := auth.NewResolver(nil, "")
	if cfg.Auth.Configured() {
		cookieName, err := auth.CookieName(cfg.Auth.SupabaseURL)
		if err != nil {
			logger.Fatal("Invalid auth provider URL", zap.Error(err))
		}
		client := auth.NewClient(cfg.Auth.SupabaseURL, cfg.Auth.SupabaseAnonKey, cfg.Auth.Timeout, logger)
		resolver = auth.NewResolver(client, cookieName)
	} else {
		logger.Warn("Auth provider not configured; only anonymous analysis is available")
	}

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(api.Deps{
			Store:          store,
			Pipeline:       pipeline,
			Chat:           chatService,
			Auth:           resolver,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Telegram.Token != "" {
		b, err := bot.New(cfg.Telegram.Token, pipeline, chatService, store, logger)
		if err != nil {
			logger.Fatal("Failed to create bot", zap.Error(err))
		}
		g.Go(func() error { return b.Start(gCtx) })
	}

	if err := g.Wait(); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Shut down cleanly")
}
