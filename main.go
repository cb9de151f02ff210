package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	configFile    string
	debugMode     bool
	emailFlag     string
	passwordFlag  string
	serverAddress string
)

var rootCmd = &cobra.Command{
	Use:   "news-digest",
	Short: "Personalized news digests delivered by email",
	Long:  `Fetches news for each user's preferred categories, summarizes it with an LLM, caches it, and emails a short digest.`,
}

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Deliver one digest to a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" || passwordFlag == "" {
			return errors.New("--email and --password are required")
		}

		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		result := app.orchestrator.DeliverNews(cmd.Context(), emailFlag, passwordFlag)
		fmt.Printf("%s: %s\n", result.Status, result.Message)
		if result.Status != StatusSuccess {
			return fmt.Errorf("delivery failed: %s", result.Message)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve delivery requests over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		address := serverAddress
		if address == "" {
			address = app.config.Settings.Server.Address
		}

		server := NewServer(NewNewsHandler(app.orchestrator, app.logger), app.registry, app.logger)
		go func() {
			app.logger.Info("Starting server", String("address", address))
			if err := server.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.logger.Error("Server failed", Err(err))
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		app.logger.Info("Shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	},
}

// app is the wired service
type app struct {
	config       *Config
	logger       Logger
	registry     *prometheus.Registry
	orchestrator *FreshnessOrchestrator
	closers      []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func newApp(ctx context.Context) (*app, error) {
	level := "info"
	if debugMode {
		level = "debug"
	}
	logger, err := NewLogger(level)
	if err != nil {
		return nil, err
	}

	cfg, err := NewConfig(configFile, logger)
	if err != nil {
		return nil, err
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if !debugMode && cfg.Settings.LogLevel != "" && cfg.Settings.LogLevel != level {
		if logger, err = NewLogger(cfg.Settings.LogLevel); err != nil {
			return nil, err
		}
	}

	a := &app{config: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(a.registry)
	settings := cfg.Settings

	store, err := a.newCacheStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	summarizer, err := newSummarizer(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	pool, err := NewPostgresPool(ctx, cfg.Secrets.DatabaseURL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	mailer, err := NewSendGridMailer(cfg.Secrets.SendGridKey, settings.Delivery.FromEmail, settings.Delivery.FromName, settings.Delivery.Subject)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := NewNewsFetcher(cfg.Secrets.NewsAPIKey, settings.NewsAPI.Endpoint, settings.NewsAPI.ArticlesPerCategory, settings.NewsAPI.RequestsPerSecond)
	limiter := NewRateLimiter(settings.RateLimit.PerMinute, settings.RateLimit.PerDay)
	engine := NewNewsEngine(fetcher, summarizer, limiter, logger, metrics)
	cache := NewRecencyCache(store, settings.Cache.MaxArticles)

	a.orchestrator = NewFreshnessOrchestrator(
		NewPostgresProfileStore(pool),
		cache,
		engine,
		mailer,
		OrchestratorConfig{
			MaxAge:      settings.Cache.MaxAge,
			Quota:       settings.Delivery.Quota,
			CallTimeout: settings.Timeouts.Call,
		},
		logger,
		metrics,
	)

	logger.Info("Service configured",
		String("cache_backend", settings.Cache.Backend),
		Int("cache_capacity", cache.Capacity()),
		String("summarizer", settings.Summarizer.Provider),
		Int("quota", settings.Delivery.Quota),
		Duration("max_age", settings.Cache.MaxAge),
	)
	return a, nil
}

func (a *app) newCacheStore(ctx context.Context) (CacheStore, error) {
	if a.config.Settings.Cache.Backend != "redis" {
		return NewMemoryStore(), nil
	}
	client, err := NewRedisClient(ctx, a.config.Secrets.RedisAddress, a.config.Secrets.RedisPassword, a.config.Settings.Cache.RedisDB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return NewRedisStore(client), nil
}

func newSummarizer(ctx context.Context, cfg *Config) (Summarizer, error) {
	s := cfg.Settings.Summarizer
	if s.Provider == "anthropic" {
		return NewClaudeSummarizer(cfg.Secrets.AnthropicKey, s.MaxTokens, s.Temperature)
	}
	return NewGeminiSummarizer(ctx, cfg.Secrets.GeminiAPIKey, s.Model, s.MaxTokens, s.Temperature)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to settings file (default .news-digest/settings.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	deliverCmd.Flags().StringVar(&emailFlag, "email", "", "User email")
	deliverCmd.Flags().StringVar(&passwordFlag, "password", "", "User password")
	serveCmd.Flags().StringVar(&serverAddress, "addr", "", "Listen address (default from settings)")

	rootCmd.AddCommand(deliverCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
