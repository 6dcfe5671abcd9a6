package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trogers1052/stocks-daily/internal/api"
	"github.com/trogers1052/stocks-daily/internal/cache"
	"github.com/trogers1052/stocks-daily/internal/config"
	"github.com/trogers1052/stocks-daily/internal/currency"
	"github.com/trogers1052/stocks-daily/internal/database"
	"github.com/trogers1052/stocks-daily/internal/forecast"
	"github.com/trogers1052/stocks-daily/internal/history"
	"github.com/trogers1052/stocks-daily/internal/kafka"
	"github.com/trogers1052/stocks-daily/internal/logger"
	"github.com/trogers1052/stocks-daily/internal/marketdata"
	"github.com/trogers1052/stocks-daily/internal/recorder"
	"github.com/trogers1052/stocks-daily/internal/scheduler"
	"github.com/trogers1052/stocks-daily/internal/session"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	start, _ := cfg.MarketData.Start()

	var fetcher marketdata.Fetcher
	switch cfg.MarketData.Source {
	case "mock":
		fetcher = &marketdata.MockFetcher{}
	default:
		fetcher = marketdata.NewYahooFetcher(cfg.MarketData.BaseURL, cfg.MarketData.Proxy, cfg.MarketData.Timeout)
	}

	var histCache cache.HistoryCache
	var healthChecks []api.Option
	switch cfg.Cache.Backend {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rc.Close()
		histCache = rc
		healthChecks = append(healthChecks, api.WithHealthCheck("redis", rc.Ping))
		log.Info("using redis history cache", zap.String("addr", cfg.Redis.Addr))
	default:
		mc, err := cache.NewMemoryCache(cfg.Cache.Capacity)
		if err != nil {
			return err
		}
		histCache = mc
	}

	loaderOpts := []history.Option{}
	sessionOpts := []session.Option{
		session.WithBounds(forecast.Bounds{MinYears: cfg.Forecast.MinYears, MaxYears: cfg.Forecast.MaxYears}),
	}
	handlerOpts := healthChecks

	if cfg.Database.Enabled() {
		db, err := database.New(cfg.Database.ConnectionString())
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
			return err
		}
		log.Info("database connection established", zap.String("host", cfg.Database.Host))

		loaderOpts = append(loaderOpts, history.WithStore(db))
		sessionOpts = append(sessionOpts, session.WithRunStore(db))
		handlerOpts = append(handlerOpts, api.WithRuns(db), api.WithHealthCheck("postgres", db.Health))
	}

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Recorder.SQLitePath != "" {
		sqliteRec, err := recorder.NewSQLiteRecorder(cfg.Recorder.SQLitePath, log)
		if err != nil {
			log.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		} else {
			rec = sqliteRec
		}
	}
	defer rec.Close()
	sessionOpts = append(sessionOpts, session.WithRecorder(rec))
	handlerOpts = append(handlerOpts, api.WithRecorder(rec))

	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		loaderOpts = append(loaderOpts, history.WithPublisher(producer))
		sessionOpts = append(sessionOpts, session.WithPublisher(producer))
		log.Info("kafka producer enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	loader := history.NewLoader(fetcher, histCache, start, cfg.MarketData.Tickers, log, loaderOpts...)
	engine := forecast.NewEngine(forecast.DefaultModelConfig(), log)
	conv := currency.NewClient(cfg.Currency.BaseURL, cfg.Currency.APIKey, cfg.Currency.Timeout, cfg.Currency.ListTTL, log)
	store := session.NewStore(cfg.Session.TTL)
	sessions := session.NewManager(store, loader, engine, conv, log, sessionOpts...)

	if producer != nil {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, loader, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	sched := scheduler.NewScheduler(ctx, loader, store, cfg.Scheduler.Prewarm, log)
	if err := sched.RegisterAll(cfg.Scheduler.RefreshCron, cfg.Scheduler.SweepCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if cfg.Scheduler.Prewarm {
		go func() {
			n := loader.Prewarm(ctx)
			log.Info("history cache prewarmed", zap.Int("loaded", n))
		}()
	}

	handler := api.NewHandler(loader, sessions, conv, log, handlerOpts...)
	router := api.SetupRoutes(handler)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           corsMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
