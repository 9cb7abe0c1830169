package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ad-monitor/internal/hintcache"
	"ad-monitor/internal/monitor"
	"ad-monitor/internal/pgstore"
	"ad-monitor/internal/platform/config"
	"ad-monitor/internal/platform/logger"
	"ad-monitor/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
)

const (
	shutdownTimeout = 10 * time.Second
	startupTimeout  = 10 * time.Second
)

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	startCtx, cancelStart := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStart()

	var store monitor.Store
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = pgstore.Open(startCtx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMaxIdle)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = pgstore.New(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		store = monitor.NewInMemoryStore()
	}

	var hints monitor.StatusHints
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		rh := hintcache.NewRedisHints(rdb, cfg.StatusHintTTL)
		if err := rh.Ping(startCtx); err != nil {
			log.Warn("redis unavailable, status hints disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			hints = rh
		}
	}

	svc := monitor.NewService(store, monitor.Options{
		OnlineThreshold:     cfg.OnlineThreshold,
		UptimeWindowMinutes: cfg.UptimeWindowMinutes,
		Hints:               hints,
		Logger:              log,
	})
	met := metrics.New()
	h := monitor.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			n, err := svc.OnlineCount(r.Context())
			if err != nil {
				log.Warn("online screen count failed", "error", err)
				return
			}
			met.SetOnlineScreens(n)
		}).ServeHTTP(w, r)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	h.Mount(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"store", storeKind(db),
		"status_hints", hints != nil,
		"online_threshold", cfg.OnlineThreshold.String(),
		"uptime_window_minutes", cfg.UptimeWindowMinutes,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func storeKind(db *sql.DB) string {
	if db != nil {
		return "postgres"
	}
	return "memory"
}
