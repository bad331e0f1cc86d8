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

	"golang.org/x/sync/errgroup"

	"connect4r/internal/api"
	"connect4r/internal/broadcast"
	"connect4r/internal/config"
	"connect4r/internal/game"
	"connect4r/internal/htmx"
	"connect4r/internal/logger"
	"connect4r/internal/matchmaking"
	"connect4r/internal/metrics"
	"connect4r/internal/ranking"
	"connect4r/internal/repository"
	"connect4r/internal/store"
	"connect4r/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Initialize layers
	hub := broadcast.NewHub(log)
	var (
		kv        store.Store
		publisher broadcast.Publisher = hub
	)
	if cfg.RedisURL != "" {
		rdb, err := store.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		kv = rdb

		relay := broadcast.NewRedisRelay(rdb.Client(), cfg.EventsChannel, hub, log)
		publisher = relay
		g.Go(func() error { return relay.Run(ctx) })
		log.Infow("using redis store", "channel", cfg.EventsChannel)
	} else {
		kv = store.NewMemory(nil)
		log.Warn("REDIS_URL not set, using in-process store")
	}

	var rankings ranking.Recorder = ranking.NopRecorder{}
	if cfg.DatabaseURL != "" {
		rec, err := ranking.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		rankings = rec
	} else {
		log.Info("DATABASE_URL not set, rankings disabled")
	}

	m := metrics.New()
	repo := repository.New(kv)
	matches := matchmaking.NewCoordinator(repo, publisher,
		matchmaking.WithPolling(cfg.PollInterval, cfg.PollAttempts),
		matchmaking.WithMetrics(m),
		matchmaking.WithLogger(log.Named("matchmaking")),
	)
	m.WatchQueue(func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := matches.QueueLength(ctx)
		if err != nil {
			log.Debugw("sample queue length", "error", err)
			return 0
		}
		return float64(n)
	})
	games := game.NewService(repo, publisher, rankings,
		game.WithMetrics(m),
		game.WithLogger(log.Named("game")),
	)

	// Setup routes
	mux := http.NewServeMux()
	api.NewHandler(matches, games, rankings, log.Named("api")).RegisterRoutes(mux)
	ws.NewHandler(games, hub, cfg.AllowedOrigin, log.Named("ws")).RegisterRoutes(mux)
	htmx.NewHandler(games, hub, log.Named("htmx")).RegisterRoutes(mux)
	mux.Handle("GET /metrics", m.Handler())

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.CORSMiddleware(cfg.AllowedOrigin)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Infow("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Errorw("server stopped", "error", err)
		return err
	}
	return nil
}

