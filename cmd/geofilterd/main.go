package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/config"
	"github.com/mohammed-shakir/geofilter-editor/internal/core/health"
	"github.com/mohammed-shakir/geofilter-editor/internal/core/observability"
	"github.com/mohammed-shakir/geofilter-editor/internal/core/router"
	"github.com/mohammed-shakir/geofilter-editor/internal/core/server"
	h3coverage "github.com/mohammed-shakir/geofilter-editor/internal/coverage/h3"
	"github.com/mohammed-shakir/geofilter-editor/internal/logger"
	"github.com/mohammed-shakir/geofilter-editor/internal/mapsurface/redissink"
	"github.com/mohammed-shakir/geofilter-editor/internal/metrics"
	"github.com/mohammed-shakir/geofilter-editor/internal/sessions"
	"github.com/mohammed-shakir/geofilter-editor/internal/submission/kafkaconsumer"
	"github.com/mohammed-shakir/geofilter-editor/internal/submission/kafkapub"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}
	if cfg.Version == "dev" {
		cfg.Version = Version
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.Log.Level,
		Console:   cfg.Log.Console,
		SampleN:   cfg.Log.SampleN,
		Service:   "geofilterd",
		Component: "api",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting geofilterd",
		"addr", cfg.Addr,
		"version", cfg.Version,
		"redis", cfg.Redis.Enabled,
		"kafka", cfg.Kafka.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	regOpts := []sessions.Option{
		sessions.WithEditorConfig(cfg.Editor),
		sessions.WithLogger(appLog),
		sessions.WithLogSampling(uint64(max(cfg.Log.SampleN, 0))),
	}

	if cfg.Redis.Enabled {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		sink, err := redissink.New(rctx, cfg.Redis.Addr, cfg.Redis.ChannelPrefix, cfg.Redis.StateTTL,
			redissink.WithReadTimeout(cfg.Redis.OpTimeout),
			redissink.WithWriteTimeout(cfg.Redis.OpTimeout))
		cancel()
		if err != nil {
			appLog.Error("redis overlay sink unavailable", "addr", cfg.Redis.Addr, "err", err)
			return 1
		}
		defer func() { _ = sink.Close() }()
		regOpts = append(regOpts, sessions.WithSink(sink))
	}

	var consumer *kafkaconsumer.Consumer
	if cfg.Kafka.Enabled {
		regOpts = append(regOpts, sessions.WithTokenForgetter(sessions.TokenForgetterFunc(func(id string) {
			if consumer != nil {
				consumer.Forget(id)
			}
		})))
	}

	reg, err := sessions.New(cfg.MaxSessions, regOpts...)
	if err != nil {
		appLog.Error("session registry setup failed", "err", err)
		return 1
	}
	defer reg.Close()

	routerOpts := []router.Option{
		router.WithCoverage(h3coverage.New(cfg.H3MaxCells), router.CoverageRes{
			Default: cfg.H3Res, Min: cfg.H3ResMin, Max: cfg.H3ResMax,
		}),
	}

	var ready health.ReadinessReporter = health.AlwaysReady{}
	var wg sync.WaitGroup
	if cfg.Kafka.Enabled {
		kcfg := kafkaconsumer.DefaultConfig(cfg.Kafka.Brokers, cfg.Kafka.ResponseTopic, cfg.Kafka.GroupID)

		pub, err := kafkapub.New(kcfg.Brokers, cfg.Kafka.SubmitTopic, cfg.Kafka.QueueSize, appLog)
		if err != nil {
			appLog.Error("kafka publisher setup failed", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		routerOpts = append(routerOpts, router.WithPublisher(pub))

		consumer = kafkaconsumer.New(kcfg, appLog, reg)
		ready = consumer
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("kafka consumer stopped", "err", err)
			}
		}()
	}

	p := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   cfg.Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	}, observability.Registry)

	deps := server.Deps{
		Sessions:  router.New(appLog, reg, routerOpts...),
		Readiness: ready,
	}

	switch {
	case !cfg.Metrics.Enabled:
	case cfg.Metrics.Addr == "" || cfg.Metrics.Addr == cfg.Addr:
		deps.Metrics = p.Handler()
	default:
		serveMetrics(ctx, cfg.Metrics.Addr, cfg.Metrics.Path, p.Handler())
	}

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	stop()
	wg.Wait()
	appLog.Info("server stopped")
	return 0
}

func serveMetrics(ctx context.Context, addr, path string, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(path, h)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("metrics: listening on %s%s", addr, path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics: shutdown error: %v", err)
		}
	}()
}
