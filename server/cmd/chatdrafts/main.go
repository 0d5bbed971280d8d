package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"chat-drafts/server/internal/api"
	"chat-drafts/server/internal/config"
	"chat-drafts/server/internal/domain"
	"chat-drafts/server/internal/hub"
	"chat-drafts/server/internal/logging"
	"chat-drafts/server/internal/metrics"
	"chat-drafts/server/internal/recordstore"
	"chat-drafts/server/internal/retention"
	"chat-drafts/server/internal/service"
)

func main() {
	// 配置文件可选；监听地址、数据库路径也可以用 CHATDRAFTS_ADDR / CHATDRAFTS_DB_PATH 覆盖。
	configPath := flag.String("config", "configs/chatdrafts.yaml", "config file path (empty for defaults)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer closer.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := openStore(cfg.Storage)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Paths.Seed != "" {
		seed, err := domain.LoadSeed(cfg.Paths.Seed)
		if err != nil {
			logger.Fatalf("load seed: %v", err)
		}
		if err := store.Seed(ctx, seed); err != nil {
			logger.Fatalf("apply seed: %v", err)
		}
		logger.Printf("[Main] Seeded %d users, %d messages, %d attachments",
			len(seed.Users), len(seed.Messages), len(seed.Attachments))
	}

	h := hub.New(hub.Options{
		QueueSize:    cfg.Hub.QueueSize,
		PingInterval: cfg.Hub.PingInterval,
		WriteTimeout: cfg.Hub.WriteTimeout,
		Logger:       logger,
		Metrics:      m,
	})
	defer h.Close()

	svc := service.New(store, h, service.Options{Logger: logger, Metrics: m})

	if cfg.Retention.Enabled {
		sched, err := retention.New(svc, retention.Options{
			Cron:   cfg.Retention.Cron,
			Period: cfg.Retention.Period,
			Logger: logger,
		})
		if err != nil {
			logger.Fatalf("init retention: %v", err)
		}
		sched.Start(ctx)
		defer sched.Wait()
	}

	server := api.NewServer(cfg, svc, h, reg, logger)
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Printf("[Main] Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// 先断开 websocket，否则 Shutdown 会一直等被劫持的连接
		h.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("[Main] ❌ shutdown: %v", err)
		}
	}()

	logger.Printf("chatdrafts server listening on %s (storage=%s)", cfg.Addr(), cfg.Storage.Driver)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve: %v", err)
	}
}

func openStore(cfg config.StorageConfig) (recordstore.Store, error) {
	if cfg.Driver == "sqlite" {
		s, err := recordstore.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return recordstore.NewInMemoryStore(), nil
}
