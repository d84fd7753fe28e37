package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/cache"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/channel"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/clock"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/config"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/escalation"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/events"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/logging"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/metrics"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/monitor"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/orchestrator"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/queue"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/retry"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/server"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store/postgres"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/ws"
)

func main() {
	configPath := flag.String("config", os.Getenv("NOTIFIER_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logging.Init(cfg.LogFile)
	log := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("failed to connect to postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	notifStore := postgres.NewNotificationStore(db)
	queueStore := postgres.NewQueueStore(db)
	analyticsStore := postgres.NewAnalyticsStore(db)
	alertStore := postgres.NewAlertStore(db)
	prefStore := postgres.NewPreferenceStore(db)
	dirStore := postgres.NewDirectoryStore(db)

	clk := clock.New()
	collector := metrics.NewCollector()
	hub := events.NewHub()

	wsHub := ws.NewHub()
	go wsHub.Run()

	// Operator consoles mirror the full pipeline event stream.
	opStream := &events.Subscriber{ID: "operator-stream", Events: make(chan events.Event, 256)}
	hub.Subscribe(opStream)
	go wsHub.StreamEvents(opStream.Events)

	prefs := cache.NewPreferenceCache(prefStore, clk, 1024, 5*time.Minute)

	var cooldowns cache.CooldownStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cooldowns = cache.NewRedisCooldowns(rdb)
		defer rdb.Close()
	} else {
		cooldowns = cache.NewMemoryCooldowns(clk)
	}

	q := queue.New(queueStore, notifStore, clk, queue.Options{
		MaxRetries: cfg.Queue.MaxRetries,
		Lease:      cfg.Queue.LeaseDuration,
		Backoff: &retry.Backoff{
			BaseDelay: cfg.Queue.BackoffBase,
			MaxDelay:  cfg.Queue.BackoffCap,
			Factor:    cfg.Queue.BackoffFactor,
			Jitter:    cfg.Queue.BackoffJitter,
		},
	})

	adapters := []channel.Adapter{
		channel.NewWebSocketAdapter(wsHub),
		channel.NewEmailAdapter(cfg.SMTP),
		channel.NewSMSAdapter(cfg.SMS),
	}
	manager := channel.NewManager(adapters, notifStore, analyticsStore, prefs, hub, collector, clk, channel.ManagerOptions{
		FallbackOrder:  cfg.Delivery.FallbackOrder,
		AttemptTimeout: cfg.Delivery.AttemptTimeout,
		Workers:        cfg.Delivery.Workers,
		RatePerSecond:  cfg.Delivery.RatePerSecond,
	})

	orch := orchestrator.New(notifStore, analyticsStore, dirStore, q, prefs, hub, collector, clk)

	engine := escalation.NewEngine(cooldowns, alertStore, orch, hub, collector, clk, escalation.EngineConfig{
		HistoryRetention: cfg.Escalation.HistoryRetention,
		StaleThreshold:   cfg.Escalation.StaleThreshold,
		DefaultCooldown:  cfg.Escalation.DefaultCooldown,
	})

	mon := monitor.New(analyticsStore, notifStore, q, engine, clk, cfg.Monitor)

	poller := queue.NewPoller(q, manager, notifStore, collector, cfg.Queue.PollInterval, cfg.Queue.BatchSize)

	consumer, err := orchestrator.NewConsumer(ctx, cfg.NATSURL, orch)
	if err != nil {
		log.Error("failed to connect to nats", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	go poller.Run(ctx)
	go mon.Run(ctx, cfg.Monitor.Interval)
	go engine.Run(ctx, time.Second)
	go engine.RunHousekeeping(ctx, cfg.Escalation.HousekeepingInterval)
	go orch.RunScheduledSweep(ctx, cfg.Sweeps.ScheduledInterval)
	go orch.RunExpirySweep(ctx, cfg.Sweeps.ExpiryInterval)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("event consumer exited", slog.Any("error", err))
		}
	}()

	srv := server.New(cfg.HTTPAddr, orch, engine, mon, analyticsStore, wsHub, collector, cfg.APIKeyHashes)
	if err := srv.Run(ctx); err != nil {
		log.Error("http server error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("shutdown complete")
}
