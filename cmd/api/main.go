package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collections-engine/internal/audit"
	"collections-engine/internal/auth"
	"collections-engine/internal/cadence"
	"collections-engine/internal/calendar"
	"collections-engine/internal/config"
	"collections-engine/internal/dispatcher"
	"collections-engine/internal/httpapi"
	"collections-engine/internal/observer"
	"collections-engine/internal/policy"
	"collections-engine/internal/reporting"
	"collections-engine/internal/rotation"
	"collections-engine/internal/rules"
	"collections-engine/internal/scheduler"
	"collections-engine/internal/settings"
	"collections-engine/internal/store"
	"collections-engine/internal/telephony"
	"collections-engine/pkg/logger"
	"collections-engine/pkg/utils"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	pg := store.NewPostgres(db)
	if err := pg.Migrate(rootCtx); err != nil {
		log.Error("schema migration failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	cal, err := calendar.New(cfg.Engine.DefaultTimezone, calendar.DefaultHolidays)
	if err != nil {
		log.Error("calendar init failed", "err", err)
		os.Exit(1)
	}
	policies := policy.NewManager(cfg.Engine.PolicyFile, cal, log)
	if _, err := policies.Load(); err != nil {
		log.Error("policy load failed", "err", err, "path", cfg.Engine.PolicyFile)
		os.Exit(1)
	}
	if cfg.Engine.PolicyFile != "" {
		go func() {
			if err := policies.Watch(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("policy watcher stopped", "err", err)
			}
		}()
	}

	settingsSvc := settings.NewService(pg)
	bus := observer.New(log)
	tracker := cadence.NewTracker(cfg.Engine.Cooldown)

	provider := telephony.NewBlandProvider(telephony.BlandConfig{
		BaseURL:    cfg.Provider.BaseURL,
		Timeout:    cfg.Provider.Timeout,
		RatePerSec: cfg.Provider.RatePerSec,
	})

	dispatchOpts := []dispatcher.Option{dispatcher.WithNotifier(bus)}
	if cfg.Engine.InflightCap > 0 {
		gate := dispatcher.NewRedisSlotGate(rdb, "", cfg.Engine.InflightCap, 0, log)
		dispatchOpts = append(dispatchOpts, dispatcher.WithSlotGate(gate))
	}
	disp := dispatcher.New(pg, provider, tracker, log, dispatchOpts...)

	winStart, _ := config.ParseClock(cfg.Engine.CallWindowStart)
	winEnd, _ := config.ParseClock(cfg.Engine.CallWindowEnd)
	engine, err := scheduler.New(scheduler.Config{
		Period:         cfg.Engine.TickPeriod,
		Budget:         cfg.Engine.TickBudget,
		MaxConcurrency: cfg.Engine.MaxConcurrency,
		WindowStart:    winStart,
		WindowEnd:      winEnd,
		Jitter:         cfg.Engine.DispatchJitter,
	}, scheduler.Deps{
		Accounts:   pg,
		Policy:     policies,
		Settings:   settingsSvc,
		Cadence:    tracker,
		Rotation:   rotation.NewPolicy(rotation.NewRedisStore(rdb, "", 0), nil, log),
		Dispatcher: disp,
		Bus:        bus,
		Lease:      scheduler.NewRedisLease(rdb, "", cfg.Engine.TickPeriod+cfg.Provider.Timeout),
		Log:        log,
	})
	if err != nil {
		log.Error("scheduler init failed", "err", err)
		os.Exit(1)
	}
	if cfg.Engine.Autostart {
		if err := engine.Start(rootCtx); err != nil {
			// Settings may be saved later through the API; the engine is then started by hand.
			log.Warn("engine autostart skipped", "err", err)
		}
	}

	handlers := httpapi.Handlers{
		Auth:     authManager,
		Engine:   engine,
		Settings: settingsSvc,
		Calls:    pg,
		Reports:  reporting.NewService(pg),
		Rules:    rules.NewService(pg),
		Audit:    audit.NewService(pg, log),
		Policy:   policies,
	}
	webhook := telephony.OutcomeWebhookHandler{
		Applier: disp,
		Secret:  cfg.Provider.WebhookSecret,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(cors.New(corsConfig(cfg)))

	registerRoutes(r, handlers, webhook, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// The schedule stream is long-lived; it sends keepalives instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("systemd notify failed", "err", err)
	}
	go watchdog(rootCtx, log, func(ctx context.Context) error {
		return utils.HealthCheck(ctx, db, 2*time.Second)
	})

	<-rootCtx.Done()
	log.Info("shutdown initiated")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	engine.Stop()
	if err := engine.Wait(shutdownCtx); err != nil {
		log.Error("engine drain timed out", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

func corsConfig(cfg config.Config) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", logger.RequestIDHeader)
	c.ExposeHeaders = []string{logger.RequestIDHeader}
	switch {
	case len(cfg.App.CORSOrigins) > 0:
		c.AllowOrigins = cfg.App.CORSOrigins
	case cfg.IsProduction():
		// Deny cross-origin browsers unless an allowlist is configured.
		c.AllowOriginFunc = func(string) bool { return false }
	default:
		c.AllowAllOrigins = true
	}
	return c
}

// watchdog pings systemd at half the configured interval while the database answers.
func watchdog(ctx context.Context, log *slog.Logger, healthy func(context.Context) error) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := healthy(ctx); err != nil {
				log.Warn("watchdog health check failed", "err", err)
				continue
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
