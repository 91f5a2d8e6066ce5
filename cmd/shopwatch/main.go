package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shopwatch/internal/alert"
	"shopwatch/internal/api"
	"shopwatch/internal/auth"
	"shopwatch/internal/camera"
	"shopwatch/internal/config"
	"shopwatch/internal/cooldown"
	"shopwatch/internal/database"
	"shopwatch/internal/detection"
	"shopwatch/internal/ledger"
	"shopwatch/internal/logging"
	"shopwatch/internal/metrics"
	"shopwatch/internal/mode"
	"shopwatch/internal/notify"
	"shopwatch/internal/pipeline"
	"shopwatch/internal/snapshot"
	"shopwatch/internal/ws"
)

func main() {
	var (
		configF   = flag.String("config", "", "Path to a YAML config file")
		hostF     = flag.String("host", "", "Listen host (overrides server.host)")
		httpPortF = flag.String("http-port", "", "HTTP port (overrides server.port)")
		dbgF      = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	cfg, err := config.Load(*configF)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *hostF != "" {
		cfg.Server.Host = *hostF
	}
	if *httpPortF != "" {
		port, err := strconv.Atoi(*httpPortF)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", *httpPortF, err)
			os.Exit(1)
		}
		cfg.Server.Port = port
	}

	logger, err := logging.New(cfg.Server.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	var db *database.Database
	if cfg.Storage.DatabasePath != "" {
		db, err = database.New(cfg.Storage.DatabasePath)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		logger.Info("database ready", zap.String("path", cfg.Storage.DatabasePath))
	}

	checks := map[string]api.Check{}
	if db != nil {
		checks["database"] = db.Ping
	}

	backend, closeBackend, err := modeBackend(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("failed to set up mode storage", zap.String("backend", cfg.Mode.Backend), zap.Error(err))
	}
	defer closeBackend()
	if cfg.Mode.Backend == "redis" {
		checks["redis"] = func(ctx context.Context) error {
			_, err := backend.Load(ctx)
			return err
		}
	}
	shopMode := mode.NewStore(ctx, backend, logger.Named("mode"))
	logger.Info("shop mode loaded", zap.Bool("is_on", shopMode.Get()), zap.String("backend", cfg.Mode.Backend))

	var history ledger.Store
	if db != nil {
		history = db
	}
	alerts := ledger.New(cfg.Ledger.Retain, history, m, logger.Named("ledger"))
	if err := alerts.Load(ctx); err != nil {
		logger.Warn("failed to restore alert history", zap.Error(err))
	}

	snapshots, err := snapshot.New(cfg.Storage.UploadDir)
	if err != nil {
		logger.Fatal("failed to prepare upload directory", zap.Error(err))
	}

	detector, closeDetector, err := newDetector(cfg.Detection)
	if err != nil {
		logger.Fatal("failed to create detector", zap.Error(err))
	}
	defer closeDetector()
	if hc, ok := detector.(interface{ IsHealthy(context.Context) bool }); ok {
		checks["detector"] = func(ctx context.Context) error {
			if !hc.IsHealthy(ctx) {
				return detection.ErrUnavailable
			}
			return nil
		}
	}
	adapter := detection.NewAdapter(detector, cfg.Detection.ConfidenceThreshold, cfg.Detection.Timeout, logger.Named("detection"))

	senders := []notify.Sender{
		notify.NewEmailSender(notify.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			User:     cfg.Email.User,
			Password: cfg.Email.Password,
			To:       cfg.Email.To,
		}),
		notify.NewWhatsAppSender(notify.WhatsAppConfig{
			AccountSID: cfg.WhatsApp.AccountSID,
			AuthToken:  cfg.WhatsApp.AuthToken,
			From:       cfg.WhatsApp.From,
			To:         cfg.WhatsApp.To,
			BaseURL:    cfg.WhatsApp.BaseURL,
		}),
		notify.NewTelegramSender(notify.TelegramConfig{
			Enabled:  cfg.Telegram.Enabled,
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			BaseURL:  cfg.Telegram.BaseURL,
		}),
	}
	dispatcher := alert.NewDispatcher(senders, snapshots, alert.Config{
		Workers:     cfg.Alert.Workers,
		QueueSize:   cfg.Alert.QueueSize,
		SendTimeout: cfg.Alert.SendTimeout,
	}, m, logger.Named("alert"))

	bus := pipeline.NewEventBus()
	hub := ws.NewAlertHub(logger.Named("ws"))

	p := pipeline.New(pipeline.Deps{
		Detector:   adapter,
		Mode:       shopMode,
		Gate:       cooldown.New(cfg.Alert.Cooldown()),
		Ledger:     alerts,
		Bus:        bus,
		Dispatcher: dispatcher,
		Snapshots:  snapshots,
		Metrics:    m,
		Logger:     logger.Named("pipeline"),
	}, pipeline.Config{Width: cfg.Camera.Width, Height: cfg.Camera.Height})

	authenticator, err := auth.NewAuthenticator(cfg.Auth)
	if err != nil {
		logger.Fatal("invalid auth configuration", zap.Error(err))
	}

	server := api.New(api.Deps{
		Mode:     shopMode,
		History:  alerts,
		Pipeline: p,
		Camera: camera.Open(camera.Config{
			Device: cfg.Camera.Device,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		}, logger.Named("camera")),
		Images:    snapshots,
		Auth:      authenticator,
		Alerts:    ws.NewHandler(hub, logger.Named("ws")),
		Metrics:   m.Handler(),
		Checks:    checks,
		Upload:    cfg.Upload,
		Recent:    cfg.Ledger.Recent,
		Logger:    logger.Named("api"),
		DebugHTTP: *dbgF || cfg.Server.Debug,
	})

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup

	sub, unsubscribe := bus.Subscribe(64)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx, sub)
	}()

	addr := cfg.Addr()
	handleHTTPServer(ctx, addr, server, &wg, errc, logger.Named("http"))

	logger.Info("🏪 shop security system ready",
		zap.String("addr", addr),
		zap.Float64("confidence_threshold", cfg.Detection.ConfidenceThreshold),
		zap.Duration("cooldown", cfg.Alert.Cooldown()))

	logger.Info("exiting", zap.Any("reason", <-errc))

	cancel()
	wg.Wait()
	unsubscribe()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := dispatcher.Close(closeCtx); err != nil {
		logger.Warn("pending notifications abandoned", zap.Error(err))
	}
	bus.Close()

	logger.Info("exited")
}

// modeBackend returns the configured persistence for the secured flag
func modeBackend(ctx context.Context, cfg *config.Config, db *database.Database, logger *zap.Logger) (mode.Backend, func(), error) {
	noop := func() {}
	switch cfg.Mode.Backend {
	case "sqlite":
		if db == nil {
			return nil, noop, fmt.Errorf("sqlite mode backend needs a database")
		}
		return mode.NewDBBackend(db), noop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("redis at %s unreachable: %w", cfg.Redis.Addr, err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
		return mode.NewRedisBackend(client, cfg.Mode.RedisKey), func() { client.Close() }, nil
	default:
		return mode.NewFileBackend(cfg.Mode.File), noop, nil
	}
}

// newDetector returns nil for the "none" backend; the adapter then reports
// every frame as undetected
func newDetector(cfg config.DetectionConfig) (detection.Detector, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "grpc":
		d, err := detection.NewGRPCDetector(cfg.Endpoint)
		if err != nil {
			return nil, noop, err
		}
		return d, func() { d.Close() }, nil
	case "http":
		return detection.NewHTTPDetector(cfg.Endpoint, cfg.ConfidenceThreshold, cfg.Timeout), noop, nil
	default:
		return nil, noop, nil
	}
}
