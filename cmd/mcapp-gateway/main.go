package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/DK5EN/mcapp-gateway/internal/command"
	"github.com/DK5EN/mcapp-gateway/internal/config"
	"github.com/DK5EN/mcapp-gateway/internal/httpapi"
	"github.com/DK5EN/mcapp-gateway/internal/metrics"
	"github.com/DK5EN/mcapp-gateway/internal/model"
	protoble "github.com/DK5EN/mcapp-gateway/internal/proto/ble"
	"github.com/DK5EN/mcapp-gateway/internal/router"
	"github.com/DK5EN/mcapp-gateway/internal/store"
	"github.com/DK5EN/mcapp-gateway/internal/transport/ble"
	"github.com/DK5EN/mcapp-gateway/internal/transport/udp"
	"github.com/DK5EN/mcapp-gateway/internal/update"
	"github.com/DK5EN/mcapp-gateway/internal/weather"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "maintenance":
		runMaintenance()
	case "version":
		fmt.Println("mcapp-gateway (dev)")
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: mcapp-gateway <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve         Start the gateway daemon")
	fmt.Println("  maintenance   Run one retention/rollup pass and exit")
	fmt.Println("  version       Print the build version")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting mcapp-gateway",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("http_listen", cfg.Service.HTTPListen),
		zap.String("callsign", cfg.Node.Callsign),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, logger, cfg.Store.Path)
	if err != nil {
		logger.Fatal("failed to open storage engine", zap.Error(err))
	}
	defer st.Close()
	go st.Run(ctx)
	store.SetTelemetryParser(protoble.ParseTelemetry)

	r := router.New(logger, cfg.Node.Callsign)

	storeInbound := func(_ string, data any) {
		msg, ok := data.(model.Message)
		if !ok {
			return
		}
		if err := st.StoreMessage(ctx, msg); err != nil {
			logger.Error("failed to store inbound message", zap.Error(err))
		}
	}
	r.Subscribe(router.TopicMeshMessage, storeInbound)
	r.Subscribe(router.TopicBLENotification, storeInbound)

	var genIDMu sync.Mutex
	genID := func() uint32 {
		genIDMu.Lock()
		defer genIDMu.Unlock()
		return rand.Uint32()
	}

	udpAdapter, err := udp.New(logger, r, cfg.Node.UDPHost, genID)
	if err != nil {
		logger.Fatal("failed to start UDP adapter", zap.Error(err))
	}
	r.RegisterProtocol("udp", udpAdapter)
	go udpAdapter.Run(ctx)
	defer udpAdapter.Close()

	var bleClient *ble.Client
	if cfg.BLE.Mode == "remote" {
		bleClient = ble.New(logger, r, cfg.BLE.URL, cfg.BLE.APIKey)
		r.RegisterProtocol("ble", bleClient)
		go bleClient.RunReconnectLadder(ctx, cfg.BLE.DeviceAddr)
		go func() {
			if err := bleClient.StreamNotifications(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("BLE notification stream ended", zap.Error(err))
			}
		}()
	}

	cmdEngine := command.New(logger, r, st, cfg.Node.Callsign, cfg.Node.Admins, genID)
	cmdEngine.SetGroupMode(cfg.Node.GroupMode)

	weatherCache := weather.NewCache()
	weatherSvc := weather.NewHTTPService()
	cmdEngine.SetWeather(weatherCache, weatherSvc)
	if bleClient != nil {
		go pollBLEPosition(ctx, bleClient, weatherCache)
	}

	var updateLayout *update.Layout
	var updateEvents *update.Broadcaster
	var updateController *update.Controller
	if cfg.Update.SlotsHome != "" {
		updateLayout = update.NewLayout(cfg.Update.SlotsHome)
		if err := updateLayout.Ensure(); err != nil {
			logger.Error("failed to initialize update slot layout", zap.Error(err))
			updateLayout = nil
		} else {
			updateEvents = update.NewBroadcaster()
			checks := update.StandardChecks(
				"http://127.0.0.1"+cfg.Service.HTTPListen+"/health",
				"http://127.0.0.1"+cfg.Service.HTTPListen+"/health",
				"http://127.0.0.1"+cfg.Service.HTTPListen+"/health",
			)
			updateController = update.NewController(logger, updateLayout, updateEvents, cfg.Update.EtcDir, cfg.Update.BootstrapPath, checks)
		}
	}

	apiOpts := []httpapi.Option{httpapi.WithWeather(weatherCache, weatherSvc)}
	if cfg.Service.APIKey != "" {
		apiOpts = append(apiOpts, httpapi.WithAPIKey(cfg.Service.APIKey))
	}
	if updateLayout != nil {
		apiOpts = append(apiOpts, httpapi.WithUpdate(updateLayout, updateEvents, updateController))
	}
	api := httpapi.New(logger, r, st, cmdEngine, apiOpts...)
	if err := api.Start(cfg.Service.HTTPListen); err != nil {
		logger.Fatal("failed to start HTTP API", zap.Error(err))
	}

	logger.Info("mcapp-gateway ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	cmdEngine.Shutdown()

	var eg errgroup.Group
	eg.Go(func() error {
		return api.Shutdown(shutdownCtx)
	})
	if bleClient != nil {
		eg.Go(func() error {
			bleCtx, bleCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer bleCancel()
			return bleClient.Disconnect(bleCtx)
		})
	}
	if err := eg.Wait(); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}

	cancel()
	logger.Info("mcapp-gateway stopped")
}

// pollBLEPosition mirrors the node's own GPS fix into the weather cache
// every few minutes so /api/weather and the WX command have a position
// to query without depending on the command engine's own state.
func pollBLEPosition(ctx context.Context, c *ble.Client, cache *weather.Cache) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if lat, lon, ok := c.CachedGPS(); ok {
				cache.Set(lat, lon)
			}
		}
	}
}

func runMaintenance() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running retention maintenance", zap.Int("interval_hours", cfg.Retention.IntervalHours))

	ctx := context.Background()
	st, err := store.Open(ctx, logger, cfg.Store.Path)
	if err != nil {
		logger.Fatal("failed to open storage engine", zap.Error(err))
	}
	defer st.Close()
	go st.Run(ctx)

	rm := store.NewRetentionManager(st, logger)
	if err := rm.Run(ctx); err != nil {
		logger.Fatal("maintenance failed", zap.Error(err))
	}

	logger.Info("retention maintenance complete")
}
