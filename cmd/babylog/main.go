// Command babylog runs the baby-care tracker daemon: it subscribes to
// smart-button events on MQTT, maps them to care events, reconciles
// feeding and sleep sessions, and serves the dashboard and API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/babylog/internal/analytics"
	"github.com/sweeney/babylog/internal/bus"
	"github.com/sweeney/babylog/internal/config"
	"github.com/sweeney/babylog/internal/debounce"
	"github.com/sweeney/babylog/internal/dispatch"
	"github.com/sweeney/babylog/internal/session"
	"github.com/sweeney/babylog/internal/status"
	"github.com/sweeney/babylog/internal/store"
	"github.com/sweeney/babylog/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("daemon failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("starting babylog",
		zap.String("version", version),
		zap.String("database", cfg.Database.Path),
		zap.String("broker", cfg.MQTT.Broker),
		zap.String("http", cfg.HTTPAddr))

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconciler := session.New(st, log.Named("session"), cfg.SessionAutoClose)
	if err := reconciler.Init(ctx); err != nil {
		return fmt.Errorf("recover session state: %w", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Version:      version,
		Broker:       cfg.MQTT.Broker,
		Topics:       cfg.MQTT.Topics,
		HTTPAddr:     cfg.HTTPAddr,
		DatabasePath: cfg.Database.Path,
		DebounceMs:   cfg.DebounceWindow.Milliseconds(),
		AutoClose:    cfg.SessionAutoClose,
		Timezone:     cfg.Timezone,
	})

	disp := dispatch.New(log.Named("dispatch"), dispatch.DefaultQueueSize)
	defer disp.Close()

	src, err := bus.NewRealSource(bus.RealSourceConfig{
		Broker:             cfg.MQTT.Broker,
		ClientID:           cfg.MQTT.ClientID,
		Username:           cfg.MQTT.Username,
		Password:           cfg.MQTT.Password,
		OnConnectionChange: tracker.SetMQTTConnected,
	}, log.Named("mqtt"))
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	defer src.Close()
	tracker.SetMQTTConnected(src.IsConnected())

	listener := bus.NewListener(src, cfg.MQTT.Topics,
		debounce.New(cfg.DebounceWindow), st, reconciler, disp, tracker, log.Named("bus"))

	listenerDone := make(chan error, 1)
	go func() { listenerDone <- listener.Run(ctx) }()

	srv := web.New(cfg.HTTPAddr, st, analytics.New(st), reconciler, disp, tracker,
		cfg.Location(), log.Named("web"))
	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.ListenAndServe() }()
	log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))

	if err := awaitShutdown(ctx, stop, listenerDone, serverDone, log); err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}

	log.Info("stopped")
	return nil
}

// awaitShutdown blocks until a shutdown signal or a goroutine failure,
// then waits for the listener to finish its in-flight append. The
// listener exits with nil on cancellation, so its done channel may win
// the race against ctx.Done; the first receive must count either way,
// because the buffered channel only ever carries one value.
func awaitShutdown(ctx context.Context, stop context.CancelFunc,
	listenerDone, serverDone <-chan error, log *zap.Logger) error {
	listenerExited := false

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case err := <-listenerDone:
		listenerExited = true
		if err != nil {
			return fmt.Errorf("bus listener: %w", err)
		}
	}

	stop()
	if !listenerExited {
		<-listenerDone
	}
	return nil
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
