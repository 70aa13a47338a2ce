package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/rudransh-shrivastava/chat-it/internal/eventlog"
	"github.com/rudransh-shrivastava/chat-it/internal/logger"
	"github.com/rudransh-shrivastava/chat-it/internal/relay"
)

func loadConfig() *viper.Viper {
	v := viper.New()
	v.SetDefault("addr", ":5000")
	v.SetDefault("log_level", "info")
	v.SetDefault("event_log", "")

	v.SetEnvPrefix("CHATIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", "err", err)
			os.Exit(1)
		}
	}
	return v
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	v := loadConfig()
	log := logger.NewLoggerWithLevel(logLevel(v.GetString("log_level")))

	cfg := relay.Config{
		Addr:   v.GetString("addr"),
		Logger: log,
	}

	if path := v.GetString("event_log"); path != "" {
		events, err := eventlog.Open(path)
		if err != nil {
			log.Error("failed to open event log", "path", path, "err", err)
			os.Exit(1)
		}
		defer events.Close()
		cfg.Events = events
	}

	server, err := relay.NewServer(cfg)
	if err != nil {
		log.Error("failed to start server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			log.Warn("shutdown incomplete", "err", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}
}
