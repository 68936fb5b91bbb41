// Command voicebridge is the main entry point for the voice bridge server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gregcmartin/claw-voice/internal/alertserver"
	"github.com/gregcmartin/claw-voice/internal/app"
	"github.com/gregcmartin/claw-voice/internal/config"
	"github.com/gregcmartin/claw-voice/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicebridge: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicebridge: %v\n", err)
		}
		return 1
	}

	logger, logLevel := newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	slog.SetDefault(logger)

	slog.Info("voicebridge starting",
		"config", *configPath,
		"server_id", cfg.Platform.ServerID,
		"voice_channel_id", cfg.Platform.VoiceChannelID,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voicebridge"})
	if err != nil {
		slog.Error("failed to initialize observability providers", "error", err)
		return 1
	}
	defer shutdownMetrics(context.Background())

	session, err := app.NewSession(cfg, *configPath, logLevel, logger)
	if err != nil {
		slog.Error("failed to initialize session", "error", err)
		return 1
	}

	httpServer := newHTTPServer(cfg, session)
	go func() {
		slog.Info("alert-ingress server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("alert-ingress server error", "error", err)
		}
	}()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- session.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-runErrCh:
		if err != nil {
			slog.Error("session run error", "error", err)
			return 1
		}
	}

	slog.Info("shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("alert-ingress server shutdown error", "error", err)
	}
	if err := session.Shutdown(shutdownCtx); err != nil {
		slog.Error("session shutdown error", "error", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// newHTTPServer builds the alert-ingress HTTP server (§6.5), serving
// POST /alert, GET /health, the pipeline's /healthz and /readyz, and /metrics
// on a single listener.
func newHTTPServer(cfg *config.Config, session *app.Session) *http.Server {
	alerts := alertserver.New(session.Alerts(), cfg.Alerts.WebhookToken, session.Presence(), session.Health())

	mux := http.NewServeMux()
	handler := alerts.Handler()
	mux.Handle("/", handler)
	mux.Handle("/metrics", observe.MetricsHandler())

	addr := cfg.Server.BindAddress
	if addr == "" && cfg.Alerts.WebhookPort != 0 {
		addr = fmt.Sprintf(":%d", cfg.Alerts.WebhookPort)
	}
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{Addr: addr, Handler: mux}
}

// newLogger builds the process logger along with the [slog.LevelVar] backing
// its level, so a config reload (§ ServerConfig.LogLevel) can adjust
// verbosity without restarting the handler.
func newLogger(level config.LogLevel, format string) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(level.SlogLevel())

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), lvl
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), lvl
}
