// Command baristagate is the entry point of the coffee assistant gateway.
//
// Inside AWS Lambda (AWS_LAMBDA_RUNTIME_API is set) it serves GraphQL
// resolver invocations through the Lambda runtime. Anywhere else it serves
// the same router over a local HTTP server with health and metrics
// endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/MrWong99/baristagate/internal/app"
	"github.com/MrWong99/baristagate/internal/config"
	"github.com/MrWong99/baristagate/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "optional path to a YAML configuration file; environment variables override it")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "baristagate: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(os.Stderr, cfg.Server.LogLevel, cfg.Server.LogFormat))

	_, inLambda := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	slog.Info("baristagate starting",
		"version", version,
		"host", hostName(inLambda),
		"project", cfg.Google.ProjectID,
		"model_region", cfg.Google.ModelRegion,
		"chat_model", cfg.Models.Chat,
		"vision_model", cfg.Models.Vision,
		"retrieval", cfg.Retrieval.Corpus != "",
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, shutdownTelemetry, err := startup(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Lambda host ───────────────────────────────────────────────────────────
	if inLambda {
		// lambda.Start never returns; it exits the process on fatal runtime
		// errors.
		lambda.StartWithOptions(func(ctx context.Context, event json.RawMessage) (string, error) {
			return application.Invoke(ctx, event)
		}, lambda.WithEnableSIGTERM(stop))
		return 0
	}

	// ── Local HTTP host ───────────────────────────────────────────────────────
	slog.Info("server ready, press Ctrl+C to shut down", "listen_addr", cfg.Server.ListenAddr)
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// startup installs telemetry and builds the application. On success the
// caller owns the returned shutdown function; on failure telemetry is already
// flushed.
func startup(ctx context.Context, cfg *config.Config, opts ...app.Option) (*app.App, func(context.Context) error, error) {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "baristagate",
		ServiceVersion: version,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init telemetry: %w", err)
	}
	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		_ = shutdown(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("init application: %w", err)
	}
	return application, shutdown, nil
}

func hostName(inLambda bool) string {
	if inLambda {
		return "lambda"
	}
	return "http"
}

// newLogger creates an [slog.Logger] writing to w at the configured level.
// JSON output suits log ingestion in the cloud; text is for local use.
func newLogger(w io.Writer, level config.LogLevel, format config.LogFormat) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
