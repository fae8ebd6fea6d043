package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"billfactor/config"
	"billfactor/core"
	"billfactor/crypto"
	"billfactor/observability/logging"
	telemetry "billfactor/observability/otel"
	"billfactor/rpc"
	"billfactor/storage"
)

const serviceName = "billd"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "billd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	rpcAddr := flag.String("rpc", "", "JSON-RPC listen address (overrides RPCAddress)")
	dataDir := flag.String("data-dir", "", "LevelDB directory (overrides DataDir)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logging.Setup(serviceName, "").Error("failed to load config",
			slog.String("path", *configFile), slog.String("error", err.Error()))
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(*rpcAddr) != "" {
		cfg.RPCAddress = strings.TrimSpace(*rpcAddr)
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = strings.TrimSpace(*dataDir)
	}

	logger, logCloser := logging.SetupWithOptions(serviceName, cfg.Env, logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		Headers:     telemetry.ParseHeaders(cfg.OTLPHeaders),
		Traces:      cfg.OTLPTraces,
		Metrics:     cfg.OTLPMetrics,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	node, err := core.NewNode(db, cfg, logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("start node: %w", err)
	}
	defer node.Close()

	if cfg.AuthToken() == "" {
		logger.Warn("no RPC auth token configured; mutating calls will be rejected",
			slog.String("env", config.RPCTokenEnv))
	}
	logger.Info("billfactor node started",
		slog.String("dataDir", cfg.DataDir),
		slog.String("vault", crypto.FromBytes20(node.Vault()).String()),
		slog.Any("currencies", node.Currencies()))

	server := rpc.NewServer(node, rpc.ServerConfig{
		AuthToken:          cfg.AuthToken(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurst:     cfg.RateLimitBurst,
		TrustedProxies:     cfg.TrustedProxies,
	}, logger)
	if err := server.Start(ctx, cfg.RPCAddress); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("billfactor node stopped")
	return nil
}
