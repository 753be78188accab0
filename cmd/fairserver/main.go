// Package main provides the fairplay daemon: the FairnessService gRPC API
// backed by the configured seed pair store.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/fairplay/internal/config"
	"github.com/cory-johannsen/fairplay/internal/fairserver"
	"github.com/cory-johannsen/fairplay/internal/observability"
	"github.com/cory-johannsen/fairplay/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the configuration")
	hashToken := flag.Bool("hash-token", false, "read an API token from stdin, print its bcrypt hash for auth.token_hash, and exit")
	flag.Parse()

	if *hashToken {
		if err := printTokenHash(); err != nil {
			log.Fatalf("hashing token: %v", err)
		}
		return
	}

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("loading %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx := context.Background()
	a, cleanup, err := initializeApp(ctx, cfg)
	if err != nil {
		log.Fatalf("initializing: %v", err)
	}
	defer cleanup()
	logger := a.logger
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Fatal("setting up tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces", zap.Error(err))
		}
	}()

	logger.Info("starting fairplay",
		zap.String("grpc_addr", cfg.Server.Addr()),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("auth", cfg.Auth.Enabled()),
		zap.Duration("startup", time.Since(start)),
	)

	lc := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)
	lc.Add("fairness-grpc", a.server)
	if err := lc.Run(ctx); err != nil {
		logger.Error("fairplay stopped with error", zap.Error(err))
		cleanup()
		_ = logger.Sync()
		os.Exit(1)
	}
}

func printTokenHash() error {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}
	hash, err := fairserver.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
