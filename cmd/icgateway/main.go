package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"icgateway/internal/canister"
	"icgateway/internal/config"
	"icgateway/internal/gateway"
	"icgateway/internal/logger"
	"icgateway/internal/server"
	"icgateway/internal/session"
)

func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logFile, err := logger.Init(cfg.LogLevel, cfg.LogPretty, cfg.LogFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent, err := canister.NewAgent(cfg.NetworkURL, cfg.FetchRootKey)
	if err != nil {
		log.Fatal().Err(err).Str("network", cfg.NetworkURL).Msg("Failed to create canister agent")
	}

	store := session.NewStore(ctx, cfg.RedisURL)
	defer store.Close()

	coord := gateway.NewCoordinator(cfg, agent, store, gateway.Ed25519Verifier{})
	srv := server.NewServer(cfg, store, coord)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	log.Info().Str("network", cfg.NetworkURL).Dur("polling_interval", cfg.PollingInterval).Msg("🚀 icgateway started")
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Gateway stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("✅ icgateway stopped")
}
