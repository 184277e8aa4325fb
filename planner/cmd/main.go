package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/owlprotocol/veraswap-sub005/planner/bridgefee"
	"github.com/owlprotocol/veraswap-sub005/planner/config"
	"github.com/owlprotocol/veraswap-sub005/planner/poolstate"
	"github.com/owlprotocol/veraswap-sub005/planner/router"
	"github.com/owlprotocol/veraswap-sub005/planner/rpc"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the packages that log
	rpc.SetLogger(log)
	router.SetLogger(log)
}

func main() {
	configPath := flag.String("config", "", "config file for the planner server (toml); envs are used when empty")
	flag.Parse()

	log.Info().Str("config", *configPath).Msg("Starting Veraswap route planner")

	var pathArg *string
	if *configPath != "" {
		pathArg = configPath
	}
	serverConfig, err := config.LoadServerConfig(pathArg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load server config")
	}

	// Load the chain registry and build the route index
	chainLoader := config.NewChainConfigLoader()
	registry, err := chainLoader.InitializeRegistry(serverConfig.ChainConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load chain config")
	}
	log.Info().Int("count", len(registry.Chains())).Msg("Loaded chains")

	// Pool state collaborator with failover across the configured endpoints
	poolClient, err := poolstate.NewClientWithFailover(
		serverConfig.PoolStateURLs[0],
		serverConfig.PoolStateURLs[1:],
		poolstate.DefaultFailoverConfig(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pool state client")
	}
	defer poolClient.Close()

	// Per-protocol bridge fee quoters
	var mappings []router.BridgeMapping
	for _, id := range registry.Chains() {
		for _, m := range registry.MappingsFrom(id) {
			mappings = append(mappings, *m)
		}
	}
	feeQuoters, err := bridgefee.QuoterSet(registry, mappings, serverConfig.RelayerURLs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bridge fee quoters")
	}

	engine := router.NewQuoteEngine(registry, poolClient, feeQuoters)
	resolver := router.NewResolver(registry, engine, serverConfig.PlannerConfig())

	server, err := rpc.NewServer(buildServerConfig(serverConfig), resolver, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RPC server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

// buildServerConfig converts the loaded ServerConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.ServerConfig) *rpc.ServerConfig {
	serverConfig := rpc.DefaultServerConfig()
	serverConfig.Address = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if len(cfg.AllowedOrigins) > 0 {
		serverConfig.AllowedOrigins = cfg.AllowedOrigins
	}
	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.MaxConcurrentRequests > 0 {
		serverConfig.MaxConcurrentRequests = &cfg.MaxConcurrentRequests
	}
	return serverConfig
}
