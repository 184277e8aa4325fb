package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/owlprotocol/veraswap-sub005/planner/router"
)

// LoadServerConfig loads the planner service config from the given path, or
// from environment variables when no path is provided.
func LoadServerConfig(configPath *string) (*ServerConfig, error) {
	v := viper.New()

	if configPath == nil {
		config, err := loadEnv(v)
		if err != nil {
			return nil, fmt.Errorf("failed to load env config: %w", err)
		}
		return config, nil
	}
	config, err := loadFile(v, *configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load file config: %w", err)
	}
	return config, nil
}

func loadEnv(v *viper.Viper) (*ServerConfig, error) {
	// a missing .env file is fine, envs can come from docker or systemd
	_ = godotenv.Load()
	v.SetEnvPrefix("VERASWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var config ServerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

// bindEnvKeys binds each config key to its env var so Unmarshal sees env
// values when no config file is loaded (env-only mode).
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"port", "host", "allowed_origins",
		"rate_per_minute", "max_concurrent_requests",
		"service_name", "service_version", "environment",
		"chain_config_path", "pool_state_urls", "relayer_urls",
		"max_hops", "max_pool_hops", "quote_timeout_ms",
		"max_concurrent_quotes", "default_slippage_bps", "tie_breaks",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func loadFile(v *viper.Viper, configPath string) (*ServerConfig, error) {
	if !strings.HasSuffix(configPath, ".toml") {
		return nil, fmt.Errorf("config file must be a toml file")
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ServerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

// PlannerConfig converts the policy section into the resolver's config.
// Unset fields keep the resolver defaults.
func (c *ServerConfig) PlannerConfig() router.Config {
	cfg := router.Config{
		MaxHops:             c.MaxHops,
		MaxPoolHops:         c.MaxPoolHops,
		QuoteTimeout:        time.Duration(c.QuoteTimeoutMs) * time.Millisecond,
		MaxConcurrentQuotes: c.MaxConcurrentQuotes,
		DefaultSlippageBps:  c.DefaultSlippageBps,
	}
	for _, tb := range c.TieBreaks {
		cfg.TieBreaks = append(cfg.TieBreaks, router.TieBreak(tb))
	}
	return cfg
}

func verifyConfig(config *ServerConfig) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is out of range", config.Port)
	}
	if config.Host == "" {
		return fmt.Errorf("host must be set")
	}
	if config.ChainConfigPath == "" {
		return fmt.Errorf("chain_config_path must be set")
	}
	if len(config.PoolStateURLs) == 0 {
		return fmt.Errorf("at least one pool_state_urls entry is required")
	}
	if config.DefaultSlippageBps >= 10000 {
		return fmt.Errorf("default_slippage_bps %d is not below 100%%", config.DefaultSlippageBps)
	}
	for _, tb := range config.TieBreaks {
		switch tb {
		case "max-output", "fewest-hops", "lowest-eta":
		default:
			return fmt.Errorf("unknown tie_breaks entry %q", tb)
		}
	}
	return nil
}
