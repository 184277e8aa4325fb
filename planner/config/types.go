package config

// ServerConfig is the planner service configuration, loaded from a TOML file
// or from VERASWAP_-prefixed environment variables.
type ServerConfig struct {
	// rpc configs
	Port int    `toml:"port" mapstructure:"port"`
	Host string `toml:"host" mapstructure:"host"`

	// CORS configs
	AllowedOrigins []string `toml:"allowed_origins" mapstructure:"allowed_origins"`

	// rate limiting configs
	RatePerMinute         int `toml:"rate_per_minute" mapstructure:"rate_per_minute"`
	MaxConcurrentRequests int `toml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`

	ServiceName    string `toml:"service_name" mapstructure:"service_name"`
	ServiceVersion string `toml:"service_version" mapstructure:"service_version"`
	Environment    string `toml:"environment" mapstructure:"environment"` // PROD, DEV, TEST, LOCAL

	// chain registry config, a local path or a go-getter URL
	ChainConfigPath string `toml:"chain_config_path" mapstructure:"chain_config_path"`

	// collaborator endpoints
	PoolStateURLs []string          `toml:"pool_state_urls" mapstructure:"pool_state_urls"`
	RelayerURLs   map[string]string `toml:"relayer_urls" mapstructure:"relayer_urls"`

	// planner policy
	MaxHops             int      `toml:"max_hops" mapstructure:"max_hops"`
	MaxPoolHops         int      `toml:"max_pool_hops" mapstructure:"max_pool_hops"`
	QuoteTimeoutMs      int      `toml:"quote_timeout_ms" mapstructure:"quote_timeout_ms"`
	MaxConcurrentQuotes int      `toml:"max_concurrent_quotes" mapstructure:"max_concurrent_quotes"`
	DefaultSlippageBps  uint32   `toml:"default_slippage_bps" mapstructure:"default_slippage_bps"`
	TieBreaks           []string `toml:"tie_breaks" mapstructure:"tie_breaks"`
}

// ChainsFile is the chain registry document: the chains the planner knows,
// their pools, and the bridge mappings connecting them.
type ChainsFile struct {
	Chains  []ChainConfig  `toml:"chains" json:"chains"`
	Bridges []BridgeConfig `toml:"bridges" json:"bridges"`
}

// ChainConfig describes one chain.
type ChainConfig struct {
	ID     uint64 `toml:"id" json:"id"`
	Name   string `toml:"name" json:"name"`
	Router string `toml:"router" json:"router"`

	NativeSymbol   string `toml:"native_symbol" json:"nativeSymbol"`
	NativeDecimals uint8  `toml:"native_decimals" json:"nativeDecimals"`
	WrappedNative  string `toml:"wrapped_native" json:"wrappedNative"`
	WrappedSymbol  string `toml:"wrapped_symbol" json:"wrappedSymbol"`

	// PermitTokens lists token addresses supporting signature-based transfer
	// authorization.
	PermitTokens []string `toml:"permit_tokens" json:"permitTokens"`

	Tokens []TokenConfig `toml:"tokens" json:"tokens"`
	Pools  []PoolConfig  `toml:"pools" json:"pools"`
}

// TokenConfig describes one ERC-20 token on a chain.
type TokenConfig struct {
	Address  string `toml:"address" json:"address"`
	Symbol   string `toml:"symbol" json:"symbol"`
	Decimals uint8  `toml:"decimals" json:"decimals"`
}

// PoolConfig describes one liquidity pool. Token references are either a
// 0x-prefixed address from the chain's token table, "native" for the chain's
// gas asset, or "wrapped" for its wrapped form.
type PoolConfig struct {
	ID     string `toml:"id" json:"id"`
	Type   string `toml:"type" json:"type"`
	Token0 string `toml:"token0" json:"token0"`
	Token1 string `toml:"token1" json:"token1"`
	FeeBps uint32 `toml:"fee_bps" json:"feeBps"`
}

// BridgeConfig describes one bridge mapping between two chains.
type BridgeConfig struct {
	Protocol    string `toml:"protocol" json:"protocol"`
	SourceChain uint64 `toml:"source_chain" json:"sourceChain"`
	SourceToken string `toml:"source_token" json:"sourceToken"`
	DestChain   uint64 `toml:"dest_chain" json:"destChain"`
	DestToken   string `toml:"dest_token" json:"destToken"`
	ETASeconds  int64  `toml:"eta_seconds" json:"etaSeconds"`
	FeeModel    string `toml:"fee_model" json:"feeModel"`
	FeeBps      uint32 `toml:"fee_bps" json:"feeBps"`
	// FlatFee is a decimal string so flat fees survive uint256 ranges.
	FlatFee string `toml:"flat_fee" json:"flatFee"`
}
