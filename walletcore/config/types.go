package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/bridge"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// WalletCoreConfig is the server configuration, read from a TOML file or WALLETCORE_ env vars
type WalletCoreConfig struct {
	// rpc configs
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// CORS configs
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// rate limiting configs
	RatePerMinute         int `mapstructure:"rate_per_minute"`
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests"`

	// OpenTelemetry configs
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
	UseOTLPTraces  bool   `mapstructure:"use_otlp_traces"`
	OTLPTracesURL  string `mapstructure:"otlp_traces_url"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	UsePrometheus  bool   `mapstructure:"use_prometheus"`
	UseOTLPMetrics bool   `mapstructure:"use_otlp_metrics"`
	OTLPMetricsURL string `mapstructure:"otlp_metrics_url"`
	EnableLogs     bool   `mapstructure:"enable_logs"`
	UseOTLPLogs    bool   `mapstructure:"use_otlp_logs"`
	OTLPLogsURL    string `mapstructure:"otlp_logs_url"`
	InsecureOTLP   bool   `mapstructure:"insecure_otlp"`

	DevelopmentMode bool `mapstructure:"development_mode"`

	// storage
	DBPath string `mapstructure:"db_path"`

	// ChainConfig is a file path or a remote source of the chain registry config
	ChainConfig string `mapstructure:"chain_config"`

	// transaction engine
	TransactionTimeout time.Duration `mapstructure:"transaction_timeout"`
	LateResolution     time.Duration `mapstructure:"late_resolution"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	FeeRefreshInterval time.Duration `mapstructure:"fee_refresh_interval"`
	// InjectedAccounts sign through an external signer and skip the internal confirmation queue
	InjectedAccounts []string `mapstructure:"injected_accounts"`

	// swap
	QuoteTimeout      time.Duration `mapstructure:"quote_timeout"`
	HubChain          string        `mapstructure:"hub_chain"`
	PriorityProviders []string      `mapstructure:"priority_providers"`

	// quote API endpoints, the first url is the primary
	HydradxAPIURLs   []string `mapstructure:"hydradx_api_urls"`
	UniswapAPIURLs   []string `mapstructure:"uniswap_api_urls"`
	ChainflipAPIURLs []string `mapstructure:"chainflip_api_urls"`
	StonfiAPIURLs    []string `mapstructure:"stonfi_api_urls"`

	// blocked actions list
	BlockedActionsURLs     []string      `mapstructure:"blocked_actions_urls"`
	BlockedActionsPath     string        `mapstructure:"blocked_actions_path"`
	BlockedActionsInterval time.Duration `mapstructure:"blocked_actions_interval"`
}

// RegistryConfig is the chain registry config: chains, assets, bridge edges and swap venues
type RegistryConfig struct {
	Chains         []models.ChainInfo     `toml:"chains" json:"chains"`
	Assets         []models.Asset         `toml:"assets" json:"assets"`
	AssetRefs      []models.AssetRef      `toml:"asset_refs" json:"asset_refs"`
	ProviderGroups []models.ProviderGroup `toml:"provider_groups" json:"provider_groups"`
	Bridge         bridge.Config          `toml:"bridge" json:"bridge"`

	// NativeTopUp is the minimum native amount a bridge must deliver, in base units, keyed by chain
	NativeTopUp map[string]decimal.Decimal `toml:"native_top_up" json:"native_top_up"`
	// QuoteTTL is how long quotes of a provider stay alive, e.g. "30s"
	QuoteTTL map[string]string `toml:"quote_ttl" json:"quote_ttl"`

	// UniswapChains are the EVM chains the uniswap venue trades on
	UniswapChains []string `toml:"uniswap_chains" json:"uniswap_chains"`
	// ChainflipChains maps registry chain slugs to chainflip network names
	ChainflipChains map[string]string `toml:"chainflip_chains" json:"chainflip_chains"`
}
