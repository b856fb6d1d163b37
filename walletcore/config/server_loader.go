package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadWalletCoreConfig loads the server config from the given toml file, or from the environment
// when configPath is nil
func LoadWalletCoreConfig(configPath *string) (*WalletCoreConfig, error) {
	v := viper.New()
	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("request_timeout", "60s")
	v.SetDefault("max_concurrent_requests", 200)
	v.SetDefault("service_name", "spectra-wallet")
	v.SetDefault("service_version", "1.0.0")
	v.SetDefault("environment", "development")
	v.SetDefault("db_path", "walletcore.db")
	v.SetDefault("transaction_timeout", "3m")
	v.SetDefault("late_resolution", "10m")
	v.SetDefault("poll_interval", "3s")
	v.SetDefault("fee_refresh_interval", "30s")
	v.SetDefault("quote_timeout", "10s")
	v.SetDefault("blocked_actions_path", "/blocked-actions.json")
	v.SetDefault("blocked_actions_interval", "5m")
}

func loadEnv(v *viper.Viper) (*WalletCoreConfig, error) {
	// env can also come from docker or systemd, a missing .env file is fine
	_ = godotenv.Load()
	v.SetEnvPrefix("WALLETCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var config WalletCoreConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

// bindEnvKeys binds each key without a default so Unmarshal sees it in env-only mode
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"port", "host", "allowed_origins",
		"rate_per_minute",
		"enable_tracing", "use_otlp_traces", "otlp_traces_url",
		"enable_metrics", "use_prometheus", "use_otlp_metrics", "otlp_metrics_url",
		"enable_logs", "use_otlp_logs", "otlp_logs_url",
		"insecure_otlp", "development_mode",
		"chain_config", "injected_accounts", "hub_chain", "priority_providers",
		"hydradx_api_urls", "uniswap_api_urls", "chainflip_api_urls", "stonfi_api_urls",
		"blocked_actions_urls",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func loadFile(v *viper.Viper, configPath string) (*WalletCoreConfig, error) {
	if !strings.HasSuffix(configPath, ".toml") {
		return nil, fmt.Errorf("config file must be a toml file")
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config WalletCoreConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

func verifyConfig(config *WalletCoreConfig) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if config.Host == "" {
		return fmt.Errorf("host is required")
	}
	if len(config.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins is required")
	}
	if config.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if config.ChainConfig == "" {
		return fmt.Errorf("chain_config is required")
	}

	durations := map[string]int64{
		"request_timeout":      int64(config.RequestTimeout),
		"transaction_timeout":  int64(config.TransactionTimeout),
		"late_resolution":      int64(config.LateResolution),
		"poll_interval":        int64(config.PollInterval),
		"fee_refresh_interval": int64(config.FeeRefreshInterval),
		"quote_timeout":        int64(config.QuoteTimeout),
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	urlLists := map[string][]string{
		"hydradx_api_urls":     config.HydradxAPIURLs,
		"uniswap_api_urls":     config.UniswapAPIURLs,
		"chainflip_api_urls":   config.ChainflipAPIURLs,
		"stonfi_api_urls":      config.StonfiAPIURLs,
		"blocked_actions_urls": config.BlockedActionsURLs,
	}
	for name, urls := range urlLists {
		for _, u := range urls {
			if _, err := url.ParseRequestURI(u); err != nil {
				return fmt.Errorf("%s has an invalid url %q", name, u)
			}
		}
	}
	return nil
}
