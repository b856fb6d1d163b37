package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	getter "github.com/hashicorp/go-getter"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "config").Logger()
}

// registryFileNames are looked up when a remote source resolves to a directory
var registryFileNames = []string{"registry.toml", "registry.json"}

// ChainConfigLoader loads the chain registry config from a file or a remote source
type ChainConfigLoader struct {
	// FetchTimeout bounds the download of a remote source
	FetchTimeout time.Duration
}

func NewChainConfigLoader() *ChainConfigLoader {
	return &ChainConfigLoader{FetchTimeout: 120 * time.Second}
}

// IsRemote reports whether source has to be downloaded first
func IsRemote(source string) bool {
	for _, prefix := range []string{"http://", "https://", "git::", "github.com/", "git@"} {
		if strings.HasPrefix(source, prefix) {
			return true
		}
	}
	return false
}

// Load reads source, downloading it first when it is remote. A remote directory, e.g. a git
// repository subdirectory, must hold a registry.toml or registry.json file.
func (l *ChainConfigLoader) Load(ctx context.Context, source string) (*RegistryConfig, error) {
	if !IsRemote(source) {
		return l.LoadFromFile(source)
	}

	dir, err := os.MkdirTemp("", "walletcore-registry")
	if err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path, err := l.fetch(ctx, source, dir)
	if err != nil {
		return nil, err
	}
	return l.LoadFromFile(path)
}

func (l *ChainConfigLoader) fetch(ctx context.Context, source, dir string) (string, error) {
	timeout := l.FetchTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// keep the file name so the format can be told from the extension
	dst := filepath.Join(dir, "registry")
	if ext := filepath.Ext(strings.SplitN(source, "?", 2)[0]); ext == ".json" || ext == ".toml" {
		dst += ext
	}

	client := getter.Client{
		Ctx:  ctx,
		Src:  source,
		Dst:  dst,
		Mode: getter.ClientModeAny,
		Detectors: []getter.Detector{
			&getter.GitHubDetector{},
			&getter.GitDetector{},
		},
		Getters: map[string]getter.Getter{
			"git":   &getter.GitGetter{},
			"http":  &getter.HttpGetter{},
			"https": &getter.HttpGetter{},
		},
	}
	log.Info().Str("source", source).Msg("Downloading chain registry config")
	if err := client.Get(); err != nil {
		return "", fmt.Errorf("failed to download chain registry config: %w", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return "", fmt.Errorf("downloaded chain registry config missing: %w", err)
	}
	if !info.IsDir() {
		return dst, nil
	}
	for _, name := range registryFileNames {
		candidate := filepath.Join(dst, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s holds none of %s", source, strings.Join(registryFileNames, ", "))
}

// LoadFromFile parses a .json file as JSON and anything else as TOML
func (l *ChainConfigLoader) LoadFromFile(filePath string) (*RegistryConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain config file: %w", err)
	}

	var cfg RegistryConfig
	if strings.HasSuffix(filePath, ".json") {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Int("chains", len(cfg.Chains)).
		Int("assets", len(cfg.Assets)).
		Int("asset_refs", len(cfg.AssetRefs)).
		Int("provider_groups", len(cfg.ProviderGroups)).
		Msg("Loaded chain registry config")
	return &cfg, nil
}

// Validate checks the parts of the config the registry does not check itself
func (c *RegistryConfig) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("no chains in config")
	}
	chains := make(map[string]bool, len(c.Chains))
	for _, ch := range c.Chains {
		if ch.Slug == "" {
			return fmt.Errorf("chain without slug")
		}
		if chains[ch.Slug] {
			return fmt.Errorf("duplicate chain %s", ch.Slug)
		}
		chains[ch.Slug] = true
		switch ch.ChainType {
		case models.ChainTypeSubstrate, models.ChainTypeEvm, models.ChainTypeTon, models.ChainTypeCardano:
		default:
			return fmt.Errorf("chain %s has unknown chain type %q", ch.Slug, ch.ChainType)
		}
	}
	for _, g := range c.ProviderGroups {
		if g.ProviderID == "" {
			return fmt.Errorf("provider group without provider_id")
		}
		for _, slug := range g.Chains {
			if !chains[slug] {
				return fmt.Errorf("provider group %s lists unknown chain %s", g.ProviderID, slug)
			}
		}
	}
	if _, err := c.QuoteTTLs(); err != nil {
		return err
	}
	return nil
}

// QuoteTTLs parses the per provider quote lifetimes
func (c *RegistryConfig) QuoteTTLs() (map[string]time.Duration, error) {
	out := make(map[string]time.Duration, len(c.QuoteTTL))
	for provider, raw := range c.QuoteTTL {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("quote_ttl of %s must be a positive duration, got %q", provider, raw)
		}
		out[provider] = d
	}
	return out, nil
}

// BuildRegistry creates the in-memory chain registry of the config
func (c *RegistryConfig) BuildRegistry() (*registry.Registry, error) {
	reg, err := registry.New(c.Chains, c.Assets, c.AssetRefs)
	if err != nil {
		return nil, fmt.Errorf("failed to build chain registry: %w", err)
	}
	return reg, nil
}
