// Package registry is the in-memory chain registry: chain and asset metadata, the asset ref
// graph and the API handle of every connected chain.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "registry").Logger()
}

var (
	ErrUnknownChain = errors.New("unknown chain")
	ErrUnknownAsset = errors.New("unknown asset")
	ErrNoApi        = errors.New("chain api not connected")
)

// EvmDialer connects an EVM chain from its RPC urls
type EvmDialer func(ctx context.Context, info *models.ChainInfo) (chain.EvmApi, error)

// Registry implements chain.Registry over static config plus API handles connected at runtime.
type Registry struct {
	chains map[string]*models.ChainInfo
	assets map[string]*models.Asset
	native map[string]*models.Asset
	refs   map[string]models.AssetRef

	mu        sync.RWMutex
	states    map[string]*models.ChainState
	evm       map[string]chain.EvmApi
	substrate map[string]chain.SubstrateApi
	ton       map[string]chain.TonApi
	cardano   map[string]chain.CardanoApi
	evmDialer EvmDialer
}

var _ chain.Registry = (*Registry)(nil)

// New validates the static data and builds a registry. Every asset must live on a known chain
// and every ref must connect known assets.
func New(chains []models.ChainInfo, assets []models.Asset, refs []models.AssetRef) (*Registry, error) {
	r := &Registry{
		chains:    make(map[string]*models.ChainInfo, len(chains)),
		assets:    make(map[string]*models.Asset, len(assets)),
		native:    make(map[string]*models.Asset),
		refs:      make(map[string]models.AssetRef, len(refs)),
		states:    make(map[string]*models.ChainState, len(chains)),
		evm:       make(map[string]chain.EvmApi),
		substrate: make(map[string]chain.SubstrateApi),
		ton:       make(map[string]chain.TonApi),
		cardano:   make(map[string]chain.CardanoApi),
	}

	for i := range chains {
		c := chains[i]
		if c.Slug == "" {
			return nil, fmt.Errorf("chain %d has no slug", i)
		}
		if _, dup := r.chains[c.Slug]; dup {
			return nil, fmt.Errorf("duplicate chain %s", c.Slug)
		}
		r.chains[c.Slug] = &c
		r.states[c.Slug] = &models.ChainState{Slug: c.Slug}
	}

	for i := range assets {
		a := assets[i]
		if _, ok := r.chains[a.OriginChain]; !ok {
			return nil, fmt.Errorf("asset %s: %w %s", a.Slug, ErrUnknownChain, a.OriginChain)
		}
		if _, dup := r.assets[a.Slug]; dup {
			return nil, fmt.Errorf("duplicate asset %s", a.Slug)
		}
		r.assets[a.Slug] = &a
		if a.IsNative() {
			r.native[a.OriginChain] = &a
		}
	}

	for _, ref := range refs {
		src, ok := r.assets[ref.SrcAsset]
		if !ok {
			return nil, fmt.Errorf("asset ref %s -> %s: %w %s", ref.SrcAsset, ref.DestAsset, ErrUnknownAsset, ref.SrcAsset)
		}
		dest, ok := r.assets[ref.DestAsset]
		if !ok {
			return nil, fmt.Errorf("asset ref %s -> %s: %w %s", ref.SrcAsset, ref.DestAsset, ErrUnknownAsset, ref.DestAsset)
		}
		ref.SrcChain, ref.DestChain = src.OriginChain, dest.OriginChain
		if ref.Path == "" {
			ref.Path = models.AssetRefPathXcm
		}
		r.refs[models.AssetRefKey(ref.SrcAsset, ref.DestAsset)] = ref
	}

	log.Info().
		Int("chains", len(r.chains)).
		Int("assets", len(r.assets)).
		Int("refs", len(r.refs)).
		Msg("Chain registry built")
	return r, nil
}

// SetEvmDialer sets how EnableChain connects EVM chains
func (r *Registry) SetEvmDialer(d EvmDialer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evmDialer = d
}

// Chains lists every registered chain
func (r *Registry) Chains() []*models.ChainInfo {
	out := make([]*models.ChainInfo, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	return out
}

// Assets lists every registered asset
func (r *Registry) Assets() []*models.Asset {
	out := make([]*models.Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, a)
	}
	return out
}

func (r *Registry) GetAssetBySlug(slug string) (*models.Asset, error) {
	a, ok := r.assets[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, slug)
	}
	return a, nil
}

func (r *Registry) GetChainInfoByKey(slug string) (*models.ChainInfo, error) {
	c, ok := r.chains[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, slug)
	}
	return c, nil
}

func (r *Registry) GetChainStateByKey(slug string) (*models.ChainState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, slug)
	}
	state := *s
	return &state, nil
}

func (r *Registry) GetNativeAsset(chainSlug string) (*models.Asset, error) {
	a, ok := r.native[chainSlug]
	if !ok {
		return nil, fmt.Errorf("%w: native asset of %s", ErrUnknownAsset, chainSlug)
	}
	return a, nil
}

// GetAssetRefMap returns the asset ref graph. The map is shared and must not be modified.
func (r *Registry) GetAssetRefMap() map[string]models.AssetRef {
	return r.refs
}

func (r *Registry) GetEvmApi(chainSlug string) (chain.EvmApi, error) {
	return getApi(r, r.evm, chainSlug)
}

func (r *Registry) GetSubstrateApi(chainSlug string) (chain.SubstrateApi, error) {
	return getApi(r, r.substrate, chainSlug)
}

func (r *Registry) GetTonApi(chainSlug string) (chain.TonApi, error) {
	return getApi(r, r.ton, chainSlug)
}

func (r *Registry) GetCardanoApi(chainSlug string) (chain.CardanoApi, error) {
	return getApi(r, r.cardano, chainSlug)
}

func getApi[T any](r *Registry, apis map[string]T, chainSlug string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	api, ok := apis[chainSlug]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrNoApi, chainSlug)
	}
	return api, nil
}

// SetEvmApi registers the EVM API handle of a chain and marks it connected
func (r *Registry) SetEvmApi(chainSlug string, api chain.EvmApi) {
	setApi(r, r.evm, chainSlug, api)
}

// SetSubstrateApi registers the Substrate API handle of a chain and marks it connected
func (r *Registry) SetSubstrateApi(chainSlug string, api chain.SubstrateApi) {
	setApi(r, r.substrate, chainSlug, api)
}

// SetTonApi registers the TON API handle of a chain and marks it connected
func (r *Registry) SetTonApi(chainSlug string, api chain.TonApi) {
	setApi(r, r.ton, chainSlug, api)
}

// SetCardanoApi registers the Cardano API handle of a chain and marks it connected
func (r *Registry) SetCardanoApi(chainSlug string, api chain.CardanoApi) {
	setApi(r, r.cardano, chainSlug, api)
}

func setApi[T any](r *Registry, apis map[string]T, chainSlug string, api T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	apis[chainSlug] = api
	if s, ok := r.states[chainSlug]; ok {
		s.Connected = true
	}
}

// EnableChain marks a chain active. EVM chains without a handle are dialed.
func (r *Registry) EnableChain(ctx context.Context, chainSlug string) error {
	info, err := r.GetChainInfoByKey(chainSlug)
	if err != nil {
		return err
	}

	r.mu.Lock()
	state := r.states[chainSlug]
	state.Active = true
	_, hasEvm := r.evm[chainSlug]
	dialer := r.evmDialer
	r.mu.Unlock()

	if info.ChainType != models.ChainTypeEvm || hasEvm || dialer == nil {
		return nil
	}

	api, err := dialer(ctx, info)
	if err != nil {
		return fmt.Errorf("failed to connect %s: %w", chainSlug, err)
	}
	r.SetEvmApi(chainSlug, api)
	log.Info().Str("chain", chainSlug).Msg("EVM chain connected")
	return nil
}
