// Package fee is the fee oracle. It caches one FeeInfo per chain, refreshes the subscribed chains
// on a ticker and pushes every refresh to the chain's subscribers.
package fee

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/metrics"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "fee").Logger()
}

var ErrUnsupportedChainType = errors.New("unsupported chain type")

const DefaultRefreshInterval = 15 * time.Second

type subscription struct {
	chainType models.ChainType
	callbacks map[string]func(*models.FeeInfo)
}

// Service implements chain.FeeService
type Service struct {
	registry chain.Registry
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]*models.FeeInfo
	subs  map[string]*subscription
}

var _ chain.FeeService = (*Service)(nil)

func NewService(registry chain.Registry, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Service{
		registry: registry,
		interval: interval,
		maxAge:   interval,
		now:      time.Now,
		cache:    make(map[string]*models.FeeInfo),
		subs:     make(map[string]*subscription),
	}
}

// SubscribeChainFee registers cb for refreshes of chainSlug and returns the current fee info.
// A cached value younger than the refresh interval is returned without a chain call.
func (s *Service) SubscribeChainFee(ctx context.Context, subscriberID, chainSlug string, chainType models.ChainType, cb func(*models.FeeInfo)) (*models.FeeInfo, error) {
	info, err := s.GetChainFee(ctx, chainSlug, chainType)
	if err != nil {
		return nil, err
	}

	if cb != nil {
		s.mu.Lock()
		sub, ok := s.subs[chainSlug]
		if !ok {
			sub = &subscription{chainType: chainType, callbacks: make(map[string]func(*models.FeeInfo))}
			s.subs[chainSlug] = sub
		}
		sub.callbacks[subscriberID] = cb
		s.mu.Unlock()
	}
	return info, nil
}

func (s *Service) UnsubscribeChainFee(subscriberID, chainSlug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[chainSlug]
	if !ok {
		return
	}
	delete(sub.callbacks, subscriberID)
	if len(sub.callbacks) == 0 {
		delete(s.subs, chainSlug)
	}
}

// GetChainFee returns the cached fee info or fetches a fresh one
func (s *Service) GetChainFee(ctx context.Context, chainSlug string, chainType models.ChainType) (*models.FeeInfo, error) {
	s.mu.Lock()
	cached, ok := s.cache[chainSlug]
	s.mu.Unlock()
	if ok && s.now().Sub(cached.UpdatedAt) < s.maxAge {
		return cached, nil
	}
	return s.refresh(ctx, chainSlug, chainType)
}

func (s *Service) refresh(ctx context.Context, chainSlug string, chainType models.ChainType) (*models.FeeInfo, error) {
	info, err := s.fetch(ctx, chainSlug, chainType)
	if err != nil {
		metrics.FeeRefreshes.WithLabelValues(chainSlug, "error").Inc()
		return nil, fmt.Errorf("fee for %s: %w", chainSlug, err)
	}
	metrics.FeeRefreshes.WithLabelValues(chainSlug, "ok").Inc()
	info.Chain = chainSlug
	info.ChainType = chainType
	info.UpdatedAt = s.now()

	s.mu.Lock()
	s.cache[chainSlug] = info
	s.mu.Unlock()
	return info, nil
}

func (s *Service) fetch(ctx context.Context, chainSlug string, chainType models.ChainType) (*models.FeeInfo, error) {
	switch chainType {
	case models.ChainTypeEvm:
		api, err := s.registry.GetEvmApi(chainSlug)
		if err != nil {
			return nil, err
		}
		return evmFeeInfo(ctx, api)
	case models.ChainTypeSubstrate, models.ChainTypeTon:
		return tipFeeInfo(), nil
	case models.ChainTypeCardano:
		api, err := s.registry.GetCardanoApi(chainSlug)
		if err != nil {
			return nil, err
		}
		params, err := api.ProtocolParameters(ctx)
		if err != nil {
			return nil, err
		}
		return &models.FeeInfo{MinFeeA: params.MinFeeA, MinFeeB: params.MinFeeB}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChainType, chainType)
	}
}

// tipFeeInfo has no tip on any tier, substrate and ton inclusion does not depend on it
func tipFeeInfo() *models.FeeInfo {
	return &models.FeeInfo{
		TipOptions: map[models.FeeOption]*big.Int{
			models.FeeSlow:    big.NewInt(0),
			models.FeeAverage: big.NewInt(0),
			models.FeeFast:    big.NewInt(0),
		},
	}
}

// Run refreshes every subscribed chain on each tick until ctx is done
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RefreshSubscribed(ctx)
		}
	}
}

// RefreshSubscribed fetches every chain that has subscribers and notifies them
func (s *Service) RefreshSubscribed(ctx context.Context) {
	s.mu.Lock()
	chains := make(map[string]models.ChainType, len(s.subs))
	for slug, sub := range s.subs {
		chains[slug] = sub.chainType
	}
	s.mu.Unlock()

	for slug, chainType := range chains {
		info, err := s.refresh(ctx, slug, chainType)
		if err != nil {
			log.Warn().Err(err).Str("chain", slug).Msg("Fee refresh failed")
			continue
		}

		s.mu.Lock()
		var callbacks []func(*models.FeeInfo)
		if sub, ok := s.subs[slug]; ok {
			for _, cb := range sub.callbacks {
				callbacks = append(callbacks, cb)
			}
		}
		s.mu.Unlock()

		for _, cb := range callbacks {
			cb(info)
		}
	}
}
