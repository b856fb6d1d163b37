// Package balance answers balance queries from the chain API handles of the registry.
package balance

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain/erc20"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "balance").Logger()
}

// Service reads EVM balances over JSON-RPC. Other chain types go to Fallback.
type Service struct {
	registry chain.Registry
	// Fallback serves the chains this service cannot read, nil means they are unsupported
	Fallback chain.BalanceService
}

var _ chain.BalanceService = (*Service)(nil)

func NewService(registry chain.Registry) *Service {
	return &Service{registry: registry}
}

// GetTransferableBalance is the total balance on EVM chains, which keep no existential deposit
func (s *Service) GetTransferableBalance(ctx context.Context, address, chainSlug, tokenSlug string, extrinsicType models.ExtrinsicType) (*models.AmountData, error) {
	info, err := s.registry.GetChainInfoByKey(chainSlug)
	if err != nil {
		return nil, err
	}
	if info.ChainType != models.ChainTypeEvm {
		if s.Fallback == nil {
			return nil, models.NewTransactionError(models.ErrUnsupported, fmt.Sprintf("no balance source for %s", chainSlug))
		}
		return s.Fallback.GetTransferableBalance(ctx, address, chainSlug, tokenSlug, extrinsicType)
	}
	return s.evmBalance(ctx, address, chainSlug, tokenSlug)
}

func (s *Service) GetTotalBalance(ctx context.Context, address, chainSlug, tokenSlug string) (*models.AmountData, error) {
	info, err := s.registry.GetChainInfoByKey(chainSlug)
	if err != nil {
		return nil, err
	}
	if info.ChainType != models.ChainTypeEvm {
		if s.Fallback == nil {
			return nil, models.NewTransactionError(models.ErrUnsupported, fmt.Sprintf("no balance source for %s", chainSlug))
		}
		return s.Fallback.GetTotalBalance(ctx, address, chainSlug, tokenSlug)
	}
	return s.evmBalance(ctx, address, chainSlug, tokenSlug)
}

func (s *Service) evmBalance(ctx context.Context, address, chainSlug, tokenSlug string) (*models.AmountData, error) {
	if !common.IsHexAddress(address) {
		return nil, models.NewTransactionError(models.ErrInvalidParams, fmt.Sprintf("invalid address %q", address))
	}
	asset, err := s.registry.GetAssetBySlug(tokenSlug)
	if err != nil {
		return nil, err
	}
	api, err := s.registry.GetEvmApi(chainSlug)
	if err != nil {
		return nil, models.NewTransactionError(models.ErrChainDisconnected, err.Error())
	}

	var value *big.Int
	switch asset.AssetType {
	case models.AssetTypeNative:
		value, err = api.BalanceAt(ctx, common.HexToAddress(address), nil)
	case models.AssetTypeErc20:
		value, err = erc20.BalanceOf(ctx, api, asset.ContractAddress, address)
	default:
		return nil, models.NewTransactionError(models.ErrUnsupported, fmt.Sprintf("%s is not an EVM asset", tokenSlug))
	}
	if err != nil {
		log.Debug().Err(err).Str("chain", chainSlug).Str("token", tokenSlug).Msg("Balance query failed")
		return nil, fmt.Errorf("balance of %s on %s: %w", tokenSlug, chainSlug, err)
	}

	return &models.AmountData{
		Value:    decimal.NewFromBigInt(value, 0),
		Decimals: asset.Decimals,
		Symbol:   asset.Symbol,
	}, nil
}
