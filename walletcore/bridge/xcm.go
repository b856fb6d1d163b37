// Package bridge builds and prices XCM transfers between Substrate chains.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/registry"
)

var (
	ErrUnsupportedOrigin = errors.New("bridge origin is not a substrate chain")
	ErrInvalidAmount     = errors.New("bridge amount must be positive")
)

// Config tunes routes whose behaviour is not visible on chain
type Config struct {
	// DeliveryFees in base units of the bridged token, keyed by RouteKey
	DeliveryFees map[string]decimal.Decimal `toml:"delivery_fees" json:"delivery_fees"`
	// AggregatorRoutes lists RouteKeys served by a bridge that keeps the destination account alive itself
	AggregatorRoutes []string `toml:"aggregator_routes" json:"aggregator_routes"`
}

// RouteKey names the origin -> destination chain route
func RouteKey(originChain, destChain string) string {
	return originChain + ">" + destChain
}

// XcmBridge implements chain.BridgeService over the Substrate API handles of the registry
type XcmBridge struct {
	registry    chain.Registry
	deliveryFee map[string]decimal.Decimal
	aggregators map[string]bool
}

var _ chain.BridgeService = (*XcmBridge)(nil)

func New(reg chain.Registry, cfg Config) *XcmBridge {
	b := &XcmBridge{
		registry:    reg,
		deliveryFee: make(map[string]decimal.Decimal, len(cfg.DeliveryFees)),
		aggregators: make(map[string]bool, len(cfg.AggregatorRoutes)),
	}
	for k, v := range cfg.DeliveryFees {
		b.deliveryFee[k] = v
	}
	for _, r := range cfg.AggregatorRoutes {
		b.aggregators[r] = true
	}
	return b
}

func (b *XcmBridge) IsAggregatorBridge(originChain, destChain string) bool {
	return b.aggregators[RouteKey(originChain, destChain)]
}

func (b *XcmBridge) DeliveryFee(_ context.Context, req chain.BridgeRequest) (decimal.Decimal, error) {
	return b.deliveryFee[RouteKey(req.OriginChain, req.DestChain)], nil
}

// DryRunFee asks the origin chain for the fee of the transfer, paid in its native token
func (b *XcmBridge) DryRunFee(ctx context.Context, req chain.BridgeRequest) (*models.FeeAmount, error) {
	ext, err := b.extrinsic(req)
	if err != nil {
		return nil, err
	}
	api, err := b.registry.GetSubstrateApi(req.OriginChain)
	if err != nil {
		return nil, err
	}
	fee, err := api.PaymentInfo(ctx, ext, req.Sender)
	if err != nil {
		return nil, fmt.Errorf("dry run on %s: %w", req.OriginChain, err)
	}
	native, err := b.registry.GetNativeAsset(req.OriginChain)
	if err != nil {
		return nil, err
	}
	return &models.FeeAmount{Amount: decimal.NewFromBigInt(fee, 0), TokenSlug: native.Slug}, nil
}

func (b *XcmBridge) BuildTransfer(_ context.Context, req chain.BridgeRequest) (models.TransactionPayload, error) {
	return b.extrinsic(req)
}

func (b *XcmBridge) extrinsic(req chain.BridgeRequest) (*models.SubstrateExtrinsic, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	origin, err := b.registry.GetChainInfoByKey(req.OriginChain)
	if err != nil {
		return nil, err
	}
	if origin.ChainType != models.ChainTypeSubstrate {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOrigin, origin.Slug)
	}
	dest, err := b.registry.GetChainInfoByKey(req.DestChain)
	if err != nil {
		return nil, err
	}
	recipient, err := registry.ReformatAddress(req.Recipient, dest)
	if err != nil {
		return nil, fmt.Errorf("bridge recipient: %w", err)
	}

	asset := map[string]any{"amount": req.Amount.String()}
	pallet, call := "polkadotXcm", "transferAssets"
	if req.OriginToken.IsNative() {
		asset["id"] = "native"
	} else {
		asset["id"] = req.OriginToken.OnChainID
		pallet, call = "xTokens", "transferMultiasset"
	}

	dst := map[string]any{"chain": dest.Slug}
	if dest.ChainType == models.ChainTypeEvm {
		dst["evm_chain_id"] = dest.EvmChainID
	}

	return &models.SubstrateExtrinsic{
		Pallet: pallet,
		Call:   call,
		Args: map[string]any{
			"dest":           dst,
			"beneficiary":    recipient,
			"assets":         []any{asset},
			"fee_asset_item": 0,
			"weight_limit":   "Unlimited",
		},
	}, nil
}
