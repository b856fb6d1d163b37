package bridge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/bridge"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain/chaintest"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/registry"
)

const (
	aliceGeneric  = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	alicePolkadot = "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"
)

func setup(t *testing.T) (*registry.Registry, *chaintest.Substrate) {
	t.Helper()
	reg, err := registry.New([]models.ChainInfo{
		{Slug: "polkadot", ChainType: models.ChainTypeSubstrate, SS58Prefix: 0},
		{Slug: "hydradx_main", ChainType: models.ChainTypeSubstrate, SS58Prefix: 42},
		{Slug: "ethereum", ChainType: models.ChainTypeEvm, EvmChainID: 1},
	}, []models.Asset{
		{Slug: "polkadot-NATIVE-DOT", OriginChain: "polkadot", AssetType: models.AssetTypeNative},
		{Slug: "hydradx_main-NATIVE-HDX", OriginChain: "hydradx_main", AssetType: models.AssetTypeNative},
		{Slug: "hydradx_main-LOCAL-DOT", OriginChain: "hydradx_main", AssetType: models.AssetTypeLocal, OnChainID: "5"},
		{Slug: "ethereum-NATIVE-ETH", OriginChain: "ethereum", AssetType: models.AssetTypeNative},
	}, nil)
	assert.NoError(t, err)
	api := chaintest.NewSubstrate()
	reg.SetSubstrateApi("hydradx_main", api)
	return reg, api
}

func request(reg *registry.Registry, amount int64) chain.BridgeRequest {
	from, _ := reg.GetAssetBySlug("hydradx_main-LOCAL-DOT")
	to, _ := reg.GetAssetBySlug("polkadot-NATIVE-DOT")
	return chain.BridgeRequest{
		OriginChain: "hydradx_main",
		DestChain:   "polkadot",
		OriginToken: from,
		DestToken:   to,
		Sender:      aliceGeneric,
		Recipient:   aliceGeneric,
		Amount:      decimal.NewFromInt(amount),
	}
}

func TestBuildTransfer(t *testing.T) {
	reg, _ := setup(t)
	b := bridge.New(reg, bridge.Config{})

	payload, err := b.BuildTransfer(context.Background(), request(reg, 10_000_000_000))
	assert.NoError(t, err)
	ext, ok := payload.(*models.SubstrateExtrinsic)
	assert.True(t, ok)
	assert.Equal(t, ext.Pallet, "xTokens")
	assert.Equal(t, ext.Args["beneficiary"], alicePolkadot)

	_, err = b.BuildTransfer(context.Background(), request(reg, 0))
	assert.True(t, errors.Is(err, bridge.ErrInvalidAmount))
}

func TestDryRunFee(t *testing.T) {
	reg, _ := setup(t)
	b := bridge.New(reg, bridge.Config{})

	fee, err := b.DryRunFee(context.Background(), request(reg, 10_000_000_000))
	assert.NoError(t, err)
	assert.Equal(t, fee.TokenSlug, "hydradx_main-NATIVE-HDX")
	assert.Equal(t, fee.Amount.String(), "150000000")
}

func TestEvmOriginUnsupported(t *testing.T) {
	reg, _ := setup(t)
	b := bridge.New(reg, bridge.Config{})

	req := request(reg, 1)
	req.OriginChain = "ethereum"
	_, err := b.BuildTransfer(context.Background(), req)
	assert.True(t, errors.Is(err, bridge.ErrUnsupportedOrigin))
}

func TestRouteConfig(t *testing.T) {
	reg, _ := setup(t)
	b := bridge.New(reg, bridge.Config{
		DeliveryFees:     map[string]decimal.Decimal{bridge.RouteKey("hydradx_main", "polkadot"): decimal.NewFromInt(3000)},
		AggregatorRoutes: []string{bridge.RouteKey("polkadot", "ethereum")},
	})

	fee, err := b.DeliveryFee(context.Background(), request(reg, 1))
	assert.NoError(t, err)
	assert.Equal(t, fee.String(), "3000")
	assert.True(t, b.IsAggregatorBridge("polkadot", "ethereum"))
	assert.False(t, b.IsAggregatorBridge("ethereum", "polkadot"))
}
