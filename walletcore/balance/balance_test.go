package balance_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/balance"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain/chaintest"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/registry"
)

const owner = "0x000000000000000000000000000000000000dEaD"

func newRegistry(t *testing.T) (*registry.Registry, *chaintest.Evm) {
	t.Helper()
	reg, err := registry.New([]models.ChainInfo{
		{Slug: "ethereum", ChainType: models.ChainTypeEvm, EvmChainID: 1, NativeTokenSlug: "ethereum-NATIVE-ETH"},
		{Slug: "polkadot", ChainType: models.ChainTypeSubstrate, NativeTokenSlug: "polkadot-NATIVE-DOT"},
	}, []models.Asset{
		{Slug: "ethereum-NATIVE-ETH", OriginChain: "ethereum", Symbol: "ETH", Decimals: 18, AssetType: models.AssetTypeNative},
		{Slug: "ethereum-ERC20-USDC", OriginChain: "ethereum", Symbol: "USDC", Decimals: 6, AssetType: models.AssetTypeErc20,
			ContractAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
		{Slug: "polkadot-NATIVE-DOT", OriginChain: "polkadot", Symbol: "DOT", Decimals: 10, AssetType: models.AssetTypeNative},
	}, nil)
	assert.NoError(t, err)
	evm := chaintest.NewEvm(1)
	reg.SetEvmApi("ethereum", evm)
	return reg, evm
}

func TestNativeBalance(t *testing.T) {
	reg, evm := newRegistry(t)
	evm.SetBalance(common.HexToAddress(owner), big.NewInt(42_000))
	svc := balance.NewService(reg)

	got, err := svc.GetTransferableBalance(context.Background(), owner, "ethereum", "ethereum-NATIVE-ETH", models.ExtrinsicSwap)
	assert.NoError(t, err)
	assert.Equal(t, got.Value.String(), "42000")
	assert.Equal(t, got.Decimals, int32(18))
	assert.Equal(t, got.Symbol, "ETH")
}

func TestTokenBalance(t *testing.T) {
	reg, evm := newRegistry(t)
	evm.CallResult = common.LeftPadBytes(big.NewInt(1_500_000).Bytes(), 32)
	svc := balance.NewService(reg)

	got, err := svc.GetTotalBalance(context.Background(), owner, "ethereum", "ethereum-ERC20-USDC")
	assert.NoError(t, err)
	assert.Equal(t, got.Value.String(), "1500000")
	assert.Equal(t, got.Symbol, "USDC")
}

func TestOtherChainsUseFallback(t *testing.T) {
	reg, _ := newRegistry(t)
	svc := balance.NewService(reg)

	_, err := svc.GetTotalBalance(context.Background(), owner, "polkadot", "polkadot-NATIVE-DOT")
	var txErr *models.TransactionError
	assert.True(t, errors.As(err, &txErr))
	assert.Equal(t, txErr.ErrorType, models.ErrUnsupported)

	fallback := chaintest.NewBalances()
	fallback.Set("15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5", "polkadot", "polkadot-NATIVE-DOT", 7)
	svc.Fallback = fallback
	got, err := svc.GetTotalBalance(context.Background(), "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5", "polkadot", "polkadot-NATIVE-DOT")
	assert.NoError(t, err)
	assert.Equal(t, got.Value.String(), "7")
}

func TestInvalidEvmAddress(t *testing.T) {
	reg, _ := newRegistry(t)
	svc := balance.NewService(reg)

	_, err := svc.GetTransferableBalance(context.Background(), "nope", "ethereum", "ethereum-NATIVE-ETH", models.ExtrinsicSwap)
	var txErr *models.TransactionError
	assert.True(t, errors.As(err, &txErr))
	assert.Equal(t, txErr.ErrorType, models.ErrInvalidParams)
}
