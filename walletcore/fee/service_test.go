package fee_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain/chaintest"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/fee"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/registry"
)

func newRegistry(t *testing.T) (*registry.Registry, *chaintest.Evm) {
	t.Helper()
	reg, err := registry.New([]models.ChainInfo{
		{Slug: "ethereum", ChainType: models.ChainTypeEvm, EvmChainID: 1},
		{Slug: "bsc", ChainType: models.ChainTypeEvm, EvmChainID: 56},
		{Slug: "cardano", ChainType: models.ChainTypeCardano},
		{Slug: "polkadot", ChainType: models.ChainTypeSubstrate},
	}, nil, nil)
	assert.NoError(t, err)

	evm := chaintest.NewEvm(1)
	reg.SetEvmApi("ethereum", evm)

	legacy := chaintest.NewEvm(56)
	legacy.BaseFee = nil
	reg.SetEvmApi("bsc", legacy)

	reg.SetCardanoApi("cardano", &chaintest.Cardano{Params: chain.CardanoParams{MinFeeA: 44, MinFeeB: 155381}})
	return reg, evm
}

func TestEvmTiers(t *testing.T) {
	reg, _ := newRegistry(t)
	svc := fee.NewService(reg, time.Minute)

	info, err := svc.GetChainFee(context.Background(), "ethereum", models.ChainTypeEvm)
	assert.NoError(t, err)
	assert.False(t, info.IsLegacy())
	assert.False(t, info.BusyNetwork)
	assert.Equal(t, info.BaseFee.String(), "10000000000")

	avg := info.EvmOptions[models.FeeAverage]
	// 10 gwei * 1.25 + 1 gwei
	assert.Equal(t, avg.MaxFeePerGas.String(), "13500000000")
	assert.Equal(t, avg.MaxPriorityFeePerGas.String(), "1000000000")

	slow := info.EvmOptions[models.FeeSlow]
	fast := info.EvmOptions[models.FeeFast]
	assert.True(t, slow.MaxFeePerGas.Cmp(avg.MaxFeePerGas) < 0)
	assert.True(t, fast.MaxFeePerGas.Cmp(avg.MaxFeePerGas) > 0)
}

func TestBusyNetwork(t *testing.T) {
	reg, evm := newRegistry(t)
	evm.GasUsed = 29_000_000
	svc := fee.NewService(reg, time.Minute)

	info, err := svc.GetChainFee(context.Background(), "ethereum", models.ChainTypeEvm)
	assert.NoError(t, err)
	assert.True(t, info.BusyNetwork)
	// 10 gwei * 1.25 * 1.2 + 1 gwei
	assert.Equal(t, info.EvmOptions[models.FeeAverage].MaxFeePerGas.String(), "16000000000")
}

func TestLegacyAndOtherChains(t *testing.T) {
	reg, _ := newRegistry(t)
	svc := fee.NewService(reg, time.Minute)
	ctx := context.Background()

	info, err := svc.GetChainFee(ctx, "bsc", models.ChainTypeEvm)
	assert.NoError(t, err)
	assert.True(t, info.IsLegacy())
	assert.Equal(t, info.GasPrice.String(), "12000000000")

	info, err = svc.GetChainFee(ctx, "cardano", models.ChainTypeCardano)
	assert.NoError(t, err)
	assert.Equal(t, info.MinFeeA, int64(44))
	assert.Equal(t, info.MinFeeB, int64(155381))

	info, err = svc.GetChainFee(ctx, "polkadot", models.ChainTypeSubstrate)
	assert.NoError(t, err)
	assert.Equal(t, info.TipOptions[models.FeeFast].Cmp(big.NewInt(0)), 0)

	_, err = svc.GetChainFee(ctx, "polkadot", models.ChainType("solana"))
	assert.Error(t, err)
}

func TestSubscribersReceiveRefresh(t *testing.T) {
	reg, evm := newRegistry(t)
	svc := fee.NewService(reg, time.Minute)
	ctx := context.Background()

	var got []*models.FeeInfo
	first, err := svc.SubscribeChainFee(ctx, "tx-1", "ethereum", models.ChainTypeEvm, func(info *models.FeeInfo) {
		got = append(got, info)
	})
	assert.NoError(t, err)
	assert.Equal(t, first.BaseFee.String(), "10000000000")

	evm.BaseFee = big.NewInt(20_000_000_000)
	svc.RefreshSubscribed(ctx)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0].BaseFee.String(), "20000000000")

	svc.UnsubscribeChainFee("tx-1", "ethereum")
	svc.RefreshSubscribed(ctx)
	assert.Equal(t, len(got), 1)
}
