package fee

import (
	"context"
	"math/big"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// busyThreshold is the share of the block gas limit, in percent, above which the network is busy
const busyThreshold = 90

// tier multipliers in percent: base fee headroom and priority fee scale
var evmTiers = []struct {
	option   models.FeeOption
	baseFee  int64
	priority int64
}{
	{models.FeeSlow, 110, 80},
	{models.FeeAverage, 125, 100},
	{models.FeeFast, 150, 150},
}

func evmFeeInfo(ctx context.Context, api chain.EvmApi) (*models.FeeInfo, error) {
	header, err := api.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}

	if header.BaseFee == nil {
		gasPrice, err := api.SuggestGasPrice(ctx)
		if err != nil {
			return nil, err
		}
		return &models.FeeInfo{GasPrice: gasPrice}, nil
	}

	tip, err := api.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}

	busy := header.GasLimit > 0 && header.GasUsed*100/header.GasLimit > busyThreshold
	options := make(map[models.FeeOption]models.EvmFeeTier, len(evmTiers))
	for _, t := range evmTiers {
		baseFee := percent(header.BaseFee, t.baseFee)
		if busy {
			baseFee = percent(baseFee, 120)
		}
		priority := percent(tip, t.priority)
		options[t.option] = models.EvmFeeTier{
			MaxFeePerGas:         new(big.Int).Add(baseFee, priority),
			MaxPriorityFeePerGas: priority,
		}
	}

	return &models.FeeInfo{
		BaseFee:     new(big.Int).Set(header.BaseFee),
		EvmOptions:  options,
		BusyNetwork: busy,
	}, nil
}

func percent(v *big.Int, pct int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(pct))
	return out.Quo(out, big.NewInt(100))
}
