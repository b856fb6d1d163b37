package models

import (
	"math/big"
	"time"
)

// FeeOption is the speed a fee tier targets
type FeeOption string

const (
	FeeSlow    FeeOption = "slow"
	FeeAverage FeeOption = "average"
	FeeFast    FeeOption = "fast"
)

// EvmFeeTier is an EIP-1559 fee tier
type EvmFeeTier struct {
	MaxFeePerGas         *big.Int `json:"max_fee_per_gas"`
	MaxPriorityFeePerGas *big.Int `json:"max_priority_fee_per_gas"`
}

// FeeInfo is the fee oracle answer for one chain. Which fields are set depends on the chain type.
type FeeInfo struct {
	Chain     string    `json:"chain"`
	ChainType ChainType `json:"chain_type"`
	// legacy EVM chains
	GasPrice *big.Int `json:"gas_price,omitempty"`
	// EIP-1559 chains
	BaseFee     *big.Int                 `json:"base_fee,omitempty"`
	EvmOptions  map[FeeOption]EvmFeeTier `json:"evm_options,omitempty"`
	BusyNetwork bool                     `json:"busy_network"`
	// substrate and ton tip tiers, in native base units
	TipOptions map[FeeOption]*big.Int `json:"tip_options,omitempty"`
	// cardano linear fee: MinFeeA per byte plus MinFeeB
	MinFeeA   int64     `json:"min_fee_a,omitempty"`
	MinFeeB   int64     `json:"min_fee_b,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLegacy reports whether the EVM chain has no base fee
func (f *FeeInfo) IsLegacy() bool {
	return f.ChainType == ChainTypeEvm && f.BaseFee == nil
}
