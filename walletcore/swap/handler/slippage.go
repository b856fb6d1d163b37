package handler

import "github.com/shopspring/decimal"

// MinReceive is the amount still received at the worst accepted price.
// slippage is a fraction (0.01 = 1%), the result is rounded down to base units.
// minReceive = expected * (1 - slippage)
func MinReceive(expected, slippage decimal.Decimal) decimal.Decimal {
	if slippage.IsNegative() {
		slippage = decimal.Zero
	}
	if slippage.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero
	}
	return expected.Mul(decimal.NewFromInt(1).Sub(slippage)).Floor()
}

// SlippageBps converts a slippage fraction to basis points (100 = 1%)
func SlippageBps(slippage decimal.Decimal) int64 {
	return slippage.Mul(decimal.NewFromInt(10_000)).Round(0).IntPart()
}
