// Package erc20 packs and reads the ERC-20 calls the core makes.
package erc20

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
)

const erc20ABIJSON = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// ABI is the token ABI used for allowance checks, approvals and transfers
var ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Allowance reads token.allowance(owner, spender)
func Allowance(ctx context.Context, api chain.EvmApi, token, owner, spender string) (*big.Int, error) {
	return callUint(ctx, api, token, "allowance", common.HexToAddress(owner), common.HexToAddress(spender))
}

// BalanceOf reads token.balanceOf(owner)
func BalanceOf(ctx context.Context, api chain.EvmApi, token, owner string) (*big.Int, error) {
	return callUint(ctx, api, token, "balanceOf", common.HexToAddress(owner))
}

func callUint(ctx context.Context, api chain.EvmApi, token, method string, args ...any) (*big.Int, error) {
	data, err := ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	to := common.HexToAddress(token)
	out, err := api.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	values, err := ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s of %s: %w", method, token, err)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s of %s: unexpected %T", method, token, values[0])
	}
	return v, nil
}

// ApproveMax encodes token.approve(spender, 2^256-1)
func ApproveMax(spender string) ([]byte, error) {
	return ABI.Pack("approve", common.HexToAddress(spender), math.MaxBig256)
}

// Transfer encodes token.transfer(to, amount)
func Transfer(to string, amount *big.Int) ([]byte, error) {
	return ABI.Pack("transfer", common.HexToAddress(to), amount)
}
