// Package chaintest provides in-memory implementations of the chain interfaces for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// Balances answers balance queries from a fixed table. Missing entries are zero.
type Balances struct {
	mu     sync.Mutex
	values map[string]decimal.Decimal
	// Err, when set, fails every query
	Err error
}

var _ chain.BalanceService = (*Balances)(nil)

func NewBalances() *Balances {
	return &Balances{values: make(map[string]decimal.Decimal)}
}

func balanceKey(address, chainSlug, token string) string {
	return address + "|" + chainSlug + "|" + token
}

// Set stores a transferable balance in base units
func (b *Balances) Set(address, chainSlug, token string, value int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[balanceKey(address, chainSlug, token)] = decimal.NewFromInt(value)
}

func (b *Balances) GetTransferableBalance(_ context.Context, address, chainSlug, token string, _ models.ExtrinsicType) (*models.AmountData, error) {
	return b.get(address, chainSlug, token)
}

func (b *Balances) GetTotalBalance(_ context.Context, address, chainSlug, token string) (*models.AmountData, error) {
	return b.get(address, chainSlug, token)
}

func (b *Balances) get(address, chainSlug, token string) (*models.AmountData, error) {
	if b.Err != nil {
		return nil, b.Err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return &models.AmountData{Value: b.values[balanceKey(address, chainSlug, token)]}, nil
}

// Confirmations answers every confirmation with Handler and records the requests.
type Confirmations struct {
	mu       sync.Mutex
	Requests []chain.ConfirmationRequest
	Handler  func(req chain.ConfirmationRequest) (*chain.ConfirmationResult, error)
}

var _ chain.ConfirmationService = (*Confirmations)(nil)

func (c *Confirmations) AddConfirmation(ctx context.Context, req chain.ConfirmationRequest) (*chain.ConfirmationResult, error) {
	c.mu.Lock()
	c.Requests = append(c.Requests, req)
	handler := c.Handler
	c.mu.Unlock()
	if handler == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return handler(req)
}

// Count returns how many confirmations were requested
func (c *Confirmations) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

// Notifier records notifications
type Notifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *Notifier) Notify(_ context.Context, note models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *Notifier) Sent() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notification(nil), n.sent...)
}

// Evm is a single chain EVM node. Sent transactions get a receipt with ReceiptStatus.
type Evm struct {
	mu            sync.Mutex
	ID            *big.Int
	BaseFee       *big.Int // nil for a legacy chain
	TipCap        *big.Int
	GasPrice      *big.Int
	GasUsed       uint64
	GasLimit      uint64
	Nonce         uint64
	Gas           uint64
	ReceiptStatus uint64
	// CallResult answers eth_call, e.g. an allowance query
	CallResult []byte
	// NoReceipt keeps every receipt pending
	NoReceipt bool
	SendErr   error

	Sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	balances map[common.Address]*big.Int
}

var _ chain.EvmApi = (*Evm)(nil)

// NewEvm returns an EIP-1559 node with a 10 gwei base fee and successful receipts
func NewEvm(chainID int64) *Evm {
	return &Evm{
		ID:            big.NewInt(chainID),
		BaseFee:       big.NewInt(10_000_000_000),
		TipCap:        big.NewInt(1_000_000_000),
		GasPrice:      big.NewInt(12_000_000_000),
		GasUsed:       15_000_000,
		GasLimit:      30_000_000,
		Gas:           21_000,
		ReceiptStatus: types.ReceiptStatusSuccessful,
		receipts:      make(map[common.Hash]*types.Receipt),
		balances:      make(map[common.Address]*big.Int),
	}
}

func (e *Evm) ChainID(context.Context) (*big.Int, error) { return e.ID, nil }

// SetBalance sets the native balance of account in wei
func (e *Evm) SetBalance(account common.Address, wei *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[account] = wei
}

func (e *Evm) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (e *Evm) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Nonce, nil
}

func (e *Evm) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return e.Gas, nil }

func (e *Evm) SuggestGasPrice(context.Context) (*big.Int, error) { return e.GasPrice, nil }

func (e *Evm) SuggestGasTipCap(context.Context) (*big.Int, error) { return e.TipCap, nil }

func (e *Evm) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{
		Number:   big.NewInt(1),
		BaseFee:  e.BaseFee,
		GasUsed:  e.GasUsed,
		GasLimit: e.GasLimit,
	}, nil
}

func (e *Evm) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return e.CallResult, nil
}

func (e *Evm) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if e.SendErr != nil {
		return e.SendErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Sent = append(e.Sent, tx)
	e.Nonce++
	if !e.NoReceipt {
		e.receipts[tx.Hash()] = &types.Receipt{Status: e.ReceiptStatus, TxHash: tx.Hash(), BlockNumber: big.NewInt(2)}
	}
	return nil
}

// AddReceipt resolves a hash that was broadcast elsewhere, e.g. by an injected signer
func (e *Evm) AddReceipt(hash common.Hash, status uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.receipts[hash] = &types.Receipt{Status: status, TxHash: hash, BlockNumber: big.NewInt(2)}
}

func (e *Evm) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// Substrate replays Statuses for every submitted extrinsic.
type Substrate struct {
	mu         sync.Mutex
	Fee        *big.Int
	FeeRate    int64 // fee asset units per native unit
	Statuses   []chain.ExtrinsicStatus
	SubmitErr  error
	Submitted  []*chain.SignerPayload
	Signatures []string
}

var _ chain.SubstrateApi = (*Substrate)(nil)

// NewSubstrate returns a node that finalizes every extrinsic with ExtrinsicSuccess
func NewSubstrate() *Substrate {
	return &Substrate{
		Fee:     big.NewInt(150_000_000),
		FeeRate: 2,
		Statuses: []chain.ExtrinsicStatus{
			{Kind: chain.ExtrinsicBroadcast, ExtrinsicHash: "0xabc1"},
			{Kind: chain.ExtrinsicInBlock, ExtrinsicHash: "0xabc1", BlockHash: "0xb10c"},
			{Kind: chain.ExtrinsicFinalized, ExtrinsicHash: "0xabc1", BlockHash: "0xb10c",
				Events: []chain.SystemEvent{{Pallet: "system", Method: "ExtrinsicSuccess"}}},
		},
	}
}

func (s *Substrate) CreateSignerPayload(_ context.Context, ext *models.SubstrateExtrinsic, address string) (*chain.SignerPayload, error) {
	return &chain.SignerPayload{
		Address: address,
		Method:  fmt.Sprintf("0x%s.%s", ext.Pallet, ext.Call),
		AssetID: ext.FeeAssetID,
		Tip:     ext.Tip.String(),
		Raw:     "0x0102",
	}, nil
}

func (s *Substrate) PaymentInfo(context.Context, *models.SubstrateExtrinsic, string) (*big.Int, error) {
	return s.Fee, nil
}

func (s *Substrate) ConvertFeeToAsset(_ context.Context, nativeFee *big.Int, _ string) (*big.Int, error) {
	return new(big.Int).Mul(nativeFee, big.NewInt(s.FeeRate)), nil
}

func (s *Substrate) SubmitAndWatch(ctx context.Context, payload *chain.SignerPayload, signature string) (<-chan chain.ExtrinsicStatus, error) {
	if s.SubmitErr != nil {
		return nil, s.SubmitErr
	}
	s.mu.Lock()
	s.Submitted = append(s.Submitted, payload)
	s.Signatures = append(s.Signatures, signature)
	statuses := append([]chain.ExtrinsicStatus(nil), s.Statuses...)
	s.mu.Unlock()

	ch := make(chan chain.ExtrinsicStatus)
	go func() {
		defer close(ch)
		for _, st := range statuses {
			select {
			case ch <- st:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Ton resolves every external message with Success after PendingPolls lookups.
type Ton struct {
	mu           sync.Mutex
	Success      bool
	PendingPolls int
	// NoTxHash reports landed messages without their transaction hash
	NoTxHash bool
	polls        int
	Sent         []string
}

var _ chain.TonApi = (*Ton)(nil)

func (t *Ton) CreateTransferCell(_ context.Context, from string, msgs []*models.TonTransferPayload) (string, error) {
	if len(msgs) == 0 {
		return "", errors.New("no messages")
	}
	return "cell:" + from + ":" + msgs[0].To, nil
}

func (t *Ton) CreateExternalMessage(_ context.Context, _, cell, signature string) (string, string, error) {
	return "boc:" + cell + ":" + signature, "msg:" + signature, nil
}

func (t *Ton) SendBoc(_ context.Context, boc string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Sent = append(t.Sent, boc)
	return nil
}

func (t *Ton) GetStatusByMessageHash(_ context.Context, msgHash string) (*chain.TonMessageStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.polls++
	if t.polls <= t.PendingPolls {
		return &chain.TonMessageStatus{}, nil
	}
	st := &chain.TonMessageStatus{Found: true, Success: t.Success, TxHash: "tx:" + msgHash}
	if t.NoTxHash {
		st.TxHash = ""
	}
	return st, nil
}

// Cardano returns fixed protocol parameters
type Cardano struct {
	Params chain.CardanoParams
}

var _ chain.CardanoApi = (*Cardano)(nil)

func (c *Cardano) ProtocolParameters(context.Context) (*chain.CardanoParams, error) {
	p := c.Params
	return &p, nil
}

func (c *Cardano) SubmitTx(context.Context, string) (string, error) {
	return "", errors.New("not supported")
}
