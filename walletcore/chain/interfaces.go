// Package chain declares what the wallet core consumes from the rest of the wallet:
// chain registry, balances, fees, confirmations, notifications and per chain type API handles.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// Registry resolves chain and asset metadata and per chain API handles.
type Registry interface {
	GetAssetBySlug(slug string) (*models.Asset, error)
	GetChainInfoByKey(slug string) (*models.ChainInfo, error)
	GetChainStateByKey(slug string) (*models.ChainState, error)
	GetNativeAsset(chain string) (*models.Asset, error)
	GetAssetRefMap() map[string]models.AssetRef
	GetEvmApi(chain string) (EvmApi, error)
	GetSubstrateApi(chain string) (SubstrateApi, error)
	GetTonApi(chain string) (TonApi, error)
	GetCardanoApi(chain string) (CardanoApi, error)
	EnableChain(ctx context.Context, chain string) error
}

// BalanceService supplies balances per (address, chain, token).
type BalanceService interface {
	GetTransferableBalance(ctx context.Context, address, chain, tokenSlug string, extrinsicType models.ExtrinsicType) (*models.AmountData, error)
	GetTotalBalance(ctx context.Context, address, chain, tokenSlug string) (*models.AmountData, error)
}

// FeeService hands out fee quotes and pushes refreshed ones to subscribers
type FeeService interface {
	SubscribeChainFee(ctx context.Context, subscriberID, chain string, chainType models.ChainType, cb func(*models.FeeInfo)) (*models.FeeInfo, error)
	UnsubscribeChainFee(subscriberID, chain string)
}

// ConfirmationType names the signing flow a confirmation belongs to
type ConfirmationType string

const (
	ConfirmEvmSendTransaction ConfirmationType = "evmSendTransactionRequest"
	ConfirmEvmSignature       ConfirmationType = "evmSignatureRequest"
	ConfirmTonSendTransaction ConfirmationType = "tonSendTransactionRequest"
	ConfirmSubmitApi          ConfirmationType = "submitApiRequest"
)

// ConfirmationRequest is shown to the user for approval or signing
type ConfirmationRequest struct {
	ID      string           `json:"id"`
	URL     string           `json:"url"`
	Type    ConfirmationType `json:"type"`
	Address string           `json:"address"`
	Chain   string           `json:"chain"`
	Payload any              `json:"payload"`
	// Injected requests are answered by an external signer that also broadcasts
	Injected bool `json:"injected"`
}

// ConfirmationResult carries the user decision. Payload is a signature or, for injected
// signers, the broadcast transaction hash.
type ConfirmationResult struct {
	IsApproved bool   `json:"is_approved"`
	Payload    string `json:"payload"`
}

// ConfirmationService round-trips requests through the UI boundary. It blocks until answered.
type ConfirmationService interface {
	AddConfirmation(ctx context.Context, req ConfirmationRequest) (*ConfirmationResult, error)
}

// Notifier delivers user notifications
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// EvmApi is the part of an EVM JSON-RPC client the core uses. *ethclient.Client satisfies it.
type EvmApi interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// SignerPayload is a Substrate payload ready for signing
type SignerPayload struct {
	Address     string `json:"address"`
	Method      string `json:"method"` // hex encoded call
	Nonce       uint64 `json:"nonce"`
	BlockHash   string `json:"block_hash"`
	GenesisHash string `json:"genesis_hash"`
	SpecVersion uint32 `json:"spec_version"`
	TxVersion   uint32 `json:"transaction_version"`
	Tip         string `json:"tip"`
	AssetID     string `json:"asset_id,omitempty"`
	Raw         string `json:"raw"` // hex bytes to sign
}

// ExtrinsicStatusKind is one stage of an extrinsic on a Substrate chain
type ExtrinsicStatusKind string

const (
	ExtrinsicBroadcast ExtrinsicStatusKind = "broadcast"
	ExtrinsicInBlock   ExtrinsicStatusKind = "inBlock"
	ExtrinsicFinalized ExtrinsicStatusKind = "finalized"
	ExtrinsicDropped   ExtrinsicStatusKind = "dropped"
	ExtrinsicInvalid   ExtrinsicStatusKind = "invalid"
)

// SystemEvent is an event emitted by the extrinsic
type SystemEvent struct {
	Pallet        string `json:"pallet"`
	Method        string `json:"method"`
	DispatchError string `json:"dispatch_error,omitempty"`
}

// ExtrinsicStatus is one update of a watched extrinsic
type ExtrinsicStatus struct {
	Kind          ExtrinsicStatusKind
	ExtrinsicHash string
	BlockHash     string
	Events        []SystemEvent
}

// SubstrateApi is the Substrate API handle of one chain.
type SubstrateApi interface {
	CreateSignerPayload(ctx context.Context, ext *models.SubstrateExtrinsic, address string) (*SignerPayload, error)
	// PaymentInfo dry runs the extrinsic and returns its native fee
	PaymentInfo(ctx context.Context, ext *models.SubstrateExtrinsic, address string) (*big.Int, error)
	// ConvertFeeToAsset prices a native fee in a fee payment asset
	ConvertFeeToAsset(ctx context.Context, nativeFee *big.Int, assetID string) (*big.Int, error)
	// SubmitAndWatch closes the channel after a final status
	SubmitAndWatch(ctx context.Context, payload *SignerPayload, signature string) (<-chan ExtrinsicStatus, error)
}

// TonMessageStatus is the resolution of an external message
type TonMessageStatus struct {
	Found   bool   `json:"found"`
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash"`
}

// TonApi is the TON API handle of one chain
type TonApi interface {
	CreateTransferCell(ctx context.Context, from string, msgs []*models.TonTransferPayload) (cell string, err error)
	CreateExternalMessage(ctx context.Context, from, cell, signature string) (boc, msgHash string, err error)
	SendBoc(ctx context.Context, boc string) error
	GetStatusByMessageHash(ctx context.Context, msgHash string) (*TonMessageStatus, error)
}

// CardanoParams are the protocol parameters used for fee estimation
type CardanoParams struct {
	MinFeeA int64 `json:"min_fee_a"`
	MinFeeB int64 `json:"min_fee_b"`
}

// CardanoApi is the Cardano API handle of one chain
type CardanoApi interface {
	ProtocolParameters(ctx context.Context) (*CardanoParams, error)
	SubmitTx(ctx context.Context, cbor string) (txHash string, err error)
}

// BridgeRequest describes one bridge leg
type BridgeRequest struct {
	OriginChain string
	DestChain   string
	OriginToken *models.Asset
	DestToken   *models.Asset
	Sender      string
	Recipient   string
	Amount      decimal.Decimal
}

// BridgeService builds and prices bridge transfers
type BridgeService interface {
	// DryRunFee estimates the fee the origin chain charges for the transfer
	DryRunFee(ctx context.Context, req BridgeRequest) (*models.FeeAmount, error)
	// DeliveryFee is charged in the bridged token on top of the execution fee
	DeliveryFee(ctx context.Context, req BridgeRequest) (decimal.Decimal, error)
	IsAggregatorBridge(originChain, destChain string) bool
	BuildTransfer(ctx context.Context, req BridgeRequest) (models.TransactionPayload, error)
}
