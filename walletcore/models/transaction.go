package models

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
)

// ExtrinsicType is what a transaction does
type ExtrinsicType string

const (
	ExtrinsicSwap            ExtrinsicType = "swap"
	ExtrinsicTokenApproval   ExtrinsicType = "token.spending_approval"
	ExtrinsicTokenPermit     ExtrinsicType = "token.permit"
	ExtrinsicTransferXcm     ExtrinsicType = "transfer.xcm"
	ExtrinsicTransferBalance ExtrinsicType = "transfer.balance"
	ExtrinsicTransferToken   ExtrinsicType = "transfer.token"
)

// TransactionStatus is the lifecycle state of one transaction.
type TransactionStatus string

const (
	TxStatusQueued     TransactionStatus = "QUEUED"
	TxStatusSubmitting TransactionStatus = "SUBMITTING"
	TxStatusProcessing TransactionStatus = "PROCESSING"
	TxStatusSuccess    TransactionStatus = "SUCCESS"
	TxStatusFail       TransactionStatus = "FAIL"
	TxStatusTimeout    TransactionStatus = "TIMEOUT"
)

// IsFinal reports whether no further status change is expected.
// TIMEOUT is not final, a late receipt can still resolve it.
func (s TransactionStatus) IsFinal() bool {
	return s == TxStatusSuccess || s == TxStatusFail
}

var allowedTransitions = map[TransactionStatus][]TransactionStatus{
	TxStatusQueued:     {TxStatusSubmitting},
	TxStatusSubmitting: {TxStatusProcessing, TxStatusFail},
	TxStatusProcessing: {TxStatusSuccess, TxStatusFail},
	TxStatusTimeout:    {TxStatusSuccess, TxStatusFail},
}

// CanTransition reports whether from -> to is a legal status change
func CanTransition(from, to TransactionStatus) bool {
	if to == TxStatusTimeout {
		return !from.IsFinal() && from != TxStatusTimeout
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PayloadKind tags the chain specific payload of a transaction
type PayloadKind string

const (
	PayloadEvm        PayloadKind = "evm"
	PayloadSubstrate  PayloadKind = "substrate"
	PayloadTon        PayloadKind = "ton"
	PayloadPermit     PayloadKind = "permit"
	PayloadDutchOrder PayloadKind = "dutch_order"
)

// TransactionPayload is the chain specific body of a transaction.
type TransactionPayload interface {
	Kind() PayloadKind
}

// EvmTransactionConfig is an EVM transaction. Unset nonce, gas and fee fields get resolved before signing.
type EvmTransactionConfig struct {
	ChainID              int64         `json:"chain_id"`
	From                 string        `json:"from"`
	To                   string        `json:"to"`
	Value                *big.Int      `json:"value,omitempty"`
	Data                 hexutil.Bytes `json:"data,omitempty"`
	Gas                  uint64        `json:"gas,omitempty"`
	GasPrice             *big.Int      `json:"gas_price,omitempty"`
	MaxFeePerGas         *big.Int      `json:"max_fee_per_gas,omitempty"`
	MaxPriorityFeePerGas *big.Int      `json:"max_priority_fee_per_gas,omitempty"`
	Nonce                *uint64       `json:"nonce,omitempty"`
}

func (*EvmTransactionConfig) Kind() PayloadKind { return PayloadEvm }

// SubstrateExtrinsic is an unsigned extrinsic described by pallet and call.
type SubstrateExtrinsic struct {
	Pallet string         `json:"pallet"`
	Call   string         `json:"call"`
	Args   map[string]any `json:"args"`
	// FeeAssetID asks for fee payment in a non native asset
	FeeAssetID string          `json:"fee_asset_id,omitempty"`
	Tip        decimal.Decimal `json:"tip"`
}

func (*SubstrateExtrinsic) Kind() PayloadKind { return PayloadSubstrate }

// TonTransferPayload is a TON internal message request
type TonTransferPayload struct {
	To        string          `json:"to"`
	Amount    decimal.Decimal `json:"amount"`     // nanotons
	Payload   string          `json:"payload"`    // base64 BOC body
	StateInit string          `json:"state_init"` // base64 BOC
	Bounce    bool            `json:"bounce"`
}

func (*TonTransferPayload) Kind() PayloadKind { return PayloadTon }

// PermitPayload is an EIP-712 signature request. It never reaches a chain.
type PermitPayload struct {
	Owner     string             `json:"owner"`
	TypedData apitypes.TypedData `json:"typed_data"`
}

func (*PermitPayload) Kind() PayloadKind { return PayloadPermit }

// OrderStatus is the answer of an off-chain order book
type OrderStatus struct {
	Status string `json:"status"` // open, filled, expired, cancelled, error
	TxHash string `json:"tx_hash,omitempty"`
}

const (
	OrderStatusOpen      = "open"
	OrderStatusFilled    = "filled"
	OrderStatusExpired   = "expired"
	OrderStatusCancelled = "cancelled"
	OrderStatusError     = "error"
)

// OrderClient submits Dutch orders and reports their status
type OrderClient interface {
	SubmitOrder(ctx context.Context, order *DutchOrderPayload) (orderHash string, err error)
	OrderStatus(ctx context.Context, orderHash string) (*OrderStatus, error)
}

// DutchOrderPayload is an off-chain order filled by third party fillers.
type DutchOrderPayload struct {
	EncodedOrder string `json:"encoded_order"`
	Signature    string `json:"signature"` // order signature from the preceding permit step
	QuoteID      string `json:"quote_id"`
	ChainID      int64  `json:"chain_id"`
	// MaxPolls bounds how many status checks are made before giving up
	MaxPolls int         `json:"max_polls"`
	Client   OrderClient `json:"-"`
}

func (*DutchOrderPayload) Kind() PayloadKind { return PayloadDutchOrder }

// TransactionStepRef links a transaction to a process step
type TransactionStepRef struct {
	ProcessID string `json:"process_id"`
	StepID    int    `json:"step_id"`
}

// FeeAmount is an amount of a fee token
type FeeAmount struct {
	Amount    decimal.Decimal `json:"amount"`
	TokenSlug string          `json:"token_slug"`
}

// Transaction is the in-memory record of one chain transaction.
type Transaction struct {
	ID             string                `json:"id"`
	Address        string                `json:"address"`
	Chain          string                `json:"chain"`
	ChainType      ChainType             `json:"chain_type"`
	ExtrinsicType  ExtrinsicType         `json:"extrinsic_type"`
	Status         TransactionStatus     `json:"status"`
	ExtrinsicHash  string                `json:"extrinsic_hash,omitempty"`
	Errors         []*TransactionError   `json:"errors"`
	Warnings       []*TransactionWarning `json:"warnings"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	Step           *TransactionStepRef   `json:"step,omitempty"`
	URL            string                `json:"url,omitempty"`
	ErrorOnTimeout bool                  `json:"error_on_timeout,omitempty"`
	Data           any                   `json:"data,omitempty"`
	EstimateFee    *FeeAmount            `json:"estimate_fee,omitempty"`
	Signature      string                `json:"signature,omitempty"`
	Payload        TransactionPayload    `json:"-"`
}

// Clone copies the transaction so it can be handed out as a snapshot
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.Errors = append([]*TransactionError(nil), t.Errors...)
	c.Warnings = append([]*TransactionWarning(nil), t.Warnings...)
	if t.Step != nil {
		step := *t.Step
		c.Step = &step
	}
	return &c
}

// HistoryItem is the durable record of a transaction, keyed by extrinsic hash once known.
type HistoryItem struct {
	TransactionID string            `json:"transaction_id"`
	Chain         string            `json:"chain"`
	ChainType     ChainType         `json:"chain_type"`
	Address       string            `json:"address"`
	ExtrinsicType ExtrinsicType     `json:"extrinsic_type"`
	ExtrinsicHash string            `json:"extrinsic_hash,omitempty"`
	Status        TransactionStatus `json:"status"`
	ProcessID     string            `json:"process_id,omitempty"`
	Fee           *FeeAmount        `json:"fee,omitempty"`
	Data          any               `json:"data,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	Time          time.Time         `json:"time"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// HistoryPatch is a partial update of a history item. Nil fields are left alone.
type HistoryPatch struct {
	ExtrinsicHash *string
	Status        *TransactionStatus
	ErrorMessage  *string
}

// Apply writes the set fields of the patch into item
func (p HistoryPatch) Apply(item *HistoryItem, now time.Time) {
	if p.ExtrinsicHash != nil {
		item.ExtrinsicHash = *p.ExtrinsicHash
	}
	if p.Status != nil {
		item.Status = *p.Status
	}
	if p.ErrorMessage != nil {
		item.ErrorMessage = *p.ErrorMessage
	}
	item.UpdatedAt = now
}

// Notification is sent on every terminal transaction state
type Notification struct {
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Status  TransactionStatus `json:"status"`
	Link    string            `json:"link,omitempty"`
}
