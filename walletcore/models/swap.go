package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ActionKind is the kind of one hop in a path
type ActionKind string

const (
	ActionSwap   ActionKind = "SWAP"
	ActionBridge ActionKind = "BRIDGE"
)

// SwapPair is an ordered pair of asset slugs
type SwapPair struct {
	From string `json:"from"` // asset slug
	To   string `json:"to"`   // asset slug
	Slug string `json:"slug"` // "from___to"
}

// NewSwapPair builds a pair with its slug filled in
func NewSwapPair(from, to string) SwapPair {
	return SwapPair{From: from, To: to, Slug: AssetRefKey(from, to)}
}

// DynamicSwapAction is a single step intent of a path.
type DynamicSwapAction struct {
	Action ActionKind `json:"action"`
	Pair   SwapPair   `json:"pair"`
}

// ActionKinds projects a path onto its action kinds
func ActionKinds(path []DynamicSwapAction) []ActionKind {
	kinds := make([]ActionKind, len(path))
	for i, a := range path {
		kinds[i] = a.Action
	}
	return kinds
}

// IsCrossChain reports whether the path carries any bridge hop
func IsCrossChain(path []DynamicSwapAction) bool {
	for _, a := range path {
		if a.Action == ActionBridge {
			return true
		}
	}
	return false
}

// SwapLeg returns the first swap action of the path
func SwapLeg(path []DynamicSwapAction) (DynamicSwapAction, bool) {
	for _, a := range path {
		if a.Action == ActionSwap {
			return a, true
		}
	}
	return DynamicSwapAction{}, false
}

// ProcessShape is the canonical action sequence of a swap process.
type ProcessShape string

const (
	ShapeSwap        ProcessShape = "swap"
	ShapeSwapXcm     ProcessShape = "swapXcm"
	ShapeXcmSwap     ProcessShape = "xcmSwap"
	ShapeXcmSwapXcm  ProcessShape = "xcmSwapXcm"
	ShapeUnsupported ProcessShape = ""
)

// ShapeOf matches the action sequence of a path against the supported templates.
func ShapeOf(path []DynamicSwapAction) ProcessShape {
	kinds := ActionKinds(path)
	switch {
	case matchKinds(kinds, ActionSwap):
		return ShapeSwap
	case matchKinds(kinds, ActionSwap, ActionBridge):
		return ShapeSwapXcm
	case matchKinds(kinds, ActionBridge, ActionSwap):
		return ShapeXcmSwap
	case matchKinds(kinds, ActionBridge, ActionSwap, ActionBridge):
		return ShapeXcmSwapXcm
	default:
		return ShapeUnsupported
	}
}

func matchKinds(kinds []ActionKind, want ...ActionKind) bool {
	if len(kinds) != len(want) {
		return false
	}
	for i := range kinds {
		if kinds[i] != want[i] {
			return false
		}
	}
	return true
}

// SwapProvider identifies a liquidity venue
type SwapProvider struct {
	ID   string `json:"id"`   // e.g. "HYDRADX_MAINNET"
	Name string `json:"name"` // e.g. "HydraDX"
}

// FeeType labels one fee component
type FeeType string

const (
	FeeTypeNetwork  FeeType = "NETWORK_FEE"
	FeeTypePlatform FeeType = "PLATFORM_FEE"
	FeeTypeLP       FeeType = "LIQUIDITY_PROVIDER_FEE"
)

// FeeComponent is one fee charged by a step or a quote
type FeeComponent struct {
	FeeType   FeeType         `json:"fee_type"`
	Amount    decimal.Decimal `json:"amount"`
	TokenSlug string          `json:"token_slug"`
}

// SwapFeeInfo is the fee breakdown of a quote or a step.
type SwapFeeInfo struct {
	FeeComponent     []FeeComponent `json:"fee_component"`
	DefaultFeeToken  string         `json:"default_fee_token"`
	FeeOptions       []string       `json:"fee_options"`
	SelectedFeeToken string         `json:"selected_fee_token,omitempty"`
}

// NetworkFee sums the network fee components paid in token
func (f SwapFeeInfo) NetworkFee(token string) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range f.FeeComponent {
		if c.FeeType == FeeTypeNetwork && c.TokenSlug == token {
			sum = sum.Add(c.Amount)
		}
	}
	return sum
}

// FeeToken is the token the network fee is paid in
func (f SwapFeeInfo) FeeToken() string {
	if f.SelectedFeeToken != "" {
		return f.SelectedFeeToken
	}
	return f.DefaultFeeToken
}

// SwapQuote is one provider's price for a direct pair.
type SwapQuote struct {
	Provider   SwapProvider    `json:"provider"`
	Pair       SwapPair        `json:"pair"`
	FromAmount decimal.Decimal `json:"from_amount"`
	ToAmount   decimal.Decimal `json:"to_amount"`
	Rate       decimal.Decimal `json:"rate"`
	FeeInfo    SwapFeeInfo     `json:"fee_info"`
	AliveUntil time.Time       `json:"alive_until"`
	// Metadata is provider owned: routing hints, permit data, router addresses
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// IsExpired reports whether the quote can no longer be acted upon
func (q *SwapQuote) IsExpired(now time.Time) bool {
	return !q.AliveUntil.After(now)
}

// DecodeMetadata unmarshals the provider metadata into v
func (q *SwapQuote) DecodeMetadata(v any) error {
	if len(q.Metadata) == 0 {
		return fmt.Errorf("quote from %s has no metadata", q.Provider.ID)
	}
	return json.Unmarshal(q.Metadata, v)
}

// SwapRequest is the caller facing request for a swap.
type SwapRequest struct {
	Pair              SwapPair        `json:"pair"`
	FromAmount        decimal.Decimal `json:"from_amount"`
	Address           string          `json:"address"`
	Recipient         string          `json:"recipient,omitempty"`
	Slippage          decimal.Decimal `json:"slippage"` // fraction, 0.01 = 1%
	PreferredProvider string          `json:"preferred_provider,omitempty"`
	CurrentQuote      *SwapProvider   `json:"current_quote,omitempty"`
}

// SwapQuoteRequest is what quote aggregation sends to providers for the direct swap leg.
type SwapQuoteRequest struct {
	Pair         SwapPair        `json:"pair"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	Address      string          `json:"address"`
	Recipient    string          `json:"recipient,omitempty"`
	Slippage     decimal.Decimal `json:"slippage"`
	IsCrossChain bool            `json:"is_cross_chain"`
}

// SwapQuoteResponse is the result of quote aggregation
type SwapQuoteResponse struct {
	OptimalQuote *SwapQuote   `json:"optimal_quote,omitempty"`
	Quotes       []*SwapQuote `json:"quotes"`
	Error        *SwapError   `json:"error,omitempty"`
	AliveUntil   time.Time    `json:"alive_until"`
}

// SwapRequestResult is the answer to a swap request
type SwapRequestResult struct {
	Process *CommonOptimalSwapPath `json:"process"`
	Quote   *SwapQuoteResponse     `json:"quote"`
}
