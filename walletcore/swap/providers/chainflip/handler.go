// Package chainflip is the cross chain venue. A swap opens a deposit channel through the broker API and
// the user pays into it with a plain transfer on the source chain, the protocol delivers on the
// destination chain.
package chainflip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain/erc20"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/remote"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/handler"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "chainflip-provider").Logger()
}

const (
	ProviderID = "CHAIN_FLIP_MAINNET"

	nativeTransferGas = 21_000
	tokenTransferGas  = 65_000
)

// Asset is how the broker names an asset
type Asset struct {
	Chain  string `json:"chain"`
	Symbol string `json:"asset"`
}

func (a Asset) String() string {
	return a.Symbol + "." + a.Chain
}

type quoteResponse struct {
	EgressAmount  decimal.Decimal `json:"egressAmount"`
	IncludedFees  []includedFee   `json:"includedFees"`
	EstimatedSecs int64           `json:"estimatedDurationSeconds"`
}

type includedFee struct {
	Type   string          `json:"type"`
	Chain  string          `json:"chain"`
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

type channelRequest struct {
	SrcAsset      Asset  `json:"srcAsset"`
	DestAsset     Asset  `json:"destAsset"`
	DestAddress   string `json:"destAddress"`
	RefundAddress string `json:"refundAddress"`
	Amount        string `json:"amount"`
	MinPrice      string `json:"minPrice,omitempty"`
}

// Channel is an open deposit channel
type Channel struct {
	ID             string `json:"channelId"`
	DepositAddress string `json:"depositAddress"`
	ExpiryBlock    int64  `json:"srcChainExpiryBlock"`
}

// QuoteMetadata is kept on the quote
type QuoteMetadata struct {
	SrcAsset          Asset `json:"src_asset"`
	DestAsset         Asset `json:"dest_asset"`
	EstimatedDuration int64 `json:"estimated_duration"`
}

// SwapData is what the history item of a channel deposit keeps
type SwapData struct {
	models.SwapMetadata
	Channel Channel `json:"channel"`
}

type Handler struct {
	*handler.BaseHandler
	client *remote.Client
	// chains maps a chain slug to the broker chain name
	chains map[string]string
}

var _ handler.SwapProviderHandler = (*Handler)(nil)

// New creates the venue. chains maps every supported chain slug to its broker chain name.
func New(client *remote.Client, chains map[string]string, deps handler.Deps) *Handler {
	return &Handler{
		BaseHandler: handler.NewBaseHandler(models.SwapProvider{ID: ProviderID, Name: "Chainflip"}, deps),
		client:      client,
		chains:      chains,
	}
}

func (h *Handler) chainSlugs() []string {
	out := make([]string, 0, len(h.chains))
	for slug := range h.chains {
		out = append(out, slug)
	}
	return out
}

func (h *Handler) Init(ctx context.Context) error {
	return h.InitChains(ctx, h.chainSlugs()...)
}

func (h *Handler) brokerAsset(a *models.Asset) Asset {
	return Asset{Chain: h.chains[a.OriginChain], Symbol: a.Symbol}
}

func (h *Handler) GetSwapQuote(ctx context.Context, req models.SwapQuoteRequest) (*models.SwapQuote, error) {
	from, to, err := h.QuoteAssets(req, h.chainSlugs()...)
	if err != nil {
		return nil, err
	}
	if from.OriginChain == to.OriginChain {
		// same chain swaps belong to the local venues
		return nil, models.NewSwapError(models.ErrAssetNotSupported, "")
	}
	src, dest := h.brokerAsset(from), h.brokerAsset(to)

	q := url.Values{}
	q.Set("srcChain", src.Chain)
	q.Set("srcAsset", src.Symbol)
	q.Set("destChain", dest.Chain)
	q.Set("destAsset", dest.Symbol)
	q.Set("amount", req.FromAmount.String())

	var resp quoteResponse
	if err := h.client.GetJSON(ctx, "/quote?"+q.Encode(), &resp); err != nil {
		log.Debug().Err(err).Str("src", src.String()).Str("dest", dest.String()).Msg("Quote request failed")
		return nil, handler.ClassifyQuoteError(err)
	}
	if !resp.EgressAmount.IsPositive() {
		return nil, models.NewSwapError(models.ErrNotEnoughLiquidity, "")
	}

	networkFee, feeToken, err := h.depositFee(ctx, from, req.Address)
	if err != nil {
		return nil, models.NewSwapError(models.ErrErrorFetchingQuote, err.Error())
	}
	components := []models.FeeComponent{{FeeType: models.FeeTypeNetwork, Amount: networkFee, TokenSlug: feeToken}}
	for _, f := range resp.IncludedFees {
		// protocol fees are charged on the swapped amount, report them in the destination token
		if f.Asset == dest.Symbol && f.Chain == dest.Chain {
			components = append(components, models.FeeComponent{FeeType: models.FeeTypePlatform, Amount: f.Amount, TokenSlug: to.Slug})
		}
	}

	raw, err := json.Marshal(QuoteMetadata{SrcAsset: src, DestAsset: dest, EstimatedDuration: resp.EstimatedSecs})
	if err != nil {
		return nil, err
	}
	return &models.SwapQuote{
		Provider:   h.ProviderInfo(),
		Pair:       req.Pair,
		FromAmount: req.FromAmount,
		ToAmount:   resp.EgressAmount,
		Rate:       handler.Rate(from, to, req.FromAmount, resp.EgressAmount),
		FeeInfo: models.SwapFeeInfo{
			FeeComponent:    components,
			DefaultFeeToken: feeToken,
			FeeOptions:      []string{feeToken},
		},
		AliveUntil: h.AliveUntil(),
		Metadata:   raw,
	}, nil
}

// depositFee prices the transfer into the deposit channel on the source chain
func (h *Handler) depositFee(ctx context.Context, from *models.Asset, address string) (decimal.Decimal, string, error) {
	info, err := h.Registry().GetChainInfoByKey(from.OriginChain)
	if err != nil {
		return decimal.Zero, "", err
	}
	native, err := h.Registry().GetNativeAsset(from.OriginChain)
	if err != nil {
		return decimal.Zero, "", err
	}

	switch info.ChainType {
	case models.ChainTypeEvm:
		gas := uint64(nativeTransferGas)
		if !from.IsNative() {
			gas = tokenTransferGas
		}
		fee, err := h.EvmNetworkFee(ctx, from.OriginChain, gas)
		return fee, native.Slug, err
	case models.ChainTypeSubstrate:
		sender, err := h.AddressOn(address, from.OriginChain)
		if err != nil {
			return decimal.Zero, "", err
		}
		api, err := h.Registry().GetSubstrateApi(from.OriginChain)
		if err != nil {
			return decimal.Zero, "", err
		}
		fee, err := api.PaymentInfo(ctx, substrateTransfer(from, sender, decimal.NewFromInt(1)), sender)
		if err != nil {
			return decimal.Zero, "", err
		}
		return decimal.NewFromBigInt(fee, 0), native.Slug, nil
	default:
		return decimal.Zero, "", fmt.Errorf("%s deposits are not supported", info.ChainType)
	}
}

func substrateTransfer(token *models.Asset, to string, amount decimal.Decimal) *models.SubstrateExtrinsic {
	if token.IsNative() {
		return &models.SubstrateExtrinsic{
			Pallet: "balances",
			Call:   "transferKeepAlive",
			Args:   map[string]any{"dest": to, "value": amount.String()},
		}
	}
	return &models.SubstrateExtrinsic{
		Pallet: "assets",
		Call:   "transfer",
		Args:   map[string]any{"id": token.OnChainID, "target": to, "amount": amount.String()},
	}
}

func (h *Handler) GenerateOptimalProcess(ctx context.Context, params handler.GenerateParams) (*models.CommonOptimalSwapPath, error) {
	return h.BaseHandler.GenerateOptimalProcess(ctx, params, h.getSubmitStep)
}

func (h *Handler) getSubmitStep(_ context.Context, params handler.GenerateParams, leg int) (*handler.GeneratedStep, error) {
	return h.SwapStepFromQuote(params, leg)
}

func (h *Handler) HandleSwapProcess(ctx context.Context, params handler.ProcessParams) (*handler.SubmitStepData, error) {
	step, _, err := handler.CurrentStep(params)
	if err != nil {
		return nil, err
	}
	switch step.Type {
	case models.StepSwap:
		return h.handleSubmitStep(ctx, params, step)
	case models.StepXcm:
		return h.HandleBridgeStep(ctx, params, step)
	default:
		return nil, fmt.Errorf("%s cannot handle %s steps", ProviderID, step.Type)
	}
}

// OpenChannel asks the broker for a deposit channel paying out to destAddress
func (h *Handler) OpenChannel(ctx context.Context, meta QuoteMetadata, swap models.SwapMetadata, minPrice decimal.Decimal) (*Channel, error) {
	var ch Channel
	err := h.client.PostJSON(ctx, "/channel", channelRequest{
		SrcAsset:      meta.SrcAsset,
		DestAsset:     meta.DestAsset,
		DestAddress:   swap.Receiver,
		RefundAddress: swap.Sender,
		Amount:        swap.SendingValue.String(),
		MinPrice:      minPrice.String(),
	}, &ch)
	if err != nil {
		return nil, err
	}
	if ch.DepositAddress == "" {
		return nil, fmt.Errorf("broker returned no deposit address")
	}
	return &ch, nil
}

func (h *Handler) handleSubmitStep(ctx context.Context, params handler.ProcessParams, step models.StepDetail) (*handler.SubmitStepData, error) {
	swap, ok := step.Metadata.(models.SwapMetadata)
	if !ok {
		return nil, fmt.Errorf("step %d is not a swap step", step.ID)
	}
	var meta QuoteMetadata
	if err := params.Quote.DecodeMetadata(&meta); err != nil {
		return nil, err
	}
	from, to := swap.OriginTokenInfo, swap.DestinationTokenInfo

	minReceive := handler.MinReceive(swap.ExpectedReceive, params.Slippage)
	minPrice := handler.Rate(&from, &to, swap.SendingValue, minReceive)
	ch, err := h.OpenChannel(ctx, meta, swap, minPrice)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("channel", ch.ID).
		Str("deposit_address", ch.DepositAddress).
		Str("src", meta.SrcAsset.String()).
		Str("dest", meta.DestAsset.String()).
		Msg("Deposit channel opened")

	info, err := h.Registry().GetChainInfoByKey(from.OriginChain)
	if err != nil {
		return nil, err
	}
	data := &handler.SubmitStepData{
		Chain:         from.OriginChain,
		ChainType:     info.ChainType,
		Address:       swap.Sender,
		ExtrinsicType: models.ExtrinsicSwap,
		EstimateFee:   handler.StepFee(params, step.ID),
		Data:          SwapData{SwapMetadata: swap, Channel: *ch},
	}

	switch info.ChainType {
	case models.ChainTypeEvm:
		tx := &models.EvmTransactionConfig{ChainID: info.EvmChainID, From: swap.Sender}
		if from.IsNative() {
			tx.To = ch.DepositAddress
			tx.Value = swap.SendingValue.BigInt()
		} else {
			callData, err := erc20.Transfer(ch.DepositAddress, swap.SendingValue.BigInt())
			if err != nil {
				return nil, err
			}
			tx.To = from.ContractAddress
			tx.Data = callData
		}
		data.Payload = tx
	case models.ChainTypeSubstrate:
		data.Payload = substrateTransfer(&from, ch.DepositAddress, swap.SendingValue)
	default:
		return nil, fmt.Errorf("%s deposits are not supported", info.ChainType)
	}
	return data, nil
}

func (h *Handler) ValidateSwapProcess(ctx context.Context, params handler.ProcessParams) []*models.TransactionError {
	return h.ValidateProcess(ctx, params)
}
