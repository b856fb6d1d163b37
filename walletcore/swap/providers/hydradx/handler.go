// Package hydradx is the Hydration omnipool venue: allowance free swaps on one Substrate chain,
// priced by the Hydration router API.
package hydradx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/remote"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/handler"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "hydradx-provider").Logger()
}

const (
	ProviderID = "HYDRADX_MAINNET"
	// ChainSlug is the chain the omnipool lives on
	ChainSlug = "hydradx_main"
	// nativeAssetID is the router id of HDX
	nativeAssetID = "0"
)

// RouteHop is one pool of a router trade
type RouteHop struct {
	Pool     string `json:"pool"`
	AssetIn  string `json:"asset_in"`
	AssetOut string `json:"asset_out"`
}

// quoteResponse is the answer of GET /quote
type quoteResponse struct {
	AmountOut   decimal.Decimal `json:"amount_out"`
	PriceImpact decimal.Decimal `json:"price_impact"`
	TradeFee    decimal.Decimal `json:"trade_fee"`   // in asset out
	NetworkFee  decimal.Decimal `json:"network_fee"` // in HDX
	Route       []RouteHop      `json:"route"`
}

// QuoteMetadata is kept on the quote and used to build the router call
type QuoteMetadata struct {
	Route []RouteHop `json:"route"`
}

type Handler struct {
	*handler.BaseHandler
	client *remote.Client
}

var _ handler.SwapProviderHandler = (*Handler)(nil)

// New creates the venue over the router API at client
func New(client *remote.Client, deps handler.Deps) *Handler {
	return &Handler{
		BaseHandler: handler.NewBaseHandler(models.SwapProvider{ID: ProviderID, Name: "Hydration"}, deps),
		client:      client,
	}
}

func (h *Handler) Init(ctx context.Context) error {
	return h.InitChains(ctx, ChainSlug)
}

func assetID(a *models.Asset) string {
	if a.IsNative() {
		return nativeAssetID
	}
	return a.OnChainID
}

func (h *Handler) GetSwapQuote(ctx context.Context, req models.SwapQuoteRequest) (*models.SwapQuote, error) {
	from, to, err := h.QuoteAssets(req, ChainSlug)
	if err != nil {
		return nil, err
	}
	if assetID(from) == "" || assetID(to) == "" {
		return nil, models.NewSwapError(models.ErrAssetNotSupported, "")
	}

	q := url.Values{}
	q.Set("assetIn", assetID(from))
	q.Set("assetOut", assetID(to))
	q.Set("amountIn", req.FromAmount.String())

	var resp quoteResponse
	if err := h.client.GetJSON(ctx, "/quote?"+q.Encode(), &resp); err != nil {
		log.Debug().Err(err).Str("pair", req.Pair.Slug).Msg("Quote request failed")
		return nil, handler.ClassifyQuoteError(err)
	}
	if !resp.AmountOut.IsPositive() || len(resp.Route) == 0 {
		return nil, models.NewSwapError(models.ErrNotEnoughLiquidity, "")
	}

	meta, err := json.Marshal(QuoteMetadata{Route: resp.Route})
	if err != nil {
		return nil, err
	}

	native, err := h.Registry().GetNativeAsset(ChainSlug)
	if err != nil {
		return nil, err
	}

	return &models.SwapQuote{
		Provider:   h.ProviderInfo(),
		Pair:       req.Pair,
		FromAmount: req.FromAmount,
		ToAmount:   resp.AmountOut,
		Rate:       handler.Rate(from, to, req.FromAmount, resp.AmountOut),
		FeeInfo: models.SwapFeeInfo{
			FeeComponent: []models.FeeComponent{
				{FeeType: models.FeeTypeNetwork, Amount: resp.NetworkFee, TokenSlug: native.Slug},
				{FeeType: models.FeeTypeLP, Amount: resp.TradeFee, TokenSlug: to.Slug},
			},
			DefaultFeeToken: native.Slug,
			FeeOptions:      []string{native.Slug},
		},
		AliveUntil: h.AliveUntil(),
		Metadata:   meta,
	}, nil
}

func (h *Handler) getSubmitStep(_ context.Context, params handler.GenerateParams, leg int) (*handler.GeneratedStep, error) {
	return h.SwapStepFromQuote(params, leg)
}

func (h *Handler) GenerateOptimalProcess(ctx context.Context, params handler.GenerateParams) (*models.CommonOptimalSwapPath, error) {
	return h.BaseHandler.GenerateOptimalProcess(ctx, params, h.getSubmitStep)
}

func (h *Handler) HandleSwapProcess(ctx context.Context, params handler.ProcessParams) (*handler.SubmitStepData, error) {
	step, _, err := handler.CurrentStep(params)
	if err != nil {
		return nil, err
	}
	switch step.Type {
	case models.StepXcm:
		return h.HandleBridgeStep(ctx, params, step)
	case models.StepSwap:
		return h.handleSubmitStep(params, step)
	default:
		return nil, fmt.Errorf("%s cannot handle %s steps", ProviderID, step.Type)
	}
}

func (h *Handler) handleSubmitStep(params handler.ProcessParams, step models.StepDetail) (*handler.SubmitStepData, error) {
	meta, ok := step.Metadata.(models.SwapMetadata)
	if !ok {
		return nil, fmt.Errorf("step %d is not a swap step", step.ID)
	}
	var quoteMeta QuoteMetadata
	if err := params.Quote.DecodeMetadata(&quoteMeta); err != nil {
		return nil, err
	}

	from, to := meta.OriginTokenInfo, meta.DestinationTokenInfo
	minOut := handler.MinReceive(meta.ExpectedReceive, params.Slippage)
	ext := &models.SubstrateExtrinsic{
		Pallet: "router",
		Call:   "sell",
		Args: map[string]any{
			"asset_in":       assetID(&from),
			"asset_out":      assetID(&to),
			"amount_in":      meta.SendingValue.String(),
			"min_amount_out": minOut.String(),
			"route":          quoteMeta.Route,
		},
	}

	fee := handler.StepFee(params, step.ID)
	if fee != nil {
		info, err := h.Registry().GetChainInfoByKey(ChainSlug)
		if err != nil {
			return nil, err
		}
		native, err := h.Registry().GetNativeAsset(ChainSlug)
		if err != nil {
			return nil, err
		}
		if fee.TokenSlug != native.Slug && info.SupportsAssetFee {
			feeAsset, err := h.Registry().GetAssetBySlug(fee.TokenSlug)
			if err != nil {
				return nil, err
			}
			ext.FeeAssetID = feeAsset.OnChainID
		}
	}

	return &handler.SubmitStepData{
		Chain:         ChainSlug,
		ChainType:     models.ChainTypeSubstrate,
		Address:       meta.Sender,
		ExtrinsicType: models.ExtrinsicSwap,
		Payload:       ext,
		EstimateFee:   fee,
		Data:          meta,
	}, nil
}

func (h *Handler) ValidateSwapProcess(ctx context.Context, params handler.ProcessParams) []*models.TransactionError {
	return h.ValidateProcess(ctx, params)
}
