// Package stonfi is the ston.fi DEX on TON. Quotes come from the simulate endpoint and the swap
// message body is built by the API, the wallet only signs the external message carrying it.
package stonfi

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
	log = zerolog.New(out).With().Timestamp().Str("component", "stonfi-provider").Logger()
}

const (
	ProviderID = "STONFI"
	ChainSlug  = "ton"

	// PtonAddress is the proxy TON jetton the router trades native TON as
	PtonAddress = "EQCM3B12QK1e4yZSf8GtBRT0aLMNyEsBc_DhVfRRtOEffLez"
)

// Gas attached to the swap message in nanotons. The router refunds what is left.
var (
	gasTonToJetton    = decimal.NewFromInt(215_000_000)
	gasJettonToTon    = decimal.NewFromInt(170_000_000)
	gasJettonToJetton = decimal.NewFromInt(220_000_000)
)

type simulateResponse struct {
	OfferUnits    decimal.Decimal `json:"offer_units"`
	AskUnits      decimal.Decimal `json:"ask_units"`
	MinAskUnits   decimal.Decimal `json:"min_ask_units"`
	FeeUnits      decimal.Decimal `json:"fee_units"`
	PriceImpact   decimal.Decimal `json:"price_impact"`
	RouterAddress string          `json:"router_address"`
}

type buildRequest struct {
	UserWallet    string `json:"user_wallet_address"`
	Receiver      string `json:"receiver_address"`
	OfferAddress  string `json:"offer_address"`
	AskAddress    string `json:"ask_address"`
	OfferUnits    string `json:"offer_units"`
	MinAskUnits   string `json:"min_ask_units"`
	RouterAddress string `json:"router_address"`
	GasAmount     string `json:"gas_amount"`
}

type buildResponse struct {
	To        string          `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Payload   string          `json:"payload"`
	StateInit string          `json:"state_init,omitempty"`
}

// QuoteMetadata is kept on the quote
type QuoteMetadata struct {
	RouterAddress string          `json:"router_address"`
	OfferAddress  string          `json:"offer_address"`
	AskAddress    string          `json:"ask_address"`
	GasAmount     decimal.Decimal `json:"gas_amount"`
	PriceImpact   decimal.Decimal `json:"price_impact"`
}

type Handler struct {
	*handler.BaseHandler
	client *remote.Client
}

var _ handler.SwapProviderHandler = (*Handler)(nil)

func New(client *remote.Client, deps handler.Deps) *Handler {
	return &Handler{
		BaseHandler: handler.NewBaseHandler(models.SwapProvider{ID: ProviderID, Name: "STON.fi"}, deps),
		client:      client,
	}
}

func (h *Handler) Init(ctx context.Context) error {
	return h.InitChains(ctx, ChainSlug)
}

func jettonAddress(a *models.Asset) string {
	if a.IsNative() {
		return PtonAddress
	}
	return a.ContractAddress
}

func gasAmount(from, to *models.Asset) decimal.Decimal {
	switch {
	case from.IsNative():
		return gasTonToJetton
	case to.IsNative():
		return gasJettonToTon
	default:
		return gasJettonToJetton
	}
}

func (h *Handler) GetSwapQuote(ctx context.Context, req models.SwapQuoteRequest) (*models.SwapQuote, error) {
	from, to, err := h.QuoteAssets(req, ChainSlug)
	if err != nil {
		return nil, err
	}
	offer, ask := jettonAddress(from), jettonAddress(to)

	q := url.Values{}
	q.Set("offer_address", offer)
	q.Set("ask_address", ask)
	q.Set("units", req.FromAmount.String())
	q.Set("slippage_tolerance", req.Slippage.String())

	var sim simulateResponse
	if err := h.client.GetJSON(ctx, "/v1/swap/simulate?"+q.Encode(), &sim); err != nil {
		log.Debug().Err(err).Str("offer", offer).Str("ask", ask).Msg("Simulation failed")
		return nil, handler.ClassifyQuoteError(err)
	}
	if !sim.AskUnits.IsPositive() {
		return nil, models.NewSwapError(models.ErrNotEnoughLiquidity, "")
	}

	native, err := h.Registry().GetNativeAsset(ChainSlug)
	if err != nil {
		return nil, err
	}
	gas := gasAmount(from, to)
	raw, err := json.Marshal(QuoteMetadata{
		RouterAddress: sim.RouterAddress,
		OfferAddress:  offer,
		AskAddress:    ask,
		GasAmount:     gas,
		PriceImpact:   sim.PriceImpact,
	})
	if err != nil {
		return nil, err
	}
	return &models.SwapQuote{
		Provider:   h.ProviderInfo(),
		Pair:       req.Pair,
		FromAmount: req.FromAmount,
		ToAmount:   sim.AskUnits,
		Rate:       handler.Rate(from, to, req.FromAmount, sim.AskUnits),
		FeeInfo: models.SwapFeeInfo{
			FeeComponent: []models.FeeComponent{
				{FeeType: models.FeeTypeNetwork, Amount: gas, TokenSlug: native.Slug},
				{FeeType: models.FeeTypeLP, Amount: sim.FeeUnits, TokenSlug: to.Slug},
			},
			DefaultFeeToken: native.Slug,
			FeeOptions:      []string{native.Slug},
		},
		AliveUntil: h.AliveUntil(),
		Metadata:   raw,
	}, nil
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
	if step.Type != models.StepSwap {
		return nil, fmt.Errorf("%s cannot handle %s steps", ProviderID, step.Type)
	}
	swap, ok := step.Metadata.(models.SwapMetadata)
	if !ok {
		return nil, fmt.Errorf("step %d is not a swap step", step.ID)
	}
	var meta QuoteMetadata
	if err := params.Quote.DecodeMetadata(&meta); err != nil {
		return nil, err
	}

	var built buildResponse
	err = h.client.PostJSON(ctx, "/v1/swap/build", buildRequest{
		UserWallet:    swap.Sender,
		Receiver:      swap.Receiver,
		OfferAddress:  meta.OfferAddress,
		AskAddress:    meta.AskAddress,
		OfferUnits:    swap.SendingValue.String(),
		MinAskUnits:   handler.MinReceive(swap.ExpectedReceive, params.Slippage).String(),
		RouterAddress: meta.RouterAddress,
		GasAmount:     meta.GasAmount.String(),
	}, &built)
	if err != nil {
		return nil, fmt.Errorf("build swap message: %w", err)
	}

	return &handler.SubmitStepData{
		Chain:         ChainSlug,
		ChainType:     models.ChainTypeTon,
		Address:       swap.Sender,
		ExtrinsicType: models.ExtrinsicSwap,
		Payload: &models.TonTransferPayload{
			To:        built.To,
			Amount:    built.Amount,
			Payload:   built.Payload,
			StateInit: built.StateInit,
			Bounce:    true,
		},
		EstimateFee: handler.StepFee(params, step.ID),
		ErrorOnTimeout: true,
		Data:           swap,
	}, nil
}

func (h *Handler) ValidateSwapProcess(ctx context.Context, params handler.ProcessParams) []*models.TransactionError {
	return h.ValidateProcess(ctx, params)
}
