// Package uniswap is the EVM DEX venue. Classic routes swap through the router after an ERC-20
// approval, Dutch routes are off-chain orders signed with a Permit2 permit and filled by third parties.
package uniswap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
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
	log = zerolog.New(out).With().Timestamp().Str("component", "uniswap-provider").Logger()
}

const (
	ProviderID = "UNISWAP"

	RoutingClassic = "CLASSIC"
	RoutingDutch   = "DUTCH_V2"

	nativeTokenAddress = "0x0000000000000000000000000000000000000000"
	approveGas         = 60_000
	// orderMaxPolls bounds the order status polls of a Dutch order
	orderMaxPolls = 120
)

// RouterTx is the router call of a classic route
type RouterTx struct {
	To    string          `json:"to"`
	Data  string          `json:"data"`
	Value decimal.Decimal `json:"value"`
}

type quoteRequest struct {
	TokenIn           string `json:"tokenIn"`
	TokenOut          string `json:"tokenOut"`
	ChainID           int64  `json:"chainId"`
	Amount            string `json:"amount"`
	Swapper           string `json:"swapper"`
	Type              string `json:"type"`
	SlippageTolerance string `json:"slippageTolerance"`
}

// QuoteMetadata is the trading API answer kept on the quote
type QuoteMetadata struct {
	Routing        string              `json:"routing"`
	AmountOut      decimal.Decimal     `json:"amountOut"`
	GasUseEstimate uint64              `json:"gasUseEstimate"`
	Spender        string              `json:"spender,omitempty"`
	PermitData     *apitypes.TypedData `json:"permitData,omitempty"`
	QuoteID        string              `json:"quoteId,omitempty"`
	EncodedOrder   string              `json:"encodedOrder,omitempty"`
	Tx             *RouterTx           `json:"tx,omitempty"`
}

type Handler struct {
	*handler.BaseHandler
	client *remote.Client
	orders *orderClient
	chains []string
}

var _ handler.SwapProviderHandler = (*Handler)(nil)

// New creates the venue on the EVM chains listed in chains
func New(client *remote.Client, chains []string, deps handler.Deps) *Handler {
	return &Handler{
		BaseHandler: handler.NewBaseHandler(models.SwapProvider{ID: ProviderID, Name: "Uniswap"}, deps),
		client:      client,
		orders:      &orderClient{client: client},
		chains:      chains,
	}
}

func (h *Handler) Init(ctx context.Context) error {
	return h.InitChains(ctx, h.chains...)
}

func tokenAddress(a *models.Asset) string {
	if a.IsNative() {
		return nativeTokenAddress
	}
	return a.ContractAddress
}

func (h *Handler) chainID(chainSlug string) (int64, error) {
	info, err := h.Registry().GetChainInfoByKey(chainSlug)
	if err != nil {
		return 0, err
	}
	if info.ChainType != models.ChainTypeEvm {
		return 0, fmt.Errorf("%s is not an EVM chain", chainSlug)
	}
	return info.EvmChainID, nil
}

func (h *Handler) GetSwapQuote(ctx context.Context, req models.SwapQuoteRequest) (*models.SwapQuote, error) {
	from, to, err := h.QuoteAssets(req, h.chains...)
	if err != nil {
		return nil, err
	}
	if from.OriginChain != to.OriginChain {
		return nil, models.NewSwapError(models.ErrAssetNotSupported, "")
	}
	chainID, err := h.chainID(from.OriginChain)
	if err != nil {
		return nil, err
	}
	swapper, err := h.AddressOn(req.Address, from.OriginChain)
	if err != nil {
		return nil, err
	}

	var meta QuoteMetadata
	err = h.client.PostJSON(ctx, "/quote", quoteRequest{
		TokenIn:           tokenAddress(from),
		TokenOut:          tokenAddress(to),
		ChainID:           chainID,
		Amount:            req.FromAmount.String(),
		Swapper:           swapper,
		Type:              "EXACT_INPUT",
		SlippageTolerance: req.Slippage.Mul(decimal.NewFromInt(100)).String(),
	}, &meta)
	if err != nil {
		log.Debug().Err(err).Str("pair", req.Pair.Slug).Msg("Quote request failed")
		return nil, handler.ClassifyQuoteError(err)
	}
	if !meta.AmountOut.IsPositive() {
		return nil, models.NewSwapError(models.ErrNotEnoughLiquidity, "")
	}

	native, err := h.Registry().GetNativeAsset(from.OriginChain)
	if err != nil {
		return nil, err
	}
	networkFee := decimal.Zero
	if meta.Routing != RoutingDutch {
		networkFee, err = h.EvmNetworkFee(ctx, from.OriginChain, meta.GasUseEstimate)
		if err != nil {
			return nil, models.NewSwapError(models.ErrErrorFetchingQuote, err.Error())
		}
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return &models.SwapQuote{
		Provider:   h.ProviderInfo(),
		Pair:       req.Pair,
		FromAmount: req.FromAmount,
		ToAmount:   meta.AmountOut,
		Rate:       handler.Rate(from, to, req.FromAmount, meta.AmountOut),
		FeeInfo: models.SwapFeeInfo{
			FeeComponent:    []models.FeeComponent{{FeeType: models.FeeTypeNetwork, Amount: networkFee, TokenSlug: native.Slug}},
			DefaultFeeToken: native.Slug,
			FeeOptions:      []string{native.Slug},
		},
		AliveUntil: h.AliveUntil(),
		Metadata:   raw,
	}, nil
}

func (h *Handler) GenerateOptimalProcess(ctx context.Context, params handler.GenerateParams) (*models.CommonOptimalSwapPath, error) {
	return h.BaseHandler.GenerateOptimalProcess(ctx, params, h.getApprovalStep, h.getPermitStep, h.getSubmitStep)
}

// getApprovalStep is left out for native tokens and when the current allowance covers the swap
func (h *Handler) getApprovalStep(ctx context.Context, params handler.GenerateParams, leg int) (*handler.GeneratedStep, error) {
	from, _, err := h.LegAssets(params.Path, leg)
	if err != nil {
		return nil, err
	}
	if from.IsNative() {
		return nil, nil
	}
	var meta QuoteMetadata
	if err := params.Quote.DecodeMetadata(&meta); err != nil {
		return nil, err
	}
	if meta.Spender == "" {
		return nil, nil
	}

	owner, err := h.AddressOn(params.Request.Address, from.OriginChain)
	if err != nil {
		return nil, err
	}
	api, err := h.Registry().GetEvmApi(from.OriginChain)
	if err != nil {
		return nil, err
	}
	allowance, err := erc20.Allowance(ctx, api, from.ContractAddress, owner, meta.Spender)
	if err != nil {
		return nil, err
	}
	if decimal.NewFromBigInt(allowance, 0).GreaterThanOrEqual(params.Quote.FromAmount) {
		return nil, nil
	}

	native, err := h.Registry().GetNativeAsset(from.OriginChain)
	if err != nil {
		return nil, err
	}
	fee, err := h.EvmNetworkFee(ctx, from.OriginChain, approveGas)
	if err != nil {
		return nil, err
	}
	return &handler.GeneratedStep{
		Step: models.StepDetail{
			Name: fmt.Sprintf("Approve %s", from.Symbol),
			Type: models.StepTokenApproval,
			Metadata: models.ApprovalMetadata{
				Chain:     from.OriginChain,
				TokenSlug: from.Slug,
				Spender:   meta.Spender,
				Amount:    params.Quote.FromAmount,
			},
		},
		Fee: models.SwapFeeInfo{
			FeeComponent:    []models.FeeComponent{{FeeType: models.FeeTypeNetwork, Amount: fee, TokenSlug: native.Slug}},
			DefaultFeeToken: native.Slug,
			FeeOptions:      []string{native.Slug},
		},
	}, nil
}

// getPermitStep is only needed when the quote carries permit data
func (h *Handler) getPermitStep(_ context.Context, params handler.GenerateParams, leg int) (*handler.GeneratedStep, error) {
	var meta QuoteMetadata
	if err := params.Quote.DecodeMetadata(&meta); err != nil {
		return nil, err
	}
	if meta.PermitData == nil {
		return nil, nil
	}
	from, _, err := h.LegAssets(params.Path, leg)
	if err != nil {
		return nil, err
	}

	var deadline int64
	if v, ok := meta.PermitData.Message["sigDeadline"]; ok {
		d, err := decimal.NewFromString(fmt.Sprint(v))
		if err == nil {
			deadline = d.IntPart()
		}
	}
	return &handler.GeneratedStep{
		Step: models.StepDetail{
			Name: fmt.Sprintf("Sign %s permit", from.Symbol),
			Type: models.StepPermit,
			Metadata: models.PermitMetadata{
				Chain:     from.OriginChain,
				TokenSlug: from.Slug,
				Spender:   meta.PermitData.Domain.VerifyingContract,
				Amount:    params.Quote.FromAmount,
				Deadline:  deadline,
			},
		},
		Fee: models.SwapFeeInfo{FeeComponent: []models.FeeComponent{}, FeeOptions: []string{}},
	}, nil
}

func (h *Handler) getSubmitStep(_ context.Context, params handler.GenerateParams, leg int) (*handler.GeneratedStep, error) {
	return h.SwapStepFromQuote(params, leg)
}

func (h *Handler) HandleSwapProcess(ctx context.Context, params handler.ProcessParams) (*handler.SubmitStepData, error) {
	step, _, err := handler.CurrentStep(params)
	if err != nil {
		return nil, err
	}
	var meta QuoteMetadata
	if err := params.Quote.DecodeMetadata(&meta); err != nil {
		return nil, err
	}

	switch step.Type {
	case models.StepTokenApproval:
		return h.handleApprovalStep(params, step)
	case models.StepPermit:
		return h.handlePermitStep(params, step, meta)
	case models.StepSwap:
		return h.handleSubmitStep(params, step, meta)
	case models.StepXcm:
		return h.HandleBridgeStep(ctx, params, step)
	default:
		return nil, fmt.Errorf("%s cannot handle %s steps", ProviderID, step.Type)
	}
}

func (h *Handler) handleApprovalStep(params handler.ProcessParams, step models.StepDetail) (*handler.SubmitStepData, error) {
	approval, ok := step.Metadata.(models.ApprovalMetadata)
	if !ok {
		return nil, fmt.Errorf("step %d is not an approval step", step.ID)
	}
	token, err := h.Registry().GetAssetBySlug(approval.TokenSlug)
	if err != nil {
		return nil, err
	}
	chainID, err := h.chainID(approval.Chain)
	if err != nil {
		return nil, err
	}
	owner, err := h.AddressOn(params.Address, approval.Chain)
	if err != nil {
		return nil, err
	}
	data, err := erc20.ApproveMax(approval.Spender)
	if err != nil {
		return nil, err
	}
	return &handler.SubmitStepData{
		Chain:         approval.Chain,
		ChainType:     models.ChainTypeEvm,
		Address:       owner,
		ExtrinsicType: models.ExtrinsicTokenApproval,
		Payload: &models.EvmTransactionConfig{
			ChainID: chainID,
			From:    owner,
			To:      token.ContractAddress,
			Data:    data,
		},
		EstimateFee: handler.StepFee(params, step.ID),
		Data:        approval,
	}, nil
}

func (h *Handler) handlePermitStep(params handler.ProcessParams, step models.StepDetail, meta QuoteMetadata) (*handler.SubmitStepData, error) {
	permit, ok := step.Metadata.(models.PermitMetadata)
	if !ok || meta.PermitData == nil {
		return nil, fmt.Errorf("step %d is not a permit step", step.ID)
	}
	owner, err := h.AddressOn(params.Address, permit.Chain)
	if err != nil {
		return nil, err
	}
	return &handler.SubmitStepData{
		Chain:         permit.Chain,
		ChainType:     models.ChainTypeEvm,
		Address:       owner,
		ExtrinsicType: models.ExtrinsicTokenPermit,
		Payload:       &models.PermitPayload{Owner: owner, TypedData: *meta.PermitData},
		Data:          permit,
	}, nil
}

func (h *Handler) handleSubmitStep(params handler.ProcessParams, step models.StepDetail, meta QuoteMetadata) (*handler.SubmitStepData, error) {
	swap, ok := step.Metadata.(models.SwapMetadata)
	if !ok {
		return nil, fmt.Errorf("step %d is not a swap step", step.ID)
	}
	chainSlug := swap.OriginTokenInfo.OriginChain
	chainID, err := h.chainID(chainSlug)
	if err != nil {
		return nil, err
	}

	data := &handler.SubmitStepData{
		Chain:         chainSlug,
		ChainType:     models.ChainTypeEvm,
		Address:       swap.Sender,
		ExtrinsicType: models.ExtrinsicSwap,
		EstimateFee:   handler.StepFee(params, step.ID),
		Data:          swap,
	}

	switch meta.Routing {
	case RoutingDutch:
		if params.PermitSignature == "" {
			return nil, models.NewTransactionError(models.ErrInvalidParams, "Dutch order needs the permit signature")
		}
		data.Payload = &models.DutchOrderPayload{
			EncodedOrder: meta.EncodedOrder,
			Signature:    params.PermitSignature,
			QuoteID:      meta.QuoteID,
			ChainID:      chainID,
			MaxPolls:     orderMaxPolls,
			Client:       h.orders,
		}
	default:
		if meta.Tx == nil {
			return nil, fmt.Errorf("quote %s carries no router transaction", meta.QuoteID)
		}
		callData, err := hexutil.Decode(meta.Tx.Data)
		if err != nil {
			return nil, fmt.Errorf("router calldata: %w", err)
		}
		data.Payload = &models.EvmTransactionConfig{
			ChainID: chainID,
			From:    swap.Sender,
			To:      meta.Tx.To,
			Value:   meta.Tx.Value.BigInt(),
			Data:    callData,
		}
	}
	return data, nil
}

func (h *Handler) ValidateSwapProcess(ctx context.Context, params handler.ProcessParams) []*models.TransactionError {
	return h.ValidateProcess(ctx, params)
}
