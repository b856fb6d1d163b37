package handler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "swap-handler").Logger()
}

// bridgeExcessWeight pads the amount a bridge leg delivers into a swap
var bridgeExcessWeight = decimal.RequireFromString("1.04")

// FeeRate multipliers applied to keep alive minimums
var (
	FeeRateLow    = decimal.NewFromInt(1)
	FeeRateMedium = decimal.RequireFromString("1.2")
	FeeRateHigh   = decimal.NewFromInt(2)
)

// Deps are the services shared by every handler
type Deps struct {
	Registry chain.Registry
	Balances chain.BalanceService
	Fees     chain.FeeService
	Bridge   chain.BridgeService
	// NativeTopUp is the minimum native amount a bridge must deliver to these chains, keyed by chain slug
	NativeTopUp map[string]decimal.Decimal
	// QuoteTTL is how long quotes stay alive, keyed by provider id
	QuoteTTL map[string]time.Duration
	Now      func() time.Time
}

// BaseHandler carries the venue independent step logic. Venues embed it.
type BaseHandler struct {
	provider models.SwapProvider
	deps     Deps

	mu    sync.RWMutex
	ready bool
}

func NewBaseHandler(provider models.SwapProvider, deps Deps) *BaseHandler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &BaseHandler{provider: provider, deps: deps}
}

func (b *BaseHandler) ProviderInfo() models.SwapProvider { return b.provider }

func (b *BaseHandler) Registry() chain.Registry { return b.deps.Registry }

func (b *BaseHandler) Balances() chain.BalanceService { return b.deps.Balances }

func (b *BaseHandler) Now() time.Time { return b.deps.Now() }

func (b *BaseHandler) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// InitChains enables the chains the venue trades on and marks the handler ready
func (b *BaseHandler) InitChains(ctx context.Context, chains ...string) error {
	for _, c := range chains {
		if err := b.deps.Registry.EnableChain(ctx, c); err != nil {
			return fmt.Errorf("%s: enable %s: %w", b.provider.ID, c, err)
		}
	}
	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()
	log.Info().Str("provider", b.provider.ID).Strs("chains", chains).Msg("Provider handler initialized")
	return nil
}

// GenerateOptimalProcess folds the generators of every path action into a process.
// swapSteps are the venue generators of a SWAP action, BRIDGE actions use GetBridgeStep.
//
// Liquidity errors abort generation. Any other generator error ends the fold and the steps built so
// far are returned.
func (b *BaseHandler) GenerateOptimalProcess(ctx context.Context, params GenerateParams, swapSteps ...StepGenerator) (*models.CommonOptimalSwapPath, error) {
	process := models.NewOptimalSwapPath(params.Path)

	for leg, action := range params.Path {
		generators := swapSteps
		if action.Action == models.ActionBridge {
			generators = []StepGenerator{b.GetBridgeStep}
		}
		for _, gen := range generators {
			res, err := gen(ctx, params, leg)
			if err != nil {
				if models.IsLiquidityError(err) {
					return nil, err
				}
				log.Warn().Err(err).
					Str("provider", b.provider.ID).
					Int("leg", leg).
					Str("pair", action.Pair.Slug).
					Msg("Step generation failed, returning partial process")
				return process, nil
			}
			if res == nil {
				continue
			}
			process.AddStep(res.Step, res.Fee)
		}
	}
	return process, nil
}

// LegAssets resolves the assets of path action leg
func (b *BaseHandler) LegAssets(path []models.DynamicSwapAction, leg int) (*models.Asset, *models.Asset, error) {
	if leg < 0 || leg >= len(path) {
		return nil, nil, fmt.Errorf("leg %d out of range", leg)
	}
	from, err := b.deps.Registry.GetAssetBySlug(path[leg].Pair.From)
	if err != nil {
		return nil, nil, err
	}
	to, err := b.deps.Registry.GetAssetBySlug(path[leg].Pair.To)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// AddressOn returns address in the native format of chainSlug
func (b *BaseHandler) AddressOn(address, chainSlug string) (string, error) {
	info, err := b.deps.Registry.GetChainInfoByKey(chainSlug)
	if err != nil {
		return "", err
	}
	out, err := registry.ReformatAddress(address, info)
	if err != nil {
		return "", models.NewSwapError(models.ErrInvalidRecipient, err.Error())
	}
	return out, nil
}

// LegAddresses returns the sender and receiver of leg. The last leg pays out to the recipient.
func (b *BaseHandler) LegAddresses(req models.SwapRequest, path []models.DynamicSwapAction, from, to *models.Asset, leg int) (string, string, error) {
	sender, err := b.AddressOn(req.Address, from.OriginChain)
	if err != nil {
		return "", "", err
	}
	receiver := req.Address
	if leg == len(path)-1 && req.Recipient != "" {
		receiver = req.Recipient
	}
	receiver, err = b.AddressOn(receiver, to.OriginChain)
	if err != nil {
		return "", "", err
	}
	return sender, receiver, nil
}

func (b *BaseHandler) balance(ctx context.Context, address, chainSlug, token string) (decimal.Decimal, error) {
	bal, err := b.deps.Balances.GetTransferableBalance(ctx, address, chainSlug, token, models.ExtrinsicSwap)
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Value, nil
}

func (b *BaseHandler) totalBalance(ctx context.Context, address, chainSlug, token string) (decimal.Decimal, error) {
	bal, err := b.deps.Balances.GetTotalBalance(ctx, address, chainSlug, token)
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Value, nil
}

// GetBridgeStep builds the XCM step of bridge leg.
//
// A bridge feeding a swap delivers the quoted swap input padded by bridgeExcessWeight, plus the delivery
// fee, plus the destination existential deposit when the receiver holds none of the asset. Chains listed
// in NativeTopUp receive at least their top up amount of native token. A bridge fed by a swap sends the
// swap's slippage floor.
func (b *BaseHandler) GetBridgeStep(ctx context.Context, params GenerateParams, leg int) (*GeneratedStep, error) {
	if b.deps.Bridge == nil {
		return nil, errors.New("no bridge service")
	}
	from, to, err := b.LegAssets(params.Path, leg)
	if err != nil {
		return nil, err
	}
	sender, receiver, err := b.LegAddresses(params.Request, params.Path, from, to, leg)
	if err != nil {
		return nil, err
	}
	if params.Quote == nil {
		return nil, models.NewSwapError(models.ErrQuoteTimeout, "")
	}

	req := chain.BridgeRequest{
		OriginChain: from.OriginChain,
		DestChain:   to.OriginChain,
		OriginToken: from,
		DestToken:   to,
		Sender:      sender,
		Recipient:   receiver,
	}
	deliveryFee, err := b.deps.Bridge.DeliveryFee(ctx, req)
	if err != nil {
		return nil, err
	}

	var sending decimal.Decimal
	switch {
	case leg+1 < len(params.Path) && params.Path[leg+1].Action == models.ActionSwap:
		sending = params.Quote.FromAmount.Mul(bridgeExcessWeight).Ceil().Add(deliveryFee)

		destBalance, err := b.totalBalance(ctx, receiver, to.OriginChain, to.Slug)
		if err != nil {
			return nil, err
		}
		if destBalance.IsZero() {
			sending = sending.Add(to.MinAmount)
		}
		if topUp, ok := b.deps.NativeTopUp[to.OriginChain]; ok && to.IsNative() && sending.LessThan(topUp) {
			sending = topUp
		}
	case leg > 0 && params.Path[leg-1].Action == models.ActionSwap:
		sending = MinReceive(params.Quote.ToAmount, params.Request.Slippage)
	default:
		sending = params.Request.FromAmount
	}

	if !sending.GreaterThan(deliveryFee.Add(to.MinAmount)) {
		return nil, models.NewSwapError(models.ErrAmountTooLow,
			fmt.Sprintf("%s bridged to %s does not cover the delivery fee and existential deposit", sending, to.OriginChain))
	}

	req.Amount = sending
	fee, err := b.deps.Bridge.DryRunFee(ctx, req)
	if err != nil {
		return nil, err
	}

	meta := models.BridgeMetadata{
		TransferMetadata: models.TransferMetadata{
			SendingValue:         sending,
			ExpectedReceive:      sending.Sub(deliveryFee),
			OriginTokenInfo:      *from,
			DestinationTokenInfo: *to,
			Sender:               sender,
			Receiver:             receiver,
			Version:              models.PairMetadataVersion,
		},
		IsAggregator: b.deps.Bridge.IsAggregatorBridge(from.OriginChain, to.OriginChain),
		DeliveryFee:  deliveryFee,
	}

	log.Debug().
		Str("provider", b.provider.ID).
		Str("from", from.Slug).
		Str("to", to.Slug).
		Str("sending", sending.String()).
		Str("fee", fee.Amount.String()).
		Msg("Bridge step generated")

	return &GeneratedStep{
		Step: models.StepDetail{
			Name:     fmt.Sprintf("Transfer %s from %s to %s", from.Symbol, from.OriginChain, to.OriginChain),
			Type:     models.StepXcm,
			Metadata: meta,
		},
		Fee: models.SwapFeeInfo{
			FeeComponent: []models.FeeComponent{{
				FeeType:   models.FeeTypeNetwork,
				Amount:    fee.Amount,
				TokenSlug: fee.TokenSlug,
			}},
			DefaultFeeToken: fee.TokenSlug,
			FeeOptions:      []string{fee.TokenSlug},
		},
	}, nil
}

// SwapStepFromQuote builds the SWAP step of leg priced by the quote
func (b *BaseHandler) SwapStepFromQuote(params GenerateParams, leg int) (*GeneratedStep, error) {
	from, to, err := b.LegAssets(params.Path, leg)
	if err != nil {
		return nil, err
	}
	sender, receiver, err := b.LegAddresses(params.Request, params.Path, from, to, leg)
	if err != nil {
		return nil, err
	}
	q := params.Quote
	if q == nil || q.Pair.From != from.Slug || q.Pair.To != to.Slug {
		return nil, fmt.Errorf("quote does not price %s", params.Path[leg].Pair.Slug)
	}

	return &GeneratedStep{
		Step: models.StepDetail{
			Name: fmt.Sprintf("Swap %s for %s on %s", from.Symbol, to.Symbol, b.provider.Name),
			Type: models.StepSwap,
			Metadata: models.SwapMetadata{
				TransferMetadata: models.TransferMetadata{
					SendingValue:         q.FromAmount,
					ExpectedReceive:      q.ToAmount,
					OriginTokenInfo:      *from,
					DestinationTokenInfo: *to,
					Sender:               sender,
					Receiver:             receiver,
					Version:              models.PairMetadataVersion,
				},
				ProviderID: b.provider.ID,
			},
		},
		Fee: q.FeeInfo,
	}, nil
}

// HandleBridgeStep builds the transfer of an XCM step
func (b *BaseHandler) HandleBridgeStep(ctx context.Context, params ProcessParams, step models.StepDetail) (*SubmitStepData, error) {
	meta, ok := step.Metadata.(models.BridgeMetadata)
	if !ok {
		return nil, fmt.Errorf("step %d is not a bridge step", step.ID)
	}
	from, to := meta.OriginTokenInfo, meta.DestinationTokenInfo
	payload, err := b.deps.Bridge.BuildTransfer(ctx, chain.BridgeRequest{
		OriginChain: from.OriginChain,
		DestChain:   to.OriginChain,
		OriginToken: &from,
		DestToken:   &to,
		Sender:      meta.Sender,
		Recipient:   meta.Receiver,
		Amount:      meta.SendingValue,
	})
	if err != nil {
		return nil, err
	}
	info, err := b.deps.Registry.GetChainInfoByKey(from.OriginChain)
	if err != nil {
		return nil, err
	}
	return &SubmitStepData{
		Chain:         from.OriginChain,
		ChainType:     info.ChainType,
		Address:       meta.Sender,
		ExtrinsicType: models.ExtrinsicTransferXcm,
		Payload:       payload,
		EstimateFee:   StepFee(params, step.ID),
		Data:          meta,
	}, nil
}

// CurrentStep returns the step params point at
func CurrentStep(params ProcessParams) (models.StepDetail, models.SwapFeeInfo, error) {
	if params.Process == nil {
		return models.StepDetail{}, models.SwapFeeInfo{}, errors.New("no process")
	}
	step, fee, ok := params.Process.StepByID(params.CurrentStep)
	if !ok || step.Type == models.StepDefault {
		return models.StepDetail{}, models.SwapFeeInfo{}, fmt.Errorf("process has no step %d", params.CurrentStep)
	}
	return step, fee, nil
}

// StepFee is the network fee of step stepID in its fee token
func StepFee(params ProcessParams, stepID int) *models.FeeAmount {
	_, fee, ok := params.Process.StepByID(stepID)
	if !ok {
		return nil
	}
	token := fee.FeeToken()
	return &models.FeeAmount{Amount: fee.NetworkFee(token), TokenSlug: token}
}

// EvmNetworkFee prices gas units at the average fee tier of an EVM chain
func (b *BaseHandler) EvmNetworkFee(ctx context.Context, chainSlug string, gas uint64) (decimal.Decimal, error) {
	if b.deps.Fees == nil {
		return decimal.Zero, errors.New("no fee service")
	}
	info, err := b.deps.Fees.SubscribeChainFee(ctx, "swap-"+b.provider.ID, chainSlug, models.ChainTypeEvm, nil)
	if err != nil {
		return decimal.Zero, err
	}
	gasUnits := decimal.NewFromInt(int64(gas))
	if info.IsLegacy() {
		return gasUnits.Mul(decimal.NewFromBigInt(info.GasPrice, 0)), nil
	}
	tier, ok := info.EvmOptions[models.FeeAverage]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s has no average fee tier", chainSlug)
	}
	return gasUnits.Mul(decimal.NewFromBigInt(tier.MaxFeePerGas, 0)), nil
}
