package handler

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/registry"
)

func txErr(t models.ErrorType, format string, args ...any) *models.TransactionError {
	if format == "" {
		return models.NewTransactionError(t, "")
	}
	return models.NewTransactionError(t, fmt.Sprintf(format, args...))
}

func internalErr(err error) []*models.TransactionError {
	return []*models.TransactionError{txErr(models.ErrInternal, "%s", err.Error())}
}

// ValidateProcess checks quote expiry, matches the path against the supported shapes and runs the
// validator of that shape. An expired quote fails without touching any chain.
func (b *BaseHandler) ValidateProcess(ctx context.Context, params ProcessParams) []*models.TransactionError {
	if params.Quote == nil || params.Quote.IsExpired(b.Now()) {
		return []*models.TransactionError{txErr(models.ErrQuoteTimeout, "")}
	}
	if _, _, err := CurrentStep(params); err != nil {
		return []*models.TransactionError{txErr(models.ErrInvalidParams, "%s", err.Error())}
	}

	switch shape := models.ShapeOf(params.Process.Path); shape {
	case models.ShapeSwap:
		return b.ValidateSwapOnlyProcess(ctx, params)
	case models.ShapeSwapXcm:
		return b.ValidateSwapXcmProcess(ctx, params)
	case models.ShapeXcmSwap:
		return b.ValidateXcmSwapProcess(ctx, params)
	case models.ShapeXcmSwapXcm:
		return b.ValidateXcmSwapXcmProcess(ctx, params)
	default:
		return []*models.TransactionError{txErr(models.ErrUnsupported, "unsupported swap path %v", models.ActionKinds(params.Process.Path))}
	}
}

func (b *BaseHandler) ValidateSwapOnlyProcess(ctx context.Context, params ProcessParams) []*models.TransactionError {
	return b.validateLegs(ctx, params, models.ActionSwap)
}

func (b *BaseHandler) ValidateSwapXcmProcess(ctx context.Context, params ProcessParams) []*models.TransactionError {
	return b.validateLegs(ctx, params, models.ActionSwap, models.ActionBridge)
}

func (b *BaseHandler) ValidateXcmSwapProcess(ctx context.Context, params ProcessParams) []*models.TransactionError {
	return b.validateLegs(ctx, params, models.ActionBridge, models.ActionSwap)
}

func (b *BaseHandler) ValidateXcmSwapXcmProcess(ctx context.Context, params ProcessParams) []*models.TransactionError {
	return b.validateLegs(ctx, params, models.ActionBridge, models.ActionSwap, models.ActionBridge)
}

// validateLegs validates the pending pair steps in path order. The output a pending leg is expected to
// produce is added to the balance the next leg spends, since it only exists once that leg ran.
// Steps before the current one already ran and are skipped.
func (b *BaseHandler) validateLegs(ctx context.Context, params ProcessParams, kinds ...models.ActionKind) []*models.TransactionError {
	var legs []int
	for i, s := range params.Process.Steps {
		if s.Type == models.StepSwap || s.Type == models.StepXcm {
			legs = append(legs, i)
		}
	}
	if len(legs) != len(kinds) {
		return []*models.TransactionError{txErr(models.ErrInternal, "process has %d swap and bridge steps for %d actions", len(legs), len(kinds))}
	}

	carry := decimal.Zero
	for i, idx := range legs {
		step, fee := params.Process.Steps[idx], params.Process.TotalFee[idx]
		if step.ID < params.CurrentStep {
			carry = decimal.Zero
			continue
		}
		last := i == len(legs)-1

		var errs []*models.TransactionError
		var out decimal.Decimal
		switch kinds[i] {
		case models.ActionSwap:
			errs, out = b.ValidateSwapStep(ctx, params, step, fee, carry, last)
		case models.ActionBridge:
			errs, out = b.ValidateBridgeStep(ctx, params, step, fee, carry, last)
		}
		if len(errs) > 0 {
			return errs
		}
		carry = out
	}
	return nil
}

// ValidateBridgeStep checks that the sender can pay the transfer and its fee, that the amount clears the
// destination keep alive minimum at the high fee rate plus the delivery fee, and that the receiver
// account stays alive after receiving the asset. It returns the amount the leg delivers.
func (b *BaseHandler) ValidateBridgeStep(ctx context.Context, params ProcessParams, step models.StepDetail, fee models.SwapFeeInfo, carry decimal.Decimal, last bool) ([]*models.TransactionError, decimal.Decimal) {
	meta, ok := step.Metadata.(models.BridgeMetadata)
	if !ok {
		return []*models.TransactionError{txErr(models.ErrInternal, "step %d carries no bridge metadata", step.ID)}, decimal.Zero
	}
	from, to := meta.OriginTokenInfo, meta.DestinationTokenInfo
	feeToken := fee.FeeToken()
	feeAmount := fee.NetworkFee(feeToken)

	bal, err := b.balance(ctx, meta.Sender, from.OriginChain, from.Slug)
	if err != nil {
		return internalErr(err), decimal.Zero
	}
	bal = bal.Add(carry)

	var errs []*models.TransactionError
	need := meta.SendingValue
	if feeToken != "" && feeToken != from.Slug {
		feeBal, err := b.balance(ctx, meta.Sender, from.OriginChain, feeToken)
		if err != nil {
			return internalErr(err), decimal.Zero
		}
		if feeAmount.GreaterThanOrEqual(feeBal) {
			errs = append(errs, txErr(models.ErrNotEnoughBalance, "Insufficient balance to pay the transfer fee on %s", from.OriginChain))
		}
	} else {
		if feeAmount.GreaterThanOrEqual(bal) {
			errs = append(errs, txErr(models.ErrNotEnoughBalance, "Insufficient balance to pay the transfer fee on %s", from.OriginChain))
		}
		need = need.Add(feeAmount)
	}
	if need.GreaterThan(bal) {
		errs = append(errs, txErr(models.ErrNotEnoughBalance, "Insufficient %s balance to transfer", from.Symbol))
	}

	keepAlive := to.MinAmount.Mul(FeeRateHigh).Add(meta.DeliveryFee)
	if !meta.SendingValue.GreaterThan(keepAlive) {
		errs = append(errs, txErr(models.ErrAmountTooLow, "Amount must be greater than %s to transfer to %s", keepAlive, to.OriginChain))
	}

	if !meta.IsAggregator && !to.IsSufficient && !to.IsNative() {
		native, err := b.deps.Registry.GetNativeAsset(to.OriginChain)
		if err != nil {
			return internalErr(err), decimal.Zero
		}
		nativeBal, err := b.totalBalance(ctx, meta.Receiver, to.OriginChain, native.Slug)
		if err != nil {
			return internalErr(err), decimal.Zero
		}
		if nativeBal.LessThan(native.MinAmount) {
			errs = append(errs, txErr(models.ErrReceiverInactive, "The recipient needs at least %s %s on %s to receive %s",
				native.MinAmount, native.Symbol, to.OriginChain, to.Symbol))
		}
	}

	if last {
		errs = append(errs, b.validateRecipient(params.Recipient, to.OriginChain)...)
	}
	return errs, meta.ExpectedReceive
}

// ValidateSwapStep checks the fee and spend balance of the swap, the slippage floor against the
// receiver's existential deposit and, on the last leg, the recipient address. It returns the floor.
func (b *BaseHandler) ValidateSwapStep(ctx context.Context, params ProcessParams, step models.StepDetail, fee models.SwapFeeInfo, carry decimal.Decimal, last bool) ([]*models.TransactionError, decimal.Decimal) {
	meta, ok := step.Metadata.(models.SwapMetadata)
	if !ok {
		return []*models.TransactionError{txErr(models.ErrInternal, "step %d carries no swap metadata", step.ID)}, decimal.Zero
	}
	from, to := meta.OriginTokenInfo, meta.DestinationTokenInfo
	feeToken := fee.FeeToken()
	feeAmount := fee.NetworkFee(feeToken)

	var errs []*models.TransactionError
	if feeToken != "" && feeAmount.IsPositive() {
		feeBal, err := b.balance(ctx, meta.Sender, from.OriginChain, feeToken)
		if err != nil {
			return internalErr(err), decimal.Zero
		}
		if feeToken == from.Slug {
			feeBal = feeBal.Add(carry)
		}
		if feeAmount.GreaterThanOrEqual(feeBal) {
			errs = append(errs, txErr(models.ErrNotEnoughBalance, "Insufficient balance to pay the swap fee on %s", from.OriginChain))
		}
	}

	bal, err := b.balance(ctx, meta.Sender, from.OriginChain, from.Slug)
	if err != nil {
		return internalErr(err), decimal.Zero
	}
	bal = bal.Add(carry)
	need := meta.SendingValue
	if feeToken == from.Slug {
		need = need.Add(feeAmount)
	}
	if need.GreaterThan(bal) {
		errs = append(errs, txErr(models.ErrSwapNotEnoughBalance, ""))
	}

	minReceive := MinReceive(meta.ExpectedReceive, params.Slippage)
	if !minReceive.IsPositive() {
		errs = append(errs, txErr(models.ErrNotMeetMinSwap, ""))
	} else {
		recvBal, err := b.totalBalance(ctx, meta.Receiver, to.OriginChain, to.Slug)
		if err != nil {
			return internalErr(err), decimal.Zero
		}
		if recvBal.IsZero() && minReceive.LessThan(to.MinAmount) {
			errs = append(errs, txErr(models.ErrNotMeetMinSwap, "The minimum received amount %s is below the %s existential deposit", minReceive, to.Symbol))
		}
	}

	if last {
		errs = append(errs, b.validateRecipient(params.Recipient, to.OriginChain)...)
	}
	return errs, minReceive
}

// validateRecipient rejects an EVM address for a non EVM chain and the other way around
func (b *BaseHandler) validateRecipient(recipient, chainSlug string) []*models.TransactionError {
	if recipient == "" {
		return nil
	}
	info, err := b.deps.Registry.GetChainInfoByKey(chainSlug)
	if err != nil {
		return internalErr(err)
	}
	if registry.IsEvmAddress(recipient) != (info.ChainType == models.ChainTypeEvm) {
		return []*models.TransactionError{txErr(models.ErrInvalidRecipient, "Recipient address does not belong to %s", info.Name)}
	}
	return nil
}
