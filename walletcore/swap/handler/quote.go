package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/remote"
)

// DefaultQuoteTTL is the quote lifetime of providers without an entry in Deps.QuoteTTL
const DefaultQuoteTTL = 30 * time.Second

// AliveUntil is the expiry of a quote made now
func (b *BaseHandler) AliveUntil() time.Time {
	ttl, ok := b.deps.QuoteTTL[b.provider.ID]
	if !ok || ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	return b.Now().Add(ttl)
}

// ClassifyQuoteError maps a failed quote API call onto the swap error taxonomy
func ClassifyQuoteError(err error) *models.SwapError {
	var swapErr *models.SwapError
	if errors.As(err, &swapErr) {
		return swapErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewSwapError(models.ErrErrorFetchingQuote, "")
	}

	var httpErr *remote.HTTPError
	if !errors.As(err, &httpErr) {
		return models.NewSwapError(models.ErrUnknown, "")
	}
	body := strings.ToLower(httpErr.Body)
	switch {
	case httpErr.StatusCode == http.StatusNotFound:
		return models.NewSwapError(models.ErrAssetNotSupported, "")
	case strings.Contains(body, "liquidity"):
		return models.NewSwapError(models.ErrNotEnoughLiquidity, "")
	case strings.Contains(body, "too low") || strings.Contains(body, "minimum"):
		return models.NewSwapError(models.ErrAmountTooLow, "")
	case strings.Contains(body, "too high") || strings.Contains(body, "maximum"):
		return models.NewSwapError(models.ErrAmountTooHigh, "")
	default:
		return models.NewSwapError(models.ErrErrorFetchingQuote, "")
	}
}

// QuoteAssets resolves the pair of a quote request and checks both assets live on the venue chains
func (b *BaseHandler) QuoteAssets(req models.SwapQuoteRequest, chains ...string) (*models.Asset, *models.Asset, error) {
	from, err := b.deps.Registry.GetAssetBySlug(req.Pair.From)
	if err != nil {
		return nil, nil, models.NewSwapError(models.ErrAssetNotSupported, "")
	}
	to, err := b.deps.Registry.GetAssetBySlug(req.Pair.To)
	if err != nil {
		return nil, nil, models.NewSwapError(models.ErrAssetNotSupported, "")
	}
	if !contains(chains, from.OriginChain) || !contains(chains, to.OriginChain) {
		return nil, nil, models.NewSwapError(models.ErrAssetNotSupported, "")
	}
	if !req.FromAmount.IsPositive() {
		return nil, nil, models.NewSwapError(models.ErrAmountTooLow, "")
	}
	return from, to, nil
}

// Rate is toAmount per fromAmount in whole units
func Rate(from, to *models.Asset, fromAmount, toAmount decimal.Decimal) decimal.Decimal {
	if fromAmount.IsZero() {
		return decimal.Zero
	}
	in := fromAmount.Shift(-from.Decimals)
	out := toAmount.Shift(-to.Decimals)
	return out.DivRound(in, 18)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
