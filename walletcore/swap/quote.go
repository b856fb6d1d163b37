package swap

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/metrics"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/registry"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/router"
)

type providerResult struct {
	provider string
	quote    *models.SwapQuote
	err      *models.SwapError
}

// FindPath runs route discovery. A missing route is a SWAP_PAIR_NOT_FOUND swap error.
func (s *Service) FindPath(ctx context.Context, from, to string) (*router.PathResult, error) {
	pf, err := s.started(ctx)
	if err != nil {
		return nil, err
	}
	res, err := pf.FindPath(from, to)
	if err != nil {
		if errors.Is(err, router.ErrSwapPairNotFound) || errors.Is(err, router.ErrUnknownAsset) {
			return nil, models.NewSwapError(models.ErrSwapPairNotFound, "")
		}
		return nil, err
	}
	return res, nil
}

// swapPath resolves the path of a swap request. Pure bridges are not swaps.
func (s *Service) swapPath(ctx context.Context, req models.SwapRequest) ([]models.DynamicSwapAction, error) {
	res, err := s.FindPath(ctx, req.Pair.From, req.Pair.To)
	if err != nil {
		return nil, err
	}
	if len(res.Path) == 0 {
		return nil, models.NewSwapError(models.ErrSwapPairNotFound, "The pair is a direct transfer, not a swap")
	}
	return res.Path, nil
}

// GetLatestQuote prices the direct swap leg of the request with every provider and picks the best quote
func (s *Service) GetLatestQuote(ctx context.Context, req models.SwapRequest) (*models.SwapQuoteResponse, error) {
	path, err := s.swapPath(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.quotePath(ctx, req, path)
}

func (s *Service) quotePath(ctx context.Context, req models.SwapRequest, path []models.DynamicSwapAction) (*models.SwapQuoteResponse, error) {
	leg, ok := models.SwapLeg(path)
	if !ok {
		return nil, models.NewSwapError(models.ErrSwapPairNotFound, "")
	}
	ctx, span := tracer.Start(ctx, "swap.GetLatestQuote", trace.WithAttributes(
		attribute.String("pair", leg.Pair.Slug),
		attribute.Bool("cross_chain", models.IsCrossChain(path)),
	))
	defer span.End()

	from, err := s.deps.Registry.GetAssetBySlug(leg.Pair.From)
	if err != nil {
		return nil, models.NewSwapError(models.ErrAssetNotSupported, "")
	}
	info, err := s.deps.Registry.GetChainInfoByKey(from.OriginChain)
	if err != nil {
		return nil, err
	}
	address, err := registry.ReformatAddress(req.Address, info)
	if err != nil {
		return nil, models.NewSwapError(models.ErrInvalidRecipient, err.Error())
	}

	quoteReq := models.SwapQuoteRequest{
		Pair:         leg.Pair,
		FromAmount:   req.FromAmount,
		Address:      address,
		Recipient:    req.Recipient,
		Slippage:     req.Slippage,
		IsCrossChain: models.IsCrossChain(path),
	}
	results := s.collectQuotes(ctx, quoteReq)

	var quotes []*models.SwapQuote
	for _, r := range results {
		if r.quote != nil {
			quotes = append(quotes, r.quote)
		}
	}
	s.rank(quotes)

	resp := &models.SwapQuoteResponse{Quotes: quotes}
	if len(quotes) == 0 {
		resp.Error = representativeError(results)
		resp.AliveUntil = s.deps.Now().Add(s.cfg.ErrorQuoteTTL)
		log.Info().Str("pair", leg.Pair.Slug).Str("error", string(resp.Error.ErrorType)).Msg("No provider could quote")
		return resp, nil
	}

	resp.OptimalQuote = quotes[0]
	preferred := req.PreferredProvider
	if preferred == "" && req.CurrentQuote != nil {
		preferred = req.CurrentQuote.ID
	}
	if preferred != "" {
		for _, q := range quotes {
			if q.Provider.ID == preferred {
				resp.OptimalQuote = q
				break
			}
		}
	}
	resp.AliveUntil = resp.OptimalQuote.AliveUntil

	s.initQuotedProviders(ctx, quotes)

	log.Info().
		Str("pair", leg.Pair.Slug).
		Int("quotes", len(quotes)).
		Str("provider", resp.OptimalQuote.Provider.ID).
		Str("to_amount", resp.OptimalQuote.ToAmount.String()).
		Msg("Selected quote")
	return resp, nil
}

// collectQuotes asks every provider concurrently. Results keep the provider registration order.
func (s *Service) collectQuotes(ctx context.Context, req models.SwapQuoteRequest) []providerResult {
	results := make([]providerResult, len(s.order))
	var g errgroup.Group
	for i, id := range s.order {
		h := s.handlers[id]
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout)
			defer cancel()

			start := time.Now()
			q, err := h.GetSwapQuote(qctx, req)
			metrics.QuoteLatency.WithLabelValues(id).Observe(time.Since(start).Seconds())

			results[i] = providerResult{provider: id}
			if err != nil {
				var swapErr *models.SwapError
				if !errors.As(err, &swapErr) {
					swapErr = models.NewSwapError(models.ErrUnknown, err.Error())
				}
				results[i].err = swapErr
				metrics.QuoteRequests.WithLabelValues(id, string(swapErr.ErrorType)).Inc()
				log.Debug().Err(err).Str("provider", id).Str("pair", req.Pair.Slug).Msg("Provider returned no quote")
				return nil
			}
			results[i].quote = q
			metrics.QuoteRequests.WithLabelValues(id, "ok").Inc()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// rank sorts quotes by receivable amount, equal amounts go to the earlier priority provider
func (s *Service) rank(quotes []*models.SwapQuote) {
	priority := func(id string) int {
		for i, p := range s.cfg.PriorityProviders {
			if p == id {
				return i
			}
		}
		return len(s.cfg.PriorityProviders)
	}
	sort.SliceStable(quotes, func(i, j int) bool {
		a, b := quotes[i], quotes[j]
		if c := a.ToAmount.Cmp(b.ToAmount); c != 0 {
			return c > 0
		}
		return priority(a.Provider.ID) < priority(b.Provider.ID)
	})
}

// representativeError prefers a specific error over the benign "cannot quote" ones
func representativeError(results []providerResult) *models.SwapError {
	var benign *models.SwapError
	for _, r := range results {
		if r.err == nil {
			continue
		}
		if !r.err.IsBenign() {
			return r.err
		}
		if benign == nil {
			benign = r.err
		}
	}
	if benign != nil {
		return benign
	}
	return models.NewSwapError(models.ErrErrorFetchingQuote, "")
}

// initQuotedProviders runs the deferred Init of providers that just returned a quote
func (s *Service) initQuotedProviders(ctx context.Context, quotes []*models.SwapQuote) {
	seen := make(map[string]bool, len(quotes))
	var wg sync.WaitGroup
	for _, q := range quotes {
		id := q.Provider.ID
		h, ok := s.handlers[id]
		if !ok || seen[id] || h.IsReady() {
			continue
		}
		seen[id] = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Init(ctx); err != nil {
				log.Error().Err(err).Str("provider", id).Msg("Failed to initialize provider")
			}
		}()
	}
	wg.Wait()
}
