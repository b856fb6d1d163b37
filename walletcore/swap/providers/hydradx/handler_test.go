package hydradx_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain/chaintest"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/registry"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/remote"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/handler"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/providers/hydradx"
)

const (
	alice    = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	hdx      = "hydradx_main-NATIVE-HDX"
	hydraDot = "hydradx_main-LOCAL-DOT"
	dot      = "polkadot-NATIVE-DOT"
)

func newHandler(t *testing.T, h http.HandlerFunc) *hydradx.Handler {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	reg, err := registry.New([]models.ChainInfo{
		{Slug: "hydradx_main", ChainType: models.ChainTypeSubstrate, SS58Prefix: 42},
		{Slug: "polkadot", ChainType: models.ChainTypeSubstrate},
	}, []models.Asset{
		{Slug: hdx, OriginChain: "hydradx_main", Symbol: "HDX", Decimals: 12, AssetType: models.AssetTypeNative},
		{Slug: hydraDot, OriginChain: "hydradx_main", Symbol: "DOT", Decimals: 10, AssetType: models.AssetTypeLocal, OnChainID: "5"},
		{Slug: dot, OriginChain: "polkadot", Symbol: "DOT", Decimals: 10, AssetType: models.AssetTypeNative},
	}, nil)
	assert.NoError(t, err)
	reg.SetSubstrateApi("hydradx_main", chaintest.NewSubstrate())

	client, err := remote.NewClient("hydradx", srv.URL)
	assert.NoError(t, err)
	t.Cleanup(client.Close)

	return hydradx.New(client, handler.Deps{
		Registry: reg,
		Balances: chaintest.NewBalances(),
		QuoteTTL: map[string]time.Duration{hydradx.ProviderID: time.Minute},
	})
}

func quoteServer(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/quote")
		assert.Equal(t, r.URL.Query().Get("assetIn"), "5")
		assert.Equal(t, r.URL.Query().Get("assetOut"), "0")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"amount_out":  "2000000000000000",
			"trade_fee":   "5000000000000",
			"network_fee": "300000000000",
			"route":       []map[string]string{{"pool": "Omnipool", "asset_in": "5", "asset_out": "0"}},
		})
	}
}

func quoteRequest(from, to string) models.SwapQuoteRequest {
	return models.SwapQuoteRequest{
		Pair:       models.NewSwapPair(from, to),
		FromAmount: decimal.NewFromInt(100_000_000_000),
		Address:    alice,
		Slippage:   decimal.RequireFromString("0.01"),
	}
}

func TestGetSwapQuote(t *testing.T) {
	h := newHandler(t, quoteServer(t))

	q, err := h.GetSwapQuote(context.Background(), quoteRequest(hydraDot, hdx))
	assert.NoError(t, err)
	assert.Equal(t, q.Provider.ID, hydradx.ProviderID)
	assert.Equal(t, q.ToAmount.String(), "2000000000000000")
	// 10 DOT -> 2000 HDX
	assert.Equal(t, q.Rate.String(), "200")
	assert.Equal(t, q.FeeInfo.NetworkFee(hdx).String(), "300000000000")
	assert.True(t, q.AliveUntil.After(time.Now().Add(50*time.Second)))
}

func TestQuoteUnsupportedPair(t *testing.T) {
	h := newHandler(t, quoteServer(t))

	_, err := h.GetSwapQuote(context.Background(), quoteRequest(dot, hdx))
	var swapErr *models.SwapError
	assert.True(t, errors.As(err, &swapErr))
	assert.Equal(t, swapErr.ErrorType, models.ErrAssetNotSupported)
	assert.True(t, swapErr.IsBenign())
}

func TestQuoteNoLiquidity(t *testing.T) {
	h := newHandler(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not enough liquidity in pool"}`, http.StatusUnprocessableEntity)
	})

	_, err := h.GetSwapQuote(context.Background(), quoteRequest(hydraDot, hdx))
	assert.Equal(t, models.ErrorTypeOf(err), models.ErrNotEnoughLiquidity)
}

func TestGenerateAndHandleSwap(t *testing.T) {
	h := newHandler(t, quoteServer(t))
	ctx := context.Background()
	req := quoteRequest(hydraDot, hdx)

	q, err := h.GetSwapQuote(ctx, req)
	assert.NoError(t, err)

	path := []models.DynamicSwapAction{{Action: models.ActionSwap, Pair: req.Pair}}
	process, err := h.GenerateOptimalProcess(ctx, handler.GenerateParams{
		Request: models.SwapRequest{Pair: req.Pair, FromAmount: req.FromAmount, Address: alice, Slippage: req.Slippage},
		Path:    path,
		Quote:   q,
	})
	assert.NoError(t, err)
	assert.NoError(t, process.CheckConsistency())
	assert.Equal(t, len(process.Steps), 2)

	data, err := h.HandleSwapProcess(ctx, handler.ProcessParams{
		Address:     alice,
		Slippage:    req.Slippage,
		Process:     process,
		Quote:       q,
		CurrentStep: 1,
	})
	assert.NoError(t, err)
	assert.Equal(t, data.ExtrinsicType, models.ExtrinsicSwap)
	assert.Equal(t, data.EstimateFee.Amount.String(), "300000000000")

	ext, ok := data.Payload.(*models.SubstrateExtrinsic)
	assert.True(t, ok)
	assert.Equal(t, ext.Pallet, "router")
	assert.Equal(t, ext.Args["min_amount_out"], "1980000000000000")
	assert.Equal(t, ext.FeeAssetID, "")
}
