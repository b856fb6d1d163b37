package stonfi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain/chaintest"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/registry"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/remote"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/handler"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/providers/stonfi"
)

const (
	wallet     = "UQBvW8Z5huBkMJYdnfAEM5JqTNkuWX3diqYENkWsIL0XggGG"
	usdtMaster = "EQCxE6mUtQJKFnGfaROTKOt1lZbDiiX1kCixRv7Nw2Id_sDs"
	routerAddr = "EQA2kCVNwVsil2EM2mB0SkXytxCqQjS4mttjDpnXmwG9T6bO"

	ton  = "ton-NATIVE-TON"
	usdt = "ton-JETTON-USDT"
)

type api struct {
	t      *testing.T
	builds []map[string]string
}

func (a *api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/swap/simulate":
		q := r.URL.Query()
		assert.Equal(a.t, q.Get("offer_address"), stonfi.PtonAddress)
		assert.Equal(a.t, q.Get("ask_address"), usdtMaster)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"offer_units":    q.Get("units"),
			"ask_units":      "5200000",
			"min_ask_units":  "5148000",
			"fee_units":      "15600",
			"price_impact":   "0.001",
			"router_address": routerAddr,
		})
	case "/v1/swap/build":
		var req map[string]string
		assert.NoError(a.t, json.NewDecoder(r.Body).Decode(&req))
		a.builds = append(a.builds, req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"to":      "EQARULUYsmJq1RiZ-YiH-IJLcAZUVkVff-KBPwEmmaQGH6aC",
			"amount":  "1215000000",
			"payload": "te6cckEBAQEA",
		})
	default:
		http.NotFound(w, r)
	}
}

func newHandler(t *testing.T) (*stonfi.Handler, *api) {
	t.Helper()
	a := &api{t: t}
	srv := httptest.NewServer(a)
	t.Cleanup(srv.Close)

	reg, err := registry.New([]models.ChainInfo{
		{Slug: stonfi.ChainSlug, ChainType: models.ChainTypeTon},
	}, []models.Asset{
		{Slug: ton, OriginChain: "ton", Symbol: "TON", Decimals: 9, AssetType: models.AssetTypeNative},
		{Slug: usdt, OriginChain: "ton", Symbol: "USDT", Decimals: 6, AssetType: models.AssetTypeJetton, ContractAddress: usdtMaster},
	}, nil)
	assert.NoError(t, err)
	reg.SetTonApi("ton", &chaintest.Ton{Success: true})

	client, err := remote.NewClient("stonfi", srv.URL)
	assert.NoError(t, err)
	t.Cleanup(client.Close)

	return stonfi.New(client, handler.Deps{Registry: reg, Balances: chaintest.NewBalances()}), a
}

func TestSwapTonForJetton(t *testing.T) {
	h, a := newHandler(t)
	ctx := context.Background()
	req := models.SwapRequest{
		Pair:       models.NewSwapPair(ton, usdt),
		FromAmount: decimal.NewFromInt(1_000_000_000),
		Address:    wallet,
		Slippage:   decimal.RequireFromString("0.01"),
	}

	q, err := h.GetSwapQuote(ctx, models.SwapQuoteRequest{Pair: req.Pair, FromAmount: req.FromAmount, Address: wallet, Slippage: req.Slippage})
	assert.NoError(t, err)
	assert.Equal(t, q.Rate.String(), "5.2")
	assert.Equal(t, q.FeeInfo.NetworkFee(ton).String(), "215000000")

	process, err := h.GenerateOptimalProcess(ctx, handler.GenerateParams{
		Request: req,
		Path:    []models.DynamicSwapAction{{Action: models.ActionSwap, Pair: req.Pair}},
		Quote:   q,
	})
	assert.NoError(t, err)
	assert.Equal(t, len(process.Steps), 2)

	data, err := h.HandleSwapProcess(ctx, handler.ProcessParams{
		Address:     wallet,
		Slippage:    req.Slippage,
		Process:     process,
		Quote:       q,
		CurrentStep: 1,
	})
	assert.NoError(t, err)
	assert.Equal(t, data.ChainType, models.ChainTypeTon)
	assert.True(t, data.ErrorOnTimeout)
	msg := data.Payload.(*models.TonTransferPayload)
	assert.Equal(t, msg.Amount.String(), "1215000000")
	assert.Equal(t, msg.Payload, "te6cckEBAQEA")

	assert.Equal(t, len(a.builds), 1)
	assert.Equal(t, a.builds[0]["min_ask_units"], "5148000")
	assert.Equal(t, a.builds[0]["router_address"], routerAddr)
	assert.Equal(t, a.builds[0]["gas_amount"], "215000000")
}

func TestOnlyTonAssets(t *testing.T) {
	h, _ := newHandler(t)
	_, err := h.GetSwapQuote(context.Background(), models.SwapQuoteRequest{
		Pair:       models.NewSwapPair(ton, "ethereum-NATIVE-ETH"),
		FromAmount: decimal.NewFromInt(1),
		Address:    wallet,
	})
	assert.Equal(t, models.ErrorTypeOf(err), models.ErrAssetNotSupported)
}
