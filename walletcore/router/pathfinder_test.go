package router_test

import (
	"errors"
	"testing"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/router"
)

const (
	polkadotDOT  = "polkadot-NATIVE-DOT"
	hydraHDX     = "hydradx_main-NATIVE-HDX"
	hydraDOT     = "hydradx_main-LOCAL-DOT"
	hydraUSDT    = "hydradx_main-LOCAL-USDT"
	assetHubDOT  = "statemint-NATIVE-DOT"
	assetHubUSDT = "statemint-LOCAL-USDT"
	bifrostDOT   = "bifrost-LOCAL-DOT"
	bifrostUSDT  = "bifrost-LOCAL-USDT"
	ethETH       = "ethereum-NATIVE-ETH"
	ethUSDC      = "ethereum-ERC20-USDC"
	arbETH       = "arbitrum_one-NATIVE-ETH"
	tonTON       = "ton-NATIVE-TON"
	tonUSDT      = "ton-JETTON-USDT"
)

var assets = []*models.Asset{
	{Slug: polkadotDOT, OriginChain: "polkadot", AssetType: models.AssetTypeNative},
	{Slug: hydraHDX, OriginChain: "hydradx_main", AssetType: models.AssetTypeNative},
	{Slug: hydraDOT, OriginChain: "hydradx_main", AssetType: models.AssetTypeLocal},
	{Slug: hydraUSDT, OriginChain: "hydradx_main", AssetType: models.AssetTypeLocal},
	{Slug: assetHubDOT, OriginChain: "statemint", AssetType: models.AssetTypeNative},
	{Slug: assetHubUSDT, OriginChain: "statemint", AssetType: models.AssetTypeLocal},
	{Slug: bifrostDOT, OriginChain: "bifrost", AssetType: models.AssetTypeLocal},
	{Slug: bifrostUSDT, OriginChain: "bifrost", AssetType: models.AssetTypeLocal},
	{Slug: ethETH, OriginChain: "ethereum", AssetType: models.AssetTypeNative},
	{Slug: ethUSDC, OriginChain: "ethereum", AssetType: models.AssetTypeErc20},
	{Slug: arbETH, OriginChain: "arbitrum_one", AssetType: models.AssetTypeNative},
	{Slug: tonTON, OriginChain: "ton", AssetType: models.AssetTypeNative},
	{Slug: tonUSDT, OriginChain: "ton", AssetType: models.AssetTypeJetton},
}

var groups = []models.ProviderGroup{
	{ProviderID: "HYDRADX_MAINNET", Chains: []string{"hydradx_main"}},
	{ProviderID: "ASSET_HUB", Chains: []string{"statemint"}},
	{ProviderID: "UNISWAP", Chains: []string{"ethereum", "arbitrum_one"}},
	{ProviderID: "CHAINFLIP_MAINNET", Chains: []string{"ethereum", "arbitrum_one", "statemint"}, CrossChain: true},
	{ProviderID: "STONFI", Chains: []string{"ton"}},
}

func xcm(src, dest string) models.AssetRef {
	return models.AssetRef{SrcAsset: src, DestAsset: dest, Path: models.AssetRefPathXcm}
}

func refs() map[string]models.AssetRef {
	edges := []models.AssetRef{
		xcm(polkadotDOT, hydraDOT), xcm(hydraDOT, polkadotDOT),
		xcm(polkadotDOT, assetHubDOT), xcm(assetHubDOT, polkadotDOT),
		xcm(polkadotDOT, bifrostDOT), xcm(bifrostDOT, polkadotDOT),
		xcm(assetHubUSDT, hydraUSDT), xcm(hydraUSDT, assetHubUSDT),
		xcm(hydraUSDT, bifrostUSDT), xcm(assetHubUSDT, bifrostUSDT),
		// not a bridge edge
		{SrcAsset: ethUSDC, DestAsset: tonUSDT, Path: models.AssetRefPathOther},
	}
	m := make(map[string]models.AssetRef, len(edges))
	for _, e := range edges {
		m[models.AssetRefKey(e.SrcAsset, e.DestAsset)] = e
	}
	return m
}

func setupTestPathfinder(t *testing.T, hubChain string) *router.Pathfinder {
	t.Helper()
	index := router.NewRouteIndex()
	assert.NoError(t, index.BuildIndex(assets, refs(), groups))
	return router.NewPathfinder(index, hubChain)
}

func actions(path []models.DynamicSwapAction) []string {
	out := make([]string, len(path))
	for i, a := range path {
		out[i] = string(a.Action) + "(" + a.Pair.From + "->" + a.Pair.To + ")"
	}
	return out
}

func TestPathfinder_DirectSwap(t *testing.T) {
	pf := setupTestPathfinder(t, "hydradx_main")

	res, err := pf.FindPath(hydraDOT, hydraHDX)
	assert.NoError(t, err)
	assert.Equal(t, res.Kind, router.RouteSwap)
	assert.Equal(t, res.Provider, "HYDRADX_MAINNET")
	assert.DeepEqual(t, actions(res.Path), []string{"SWAP(" + hydraDOT + "->" + hydraHDX + ")"})
}

func TestPathfinder_DirectBridge(t *testing.T) {
	pf := setupTestPathfinder(t, "hydradx_main")

	res, err := pf.FindPath(polkadotDOT, hydraDOT)
	assert.NoError(t, err)
	assert.Equal(t, res.Kind, router.RouteBridgeOnly)
	assert.Equal(t, len(res.Path), 0)
}

func TestPathfinder_CrossChainProvider(t *testing.T) {
	pf := setupTestPathfinder(t, "")

	res, err := pf.FindPath(ethUSDC, arbETH)
	assert.NoError(t, err)
	assert.Equal(t, res.Kind, router.RouteSwap)
	assert.Equal(t, res.Provider, "CHAINFLIP_MAINNET")

	// single chain groups never swap across chains
	_, err = pf.FindPath(tonTON, ethETH)
	assert.True(t, errors.Is(err, router.ErrSwapPairNotFound))
}

func TestPathfinder_BridgeThenSwap(t *testing.T) {
	pf := setupTestPathfinder(t, "hydradx_main")

	res, err := pf.FindPath(polkadotDOT, hydraHDX)
	assert.NoError(t, err)
	assert.Equal(t, res.Kind, router.RouteBridgeSwap)
	assert.DeepEqual(t, actions(res.Path), []string{
		"BRIDGE(" + polkadotDOT + "->" + hydraDOT + ")",
		"SWAP(" + hydraDOT + "->" + hydraHDX + ")",
	})
}

func TestPathfinder_SwapThenBridge(t *testing.T) {
	pf := setupTestPathfinder(t, "hydradx_main")

	res, err := pf.FindPath(hydraHDX, polkadotDOT)
	assert.NoError(t, err)
	assert.Equal(t, res.Kind, router.RouteSwapBridge)
	assert.DeepEqual(t, actions(res.Path), []string{
		"SWAP(" + hydraHDX + "->" + hydraDOT + ")",
		"BRIDGE(" + hydraDOT + "->" + polkadotDOT + ")",
	})
}

func TestPathfinder_BridgeSwapBridge(t *testing.T) {
	pf := setupTestPathfinder(t, "hydradx_main")

	res, err := pf.FindPath(polkadotDOT, bifrostUSDT)
	assert.NoError(t, err)
	assert.Equal(t, res.Kind, router.RouteBridgeSwapBridge)
	assert.DeepEqual(t, actions(res.Path), []string{
		"BRIDGE(" + polkadotDOT + "->" + hydraDOT + ")",
		"SWAP(" + hydraDOT + "->" + hydraUSDT + ")",
		"BRIDGE(" + hydraUSDT + "->" + bifrostUSDT + ")",
	})
}

// The first viable candidate wins unless a later one starts on the hub chain. This is a known
// limitation: candidates are not ranked by cost or output.
func TestPathfinder_BridgeSwapBridgeHubOverride(t *testing.T) {
	firstViable := setupTestPathfinder(t, "")
	res, err := firstViable.FindPath(polkadotDOT, bifrostUSDT)
	assert.NoError(t, err)
	assert.Equal(t, res.Path[0].Pair.To, hydraDOT)

	hub := setupTestPathfinder(t, "statemint")
	res, err = hub.FindPath(polkadotDOT, bifrostUSDT)
	assert.NoError(t, err)
	assert.DeepEqual(t, actions(res.Path), []string{
		"BRIDGE(" + polkadotDOT + "->" + assetHubDOT + ")",
		"SWAP(" + assetHubDOT + "->" + assetHubUSDT + ")",
		"BRIDGE(" + assetHubUSDT + "->" + bifrostUSDT + ")",
	})
}

func TestPathfinder_SelfLoopRejected(t *testing.T) {
	index := router.NewRouteIndex()
	loopAssets := []*models.Asset{
		{Slug: "a-NATIVE-A", OriginChain: "a"},
		{Slug: "hub-LOCAL-A", OriginChain: "hub"},
		{Slug: "c-LOCAL-A", OriginChain: "c"},
	}
	loopRefs := map[string]models.AssetRef{
		"1": xcm("a-NATIVE-A", "hub-LOCAL-A"),
		"2": xcm("hub-LOCAL-A", "c-LOCAL-A"),
	}
	assert.NoError(t, index.BuildIndex(loopAssets, loopRefs, []models.ProviderGroup{
		{ProviderID: "HUB", Chains: []string{"hub"}},
	}))
	pf := router.NewPathfinder(index, "hub")

	// the only three hop candidate bridges in and out the same transit asset
	_, err := pf.FindPath("a-NATIVE-A", "c-LOCAL-A")
	assert.True(t, errors.Is(err, router.ErrSwapPairNotFound))
}

func TestPathfinder_AlternativeSwapAssetFirst(t *testing.T) {
	// hydradx and asset hub both swap into asset hub USDT through this group
	withBridgeGroup := append(append([]models.ProviderGroup{}, groups...), models.ProviderGroup{
		ProviderID: "XCHAIN", Chains: []string{"hydradx_main", "statemint"}, CrossChain: true,
	})

	index := router.NewRouteIndex()
	assert.NoError(t, index.BuildIndex(assets, refs(), withBridgeGroup))
	res, err := router.NewPathfinder(index, "").FindPath(polkadotDOT, assetHubUSDT)
	assert.NoError(t, err)
	assert.Equal(t, res.Kind, router.RouteBridgeSwap)
	assert.Equal(t, res.Path[0].Pair.To, hydraDOT)

	alt := make([]*models.Asset, len(assets))
	for i, a := range assets {
		c := *a
		if c.Slug == polkadotDOT {
			c.AlternativeSwapAsset = assetHubDOT
		}
		alt[i] = &c
	}
	index = router.NewRouteIndex()
	assert.NoError(t, index.BuildIndex(alt, refs(), withBridgeGroup))
	res, err = router.NewPathfinder(index, "").FindPath(polkadotDOT, assetHubUSDT)
	assert.NoError(t, err)
	assert.Equal(t, res.Kind, router.RouteBridgeSwap)
	assert.Equal(t, res.Path[0].Pair.To, assetHubDOT)
}

func TestPathfinder_ImpossibleRoute(t *testing.T) {
	pf := setupTestPathfinder(t, "hydradx_main")

	_, err := pf.FindPath(tonUSDT, polkadotDOT)
	assert.True(t, errors.Is(err, router.ErrSwapPairNotFound))

	_, err = pf.FindPath("nope", polkadotDOT)
	assert.True(t, errors.Is(err, router.ErrUnknownAsset))

	_, err = pf.FindPath(polkadotDOT, polkadotDOT)
	assert.True(t, errors.Is(err, router.ErrSwapPairNotFound))
}

func TestPathfinder_AllPairsContinuity(t *testing.T) {
	pf := setupTestPathfinder(t, "hydradx_main")

	for _, from := range assets {
		for _, to := range assets {
			if from.Slug == to.Slug {
				continue
			}
			res, err := pf.FindPath(from.Slug, to.Slug)
			if err != nil {
				assert.True(t, errors.Is(err, router.ErrSwapPairNotFound))
				continue
			}
			if len(res.Path) == 0 {
				assert.Equal(t, res.Kind, router.RouteBridgeOnly)
				continue
			}
			assert.Equal(t, res.Path[0].Pair.From, from.Slug)
			assert.Equal(t, res.Path[len(res.Path)-1].Pair.To, to.Slug)
			for i := 0; i+1 < len(res.Path); i++ {
				assert.Equal(t, res.Path[i].Pair.To, res.Path[i+1].Pair.From)
			}
			assert.NotEqual(t, models.ShapeOf(res.Path), models.ShapeUnsupported)
		}
	}
}

func BenchmarkPathfinder_BridgeSwapBridge(b *testing.B) {
	index := router.NewRouteIndex()
	_ = index.BuildIndex(assets, refs(), groups)
	pf := router.NewPathfinder(index, "hydradx_main")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = pf.FindPath(polkadotDOT, bifrostUSDT)
	}
}
