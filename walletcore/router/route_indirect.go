package router

import "github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"

// FindBridgeThenSwap bridges the source asset once and swaps the transit asset into the destination.
// An edge landing on the source asset's alternative swap asset is tried first.
func (ri *RouteIndex) FindBridgeThenSwap(from, to *models.Asset) ([]models.DynamicSwapAction, string) {
	edges := preferFirst(ri.bridgeFrom[from.Slug], from.AlternativeSwapAsset, func(e models.AssetRef) string { return e.DestAsset })

	for _, edge := range edges {
		transit, ok := ri.assets[edge.DestAsset]
		if !ok || transit.Slug == to.Slug {
			continue
		}
		provider, ok := ri.canSwap(transit, to)
		if !ok {
			continue
		}
		pathfinderLog.Debug().
			Str("transit", transit.Slug).
			Str("provider", provider).
			Msg("Bridge then swap candidate")
		return []models.DynamicSwapAction{
			bridgeAction(from.Slug, transit.Slug),
			swapAction(transit.Slug, to.Slug),
		}, provider
	}
	return nil, ""
}

// FindSwapThenBridge swaps the source asset into an asset that bridges into the destination in one hop.
// An edge leaving the destination asset's alternative swap asset is tried first.
func (ri *RouteIndex) FindSwapThenBridge(from, to *models.Asset) ([]models.DynamicSwapAction, string) {
	edges := preferFirst(ri.bridgeTo[to.Slug], to.AlternativeSwapAsset, func(e models.AssetRef) string { return e.SrcAsset })

	for _, edge := range edges {
		transit, ok := ri.assets[edge.SrcAsset]
		if !ok || transit.Slug == from.Slug {
			continue
		}
		provider, ok := ri.canSwap(from, transit)
		if !ok {
			continue
		}
		pathfinderLog.Debug().
			Str("transit", transit.Slug).
			Str("provider", provider).
			Msg("Swap then bridge candidate")
		return []models.DynamicSwapAction{
			swapAction(from.Slug, transit.Slug),
			bridgeAction(transit.Slug, to.Slug),
		}, provider
	}
	return nil, ""
}
