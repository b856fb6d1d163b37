package router

import "github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"

// FindDirectBridge reports whether a single bridge edge connects the two assets
func (ri *RouteIndex) FindDirectBridge(from, to *models.Asset) bool {
	return ri.directBridges[models.AssetRefKey(from.Slug, to.Slug)]
}

// FindDirectSwap returns a one hop swap path when a single provider group covers both chains
func (ri *RouteIndex) FindDirectSwap(from, to *models.Asset) ([]models.DynamicSwapAction, string) {
	provider, ok := ri.canSwap(from, to)
	if !ok {
		return nil, ""
	}
	return []models.DynamicSwapAction{swapAction(from.Slug, to.Slug)}, provider
}
