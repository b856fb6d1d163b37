package router

import "github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"

// sameProvider returns the first provider group able to swap between the two chains.
// Single chain groups only match when both chains are the same.
func (ri *RouteIndex) sameProvider(fromChain, toChain string) (string, bool) {
	for _, provider := range ri.chainProviders[fromChain] {
		if !ri.providerChains[provider][toChain] {
			continue
		}
		if fromChain == toChain || ri.crossChain[provider] {
			return provider, true
		}
	}
	return "", false
}

// canSwap reports whether some provider can swap from one asset into the other
func (ri *RouteIndex) canSwap(from, to *models.Asset) (string, bool) {
	if from.Slug == to.Slug {
		return "", false
	}
	return ri.sameProvider(from.OriginChain, to.OriginChain)
}

func swapAction(from, to string) models.DynamicSwapAction {
	return models.DynamicSwapAction{Action: models.ActionSwap, Pair: models.NewSwapPair(from, to)}
}

func bridgeAction(from, to string) models.DynamicSwapAction {
	return models.DynamicSwapAction{Action: models.ActionBridge, Pair: models.NewSwapPair(from, to)}
}

// preferFirst moves the edge whose transit asset is preferred to the front, keeping the rest in order
func preferFirst(edges []models.AssetRef, preferred string, transit func(models.AssetRef) string) []models.AssetRef {
	if preferred == "" {
		return edges
	}
	for i, e := range edges {
		if transit(e) != preferred {
			continue
		}
		out := make([]models.AssetRef, 0, len(edges))
		out = append(out, e)
		out = append(out, edges[:i]...)
		return append(out, edges[i+1:]...)
	}
	return edges
}
