package router

import "github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"

type bridgeSwapBridge struct {
	path     []models.DynamicSwapAction
	provider string
}

// FindBridgeSwapBridge bridges out of the source asset, swaps on the transit chain and bridges into
// the destination asset.
//
// The first viable candidate wins, unless a later candidate's first hop lands on hubChain: that one
// replaces it. Candidates are not ranked by cost or output.
func (ri *RouteIndex) FindBridgeSwapBridge(from, to *models.Asset, hubChain string) ([]models.DynamicSwapAction, string) {
	var best *bridgeSwapBridge

	for _, inbound := range ri.bridgeFrom[from.Slug] {
		firstTransit, ok := ri.assets[inbound.DestAsset]
		if !ok {
			continue
		}
		if best != nil && firstTransit.OriginChain != hubChain {
			// only a hub candidate can still replace what we have
			continue
		}

		candidate := ri.findOutbound(from, to, firstTransit)
		if candidate == nil {
			continue
		}

		if best == nil {
			best = candidate
			pathfinderLog.Debug().
				Str("transit", firstTransit.Slug).
				Msg("Bridge swap bridge candidate")
		} else {
			pathfinderLog.Debug().
				Str("transit", firstTransit.Slug).
				Str("hub", hubChain).
				Msg("Hub chain candidate replaces earlier bridge swap bridge candidate")
			best = candidate
		}
		if hubChain != "" && firstTransit.OriginChain == hubChain {
			break
		}
	}

	if best == nil {
		return nil, ""
	}
	return best.path, best.provider
}

// findOutbound looks for a second transit asset that the first transit swaps into and that bridges into to
func (ri *RouteIndex) findOutbound(from, to, firstTransit *models.Asset) *bridgeSwapBridge {
	for _, outbound := range ri.bridgeTo[to.Slug] {
		secondTransit, ok := ri.assets[outbound.SrcAsset]
		if !ok || secondTransit.Slug == from.Slug {
			continue
		}
		// a transit asset bridged in must not be the one that gets bridged out
		if secondTransit.Slug == firstTransit.Slug {
			continue
		}
		provider, ok := ri.canSwap(firstTransit, secondTransit)
		if !ok {
			continue
		}
		return &bridgeSwapBridge{
			path: []models.DynamicSwapAction{
				bridgeAction(from.Slug, firstTransit.Slug),
				swapAction(firstTransit.Slug, secondTransit.Slug),
				bridgeAction(secondTransit.Slug, to.Slug),
			},
			provider: provider,
		}
	}
	return nil
}
