package router

import "github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"

// RouteKind names the strategy that produced a path
type RouteKind string

const (
	RouteBridgeOnly       RouteKind = "bridge_only"
	RouteSwap             RouteKind = "swap"
	RouteBridgeSwap       RouteKind = "bridge_swap"
	RouteSwapBridge       RouteKind = "swap_bridge"
	RouteBridgeSwapBridge RouteKind = "bridge_swap_bridge"
	RouteNotFound         RouteKind = "not_found"
)

// RouteIndex is the searchable form of the asset ref graph and the provider table.
type RouteIndex struct {
	assets         map[string]*models.Asset     // asset slug -> asset
	bridgeFrom     map[string][]models.AssetRef // src asset -> outgoing bridge edges, sorted by dest
	bridgeTo       map[string][]models.AssetRef // dest asset -> incoming bridge edges, sorted by src
	directBridges  map[string]bool              // "src___dest" for every bridge edge
	providerChains map[string]map[string]bool   // provider id -> chain set
	crossChain     map[string]bool              // provider id -> swaps across its chains
	chainProviders map[string][]string          // chain -> provider ids, sorted
}

// PathResult is a discovered path with the strategy that found it
type PathResult struct {
	Path     []models.DynamicSwapAction `json:"path"`
	Kind     RouteKind                  `json:"kind"`
	Provider string                     `json:"provider,omitempty"` // provider group of the swap leg
}
