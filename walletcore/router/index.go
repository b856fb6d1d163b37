package router

import (
	"fmt"
	"sort"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// NewRouteIndex creates a new RouteIndex with initialized maps
func NewRouteIndex() *RouteIndex {
	return &RouteIndex{
		assets:         make(map[string]*models.Asset),
		bridgeFrom:     make(map[string][]models.AssetRef),
		bridgeTo:       make(map[string][]models.AssetRef),
		directBridges:  make(map[string]bool),
		providerChains: make(map[string]map[string]bool),
		crossChain:     make(map[string]bool),
		chainProviders: make(map[string][]string),
	}
}

// BuildIndex builds the route index from the registry assets, the asset ref graph and the provider table.
// Only XCM refs are bridge edges.
func (ri *RouteIndex) BuildIndex(assets []*models.Asset, refs map[string]models.AssetRef, groups []models.ProviderGroup) error {
	if len(assets) == 0 {
		return fmt.Errorf("no assets to build index for")
	}

	for _, a := range assets {
		ri.assets[a.Slug] = a
	}

	for _, ref := range refs {
		if ref.Path != models.AssetRefPathXcm {
			continue
		}
		if _, ok := ri.assets[ref.SrcAsset]; !ok {
			return fmt.Errorf("bridge edge from unknown asset %s", ref.SrcAsset)
		}
		if _, ok := ri.assets[ref.DestAsset]; !ok {
			return fmt.Errorf("bridge edge to unknown asset %s", ref.DestAsset)
		}
		ri.bridgeFrom[ref.SrcAsset] = append(ri.bridgeFrom[ref.SrcAsset], ref)
		ri.bridgeTo[ref.DestAsset] = append(ri.bridgeTo[ref.DestAsset], ref)
		ri.directBridges[models.AssetRefKey(ref.SrcAsset, ref.DestAsset)] = true
	}

	// refs come from a map, sort so the search order is stable
	for k := range ri.bridgeFrom {
		edges := ri.bridgeFrom[k]
		sort.Slice(edges, func(i, j int) bool { return edges[i].DestAsset < edges[j].DestAsset })
	}
	for k := range ri.bridgeTo {
		edges := ri.bridgeTo[k]
		sort.Slice(edges, func(i, j int) bool { return edges[i].SrcAsset < edges[j].SrcAsset })
	}

	for _, g := range groups {
		if g.ProviderID == "" {
			return fmt.Errorf("provider group without provider id")
		}
		set := ri.providerChains[g.ProviderID]
		if set == nil {
			set = make(map[string]bool)
			ri.providerChains[g.ProviderID] = set
		}
		for _, c := range g.Chains {
			if !set[c] {
				set[c] = true
				ri.chainProviders[c] = append(ri.chainProviders[c], g.ProviderID)
			}
		}
		if g.CrossChain {
			ri.crossChain[g.ProviderID] = true
		}
	}
	for c := range ri.chainProviders {
		sort.Strings(ri.chainProviders[c])
	}

	return nil
}

// GetAsset returns the indexed asset with the slug
func (ri *RouteIndex) GetAsset(slug string) (*models.Asset, bool) {
	a, ok := ri.assets[slug]
	return a, ok
}

// BridgeEdgesFrom lists the bridge edges leaving an asset
func (ri *RouteIndex) BridgeEdgesFrom(slug string) []models.AssetRef {
	return ri.bridgeFrom[slug]
}

// ProvidersOnChain lists the provider groups that cover a chain
func (ri *RouteIndex) ProvidersOnChain(chain string) []string {
	return ri.chainProviders[chain]
}
