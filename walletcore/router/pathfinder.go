// Package router finds the sequence of swap and bridge actions that converts one asset into another.
package router

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/metrics"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

var pathfinderLog zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	pathfinderLog = zerolog.New(out).With().Timestamp().Str("component", "router").Logger()
}

// ErrSwapPairNotFound is returned when no strategy connects the two assets
var ErrSwapPairNotFound = errors.New("swap pair not found")

// ErrUnknownAsset is returned for assets missing from the index
var ErrUnknownAsset = errors.New("unknown asset")

// Pathfinder runs the route strategies over a RouteIndex
type Pathfinder struct {
	routeIndex *RouteIndex
	hubChain   string // preferred first hop chain of bridge-swap-bridge routes
}

// NewPathfinder creates a new Pathfinder. hubChain may be empty.
func NewPathfinder(routeIndex *RouteIndex, hubChain string) *Pathfinder {
	return &Pathfinder{routeIndex: routeIndex, hubChain: hubChain}
}

// Index exposes the route index
func (p *Pathfinder) Index() *RouteIndex {
	return p.routeIndex
}

// FindPath returns the actions converting fromSlug into toSlug.
// Priority order: 1) direct bridge, 2) direct swap, 3) bridge then swap, 4) swap then bridge,
// 5) bridge swap bridge. A direct bridge returns an empty path.
func (p *Pathfinder) FindPath(fromSlug, toSlug string) (*PathResult, error) {
	pathfinderLog.Info().
		Str("from", fromSlug).
		Str("to", toSlug).
		Msg("Finding path")

	from, ok := p.routeIndex.GetAsset(fromSlug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, fromSlug)
	}
	to, ok := p.routeIndex.GetAsset(toSlug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, toSlug)
	}
	if from.Slug == to.Slug {
		return nil, fmt.Errorf("%w: %s and %s are the same asset", ErrSwapPairNotFound, fromSlug, toSlug)
	}

	if p.routeIndex.FindDirectBridge(from, to) {
		pathfinderLog.Info().Msg("Found direct bridge")
		metrics.RouteLookups.WithLabelValues(string(RouteBridgeOnly)).Inc()
		return &PathResult{Path: []models.DynamicSwapAction{}, Kind: RouteBridgeOnly}, nil
	}

	strategies := []struct {
		kind RouteKind
		find func() ([]models.DynamicSwapAction, string)
	}{
		{RouteSwap, func() ([]models.DynamicSwapAction, string) { return p.routeIndex.FindDirectSwap(from, to) }},
		{RouteBridgeSwap, func() ([]models.DynamicSwapAction, string) { return p.routeIndex.FindBridgeThenSwap(from, to) }},
		{RouteSwapBridge, func() ([]models.DynamicSwapAction, string) { return p.routeIndex.FindSwapThenBridge(from, to) }},
		{RouteBridgeSwapBridge, func() ([]models.DynamicSwapAction, string) {
			return p.routeIndex.FindBridgeSwapBridge(from, to, p.hubChain)
		}},
	}

	for _, s := range strategies {
		path, provider := s.find()
		if path == nil {
			pathfinderLog.Debug().Str("kind", string(s.kind)).Msg("No route of this kind")
			continue
		}
		pathfinderLog.Info().
			Str("kind", string(s.kind)).
			Str("provider", provider).
			Int("hops", len(path)).
			Msg("Found path")
		metrics.RouteLookups.WithLabelValues(string(s.kind)).Inc()
		return &PathResult{Path: path, Kind: s.kind, Provider: provider}, nil
	}

	pathfinderLog.Warn().Str("from", fromSlug).Str("to", toSlug).Msg("No route found")
	metrics.RouteLookups.WithLabelValues(string(RouteNotFound)).Inc()
	return nil, fmt.Errorf("%w: %s -> %s", ErrSwapPairNotFound, fromSlug, toSlug)
}
