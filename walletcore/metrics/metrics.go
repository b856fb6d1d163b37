// Package metrics holds the prometheus collectors of the wallet core. They register on the default
// registry, served by the rpc package at /server/metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "walletcore"

var (
	RouteLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "route_lookups_total",
		Help:      "Route discovery results by route kind.",
	}, []string{"kind"})

	QuoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quote_requests_total",
		Help:      "Provider quote requests by provider and result.",
	}, []string{"provider", "result"})

	QuoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "quote_duration_seconds",
		Help:      "Provider quote latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	Transactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_total",
		Help:      "Transactions reaching a status, by chain type.",
	}, []string{"chain_type", "status"})

	ProcessTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "process_transitions_total",
		Help:      "Process aggregate status changes.",
	}, []string{"status"})

	FeeRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fee_refreshes_total",
		Help:      "Fee oracle refreshes by chain and result.",
	}, []string{"chain", "result"})

	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_requests_total",
		Help:      "RPC calls by procedure and connect code.",
	}, []string{"procedure", "code"})
)
