package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts handled requests by outcome.
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapehub_requests_total",
			Help: "Total number of proxied requests by outcome",
		},
		[]string{"outcome"}, // "playback", "not_implemented", "record", "error"
	)

	// tapeErrors counts failed tape operations.
	tapeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapehub_tape_errors_total",
			Help: "Total number of failed tape storage operations",
		},
		[]string{"op"}, // "mkdir", "stat", "read", "write", "decode"
	)

	upstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tapehub_upstream_duration_seconds",
			Help:    "Latency of upstream round trips including body read",
			Buckets: prometheus.DefBuckets,
		},
	)
)
