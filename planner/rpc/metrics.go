package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	plansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veraswap_plans_total",
		Help: "Route planning requests by outcome.",
	}, []string{"outcome"})

	planDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "veraswap_plan_duration_seconds",
		Help:    "End-to-end route planning latency.",
		Buckets: prometheus.DefBuckets,
	})

	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veraswap_command_builds_total",
		Help: "Command build requests by outcome.",
	}, []string{"outcome"})
)
