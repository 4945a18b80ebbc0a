package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resolution metrics
	ResolutionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redirect_resolution_outcomes_total",
			Help: "Total number of resolution outcomes by kind",
		},
		[]string{"outcome"}, // "redirect", "not_found", "password_required", "pending"
	)

	ClickLogFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redirect_click_log_failures_total",
			Help: "Total number of click records that failed to persist",
		},
	)

	// Geo lookup metrics
	GeoLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "redirect_geo_lookup_duration_seconds",
			Help:    "IP geolocation lookup duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
	)

	GeoLookupErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redirect_geo_lookup_errors_total",
			Help: "Total number of failed IP geolocation lookups",
		},
	)

	// Request metrics
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redirect_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redirect_requests_total",
			Help: "Total number of requests",
		},
		[]string{"method", "path", "status"},
	)
)
