// Package metrics provides Prometheus metrics for the push delivery pipeline.
// Labels stay low-cardinality: no notification or action ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PayloadsTotal counts inbound push payloads by normalization result.
	PayloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_payloads_total",
		Help: "Total number of inbound push payloads, by result (accepted/dropped).",
	}, []string{"result"})

	// PresentedTotal counts notifications handed to the notification surface.
	PresentedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courier_presented_total",
		Help: "Total number of notifications presented.",
	})

	// KeepAliveStartsTotal counts keep-alive arming by reason (start/resume).
	KeepAliveStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_keepalive_starts_total",
		Help: "Total number of keep-alive tasks armed, by reason.",
	}, []string{"reason"})

	// DeliveriesTotal counts routed interactions by delivery path.
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_deliveries_total",
		Help: "Total number of routed interactions, by path (direct/queued/fallback/dropped/duplicate).",
	}, []string{"path"})

	// FallbackRequestsTotal counts fallback network calls by action and outcome.
	FallbackRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_fallback_requests_total",
		Help: "Total number of fallback deliveries, by action and outcome.",
	}, []string{"action", "outcome"})

	// CrashReportsTotal counts errors caught at trigger-context boundaries.
	CrashReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_crash_reports_total",
		Help: "Total number of errors reported to the crash sink, by trigger context.",
	}, []string{"context"})
)
