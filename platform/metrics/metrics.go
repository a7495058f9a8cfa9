// Package metrics exposes the control plane's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProvisionTotal counts finished provisioning attempts by outcome
	// (success, failed).
	ProvisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nekotab",
		Subsystem: "control_plane",
		Name:      "provision_total",
		Help:      "Tenant provisioning attempts by outcome.",
	}, []string{"outcome"})

	// LifecycleActionTotal counts suspend/resume/delete actions by outcome.
	LifecycleActionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nekotab",
		Subsystem: "control_plane",
		Name:      "lifecycle_action_total",
		Help:      "Tenant lifecycle actions by action and outcome.",
	}, []string{"action", "outcome"})

	// RetentionProcessedTotal counts retention items by terminal status.
	RetentionProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nekotab",
		Subsystem: "retention",
		Name:      "processed_total",
		Help:      "Collections processed by the retention engine, by status.",
	}, []string{"status"})
)
