package controllers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmittedTotal tracks the total number of executions submitted per service.
	SubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpsgate_controller_executions_submitted_total",
			Help: "Total number of executions submitted through the controller",
		},
		[]string{"service_id"},
	)

	// SettledTotal tracks executions reaching a terminal status.
	SettledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpsgate_controller_executions_settled_total",
			Help: "Total number of executions that reached a terminal status",
		},
		[]string{"status"},
	)

	// EventsQueuedTotal tracks the total number of events queued for webhook delivery.
	EventsQueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpsgate_controller_events_queued_total",
			Help: "Total number of execution events queued for delivery",
		},
		[]string{"status"},
	)

	// LiveExecutionsGauge tracks the current number of polled executions.
	LiveExecutionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wpsgate_controller_live_executions",
			Help: "Current number of executions being polled",
		},
	)

	// OrphansSettledTotal tracks records settled at startup.
	OrphansSettledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wpsgate_controller_orphans_settled_total",
			Help: "Total number of running records settled as Unknown at startup",
		},
	)
)
