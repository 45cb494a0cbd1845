// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

// Package metrics exposes prometheus counters and gauges for the core,
// grounded on the client_golang usage in
// pkg/balance/metricsreader/metrics_reader.go.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the counters and gauges the replay scheduler and
// LIN controller core report to.
type Registry struct {
	FramesSent       *prometheus.CounterVec
	FramesReceived   *prometheus.CounterVec
	ReplayDispatched *prometheus.CounterVec
	ActiveReplayTasks prometheus.Gauge
	ExtensionLoads   *prometheus.CounterVec
}

// NewRegistry builds a Registry and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silkit",
			Subsystem: "lin",
			Name:      "frames_sent_total",
			Help:      "LIN frames transmitted by controller.",
		}, []string{"controller"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silkit",
			Subsystem: "lin",
			Name:      "frames_received_total",
			Help:      "LIN frames received by controller.",
		}, []string{"controller"}),
		ReplayDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silkit",
			Subsystem: "replay",
			Name:      "messages_dispatched_total",
			Help:      "Replay messages dispatched per controller.",
		}, []string{"controller"}),
		ActiveReplayTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "silkit",
			Subsystem: "replay",
			Name:      "active_tasks",
			Help:      "Replay tasks not yet marked done.",
		}),
		ExtensionLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silkit",
			Subsystem: "extension",
			Name:      "loads_total",
			Help:      "Extension load attempts by outcome.",
		}, []string{"extension", "outcome"}),
	}

	reg.MustRegister(r.FramesSent, r.FramesReceived, r.ReplayDispatched, r.ActiveReplayTasks, r.ExtensionLoads)
	return r
}
