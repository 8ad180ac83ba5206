package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	taskTransitions *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "a2a_requests_total",
				Help: "Total number of A2A JSON-RPC requests",
			},
			[]string{"method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "a2a_request_duration_seconds",
				Help:    "A2A JSON-RPC request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		taskTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "a2a_task_transitions_total",
				Help: "Total number of task state transitions",
			},
			[]string{"state"},
		),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.taskTransitions)
	return m
}
