// Package server implements the directory service endpoint: one port,
// datagram requests answered inline and stream connections handed to
// per-connection workers.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks server-side Prometheus metrics.
//
// All metrics use the ds_ prefix. A nil *Metrics is a valid no-op
// collector; every method handles the nil receiver.
type Metrics struct {
	// RequestsTotal counts requests by transport, command tag and reply status
	RequestsTotal *prometheus.CounterVec

	// RequestDuration tracks request latency by command tag
	RequestDuration *prometheus.HistogramVec

	// ActiveConnections tracks currently running TCP workers
	ActiveConnections prometheus.Gauge

	// AttachmentBytesTotal counts attachment payload bytes by direction
	AttachmentBytesTotal *prometheus.CounterVec
}

// NewMetrics creates server metrics registered on reg.
// Panics if registration fails (expected during initialization only).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ds_requests_total",
				Help: "Total requests by transport, command and reply status",
			},
			[]string{"transport", "command", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ds_request_duration_seconds",
				Help:    "Request duration in seconds by command",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		ActiveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ds_active_connections",
				Help: "Currently running TCP connection workers",
			},
		),
		AttachmentBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ds_attachment_bytes_total",
				Help: "Attachment payload bytes by direction",
			},
			[]string{"direction"}, // "in" (PST uploads), "out" (RTV downloads)
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveConnections,
		m.AttachmentBytesTotal,
	)

	return m
}

// RecordRequest records one completed request.
func (m *Metrics) RecordRequest(transport, command, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(transport, command, status).Inc()
	m.RequestDuration.WithLabelValues(command).Observe(durationSeconds)
}

// ConnOpened marks a TCP worker start.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

// ConnClosed marks a TCP worker end.
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// AddAttachmentBytes accounts streamed attachment payload.
func (m *Metrics) AddAttachmentBytes(direction string, n int64) {
	if m == nil {
		return
	}
	m.AttachmentBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// NullMetrics returns nil, which acts as a no-op metrics collector.
func NullMetrics() *Metrics {
	return nil
}
