package smp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smp-protocol/smp-go/pkg/netbuf"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Metrics tracks Prometheus metrics for the engine.
//
// All metrics use the "smp_" prefix. Methods handle a nil receiver, so a nil
// *Metrics is a no-op when metrics are disabled.
type Metrics struct {
	// Packets counts request packets taken from transport FIFOs.
	Packets prometheus.Counter

	// Requests counts header+payload units by group and op.
	Requests *prometheus.CounterVec

	// Responses counts responses sent, by status.
	// Labels: status=[OK, CORRUPT, NOT_SUPPORTED, ...]
	Responses *prometheus.CounterVec

	// RequestDuration tracks per-unit processing time, send included.
	RequestDuration prometheus.Histogram

	// BuffersOutstanding is the number of pool buffers in use after the
	// last packet.
	BuffersOutstanding prometheus.Gauge

	// AllocFailures is the pool's cumulative allocation failure count.
	AllocFailures prometheus.Gauge
}

// NewMetrics creates the engine metrics and registers them with registerer.
// If registerer is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Packets: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "smp_packets_total",
				Help: "Total request packets processed",
			},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smp_requests_total",
				Help: "Total SMP requests by group and op",
			},
			[]string{"group", "op"},
		),
		Responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smp_responses_total",
				Help: "Total SMP responses sent by status",
			},
			[]string{"status"},
		),
		RequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "smp_request_duration_seconds",
				Help:    "SMP request processing duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		BuffersOutstanding: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "smp_buffers_outstanding",
				Help: "Packet buffers currently allocated",
			},
		),
		AllocFailures: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "smp_buffer_alloc_failures",
				Help: "Packet buffer allocations that found the pool empty",
			},
		),
	}

	registerer.MustRegister(
		m.Packets,
		m.Requests,
		m.Responses,
		m.RequestDuration,
		m.BuffersOutstanding,
		m.AllocFailures,
	)
	return m
}

// RecordPacket records one packet taken from a FIFO.
func (m *Metrics) RecordPacket() {
	if m == nil {
		return
	}
	m.Packets.Inc()
}

// RecordRequest records one parsed request unit.
func (m *Metrics) RecordRequest(h wire.Header) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(h.Group.String(), h.Op.String()).Inc()
}

// RecordResponse records a response with its status and the time since the
// request header was read.
func (m *Metrics) RecordResponse(status wire.Status, duration time.Duration) {
	if m == nil {
		return
	}
	m.Responses.WithLabelValues(status.String()).Inc()
	m.RequestDuration.Observe(duration.Seconds())
}

// ObservePool records pool usage.
func (m *Metrics) ObservePool(stats netbuf.Stats) {
	if m == nil {
		return
	}
	m.BuffersOutstanding.Set(float64(stats.Outstanding))
	m.AllocFailures.Set(float64(stats.Failures))
}
