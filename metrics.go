package shadow

//
// Prometheus metrics (SPEC_FULL.md §5 "Metrics", §7 "heartbeat+Prometheus")
//
// Grounded on the teacher's choice of github.com/prometheus/client_golang
// for runtime counters (cmd/calibrate uses the same family of gauges/
// counters for calibration output). Every metric here is a per-host
// instance, labeled with the host name, so a single process simulating
// thousands of hosts doesn't register thousands of distinct metric names.
//

import "github.com/prometheus/client_golang/prometheus"

// NICMetrics records per-NIC counters for one host. The zero value is not
// ready for use; construct with [NewNICMetrics].
type NICMetrics struct {
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
	packetsDropped  prometheus.Counter
	upstreamTokens  prometheus.Gauge
	downstreamTokens prometheus.Gauge
}

// NewNICMetrics registers (via reg) the counters for one host's NIC. reg
// may be nil, in which case metrics are tracked in-process but never
// exported (useful for tests).
func NewNICMetrics(reg prometheus.Registerer, hostName string) *NICMetrics {
	labels := prometheus.Labels{"host": hostName}
	m := &NICMetrics{
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "shadow_nic_bytes_sent_total",
			Help:        "Total bytes transmitted by this host's NIC.",
			ConstLabels: labels,
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "shadow_nic_bytes_received_total",
			Help:        "Total bytes received by this host's NIC.",
			ConstLabels: labels,
		}),
		packetsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "shadow_nic_packets_dropped_total",
			Help:        "Total packets dropped at this host's NIC (loss, routing failure, or buffer overflow).",
			ConstLabels: labels,
		}),
		upstreamTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "shadow_nic_upstream_tokens_bytes",
			Help:        "Current upstream token-bucket balance in bytes.",
			ConstLabels: labels,
		}),
		downstreamTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "shadow_nic_downstream_tokens_bytes",
			Help:        "Current downstream token-bucket balance in bytes.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.bytesSent, m.bytesReceived, m.packetsDropped, m.upstreamTokens, m.downstreamTokens)
	}
	return m
}

// RecordSent accounts for a successfully transmitted packet of n bytes.
func (m *NICMetrics) RecordSent(n int) { m.bytesSent.Add(float64(n)) }

// RecordReceived accounts for a successfully delivered ingress packet of n bytes.
func (m *NICMetrics) RecordReceived(n int) { m.bytesReceived.Add(float64(n)) }

// RecordDrop accounts for a dropped packet (loss, routing failure, or
// buffer overflow).
func (m *NICMetrics) RecordDrop() { m.packetsDropped.Inc() }

// Observe updates the point-in-time gauges from the live NIC state. Called
// once per [NIC.Tick].
func (m *NICMetrics) Observe(n *NIC) {
	m.upstreamTokens.Set(float64(n.upstream.Available()))
	m.downstreamTokens.Set(float64(n.downstream.Available()))
}

// HostMetrics aggregates the metrics a [Host] exposes beyond its NIC:
// active connections, retransmissions, and CPU-delay accumulation
// (SPEC_FULL.md §7).
type HostMetrics struct {
	NIC *NICMetrics

	activeConnections prometheus.Gauge
	retransmissions   prometheus.Counter
	cpuDelayNanos     prometheus.Counter
}

// NewHostMetrics constructs the full per-host metrics set.
func NewHostMetrics(reg prometheus.Registerer, hostName string) *HostMetrics {
	labels := prometheus.Labels{"host": hostName}
	hm := &HostMetrics{
		NIC: NewNICMetrics(reg, hostName),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "shadow_tcp_active_connections",
			Help:        "Number of TCP connections not in CLOSED state on this host.",
			ConstLabels: labels,
		}),
		retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "shadow_tcp_retransmissions_total",
			Help:        "Total TCP segment retransmissions on this host.",
			ConstLabels: labels,
		}),
		cpuDelayNanos: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "shadow_host_cpu_delay_nanoseconds_total",
			Help:        "Total simulated CPU delay accumulated and applied on this host.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(hm.activeConnections, hm.retransmissions, hm.cpuDelayNanos)
	}
	return hm
}

// SetActiveConnections updates the current TCP connection count.
func (hm *HostMetrics) SetActiveConnections(n int) { hm.activeConnections.Set(float64(n)) }

// RecordRetransmission accounts for one retransmitted TCP segment.
func (hm *HostMetrics) RecordRetransmission() { hm.retransmissions.Inc() }

// RecordCPUDelay accounts for CPU delay applied to a socket callback.
func (hm *HostMetrics) RecordCPUDelay(d SimTime) { hm.cpuDelayNanos.Add(float64(d)) }
