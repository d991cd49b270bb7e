package shadow

//
// Virtual network interface (spec.md §3 "NIC", §4.3)
//
// Adapted from the teacher's NIC naming helper (kept below) plus the
// real-time forwarding loops in linkfwdcore.go/linkfwdfast.go/
// linkfwddelay.go/linkfwdfull.go, merged into a single event-driven model:
// egress work happens inside [NIC.Tick], invoked by the owning [Host] when
// an [EventNICTick] fires, instead of a background goroutine waking on a
// [time.Ticker]. Routing, loss and jitter are resolved synchronously at
// send time using the host-local RNG (spec.md §4.2), and delivery becomes
// a single scheduled [Event] rather than a channel write.
//

import (
	"fmt"
	"sync/atomic"
)

// nicID is the unique ID of each link NIC, used only for log messages.
var nicID = &atomic.Int64{}

// newNICName constructs a new, unique name for a NIC, e.g. "eth3".
func newNICName() string {
	return fmt.Sprintf("eth%d", nicID.Add(1))
}

// NICConfig configures a [NIC] (spec.md §3 "NIC", §6 CLI defaults).
type NICConfig struct {
	// BandwidthUp and BandwidthDown are in bytes/second.
	BandwidthUp   uint64
	BandwidthDown uint64

	// BatchInterval coalesces sends (spec.md §3, default 10ms).
	BatchInterval SimTime

	// IngressBufferBytes bounds the ingress queue (default 1 MiB,
	// clamped >= MTU).
	IngressBufferBytes int

	// Qdisc selects FIFO or round-robin egress scheduling.
	Qdisc QdiscKind

	// MTU bounds a single packet's wire size.
	MTU int
}

// DefaultNICConfig returns the spec.md §6 CLI defaults.
func DefaultNICConfig() NICConfig {
	return NICConfig{
		BatchInterval:       DefaultBatchInterval,
		IngressBufferBytes:  1 << 20,
		Qdisc:               QdiscFIFO,
		MTU:                 MTU,
	}
}

// ingressSink receives a packet once it clears ingress accounting.
// Implemented by [Host], which demultiplexes the packet to its sockets.
type ingressSink interface {
	DeliverIngress(now SimTime, pkt *Packet)
}

// NIC is a host's virtual network interface (spec.md §3). The zero value
// is not ready for use; construct with [NewNIC].
type NIC struct {
	name   string
	config NICConfig

	upstream   *TokenBucket
	downstream *TokenBucket

	egress    map[Descriptor][]*Packet
	egressQD  *qdisc

	ingressQueue     []*Packet
	ingressQueuedLen int

	tickScheduled bool

	sink ingressSink

	// metrics, nil unless wired by the caller (metrics.go).
	metrics *NICMetrics
}

// NewNIC constructs a [NIC] for a host whose socket layer implements
// ingressSink.
func NewNIC(cfg NICConfig, sink ingressSink) *NIC {
	if cfg.IngressBufferBytes < cfg.MTU {
		cfg.IngressBufferBytes = cfg.MTU
	}
	return &NIC{
		name:       newNICName(),
		config:     cfg,
		upstream:   NewTokenBucket(cfg.BandwidthUp, cfg.BatchInterval),
		downstream: NewTokenBucket(cfg.BandwidthDown, cfg.BatchInterval),
		egress:     map[Descriptor][]*Packet{},
		egressQD:   newQdisc(cfg.Qdisc),
		sink:       sink,
	}
}

// Name returns this NIC's log-friendly interface name, e.g. "eth3".
func (n *NIC) Name() string { return n.name }

// SetMetrics wires a [NICMetrics] recorder. Optional.
func (n *NIC) SetMetrics(m *NICMetrics) { n.metrics = m }

// Enqueue queues pkt for egress on behalf of the socket owning fd. The
// caller (the host) is responsible for making sure a tick gets scheduled;
// see [NIC.NotifyHasData].
func (n *NIC) Enqueue(fd Descriptor, pkt *Packet) {
	n.egress[fd] = append(n.egress[fd], pkt)
	n.egressQD.noteHasData(fd)
}

// HasPendingEgress reports whether any socket has queued egress data.
func (n *NIC) HasPendingEgress() bool {
	return len(n.egressQD.order) > 0
}

// route resolves where a packet should go and what it costs to get
// there. Implemented by whatever owns the routing table (the [Host]).
type route struct {
	destHost HostID
	link     *Link
}

// router is implemented by [Host] to keep the NIC decoupled from
// topology internals (spec.md §9 "Cyclic object graphs": the NIC
// references its host's capabilities through a narrow interface, not a
// concrete back-pointer into the whole object graph).
type router interface {
	resolveRoute(destIP uint32) (route, error)
	hostRNG() randSource
	scheduleEvent(ev *Event)
	now() SimTime
	hostID() HostID
	logger() Logger
}

// randSource is the subset of *rand.Rand the NIC needs.
type randSource interface {
	Float64() float64
}

// Tick performs one egress scheduling pass and refills both token
// buckets (spec.md §4.3). It should be called exactly when this NIC's
// [EventNICTick] fires.
func (n *NIC) Tick(r router) {
	now := r.now()
	n.tickScheduled = false

	n.upstream.Refill(n.config.BatchInterval)
	n.downstream.RefillUpTo(now)
	n.drainIngress(r)

	for {
		fd, ok := n.egressQD.next()
		if !ok {
			break
		}
		queue := n.egress[fd]
		if len(queue) == 0 {
			n.egressQD.noteDrained(fd)
			continue
		}
		pkt := queue[0]
		size := pkt.WireSize()
		if !n.upstream.CanSend(size) {
			break
		}
		n.egress[fd] = queue[1:]
		if len(n.egress[fd]) == 0 {
			delete(n.egress, fd)
			n.egressQD.noteDrained(fd)
		}
		n.upstream.Debit(size)
		n.transmit(r, pkt)
	}

	if (n.HasPendingEgress() || len(n.ingressQueue) > 0) && !n.tickScheduled {
		n.scheduleNextTick(r)
	}
	if n.metrics != nil {
		n.metrics.Observe(n)
	}
}

// scheduleNextTick arranges for this NIC to be ticked again one batch
// interval from now.
func (n *NIC) scheduleNextTick(r router) {
	n.tickScheduled = true
	r.scheduleEvent(&Event{
		DeliverTime: r.now().Add(n.config.BatchInterval),
		TargetHost:  r.hostID(),
		Kind:        EventNICTick,
		Payload:     NICTickPayload{},
	})
}

// NotifyHasData should be called by the host whenever a socket gains
// egress data, to make sure a tick gets scheduled if none is pending.
func (n *NIC) NotifyHasData(r router) {
	if !n.tickScheduled {
		n.scheduleNextTick(r)
	}
}

// transmit resolves routing for pkt, applies loss, and schedules packet
// delivery. Loss is drawn from the sender's host-local RNG before
// scheduling (spec.md §4.2): a dropped packet produces no event at all.
func (n *NIC) transmit(r router, pkt *Packet) {
	rt, err := r.resolveRoute(pkt.DestinationIP)
	if err != nil {
		r.logger().Warnf("shadow: %s: %s", n.name, err.Error())
		if n.metrics != nil {
			n.metrics.RecordDrop()
		}
		return
	}

	rng := r.hostRNG()
	if rt.link.ShouldDrop(rng.Float64()) {
		if n.metrics != nil {
			n.metrics.RecordDrop()
		}
		return
	}

	latency := rt.link.EffectiveLatency(rng.Float64())
	jitter := rt.link.JitterSample(rng.Float64())
	deliverAt := r.now().Add(latency).Add(jitter)

	if n.metrics != nil {
		n.metrics.RecordSent(pkt.WireSize())
	}

	r.scheduleEvent(&Event{
		DeliverTime: deliverAt,
		TargetHost:  rt.destHost,
		Kind:        EventPacketArrival,
		Payload:     PacketArrivalPayload{Packet: pkt},
	})
}

// Arrive is called by the host's event dispatcher when an
// EventPacketArrival fires for this NIC (spec.md §4.3 "Ingress").
func (n *NIC) Arrive(r router, pkt *Packet) {
	now := r.now()
	n.downstream.RefillUpTo(now)

	size := pkt.WireSize()
	if n.downstream.CanSend(size) {
		n.downstream.Debit(size)
		n.sink.DeliverIngress(now, pkt)
		if n.metrics != nil {
			n.metrics.RecordReceived(size)
		}
		return
	}

	if n.ingressQueuedLen+size > n.config.IngressBufferBytes {
		if n.metrics != nil {
			n.metrics.RecordDrop()
		}
		return // buffer full: drop (TCP observes it as a gap)
	}
	n.ingressQueue = append(n.ingressQueue, pkt)
	n.ingressQueuedLen += size
	n.NotifyHasData(r) // make sure a tick drains the ingress buffer too
}

// drainIngress delivers as many buffered ingress packets as the
// downstream bucket currently allows.
func (n *NIC) drainIngress(r router) {
	now := r.now()
	for len(n.ingressQueue) > 0 {
		pkt := n.ingressQueue[0]
		size := pkt.WireSize()
		if !n.downstream.CanSend(size) {
			break
		}
		n.ingressQueue = n.ingressQueue[1:]
		n.ingressQueuedLen -= size
		n.downstream.Debit(size)
		n.sink.DeliverIngress(now, pkt)
		if n.metrics != nil {
			n.metrics.RecordReceived(size)
		}
	}
}
