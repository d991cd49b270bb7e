package shadow

//
// Link modeling (spec.md §3 "Link", §4.2 "Packet, Link, and Routing")
//
// Adapted from the teacher's real-time, goroutine+ticker based [Link]: we
// keep the same configuration shape (per-direction latency and
// packet-loss rate) and the same idea of a dedicated losses manager
// consulted with a random draw, but delivery is no longer a background
// goroutine waking up on a wall-clock ticker. Instead a [Link] is an
// immutable fact consulted by [RoutingTable.Resolve]: the sending host
// computes delay and loss synchronously (at enqueue time, spec.md §4.2)
// and schedules a single future [Event] instead of a real timer.
//


// LinkConfig describes one directed link between two clusters (or a node
// and a cluster), per spec.md §3 and the `link` topology element in §6.
type LinkConfig struct {
	// Latency is the base one-way latency in simulated time.
	Latency SimTime

	// Jitter is an OPTIONAL CDF of additional one-way delay, piecewise-
	// linearly interpolated (spec.md §4.2).
	Jitter *CDF

	// PacketLoss is the packet-loss probability in [0, 1].
	PacketLoss float64

	// LatencyQuantiles is an OPTIONAL CDF overriding Latency entirely: if
	// set, the effective base latency for each packet is drawn from this
	// CDF instead of being the fixed Latency value (spec.md §3 "a CDF of
	// latencies").
	LatencyQuantiles *CDF
}

// Link is a directed link between two clusters. Links are immutable
// after topology setup (spec.md §3); lookup is by (source cluster,
// destination cluster) inside [RoutingTable].
type Link struct {
	// SourceCluster and DestinationCluster name the two endpoints.
	SourceCluster      ClusterID
	DestinationCluster ClusterID

	// Config holds the latency/jitter/loss characteristics.
	Config LinkConfig
}

// NewLink constructs an immutable [Link]. It does not itself validate the
// runahead invariant: that check happens once, topology-wide, in
// [Topology.Validate], because it needs the engine's configured runahead.
func NewLink(source, dest ClusterID, cfg LinkConfig) *Link {
	return &Link{SourceCluster: source, DestinationCluster: dest, Config: cfg}
}

// EffectiveLatency draws this link's one-way latency for a single packet,
// given a uniform draw u typically produced by the sender's host-local
// RNG (spec.md §4.2: "sampling at sender ensures a single RNG consumer
// per packet"). When LatencyQuantiles is set it is used in place of the
// fixed Latency.
func (l *Link) EffectiveLatency(u float64) SimTime {
	if l.Config.LatencyQuantiles != nil {
		return l.Config.LatencyQuantiles.Sample(u)
	}
	return l.Config.Latency
}

// JitterSample draws this link's jitter for a single packet given a
// uniform draw u.
func (l *Link) JitterSample(u float64) SimTime {
	if l.Config.Jitter == nil {
		return 0
	}
	return l.Config.Jitter.Sample(u)
}

// ShouldDrop decides, from a uniform draw u, whether a packet traversing
// this link is lost. Mirrors the teacher's linkLossesManager.shouldDrop,
// but the draw is supplied by the caller (the sender's host-local RNG)
// rather than an RNG privately owned by the link, preserving the
// single-RNG-consumer-per-packet invariant (spec.md §4.2).
func (l *Link) ShouldDrop(u float64) bool {
	return u < l.Config.PacketLoss
}

// DefaultBatchInterval is the NIC batching interval used unless a host
// overrides it (spec.md §3 "NIC", §6 --interface-batch default).
const DefaultBatchInterval = 10 * Millisecond
