package shadow

//
// Network topology (spec.md §3 "Topology", §4.2 "routing", §6 XML
// elements `cluster`, `link`, `node`)
//
// Adapted from the teacher's PPPTopology/StarTopology, which built a
// two-host or router-centered topology directly through a Go API
// (MustNewStarTopology/AddHost) rather than parsing XML. We keep that
// "build the topology through Go calls" idiom — XML parsing stays out of
// scope per spec.md §1 — but a [Topology] here is a graph of clusters
// ([ClusterConfig]) and [Link]s resolved into a [RoutingTable], not a set of live
// goroutine-backed [Link] forwarders: the engine drives packet delivery
// through scheduled events (nic.go), not background goroutines.
//

import (
	"fmt"
)

// ClusterID names a cluster (a group of hosts sharing bandwidth and
// intra-cluster loss characteristics).
type ClusterID string

// ClusterConfig describes one cluster (spec.md §6 `cluster` element).
type ClusterConfig struct {
	// BandwidthDown and BandwidthUp are in bytes/second; they become the
	// default for any host in this cluster that does not override them.
	BandwidthDown uint64
	BandwidthUp   uint64

	// PacketLoss is the OPTIONAL intra-cluster packet-loss probability.
	PacketLoss float64
}

// HostConfig describes one host (spec.md §3 "Host", §6 `node` element).
type HostConfig struct {
	Name    string
	Address uint32
	Cluster ClusterID

	// BandwidthUp and BandwidthDown override the cluster default when
	// non-zero.
	BandwidthUp   uint64
	BandwidthDown uint64

	// CPUFrequencyHz, CPUThreshold and CPUPrecision configure the
	// CPU-delay accumulator (spec.md §4.6, §9). A negative CPUThreshold
	// disables the accumulator entirely (SPEC_FULL.md §8).
	CPUFrequencyHz uint64
	CPUThreshold   int64
	CPUPrecision   SimTime

	// HeartbeatInterval is this host's heartbeat reporting period.
	HeartbeatInterval SimTime

	// SocketRecvBuffer and SocketSendBuffer are the default buffer
	// sizes; 0 means "autotune" (spec.md §6).
	SocketRecvBuffer int
	SocketSendBuffer int

	// Qdisc selects this host's NIC egress discipline.
	Qdisc QdiscKind

	// TCPInitialWindowSegments overrides the initial congestion window,
	// in MSS-sized segments; 0 means RFC 6928's default of 10 (spec.md
	// §6 --tcp-windows).
	TCPInitialWindowSegments int

	// PCAPFile, if non-empty, enables per-host packet capture to this
	// path (spec.md §6 "Persisted state").
	PCAPFile string
}

// Topology is the graph of clusters and links that [Topology.Build]
// compiles into a [RoutingTable]. The zero value is not ready for use;
// construct with [NewTopology].
type Topology struct {
	clusters map[ClusterID]ClusterConfig
	links    []*Link
	hosts    []HostConfig
	byAddr   map[uint32]int // address -> index into hosts
}

// NewTopology creates an empty [Topology].
func NewTopology() *Topology {
	return &Topology{
		clusters: map[ClusterID]ClusterConfig{},
		byAddr:   map[uint32]int{},
	}
}

// AddCluster registers a cluster. Re-adding the same id overwrites its
// configuration.
func (t *Topology) AddCluster(id ClusterID, cfg ClusterConfig) {
	t.clusters[id] = cfg
}

// AddLink registers a directed link between two clusters.
func (t *Topology) AddLink(l *Link) {
	t.links = append(t.links, l)
}

// ErrDuplicateAddress indicates an address has already been added to a topology.
var ErrDuplicateAddress = fmt.Errorf("%w: address already added to topology", ErrConfiguration)

// AddHost registers a host template. Returns [ErrDuplicateAddress] if the
// address was already used.
func (t *Topology) AddHost(cfg HostConfig) error {
	if _, exists := t.byAddr[cfg.Address]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAddress, FormatIP(cfg.Address))
	}
	t.byAddr[cfg.Address] = len(t.hosts)
	t.hosts = append(t.hosts, cfg)
	return nil
}

// Hosts returns the registered host templates in the order they were added.
// Host IDs are assigned as 1-based positions in this order (see
// [Topology.Build]).
func (t *Topology) Hosts() []HostConfig {
	return append([]HostConfig(nil), t.hosts...)
}

// Validate checks the runahead invariant from spec.md §4.8 and scenario
// (f): every link's latency must be at least minRunahead, else setup
// fails with a fatal configuration error. It also rejects links
// referencing unknown clusters.
func (t *Topology) Validate(minRunahead SimTime) error {
	for _, l := range t.links {
		if _, ok := t.clusters[l.SourceCluster]; !ok {
			return NewConfigurationError("link references unknown cluster %q", l.SourceCluster)
		}
		if _, ok := t.clusters[l.DestinationCluster]; !ok {
			return NewConfigurationError("link references unknown cluster %q", l.DestinationCluster)
		}
		if l.Config.Latency < minRunahead {
			return fmt.Errorf("%w: link %s->%s latency %s < runahead %s",
				ErrRunaheadViolation, l.SourceCluster, l.DestinationCluster, l.Config.Latency, minRunahead)
		}
	}
	return nil
}

type clusterPair struct {
	src, dst ClusterID
}

type hostRouting struct {
	id      HostID
	cluster ClusterID
}

// Build compiles the topology into a [RoutingTable]. Call after
// [Topology.Validate] succeeds. Host IDs are assigned 1..N in the order
// hosts were added; [HostID] 0 ([InvalidHostID]) is never assigned.
func (t *Topology) Build() *RoutingTable {
	rt := &RoutingTable{
		byAddr: map[uint32]hostRouting{},
		links:  map[clusterPair]*Link{},
	}
	for i, h := range t.hosts {
		rt.byAddr[h.Address] = hostRouting{id: HostID(i + 1), cluster: h.Cluster}
	}
	for _, l := range t.links {
		rt.links[clusterPair{l.SourceCluster, l.DestinationCluster}] = l
	}
	return rt
}

// RoutingTable resolves (source cluster, destination IP) to a [Link] and
// destination [HostID] (spec.md §3 "routing table", §4.2).
type RoutingTable struct {
	byAddr map[uint32]hostRouting
	links  map[clusterPair]*Link
}

// Resolve looks up the link and destination host for a packet leaving
// srcCluster and addressed to dstIP.
func (rt *RoutingTable) Resolve(srcCluster ClusterID, dstIP uint32) (route, error) {
	dst, ok := rt.byAddr[dstIP]
	if !ok {
		return route{}, NewConfigurationError("no route to host %s", FormatIP(dstIP))
	}
	link, ok := rt.links[clusterPair{srcCluster, dst.cluster}]
	if !ok {
		return route{}, NewConfigurationError("no link from cluster %q to cluster %q", srcCluster, dst.cluster)
	}
	return route{destHost: dst.id, link: link}, nil
}

// HostIDFor returns the [HostID] assigned to address, if any.
func (rt *RoutingTable) HostIDFor(address uint32) (HostID, bool) {
	h, ok := rt.byAddr[address]
	return h.id, ok
}

//
// Built-in topology shapes (SPEC_FULL.md §7, adapted from the teacher's
// PPPTopology/StarTopology).
//

// NewPointToPointTopology creates a two-host topology connected by a
// single bidirectional link: the Go-native equivalent of the teacher's
// PPPTopology, minus the live [UNetStack]/goroutine machinery.
func NewPointToPointTopology(client, server HostConfig, lc LinkConfig) (*Topology, error) {
	const clientCluster, serverCluster ClusterID = "client", "server"
	t := NewTopology()
	t.AddCluster(clientCluster, ClusterConfig{BandwidthDown: client.BandwidthDown, BandwidthUp: client.BandwidthUp})
	t.AddCluster(serverCluster, ClusterConfig{BandwidthDown: server.BandwidthDown, BandwidthUp: server.BandwidthUp})
	client.Cluster = clientCluster
	server.Cluster = serverCluster
	if err := t.AddHost(client); err != nil {
		return nil, err
	}
	if err := t.AddHost(server); err != nil {
		return nil, err
	}
	t.AddLink(NewLink(clientCluster, serverCluster, lc))
	t.AddLink(NewLink(serverCluster, clientCluster, lc))
	return t, nil
}

// NewStarTopology creates an empty star topology: hosts added with
// [AddStarHost] are all routed through a common "router" cluster, the
// Go-native equivalent of the teacher's StarTopology minus the live
// goroutine-backed [Router].
func NewStarTopology() *Topology {
	t := NewTopology()
	t.AddCluster("router", ClusterConfig{})
	return t
}

// AddStarHost adds host to a star topology created by [NewStarTopology],
// wiring a bidirectional link of lc between host's own cluster and the
// star's central "router" cluster.
func AddStarHost(t *Topology, host HostConfig, lc LinkConfig) error {
	cluster := ClusterID(fmt.Sprintf("leaf-%s", host.Name))
	t.AddCluster(cluster, ClusterConfig{BandwidthDown: host.BandwidthDown, BandwidthUp: host.BandwidthUp})
	host.Cluster = cluster
	if err := t.AddHost(host); err != nil {
		return err
	}
	t.AddLink(NewLink(cluster, "router", lc))
	t.AddLink(NewLink("router", cluster, lc))
	return nil
}
