// Package shadow implements the simulation engine at the heart of a
// discrete-event network simulator: a conservatively synchronized parallel
// scheduler, a per-host virtual network stack (TCP and UDP over a simulated
// link and routing layer), and the per-host event queue and host-locality
// discipline that binds events, descriptors, sockets, and packets to a
// single owning host.
//
// Everything here runs in virtual time. No goroutine in this package reads
// the wall clock or the system RNG while advancing the simulation: doing so
// would break the reproducibility guarantee that the same seed, the same
// topology and the same worker count always produce the same event trace.
//
// A [Topology] wires together clusters ([ClusterConfig]), [Link]s and
// hosts ([HostConfig]). Each [Host] owns a [NIC], a socket layer (UDP and
// TCP, see [Socket]) and a local [EventQueue]. An [Engine] partitions the
// hosts across a number of [Worker]s and advances them round by round,
// computing a conservative horizon from the earliest pending event plus
// the configured runahead (see [Engine.Run]); [Topology.Validate] makes
// sure no link's latency is below that runahead.
package shadow
