package shadow

//
// Host runtime (spec.md §3 "Host", §4.6 "Host Runtime API")
//
// A Host owns everything reachable only through it: its NIC, its
// descriptor table, its socket layer, its local event queue, and its
// RNG. Nothing outside the owning Worker ever mutates a Host directly;
// other hosts only ever reach it through a [HostID] and a scheduled
// [Event] (spec.md §9 "host-locality discipline").
//

import (
	"math/rand"
)

// dispatcher routes a freshly-constructed event to its target host,
// either directly (same worker) or through a [Mailbox] (different
// worker). Implemented by [*Worker].
type dispatcher interface {
	Dispatch(ev *Event)
}

// Host is a simulated network endpoint.
type Host struct {
	id      HostID
	name    string
	address uint32
	cluster ClusterID

	nic        *NIC
	routes     *RoutingTable
	rng        *rand.Rand
	eventQueue *EventQueue
	mailbox    *Mailbox
	dispatcher dispatcher

	descriptors *descriptorTable
	ports       *ephemeralPortAllocator

	udpBinds     map[uint16]Descriptor
	tcpListeners map[uint16]Descriptor
	tcpConns     map[FiveTuple]Descriptor

	cpu *cpuDelay

	log     Logger
	metrics *HostMetrics
	pcap    *PCAPWriter

	now_   SimTime
	killed bool

	heartbeatInterval SimTime
	defaultRecvBuffer int
	defaultSendBuffer int
	maxDescriptors    int
	tcpInitialWindow  int

	// localSeq orders events this host originates at the same
	// DeliverTime. It is only ever touched by the single worker
	// goroutine that owns this host, so no atomic is needed; combined
	// with the host's own id it gives every event a tie-break key that
	// is independent of Go scheduler interleaving across workers
	// (spec.md §5 invariant 4).
	localSeq uint64
}

// HostDeps bundles the shared, engine-wide collaborators a [Host] needs
// at construction time, keeping [NewHost] from taking an ever-growing
// positional argument list.
type HostDeps struct {
	Routes  *RoutingTable
	Log     Logger
	Metrics *HostMetrics

	GlobalSeed uint64
	MaxDescriptors int
}

// NewHost constructs a [Host] from a topology [HostConfig] and the
// assigned [HostID]. The returned host is not yet attached to a [Worker];
// callers must call [Worker.AddHost] before the engine starts.
func NewHost(id HostID, cfg HostConfig, deps HostDeps) *Host {
	log := deps.Log
	if log == nil {
		log = DiscardLogger
	}

	h := &Host{
		id:                id,
		name:              cfg.Name,
		address:           cfg.Address,
		cluster:           cfg.Cluster,
		routes:            deps.Routes,
		rng:               newHostRNG(deps.GlobalSeed, id),
		eventQueue:        NewEventQueue(),
		mailbox:           NewMailbox(),
		descriptors:       newDescriptorTable(deps.MaxDescriptors),
		ports:             newEphemeralPortAllocator(),
		udpBinds:          map[uint16]Descriptor{},
		tcpListeners:      map[uint16]Descriptor{},
		tcpConns:          map[FiveTuple]Descriptor{},
		log:               log,
		metrics:           deps.Metrics,
		heartbeatInterval: cfg.HeartbeatInterval,
		defaultRecvBuffer: cfg.SocketRecvBuffer,
		defaultSendBuffer: cfg.SocketSendBuffer,
		maxDescriptors:    deps.MaxDescriptors,
		tcpInitialWindow:  cfg.TCPInitialWindowSegments,
		cpu:               newCPUDelay(cfg.CPUFrequencyHz, cfg.CPUThreshold, cfg.CPUPrecision),
	}

	nicCfg := DefaultNICConfig()
	nicCfg.BandwidthUp = cfg.BandwidthUp
	nicCfg.BandwidthDown = cfg.BandwidthDown
	nicCfg.Qdisc = cfg.Qdisc
	h.nic = NewNIC(nicCfg, h)
	if deps.Metrics != nil {
		h.nic.SetMetrics(deps.Metrics.NIC)
	}

	if cfg.PCAPFile != "" {
		w, err := NewPCAPWriter(cfg.PCAPFile, log)
		if err != nil {
			log.Warnf("shadow: %s: %s", cfg.Name, err.Error())
		} else {
			h.pcap = w
		}
	}

	return h
}

//
// router interface (consumed by nic.go)
//

func (h *Host) resolveRoute(destIP uint32) (route, error) { return h.routes.Resolve(h.cluster, destIP) }
func (h *Host) hostRNG() randSource                        { return h.rng }
// scheduleEvent stamps ev with this host's deterministic tie-break key
// (OriginHost, LocalSeq) and hands it to the dispatcher. Stamping
// happens here, in the single goroutine that owns h, rather than from a
// counter shared across concurrently-running workers (spec.md §5
// invariant 4: the event trace must not depend on thread interleaving).
func (h *Host) scheduleEvent(ev *Event) {
	ev.OriginHost = h.id
	ev.LocalSeq = h.localSeq
	h.localSeq++
	h.dispatcher.Dispatch(ev)
}
func (h *Host) now() SimTime                                { return h.now_ }
func (h *Host) hostID() HostID                              { return h.id }
func (h *Host) logger() Logger                              { return h.log }

var _ router = (*Host)(nil)
var _ ingressSink = (*Host)(nil)

//
// Public accessors
//

func (h *Host) ID() HostID       { return h.id }
func (h *Host) Name() string     { return h.name }
func (h *Host) Address() uint32  { return h.address }
func (h *Host) Now() SimTime     { return h.now_ }
func (h *Host) Rand() *rand.Rand { return h.rng }
func (h *Host) Logger() Logger   { return h.log }

//
// Ingress demultiplexing (spec.md §4.3 "Ingress", §9 dynamic dispatch)
//

// DeliverIngress implements [ingressSink]; the NIC calls this once a
// packet clears downstream accounting.
func (h *Host) DeliverIngress(now SimTime, pkt *Packet) {
	if h.pcap != nil {
		if err := h.pcap.Write(now, pkt); err != nil {
			h.log.Warnf("shadow: %s: pcap: %s", h.name, err.Error())
		}
	}

	switch pkt.Protocol {
	case ProtocolUDP:
		if fd, ok := h.udpBinds[pkt.DestinationPort]; ok {
			if sock, ok := h.descriptors.Lookup(fd); ok {
				sock.DeliverIngress(now, pkt)
				return
			}
		}
		// no listener bound on this port: silently drop (spec.md §4.5)
	case ProtocolTCP:
		ft := pkt.FiveTuple()
		if fd, ok := h.tcpConns[ft]; ok {
			if sock, ok := h.descriptors.Lookup(fd); ok {
				sock.DeliverIngress(now, pkt)
				return
			}
		}
		if fd, ok := h.tcpListeners[pkt.DestinationPort]; ok {
			if sock, ok := h.descriptors.Lookup(fd); ok {
				sock.DeliverIngress(now, pkt)
				return
			}
		}
		if !pkt.TCP.Flags.Has(TCPFlagRST) {
			h.sendTCPReset(pkt)
		}
	}
}

// sendTCPReset replies to an unmatched TCP segment with RST, as no
// socket exists to own the reply (spec.md §4.4).
func (h *Host) sendTCPReset(pkt *Packet) {
	hdr := TCPHeader{
		SequenceNumber: pkt.TCP.AckNumber,
		AckNumber:      pkt.TCP.SequenceNumber + uint32(len(pkt.Payload)),
		Flags:          TCPFlagRST | TCPFlagACK,
	}
	reply := NewTCPPacket(h.address, pkt.DestinationPort, pkt.SourceIP, pkt.SourcePort, hdr, nil)
	h.nic.Enqueue(InvalidDescriptor, reply)
	h.nic.NotifyHasData(h)
}

//
// Event dispatch (driven by [Worker.RunUntil])
//

// killSignal is a sentinel dispatch outcome, never propagated as a
// real error: it marks that this host received [EventEngineKill].
type killSignal struct{}

func (killSignal) Error() string { return "shadow: engine kill" }

// dispatch executes one event against this host's state. Called only
// from the worker goroutine that owns this host.
func (h *Host) dispatch(ev *Event) error {
	switch ev.Kind {
	case EventPacketArrival:
		p := ev.Payload.(PacketArrivalPayload)
		h.nic.Arrive(h, p.Packet)
	case EventTimerCallback:
		p := ev.Payload.(TimerCallbackPayload)
		if p.Cancelled != nil && *p.Cancelled {
			return nil
		}
		h.runCallback(p.Callback)
	case EventSocketCallback:
		p := ev.Payload.(SocketCallbackPayload)
		h.runCallback(p.Callback)
	case EventHeartbeat:
		h.emitHeartbeat()
	case EventNICTick:
		h.nic.Tick(h)
	case EventEngineKill:
		h.killed = true
		return killSignal{}
	}
	return nil
}

// runCallback applies the CPU-delay accumulator (spec.md §4.6, §9) before
// invoking a timer or socket callback: if the host has accumulated enough
// simulated CPU work, the callback is deferred rather than run immediately.
func (h *Host) runCallback(cb func(now SimTime)) {
	const perCallbackCost = 1 * Microsecond
	if delay := h.cpu.chargeWork(perCallbackCost); delay > 0 {
		if h.metrics != nil {
			h.metrics.RecordCPUDelay(delay)
		}
		deferredAt := h.now_.Add(delay)
		h.scheduleEvent(&Event{
			DeliverTime: deferredAt,
			TargetHost:  h.id,
			Kind:        EventSocketCallback,
			Payload:     SocketCallbackPayload{Descriptor: InvalidDescriptor, Callback: cb},
		})
		return
	}
	cb(h.now_)
}

// IsKilled reports whether this host has processed an EventEngineKill.
func (h *Host) IsKilled() bool { return h.killed }

//
// Timers (spec.md §4.6 "timer creation")
//

// Timer is a handle returned by [Host.CreateTimer] that can be cancelled
// before it fires.
type Timer struct {
	cancelled *bool
}

// Cancel marks the timer cancelled; its callback will not run.
func (t *Timer) Cancel() {
	if t != nil && t.cancelled != nil {
		*t.cancelled = true
	}
}

// CreateTimer schedules callback to run delay simulated time from now.
func (h *Host) CreateTimer(delay SimTime, callback func(now SimTime)) *Timer {
	cancelled := new(bool)
	h.scheduleEvent(&Event{
		DeliverTime: h.now_.Add(delay),
		TargetHost:  h.id,
		Kind:        EventTimerCallback,
		Payload:     TimerCallbackPayload{Callback: callback, Arg: nil, Cancelled: cancelled},
	})
	return &Timer{cancelled: cancelled}
}

//
// Heartbeat (spec.md §6 --heartbeat-frequency, SPEC_FULL.md §7)
//

func (h *Host) emitHeartbeat() {
	if h.heartbeatInterval == 0 {
		return
	}
	h.log.Infof("shadow: heartbeat: host=%s time=%s fds=%d tcp_conns=%d",
		h.name, h.now_, h.descriptors.Len(), len(h.tcpConns))
	h.scheduleEvent(&Event{
		DeliverTime: h.now_.Add(h.heartbeatInterval),
		TargetHost:  h.id,
		Kind:        EventHeartbeat,
		Payload:     HeartbeatPayload{},
	})
}

// ScheduleFirstHeartbeat arranges for this host's recurring heartbeat to
// begin; called once by the [Engine] during setup.
func (h *Host) ScheduleFirstHeartbeat() {
	if h.heartbeatInterval == 0 {
		return
	}
	h.scheduleEvent(&Event{
		DeliverTime: h.heartbeatInterval,
		TargetHost:  h.id,
		Kind:        EventHeartbeat,
		Payload:     HeartbeatPayload{},
	})
}

//
// Socket layer API (spec.md §4.5, §4.6)
//

// NewUDPSocket allocates an unbound UDP socket.
func (h *Host) NewUDPSocket() (Descriptor, error) {
	sock := newUDPSocket(h)
	fd, err := h.descriptors.Allocate(sock)
	if err != nil {
		return InvalidDescriptor, err
	}
	sock.fd = fd
	return fd, nil
}

// BindUDP binds fd to port (0 picks an ephemeral port) and returns the
// bound port.
func (h *Host) BindUDP(fd Descriptor, port uint16) (uint16, error) {
	sock, ok := h.udpSocket(fd)
	if !ok {
		return 0, ErrSocketWrongState
	}
	bound, err := h.reservePort(port)
	if err != nil {
		return 0, err
	}
	if _, exists := h.udpBinds[bound]; exists {
		h.ports.release(bound)
		return 0, ErrBindConflict
	}
	h.udpBinds[bound] = fd
	sock.localPort = bound
	return bound, nil
}

// SendToUDP sends payload from fd to (dstIP, dstPort), auto-binding an
// ephemeral port first if fd is not yet bound (spec.md §4.5).
func (h *Host) SendToUDP(fd Descriptor, dstIP uint32, dstPort uint16, payload []byte) error {
	sock, ok := h.udpSocket(fd)
	if !ok {
		return ErrSocketWrongState
	}
	if sock.localPort == 0 {
		if _, err := h.BindUDP(fd, 0); err != nil {
			return err
		}
	}
	return sock.SendTo(dstIP, dstPort, payload)
}

// RecvFromUDP pops the oldest buffered datagram for fd.
func (h *Host) RecvFromUDP(fd Descriptor) ([]byte, FiveTuple, bool) {
	sock, ok := h.udpSocket(fd)
	if !ok {
		return nil, FiveTuple{}, false
	}
	return sock.RecvFrom()
}

// OnUDPReadable registers cb to fire the next time fd has a datagram ready.
func (h *Host) OnUDPReadable(fd Descriptor, cb func(now SimTime)) {
	if sock, ok := h.udpSocket(fd); ok {
		sock.SetOnReadable(cb)
	}
}

// CloseUDP closes fd, releasing its port and descriptor.
func (h *Host) CloseUDP(fd Descriptor) error {
	sock, ok := h.udpSocket(fd)
	if !ok {
		return ErrSocketWrongState
	}
	if sock.localPort != 0 {
		delete(h.udpBinds, sock.localPort)
		h.ports.release(sock.localPort)
	}
	err := sock.Close(h.now_)
	h.descriptors.Release(fd)
	return err
}

func (h *Host) udpSocket(fd Descriptor) (*udpSocket, bool) {
	s, ok := h.descriptors.Lookup(fd)
	if !ok {
		return nil, false
	}
	u, ok := s.(*udpSocket)
	return u, ok
}

func (h *Host) reservePort(port uint16) (uint16, error) {
	if port == 0 {
		return h.ports.allocate()
	}
	if !h.ports.reserve(port) {
		return 0, ErrBindConflict
	}
	return port, nil
}

//
// TCP
//

// NewTCPSocket allocates an unbound, unconnected TCP socket.
func (h *Host) NewTCPSocket() (Descriptor, error) {
	sock := newTCPSocket(h)
	fd, err := h.descriptors.Allocate(sock)
	if err != nil {
		return InvalidDescriptor, err
	}
	sock.fd = fd
	return fd, nil
}

// BindTCP binds fd to port (0 picks an ephemeral port).
func (h *Host) BindTCP(fd Descriptor, port uint16) (uint16, error) {
	sock, ok := h.tcpSocket(fd)
	if !ok {
		return 0, ErrSocketWrongState
	}
	bound, err := h.reservePort(port)
	if err != nil {
		return 0, err
	}
	sock.localPort = bound
	return bound, nil
}

// ListenTCP transitions fd to LISTEN with the given backlog.
func (h *Host) ListenTCP(fd Descriptor, backlog int) error {
	sock, ok := h.tcpSocket(fd)
	if !ok {
		return ErrSocketWrongState
	}
	if sock.localPort == 0 {
		return NewProtocolError("listen on unbound socket")
	}
	if err := sock.Listen(backlog); err != nil {
		return err
	}
	h.tcpListeners[sock.localPort] = fd
	return nil
}

// AcceptTCP pops the oldest established connection from fd's backlog.
func (h *Host) AcceptTCP(fd Descriptor) (Descriptor, bool) {
	sock, ok := h.tcpSocket(fd)
	if !ok {
		return InvalidDescriptor, false
	}
	return sock.Accept()
}

// OnTCPAcceptable registers cb to fire when fd's backlog next gains a connection.
func (h *Host) OnTCPAcceptable(fd Descriptor, cb func(now SimTime)) {
	if sock, ok := h.tcpSocket(fd); ok {
		sock.onReadable = cb
	}
}

// ConnectTCP begins an active open from fd to (dstIP, dstPort); onConnected
// fires once the handshake completes or fails.
func (h *Host) ConnectTCP(fd Descriptor, dstIP uint32, dstPort uint16, onConnected func(now SimTime, err error)) error {
	sock, ok := h.tcpSocket(fd)
	if !ok {
		return ErrSocketWrongState
	}
	if sock.localPort == 0 {
		if _, err := h.BindTCP(fd, 0); err != nil {
			return err
		}
	}
	sock.onConnected = onConnected
	if err := sock.Connect(dstIP, dstPort); err != nil {
		return err
	}
	h.registerTCPConn(sock)
	return nil
}

// SendTCP queues payload on an established connection.
func (h *Host) SendTCP(fd Descriptor, payload []byte) (int, error) {
	sock, ok := h.tcpSocket(fd)
	if !ok {
		return 0, ErrSocketWrongState
	}
	return sock.Send(h.now_, payload)
}

// RecvTCP drains up to maxBytes from fd's receive buffer.
func (h *Host) RecvTCP(fd Descriptor, maxBytes int) ([]byte, bool) {
	sock, ok := h.tcpSocket(fd)
	if !ok {
		return nil, false
	}
	return sock.Recv(maxBytes)
}

// OnTCPReadable registers cb to fire when fd next has data (or EOF) to read.
func (h *Host) OnTCPReadable(fd Descriptor, cb func(now SimTime)) {
	if sock, ok := h.tcpSocket(fd); ok {
		sock.onReadable = cb
	}
}

// OnTCPWritable registers cb to fire when fd's send buffer next has room.
func (h *Host) OnTCPWritable(fd Descriptor, cb func(now SimTime)) {
	if sock, ok := h.tcpSocket(fd); ok {
		sock.onWritable = cb
	}
}

// CloseTCP begins (or completes) an active close on fd.
func (h *Host) CloseTCP(fd Descriptor) error {
	sock, ok := h.tcpSocket(fd)
	if !ok {
		return ErrSocketWrongState
	}
	return sock.Close(h.now_)
}

// TCPState returns fd's current TCP state, for tests and diagnostics.
func (h *Host) TCPState(fd Descriptor) (TCPState, bool) {
	sock, ok := h.tcpSocket(fd)
	if !ok {
		return TCPClosed, false
	}
	return sock.state, true
}

func (h *Host) tcpSocket(fd Descriptor) (*tcpSocket, bool) {
	s, ok := h.descriptors.Lookup(fd)
	if !ok {
		return nil, false
	}
	t, ok := s.(*tcpSocket)
	return t, ok
}

// registerTCPConn indexes sock by the five-tuple ingress packets for this
// connection will carry (spec.md §9 dynamic dispatch by socket kind).
func (h *Host) registerTCPConn(sock *tcpSocket) {
	key := FiveTuple{
		SourceIP:        sock.remoteIP,
		SourcePort:      sock.remotePort,
		DestinationIP:   h.address,
		DestinationPort: sock.localPort,
		Protocol:        ProtocolTCP,
	}
	h.tcpConns[key] = sock.fd
	if h.metrics != nil {
		h.metrics.SetActiveConnections(len(h.tcpConns))
	}
}

// releaseTCPSocket unregisters and frees a TCP connection's resources.
func (h *Host) releaseTCPSocket(sock *tcpSocket) {
	key := FiveTuple{
		SourceIP:        sock.remoteIP,
		SourcePort:      sock.remotePort,
		DestinationIP:   h.address,
		DestinationPort: sock.localPort,
		Protocol:        ProtocolTCP,
	}
	delete(h.tcpConns, key)
	if existing, ok := h.tcpListeners[sock.localPort]; ok && existing == sock.fd {
		delete(h.tcpListeners, sock.localPort)
	}
	h.descriptors.Release(sock.fd)
	if h.metrics != nil {
		h.metrics.SetActiveConnections(len(h.tcpConns))
	}
}
