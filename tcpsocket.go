package shadow

//
// TCP socket and state machine (spec.md §3 "Socket" (TCP kind), §4.4,
// §4.5; RFC 793-style states)
//
// The teacher has no hand-rolled TCP of its own (it delegates TCP to the
// gVisor-backed UNetStack, out of scope per SPEC_FULL.md §6: a real
// OS-scheduled stack cannot be driven by virtual time), so TCP is built here as an explicit
// state machine whose only inputs are DeliverIngress calls and timer
// callbacks, both dispatched by the owning [Host] on its single worker
// goroutine — there is no concurrent access to a [tcpSocket]'s fields.
//

// TCPState is one RFC 793 connection state.
type TCPState int

const (
	TCPClosed TCPState = iota
	TCPListen
	TCPSynSent
	TCPSynReceived
	TCPEstablished
	TCPFinWait1
	TCPFinWait2
	TCPCloseWait
	TCPClosing
	TCPLastAck
	TCPTimeWait
)

func (s TCPState) String() string {
	switch s {
	case TCPListen:
		return "LISTEN"
	case TCPSynSent:
		return "SYN_SENT"
	case TCPSynReceived:
		return "SYN_RECEIVED"
	case TCPEstablished:
		return "ESTABLISHED"
	case TCPFinWait1:
		return "FIN_WAIT_1"
	case TCPFinWait2:
		return "FIN_WAIT_2"
	case TCPCloseWait:
		return "CLOSE_WAIT"
	case TCPClosing:
		return "CLOSING"
	case TCPLastAck:
		return "LAST_ACK"
	case TCPTimeWait:
		return "TIME_WAIT"
	default:
		return "CLOSED"
	}
}

// TimeWaitDuration is how long a connection lingers in TIME_WAIT before
// its descriptor is finally released (spec.md §4.4 default: 60s).
const TimeWaitDuration = 60 * Second

// tcpSocket implements [Socket] for one TCP endpoint: either a listening
// socket (state == TCPListen) or a connection (every other state).
type tcpSocket struct {
	host *Host
	fd   Descriptor

	state TCPState

	localPort  uint16
	remoteIP   uint32
	remotePort uint16

	// backlog holds fully-established connections awaiting Accept, only
	// meaningful when state == TCPListen.
	backlog    []Descriptor
	maxBacklog int

	// listener is set on a child spawned by a listening socket's
	// deliverListening; once the handshake completes the child reports
	// itself to listener.backlog for Accept to pick up.
	listener *tcpSocket

	// send side
	sendQueue       []byte // accepted but not yet transmitted
	sndUNA, sndNXT  uint32
	retransmitQueue []*tcpPendingSegment
	peerWindow      uint32
	sendBuf         *autotuner

	// receive side
	rcvNXT      uint32
	recvBuf     []byte
	reassembly  tcpReassembly
	recvBufSize *autotuner

	cong *tcpCongestion
	rto  *tcpRTOEstimator

	rtoTimer     *Timer
	rtoTimerSeq  uint32 // seq being timed, to ignore stale fires
	timeWaitTimer *Timer

	onReadable  func(now SimTime)
	onWritable  func(now SimTime)
	onConnected func(now SimTime, err error)

	finSent bool
	finRecv bool
}

var _ Socket = (*tcpSocket)(nil)

func newTCPSocket(h *Host) *tcpSocket {
	return &tcpSocket{
		host:        h,
		cong:        newTCPCongestion(0, h.tcpInitialWindow),
		rto:         newTCPRTOEstimator(),
		sendBuf:     newAutotuner(h.defaultSendBuffer),
		recvBufSize: newAutotuner(h.defaultRecvBuffer),
		peerWindow:  1 << 16,
	}
}

func (s *tcpSocket) Kind() SocketKind       { return SocketTCP }
func (s *tcpSocket) Descriptor() Descriptor { return s.fd }
func (s *tcpSocket) LocalPort() uint16      { return s.localPort }

//
// Outbound segment construction
//

func (s *tcpSocket) window() uint32 {
	avail := s.recvBufSize.Size() - len(s.recvBuf)
	if avail < 0 {
		avail = 0
	}
	if avail > 0xFFFF {
		avail = 0xFFFF
	}
	return uint32(avail)
}

func (s *tcpSocket) transmit(flags TCPFlags, seq uint32, data []byte) {
	hdr := TCPHeader{
		SequenceNumber: seq,
		AckNumber:      s.rcvNXT,
		Flags:          flags,
		Window:         uint16(s.window()),
	}
	pkt := NewTCPPacket(s.host.address, s.localPort, s.remoteIP, s.remotePort, hdr, data)
	s.host.nic.Enqueue(s.fd, pkt)
	s.host.nic.NotifyHasData(s.host)
}

func (s *tcpSocket) sendReset(now SimTime) {
	s.transmit(TCPFlagRST, s.sndNXT, nil)
}

//
// Active and passive open
//

// Connect initiates an active open to (dstIP, dstPort) (spec.md §4.5).
func (s *tcpSocket) Connect(dstIP uint32, dstPort uint16) error {
	if s.state != TCPClosed {
		return ErrSocketWrongState
	}
	s.remoteIP = dstIP
	s.remotePort = dstPort
	s.sndUNA = s.host.rng.Uint32()
	s.sndNXT = s.sndUNA
	s.state = TCPSynSent
	s.transmit(TCPFlagSYN, s.sndNXT, nil)
	s.sndNXT++
	return nil
}

// Listen transitions a bound socket into LISTEN with the given backlog.
func (s *tcpSocket) Listen(backlog int) error {
	if s.state != TCPClosed {
		return ErrSocketWrongState
	}
	if backlog <= 0 {
		backlog = 16
	}
	s.maxBacklog = backlog
	s.state = TCPListen
	return nil
}

// Accept pops the oldest fully-established connection from the backlog.
func (s *tcpSocket) Accept() (Descriptor, bool) {
	if len(s.backlog) == 0 {
		return InvalidDescriptor, false
	}
	fd := s.backlog[0]
	s.backlog = s.backlog[1:]
	return fd, true
}

//
// Ingress dispatch
//

// DeliverIngress implements [Socket]; it is the sole entry point driving
// this connection's state machine.
func (s *tcpSocket) DeliverIngress(now SimTime, pkt *Packet) {
	switch s.state {
	case TCPListen:
		s.deliverListening(now, pkt)
	case TCPSynSent:
		s.deliverSynSent(now, pkt)
	default:
		s.deliverConnected(now, pkt)
	}
}

// deliverListening handles an incoming SYN on a listening socket,
// spawning a new connected socket in SYN_RECEIVED (spec.md §4.4 passive open).
func (s *tcpSocket) deliverListening(now SimTime, pkt *Packet) {
	if !pkt.TCP.Flags.Has(TCPFlagSYN) {
		return
	}
	if len(s.backlog) >= s.maxBacklog {
		return // backlog full: silently drop the SYN, matching BSD semantics
	}
	child := newTCPSocket(s.host)
	fd, err := s.host.descriptors.Allocate(child)
	if err != nil {
		s.host.log.Warnf("shadow: %s: tcp accept: %s", s.host.name, err.Error())
		return
	}
	child.fd = fd
	child.localPort = s.localPort
	child.remoteIP = pkt.SourceIP
	child.remotePort = pkt.SourcePort
	child.rcvNXT = pkt.TCP.SequenceNumber + 1
	child.sndUNA = s.host.rng.Uint32()
	child.sndNXT = child.sndUNA
	child.peerWindow = uint32(pkt.TCP.Window)
	child.state = TCPSynReceived
	child.listener = s
	s.host.registerTCPConn(child)
	child.transmit(TCPFlagSYN|TCPFlagACK, child.sndNXT, nil)
	child.sndNXT++
	_ = now
}

// deliverSynSent handles the SYN-ACK response to an active open.
func (s *tcpSocket) deliverSynSent(now SimTime, pkt *Packet) {
	if pkt.TCP.Flags.Has(TCPFlagRST) {
		s.state = TCPClosed
		if s.onConnected != nil {
			cb := s.onConnected
			s.onConnected = nil
			cb(now, ErrConnectionReset)
		}
		return
	}
	if !pkt.TCP.Flags.Has(TCPFlagSYN) || !pkt.TCP.Flags.Has(TCPFlagACK) {
		return
	}
	if pkt.TCP.AckNumber != s.sndNXT {
		return // stale or malformed ACK
	}
	s.rcvNXT = pkt.TCP.SequenceNumber + 1
	s.peerWindow = uint32(pkt.TCP.Window)
	s.sndUNA = pkt.TCP.AckNumber
	s.state = TCPEstablished
	s.transmit(TCPFlagACK, s.sndNXT, nil)
	if s.onConnected != nil {
		cb := s.onConnected
		s.onConnected = nil
		cb(now, nil)
	}
}

// deliverConnected handles ACK/data/FIN/RST processing for every
// post-handshake state (spec.md §4.4).
func (s *tcpSocket) deliverConnected(now SimTime, pkt *Packet) {
	if pkt.TCP.Flags.Has(TCPFlagRST) {
		s.abort(now, ErrConnectionReset)
		return
	}

	if s.state == TCPSynReceived && pkt.TCP.Flags.Has(TCPFlagACK) {
		s.sndUNA = pkt.TCP.AckNumber
		s.state = TCPEstablished
		if s.listener != nil {
			parent := s.listener
			s.listener = nil
			parent.backlog = append(parent.backlog, s.fd)
			if parent.onReadable != nil {
				cb := parent.onReadable
				parent.onReadable = nil
				cb(now)
			}
		}
	}

	if pkt.TCP.Flags.Has(TCPFlagACK) {
		s.handleACK(now, pkt.TCP.AckNumber)
	}

	if len(pkt.Payload) > 0 {
		s.handleData(now, pkt.TCP.SequenceNumber, pkt.Payload)
	}

	if pkt.TCP.Flags.Has(TCPFlagFIN) {
		s.handleFIN(now, pkt.TCP.SequenceNumber)
	}

	s.pump(now)
}

//
// ACK / retransmission handling
//

func (s *tcpSocket) handleACK(now SimTime, ack uint32) {
	if seqLess(s.sndUNA, ack) {
		ackedBytes := int(ack - s.sndUNA)
		s.sndUNA = ack
		s.retireAcked(now, ack)
		s.cong.onAckNewData(ackedBytes)
		s.cong.dupACKs = 0
		s.rto.backoff = 0
		s.cancelRTOTimer()
		if s.sndNXT != s.sndUNA {
			s.scheduleRTOTimer(now)
		}
		if s.onWritable != nil && len(s.sendQueue) < s.sendBuf.Size() {
			cb := s.onWritable
			s.onWritable = nil
			cb(now)
		}
		s.maybeFinishClose(now)
		return
	}
	if ack == s.sndUNA && s.sndUNA != s.sndNXT {
		if s.cong.onDuplicateACK() {
			s.fastRetransmit(now)
		}
	}
}

func (s *tcpSocket) retireAcked(now SimTime, ack uint32) {
	i := 0
	for ; i < len(s.retransmitQueue); i++ {
		seg := s.retransmitQueue[i]
		segEnd := seg.seq + uint32(len(seg.data))
		if seg.flags.Has(TCPFlagFIN) {
			segEnd++
		}
		if seqLess(ack, segEnd) {
			break // not fully acked yet
		}
		if !seg.retransmit {
			s.rto.Sample(now.Sub(seg.sentAt))
			s.recvBufSize.OnRTTSample(s.cong.window())
			s.sendBuf.OnRTTSample(s.cong.window())
		}
	}
	s.retransmitQueue = s.retransmitQueue[i:]
}

func (s *tcpSocket) fastRetransmit(now SimTime) {
	if len(s.retransmitQueue) == 0 {
		return
	}
	seg := s.retransmitQueue[0]
	seg.retransmit = true
	seg.sentAt = now
	s.transmit(seg.flags, seg.seq, seg.data)
}

func (s *tcpSocket) scheduleRTOTimer(now SimTime) {
	s.cancelRTOTimer()
	una := s.sndUNA
	s.rtoTimer = s.host.CreateTimer(s.rto.CurrentRTO(), func(fireTime SimTime) {
		s.onRTOFire(fireTime, una)
	})
}

func (s *tcpSocket) cancelRTOTimer() {
	if s.rtoTimer != nil {
		s.rtoTimer.Cancel()
		s.rtoTimer = nil
	}
}

func (s *tcpSocket) onRTOFire(now SimTime, unaAtSchedule uint32) {
	s.rtoTimer = nil
	if s.sndUNA != unaAtSchedule || len(s.retransmitQueue) == 0 {
		return
	}
	s.cong.onRTOTimeout()
	s.rto.OnTimeout()
	if s.host.metrics != nil {
		s.host.metrics.RecordRetransmission()
	}
	if s.rto.backoff > maxRetransmits {
		s.abort(now, NewTimeoutError("tcp: giving up after %d retransmissions of seq %d", maxRetransmits, s.retransmitQueue[0].seq))
		return
	}
	seg := s.retransmitQueue[0]
	seg.retransmit = true
	seg.sentAt = now
	s.transmit(seg.flags, seg.seq, seg.data)
	s.scheduleRTOTimer(now)
}

//
// Data transfer
//

func (s *tcpSocket) handleData(now SimTime, seq uint32, payload []byte) {
	if seq == s.rcvNXT {
		s.recvBuf = append(s.recvBuf, payload...)
		s.rcvNXT += uint32(len(payload))
		more, advanced := s.reassembly.Drain(s.rcvNXT)
		s.recvBuf = append(s.recvBuf, more...)
		s.rcvNXT = advanced
		if s.onReadable != nil {
			cb := s.onReadable
			s.onReadable = nil
			cb(now)
		}
	} else if seqLess(s.rcvNXT, seq) {
		s.reassembly.Insert(seq, payload)
	}
	// seq < rcvNXT: fully duplicate data, discard
	s.transmit(TCPFlagACK, s.sndNXT, nil)
}

func (s *tcpSocket) handleFIN(now SimTime, finSeq uint32) {
	if s.finRecv {
		return
	}
	s.finRecv = true
	if finSeq >= s.rcvNXT {
		s.rcvNXT = finSeq + 1
	}
	s.transmit(TCPFlagACK, s.sndNXT, nil)
	switch s.state {
	case TCPEstablished:
		s.state = TCPCloseWait
	case TCPFinWait1:
		s.state = TCPClosing
	case TCPFinWait2:
		s.enterTimeWait(now)
	}
	if s.onReadable != nil {
		cb := s.onReadable
		s.onReadable = nil
		cb(now)
	}
}

// pump transmits queued send data up to the current window, respecting
// congestion control (spec.md §4.4).
func (s *tcpSocket) pump(now SimTime) {
	if s.state != TCPEstablished && s.state != TCPCloseWait {
		return
	}
	mss := s.cong.mss
	for len(s.sendQueue) > 0 {
		window := s.effectiveWindow()
		if window <= 0 {
			break
		}
		size := mss
		if size > len(s.sendQueue) {
			size = len(s.sendQueue)
		}
		if size > window {
			size = window
		}
		if size <= 0 {
			break
		}
		data := append([]byte(nil), s.sendQueue[:size]...)
		s.sendQueue = s.sendQueue[size:]
		seq := s.sndNXT
		s.sndNXT += uint32(size)
		s.retransmitQueue = append(s.retransmitQueue, &tcpPendingSegment{seq: seq, data: data, flags: TCPFlagACK, sentAt: now})
		s.transmit(TCPFlagACK, seq, data)
	}
	if len(s.retransmitQueue) > 0 && s.rtoTimer == nil {
		s.scheduleRTOTimer(now)
	}
}

func (s *tcpSocket) effectiveWindow() int {
	inFlight := int(s.sndNXT - s.sndUNA)
	win := s.cong.window()
	if int(s.peerWindow) < win {
		win = int(s.peerWindow)
	}
	avail := win - inFlight
	if avail < 0 {
		avail = 0
	}
	return avail
}

// Send queues payload for transmission, returning the number of bytes
// actually accepted into the send buffer (spec.md §4.5).
func (s *tcpSocket) Send(now SimTime, payload []byte) (int, error) {
	if s.state != TCPEstablished && s.state != TCPCloseWait {
		return 0, ErrSocketNotConnected
	}
	room := s.sendBuf.Size() - len(s.sendQueue)
	if room <= 0 {
		return 0, ErrNoBufferSpace
	}
	n := len(payload)
	if n > room {
		n = room
	}
	s.sendQueue = append(s.sendQueue, payload[:n]...)
	s.pump(now)
	return n, nil
}

// Recv drains up to maxBytes of in-order received data.
func (s *tcpSocket) Recv(maxBytes int) ([]byte, bool) {
	if len(s.recvBuf) == 0 {
		return nil, s.finRecv // ok=true only to signal EOF when peer has closed
	}
	n := maxBytes
	if n <= 0 || n > len(s.recvBuf) {
		n = len(s.recvBuf)
	}
	out := s.recvBuf[:n]
	s.recvBuf = s.recvBuf[n:]
	return out, true
}

//
// Close and teardown
//

// Close begins an active close (spec.md §4.4 FIN_WAIT_1/2, LAST_ACK, CLOSING, TIME_WAIT).
func (s *tcpSocket) Close(now SimTime) error {
	switch s.state {
	case TCPClosed, TCPTimeWait:
		return nil
	case TCPListen, TCPSynSent:
		s.state = TCPClosed
		s.host.releaseTCPSocket(s)
		return nil
	case TCPEstablished:
		s.sendFIN(now)
		s.state = TCPFinWait1
	case TCPCloseWait:
		s.sendFIN(now)
		s.state = TCPLastAck
	}
	return nil
}

func (s *tcpSocket) sendFIN(now SimTime) {
	if s.finSent {
		return
	}
	s.finSent = true
	seq := s.sndNXT
	s.sndNXT++
	s.retransmitQueue = append(s.retransmitQueue, &tcpPendingSegment{seq: seq, data: nil, flags: TCPFlagFIN | TCPFlagACK, sentAt: now})
	s.transmit(TCPFlagFIN|TCPFlagACK, seq, nil)
	if s.rtoTimer == nil {
		s.scheduleRTOTimer(now)
	}
}

func (s *tcpSocket) maybeFinishClose(now SimTime) {
	if len(s.retransmitQueue) > 0 {
		return
	}
	switch s.state {
	case TCPFinWait1:
		s.state = TCPFinWait2
	case TCPClosing:
		s.enterTimeWait(now)
	case TCPLastAck:
		s.state = TCPClosed
		s.host.releaseTCPSocket(s)
	}
}

func (s *tcpSocket) enterTimeWait(now SimTime) {
	s.state = TCPTimeWait
	s.timeWaitTimer = s.host.CreateTimer(TimeWaitDuration, func(fireTime SimTime) {
		s.state = TCPClosed
		s.host.releaseTCPSocket(s)
	})
}

func (s *tcpSocket) abort(now SimTime, reason error) {
	s.state = TCPClosed
	s.cancelRTOTimer()
	if s.timeWaitTimer != nil {
		s.timeWaitTimer.Cancel()
	}
	s.host.releaseTCPSocket(s)
	if s.onConnected != nil {
		cb := s.onConnected
		s.onConnected = nil
		cb(now, reason)
	}
	if s.onReadable != nil {
		cb := s.onReadable
		s.onReadable = nil
		cb(now)
	}
}
