package shadow

//
// UDP socket (spec.md §4.5 "UDP": "datagram-oriented, no handshake,
// silently drops on overflow")
//

// udpDatagram is one buffered, received datagram awaiting a recv call.
type udpDatagram struct {
	from    FiveTuple
	payload []byte
}

// udpSocket implements [Socket] for connectionless datagram delivery.
type udpSocket struct {
	host      *Host
	fd        Descriptor
	localPort uint16

	recvQueue   []udpDatagram
	maxQueued   int
	onReadable  func(now SimTime)
	closed      bool
}

var _ Socket = (*udpSocket)(nil)

func newUDPSocket(h *Host) *udpSocket {
	return &udpSocket{host: h, maxQueued: 256}
}

func (s *udpSocket) Kind() SocketKind     { return SocketUDP }
func (s *udpSocket) Descriptor() Descriptor { return s.fd }
func (s *udpSocket) LocalPort() uint16    { return s.localPort }

// DeliverIngress buffers an incoming datagram, dropping it silently if
// the receive queue is already full (spec.md §4.5: "UDP... silently
// drops on overflow").
func (s *udpSocket) DeliverIngress(now SimTime, pkt *Packet) {
	if s.closed {
		return
	}
	if len(s.recvQueue) >= s.maxQueued {
		if s.host.metrics != nil {
			s.host.metrics.NIC.RecordDrop()
		}
		return
	}
	s.recvQueue = append(s.recvQueue, udpDatagram{from: pkt.FiveTuple(), payload: pkt.Payload})
	if s.onReadable != nil {
		cb := s.onReadable
		s.onReadable = nil
		s.host.scheduleEvent(&Event{
			DeliverTime: now,
			TargetHost:  s.host.id,
			Kind:        EventSocketCallback,
			Payload:     SocketCallbackPayload{Descriptor: s.fd, Callback: cb},
		})
	}
}

// Close implements [Socket]. UDP sockets have no teardown handshake.
func (s *udpSocket) Close(now SimTime) error {
	s.closed = true
	return nil
}

// SendTo transmits payload to (dstIP, dstPort). UDP never blocks; the
// datagram is simply handed to the NIC (spec.md §4.5). Payloads larger
// than [MaxUDPDatagram] are rejected.
func (s *udpSocket) SendTo(dstIP uint32, dstPort uint16, payload []byte) error {
	if len(payload) > MaxUDPDatagram {
		return NewProtocolError("udp payload %d exceeds MaxUDPDatagram", len(payload))
	}
	pkt := NewUDPPacket(s.host.address, s.localPort, dstIP, dstPort, payload)
	s.host.nic.Enqueue(s.fd, pkt)
	s.host.nic.NotifyHasData(s.host)
	return nil
}

// RecvFrom pops the oldest buffered datagram, if any.
func (s *udpSocket) RecvFrom() (payload []byte, from FiveTuple, ok bool) {
	if len(s.recvQueue) == 0 {
		return nil, FiveTuple{}, false
	}
	d := s.recvQueue[0]
	s.recvQueue = s.recvQueue[1:]
	return d.payload, d.from, true
}

// SetOnReadable registers a one-shot callback invoked the next time a
// datagram becomes available, modeling the "operation in progress,
// resumed by an EventSocketCallback" pattern from spec.md §4.6.
func (s *udpSocket) SetOnReadable(cb func(now SimTime)) {
	if len(s.recvQueue) > 0 {
		s.host.scheduleEvent(&Event{
			DeliverTime: s.host.now_,
			TargetHost:  s.host.id,
			Kind:        EventSocketCallback,
			Payload:     SocketCallbackPayload{Descriptor: s.fd, Callback: cb},
		})
		return
	}
	s.onReadable = cb
}
