package shadow

//
// Per-host packet capture (spec.md §6 "Persisted state": "a PCAP trace per
// host, if enabled"; SPEC_FULL.md §7 "PCAP capture")
//
// Adapted from the teacher's PCAPDumper/pcapDumperNIC, which wrapped a live
// [NIC] and wrote whatever raw bytes it already saw to a background
// goroutine. We no longer carry raw frame bytes end to end — [Packet] is a
// structured record (model.go) — so capture instead synthesizes an
// Ethernet+IPv4+TCP/UDP frame from that record at the moment a [Host]
// receives it (packets a host transmits are not written to its own
// trace), the same gopacket/gopacket-layers/pcapgo stack
// the teacher used, but called synchronously from the event loop rather
// than fed through a channel to a background writer: everything in the
// simulation happens on the single worker goroutine driving virtual time,
// so there is nothing left for a capture goroutine to do concurrently with.
//

import (
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PCAPWriter appends synthesized frames to a PCAP file. The zero value is
// not ready for use; construct with [NewPCAPWriter].
type PCAPWriter struct {
	file   *os.File
	writer *pcapgo.Writer
	logger Logger
	buf    gopacket.SerializeBuffer
}

// NewPCAPWriter creates filename and writes the PCAP file header.
func NewPCAPWriter(filename string, logger Logger) (*PCAPWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, NewResourceError("pcap: create %s: %s", filename, err.Error())
	}
	w := pcapgo.NewWriter(f)
	const snapLen = 65536
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, NewResourceError("pcap: write file header: %s", err.Error())
	}
	return &PCAPWriter{file: f, writer: w, logger: logger, buf: gopacket.NewSerializeBuffer()}, nil
}

// Close flushes and closes the underlying file.
func (p *PCAPWriter) Close() error {
	return p.file.Close()
}

// macForIP synthesizes a stable, locally-administered MAC address from an
// IPv4 address purely for display purposes in capture tools; it carries no
// simulation semantics.
func macForIP(ip uint32) net.HardwareAddr {
	return net.HardwareAddr{
		0x02, 0x00,
		byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip),
	}
}

// Write synthesizes an Ethernet+IPv4+TCP/UDP frame for pkt as observed at
// simulated time now, and appends it to the trace. The simulated clock is
// mapped onto capture-file timestamps as an offset from the Unix epoch so
// that tools like Wireshark can still order and diff multiple traces from
// the same run.
func (p *PCAPWriter) Write(now SimTime, pkt *Packet) error {
	eth := &layers.Ethernet{
		SrcMAC:       macForIP(pkt.SourceIP),
		DstMAC:       macForIP(pkt.DestinationIP),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       uint16(pkt.TCP.SequenceNumber),
		SrcIP:    net.IPv4(byte(pkt.SourceIP>>24), byte(pkt.SourceIP>>16), byte(pkt.SourceIP>>8), byte(pkt.SourceIP)),
		DstIP:    net.IPv4(byte(pkt.DestinationIP>>24), byte(pkt.DestinationIP>>16), byte(pkt.DestinationIP>>8), byte(pkt.DestinationIP)),
	}

	p.buf.Clear()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	var err error
	switch pkt.Protocol {
	case ProtocolTCP:
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(pkt.SourcePort),
			DstPort: layers.TCPPort(pkt.DestinationPort),
			Seq:     pkt.TCP.SequenceNumber,
			Ack:     pkt.TCP.AckNumber,
			Window:  pkt.TCP.Window,
			SYN:     pkt.TCP.Flags.Has(TCPFlagSYN),
			ACK:     pkt.TCP.Flags.Has(TCPFlagACK),
			FIN:     pkt.TCP.Flags.Has(TCPFlagFIN),
			RST:     pkt.TCP.Flags.Has(TCPFlagRST),
			PSH:     pkt.TCP.Flags.Has(TCPFlagPSH),
			URG:     pkt.TCP.Flags.Has(TCPFlagURG),
		}
		tcp.SetNetworkLayerForChecksum(ip)
		err = gopacket.SerializeLayers(p.buf, opts, eth, ip, tcp, gopacket.Payload(pkt.Payload))
	default: // ProtocolUDP
		ip.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(pkt.SourcePort),
			DstPort: layers.UDPPort(pkt.DestinationPort),
		}
		udp.SetNetworkLayerForChecksum(ip)
		err = gopacket.SerializeLayers(p.buf, opts, eth, ip, udp, gopacket.Payload(pkt.Payload))
	}
	if err != nil {
		return NewResourceError("pcap: serialize: %s", err.Error())
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(0, int64(now)),
		CaptureLength: len(p.buf.Bytes()),
		Length:        len(p.buf.Bytes()),
	}
	if err := p.writer.WritePacket(ci, p.buf.Bytes()); err != nil {
		return NewResourceError("pcap: write packet: %s", err.Error())
	}
	return nil
}
