package shadow

//
// TCP out-of-order reassembly (spec.md §4.4 "out-of-order reassembly,
// duplicate discard")
//

import "sort"

// tcpSegment is one out-of-order segment awaiting placement in the
// in-order byte stream.
type tcpSegment struct {
	seq  uint32
	data []byte
}

// tcpReassembly buffers out-of-order TCP segments keyed by sequence
// number until the gap before them is filled. The zero value is ready to use.
type tcpReassembly struct {
	segments []tcpSegment
}

// Insert adds a segment starting at seq. An exact duplicate of an
// already-buffered segment (same starting sequence number) is discarded.
func (r *tcpReassembly) Insert(seq uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	for _, s := range r.segments {
		if s.seq == seq {
			return
		}
	}
	r.segments = append(r.segments, tcpSegment{seq: seq, data: data})
	sort.Slice(r.segments, func(i, j int) bool { return seqLess(r.segments[i].seq, r.segments[j].seq) })
}

// Drain removes every buffered segment that is now contiguous with
// rcvNXT, returning the assembled bytes and the advanced rcvNXT.
func (r *tcpReassembly) Drain(rcvNXT uint32) ([]byte, uint32) {
	var out []byte
	for len(r.segments) > 0 && r.segments[0].seq == rcvNXT {
		seg := r.segments[0]
		r.segments = r.segments[1:]
		out = append(out, seg.data...)
		rcvNXT += uint32(len(seg.data))
	}
	return out, rcvNXT
}

// seqLess compares two 32-bit TCP sequence numbers accounting for wraparound.
func seqLess(a, b uint32) bool {
	return int32(a-b) < 0
}
