package shadow

//
// NIC egress queuing discipline (spec.md §3 "NIC", §4.3, §6 --interface-qdisc)
//
// Adapted from the teacher's three-tier LinkFwdFast/WithDelay/Full
// dispatch (linkfwdcore.go, linkfwdfast.go, linkfwddelay.go,
// linkfwdfull.go): the teacher picks among three real-time, goroutine+
// ticker forwarding loops depending on whether loss/delay/DPI are
// configured. Here there is only one event-driven NIC loop (nic.go), but
// we keep the same idea of choosing a cheap strategy when nothing
// interesting is configured: [QdiscFIFO] skips the round-robin cursor
// bookkeeping entirely, the way LinkFwdFast skips loss/jitter bookkeeping.
//

// QdiscKind selects a [NIC]'s egress queuing discipline.
type QdiscKind int

const (
	// QdiscFIFO serves sockets with pending data in enqueue order
	// (spec.md §4.3: "Under FIFO, sockets are served in enqueue order").
	QdiscFIFO QdiscKind = iota

	// QdiscRoundRobin serves sockets in round-robin fashion, advancing a
	// cursor by one socket per serving round (spec.md §4.3).
	QdiscRoundRobin
)

func (k QdiscKind) String() string {
	if k == QdiscRoundRobin {
		return "rr"
	}
	return "fifo"
}

// qdisc selects, among sockets that currently have egress data, which one
// to serve next. The zero value behaves as FIFO.
type qdisc struct {
	kind   QdiscKind
	order  []Descriptor // enqueue order, for FIFO
	cursor int          // round-robin cursor into order
}

// newQdisc creates a qdisc of the given kind.
func newQdisc(kind QdiscKind) *qdisc {
	return &qdisc{kind: kind}
}

// noteHasData registers fd as having pending egress data, appending it to
// the enqueue order if it is not already tracked.
func (q *qdisc) noteHasData(fd Descriptor) {
	for _, d := range q.order {
		if d == fd {
			return
		}
	}
	q.order = append(q.order, fd)
}

// noteDrained removes fd from the tracked set once it has no more
// pending egress data.
func (q *qdisc) noteDrained(fd Descriptor) {
	for i, d := range q.order {
		if d == fd {
			q.order = append(q.order[:i], q.order[i+1:]...)
			if q.cursor > i {
				q.cursor--
			}
			return
		}
	}
}

// next returns the next descriptor to serve and advances internal state,
// or false if no socket has pending data.
func (q *qdisc) next() (Descriptor, bool) {
	if len(q.order) == 0 {
		return InvalidDescriptor, false
	}
	switch q.kind {
	case QdiscRoundRobin:
		if q.cursor >= len(q.order) {
			q.cursor = 0
		}
		fd := q.order[q.cursor]
		q.cursor = (q.cursor + 1) % len(q.order)
		return fd, true
	default: // QdiscFIFO
		return q.order[0], true
	}
}
