package shadow

//
// TCP congestion control (spec.md §4.4 "congestion control": slow start,
// congestion avoidance, fast recovery; SPEC_FULL.md §3 unchanged)
//

// tcpCongestion implements RFC 5681/6928-style slow start, congestion
// avoidance and fast recovery. All sizes are in bytes.
type tcpCongestion struct {
	cwnd     int
	ssthresh int
	mss      int

	dupACKs        int
	inFastRecovery bool
}

// initialWindowSegments is RFC 6928's default initial congestion window,
// overridable per spec.md §6 --tcp-windows.
const initialWindowSegments = 10

func newTCPCongestion(mss, windowSegments int) *tcpCongestion {
	if mss <= 0 {
		mss = MTU - EthernetIPTCPHeaderSize
	}
	if windowSegments <= 0 {
		windowSegments = initialWindowSegments
	}
	return &tcpCongestion{
		cwnd:     windowSegments * mss,
		ssthresh: 1 << 30,
		mss:      mss,
	}
}

// onAckNewData updates cwnd after ackedBytes of previously unacked data
// is acknowledged.
func (c *tcpCongestion) onAckNewData(ackedBytes int) {
	if c.inFastRecovery {
		c.cwnd = c.ssthresh
		c.inFastRecovery = false
	}
	c.dupACKs = 0
	if c.cwnd < c.ssthresh {
		c.cwnd += ackedBytes // slow start: exponential growth
	} else {
		inc := (c.mss * c.mss) / c.cwnd // congestion avoidance: ~+1 MSS/RTT
		if inc < 1 {
			inc = 1
		}
		c.cwnd += inc
	}
}

// onDuplicateACK records one duplicate ACK and reports whether this is
// the third in a row, triggering fast retransmit + fast recovery.
func (c *tcpCongestion) onDuplicateACK() bool {
	c.dupACKs++
	switch {
	case c.dupACKs == 3:
		c.ssthresh = c.cwnd / 2
		if c.ssthresh < 2*c.mss {
			c.ssthresh = 2 * c.mss
		}
		c.cwnd = c.ssthresh + 3*c.mss
		c.inFastRecovery = true
		return true
	case c.dupACKs > 3 && c.inFastRecovery:
		c.cwnd += c.mss
	}
	return false
}

// onRTOTimeout resets cwnd to one segment, per RFC 5681 §4.1.
func (c *tcpCongestion) onRTOTimeout() {
	c.ssthresh = c.cwnd / 2
	if c.ssthresh < 2*c.mss {
		c.ssthresh = 2 * c.mss
	}
	c.cwnd = c.mss
	c.dupACKs = 0
	c.inFastRecovery = false
}

func (c *tcpCongestion) window() int { return c.cwnd }
