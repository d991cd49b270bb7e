package shadow

//
// TCP retransmission timing (spec.md §4.4 "RFC 6298-style RTO estimation")
//

// tcpRTOEstimator implements the RFC 6298 smoothed-RTT / RTO estimator.
type tcpRTOEstimator struct {
	srtt       SimTime
	rttvar     SimTime
	rto        SimTime
	haveSample bool
	backoff    int
}

const (
	defaultRTO = 1 * Second
	minRTO     = 200 * Millisecond
	maxRTO     = 60 * Second

	// maxRetransmits bounds how many consecutive RTO-driven
	// retransmissions a single unacknowledged segment may suffer before
	// the connection gives up (spec.md §7 "timeout (TCP retransmission
	// cap exceeded -> reset connection)", §8 invariant 5). 15 matches
	// the BSD/Linux default retry ceiling.
	maxRetransmits = 15
)

func newTCPRTOEstimator() *tcpRTOEstimator {
	return &tcpRTOEstimator{rto: defaultRTO}
}

// Sample folds one new RTT measurement into the estimator (RFC 6298 §2.2, §2.3).
func (e *tcpRTOEstimator) Sample(rtt SimTime) {
	if !e.haveSample {
		e.srtt = rtt
		e.rttvar = rtt / 2
		e.haveSample = true
	} else {
		delta := diffSimTime(e.srtt, rtt)
		e.rttvar = scaleSimTime(3*int64(e.rttvar)+int64(delta), 4)
		e.srtt = scaleSimTime(7*int64(e.srtt)+int64(rtt), 8)
	}
	e.rto = e.srtt + MaxSimTime(Millisecond, 4*e.rttvar)
	e.clamp()
	e.backoff = 0
}

func diffSimTime(a, b SimTime) SimTime {
	if a > b {
		return a - b
	}
	return b - a
}

func scaleSimTime(n int64, d int64) SimTime {
	if n < 0 {
		n = 0
	}
	return SimTime(n / d)
}

func (e *tcpRTOEstimator) clamp() {
	if e.rto < minRTO {
		e.rto = minRTO
	}
	if e.rto > maxRTO {
		e.rto = maxRTO
	}
}

// CurrentRTO returns the RTO to use for the next retransmission timer,
// applying exponential backoff for consecutive timeouts.
func (e *tcpRTOEstimator) CurrentRTO() SimTime {
	rto := e.rto
	for i := 0; i < e.backoff; i++ {
		if rto >= maxRTO/2 {
			return maxRTO
		}
		rto *= 2
	}
	return rto
}

// OnTimeout records a retransmission timeout, doubling the next RTO.
func (e *tcpRTOEstimator) OnTimeout() {
	e.backoff++
}

// tcpPendingSegment is one segment sent but not yet acknowledged.
type tcpPendingSegment struct {
	seq        uint32
	data       []byte
	flags      TCPFlags
	sentAt     SimTime
	retransmit bool
}
