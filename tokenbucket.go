package shadow

//
// Token-bucket rate limiting (spec.md §3 "NIC", §4.3, invariant 6)
//
// golang.org/x/time/rate assumes a real wall clock (it calls time.Now()
// internally) and cannot be driven by virtual time, so this is a small
// hand-rolled bucket instead — the one clearly justified standard-library
// (here: pure arithmetic, no library at all) substitution in the NIC
// layer; see DESIGN.md.
//

// TokenBucket rate-limits one direction (upstream or downstream) of a
// [NIC]. Capacity is one refill quantum (spec.md §4.3: "capped at a
// burst equal to one refill quantum"), so the bucket never accumulates
// more than a single batch interval's worth of credit.
type TokenBucket struct {
	// bytesPerSecond is the configured bandwidth.
	bytesPerSecond uint64

	// capacity is the maximum number of bytes the bucket can hold,
	// i.e. bytesPerSecond * batchInterval.
	capacity uint64

	// available is the current balance.
	available uint64

	// lastRefill is the simulated time of the last refill, used by
	// [TokenBucket.RefillUpTo] to compute elapsed time.
	lastRefill SimTime
}

// NewTokenBucket creates a [TokenBucket] for the given bandwidth (in
// bytes/second) and refill interval. It starts full, so the first tick
// after setup can send immediately.
func NewTokenBucket(bytesPerSecond uint64, refillInterval SimTime) *TokenBucket {
	capacity := quantumBytes(bytesPerSecond, refillInterval)
	return &TokenBucket{
		bytesPerSecond: bytesPerSecond,
		capacity:       capacity,
		available:      capacity,
	}
}

// quantumBytes computes bytesPerSecond * interval, interval being in
// simulated nanoseconds.
func quantumBytes(bytesPerSecond uint64, interval SimTime) uint64 {
	return bytesPerSecond * uint64(interval) / uint64(Second)
}

// Refill adds bytesPerSecond*interval bytes to the bucket, capped at
// capacity (spec.md §4.3: "each direction's token bucket is refilled by
// bandwidth * interval, capped at a burst equal to one refill quantum").
func (b *TokenBucket) Refill(interval SimTime) {
	b.available += quantumBytes(b.bytesPerSecond, interval)
	if b.available > b.capacity {
		b.available = b.capacity
	}
}

// CanSend reports whether n bytes can be debited right now.
func (b *TokenBucket) CanSend(n int) bool {
	return uint64(n) <= b.available
}

// Debit subtracts n bytes from the bucket. Callers must have checked
// [TokenBucket.CanSend] first; Debit clamps at 0 rather than going
// negative so a buggy caller cannot corrupt the invariant.
func (b *TokenBucket) Debit(n int) {
	if uint64(n) >= b.available {
		b.available = 0
		return
	}
	b.available -= uint64(n)
}

// Available returns the current balance, for metrics and tests.
func (b *TokenBucket) Available() uint64 {
	return b.available
}

// RefillUpTo refills the bucket for the time elapsed since the previous
// call (or since construction, for the first call), capped at capacity.
// This lets ingress accounting refill continuously between NIC ticks
// instead of only on batch-interval boundaries, while egress accounting
// can still call it once per tick for the spec's coarser "refilled every
// batch interval" behavior.
func (b *TokenBucket) RefillUpTo(now SimTime) {
	elapsed := now.Sub(b.lastRefill)
	b.lastRefill = now
	if elapsed == 0 {
		return
	}
	b.Refill(elapsed)
}
