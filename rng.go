package shadow

//
// Deterministic per-host RNG (spec.md §5 "Determinism")
//
// Every host owns an RNG seeded from (global seed, host id) so that the
// same topology run with the same global seed and the same worker count
// always draws the same sequence of random numbers per host, regardless
// of wall-clock timing or thread interleaving. No code in this package
// reads the system RNG or the wall clock while the simulation is running.
//

import (
	"math/rand"
)

// seedForHost derives a deterministic 64-bit seed for hostID from the
// engine's global seed. This is a fixed-point mixing function (splitmix64
// finalizer), not a cryptographic hash: it only needs to scatter nearby
// host ids across the seed space, not resist adversarial inputs.
func seedForHost(globalSeed uint64, hostID HostID) uint64 {
	z := globalSeed + 0x9E3779B97F4A7C15*(uint64(hostID)+1)
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z = z ^ (z >> 31)
	return z
}

// newHostRNG returns a new *rand.Rand seeded deterministically for hostID
// under globalSeed. The returned generator must only ever be consumed by
// the single worker that currently owns hostID; it is not safe to share
// across goroutines.
func newHostRNG(globalSeed uint64, hostID HostID) *rand.Rand {
	seed := seedForHost(globalSeed, hostID)
	// rand.NewSource takes an int64; truncation is fine, we only need
	// a deterministic function of (globalSeed, hostID), not a bijection.
	return rand.New(rand.NewSource(int64(seed)))
}
