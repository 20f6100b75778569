// Seeded pseudo-randomness for the deterministic core. Every stochastic
// choice the engine makes (ids, view noise) derives from the game seed, the
// tick counter, and a stable index through SHA-256 — never from wall-clock
// or process entropy, so identical inputs replay to identical states.
package state

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Uniform maps (seed, idx) to a deterministic float64 in [0, 1).
func Uniform(seed int64, idx int) float64 {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", seed, idx)))
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.BigEndian.Uint64(h[:8]) >> 11
	return float64(n) / float64(1<<53)
}

// NewID derives a stable id of the form "<kind>_<16 hex chars>" from the
// game seed, the current tick, and a per-kind counter.
func NewID(kind string, seed int32, tick uint64, counter int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d:%d", kind, seed, tick, counter)))
	return fmt.Sprintf("%s_%x", kind, h[:8])
}
