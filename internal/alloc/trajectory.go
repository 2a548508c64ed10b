// Package alloc implements the bitmap-driven block allocator: deterministic
// ballistic placement with linear probing (C8) and the Horizon circular log
// fallback (C9), spec §4.8-§4.9.
package alloc

// BallisticMaxK is the highest probe offset tried during ballistic placement
// (k ranges 0..12 inclusive, 13 candidates total, spec §4.8 step 3).
const BallisticMaxK = 12

// HorizonProbeK is the sentinel probe index reported for an allocation that
// was satisfied by Horizon rather than by ballistic placement, matching the
// spec's end-to-end scenario (§8.2: "observe LBAs 20000, 20001, 20002 and
// k=15 each" after jamming all 13 ballistic candidates). 15 sits just past
// the 0..12 ballistic range plus the 13/14 reserved for future probe-depth
// growth, so a caller inspecting k alone can tell "ballistic" from
// "Horizon" without a separate flag.
const HorizonProbeK = 15

// Trajectory is the deterministic placement function T(G, V, N, M, k) from
// spec §4.8: distinct (G, V, N, M) with k=0 produce distinct blocks, and
// increasing k produces structured probe candidates for collision
// resolution. It is a pure function of its arguments only — no package
// state, no RNG, no clock — so the same inputs always yield the same block
// index (spec §9 open question: DeterministicReplay, resolved in
// SPEC_FULL.md §4 to require purity so Zero-Scan can recompute it offline).
//
// fluxBlocks must be > 0; the result is always in [0, fluxBlocks).
func Trajectory(g, v, n, m, k, fluxBlocks uint64) uint64 {
	if fluxBlocks == 0 {
		return 0
	}
	base := (g + v*(n+1) + m*(n+2)) % fluxBlocks
	if k == 0 {
		return base
	}
	// Fractal scale widens the probe stride so higher-M requests (which
	// need spatial alignment for later spillover checks) fan out across
	// more of the region instead of clustering near base.
	stride := uint64(7) + m*31
	return (base + k*stride) % fluxBlocks
}
