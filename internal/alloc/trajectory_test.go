package alloc

import "testing"

func TestTrajectoryDeterministic(t *testing.T) {
	a := Trajectory(5000, 3, 0, 0, 0, 20000)
	b := Trajectory(5000, 3, 0, 0, 0, 20000)
	if a != b {
		t.Fatalf("trajectory is not deterministic: %d != %d", a, b)
	}
}

func TestTrajectoryDistinctForDistinctInputs(t *testing.T) {
	seen := map[uint64]bool{}
	for n := uint64(0); n < 8; n++ {
		lba := Trajectory(5000, 3, n, 0, 0, 1<<20)
		if seen[lba] {
			t.Fatalf("collision at N=%d: lba %d already produced by a smaller N", n, lba)
		}
		seen[lba] = true
	}
}

func TestTrajectoryProbeStructured(t *testing.T) {
	base := Trajectory(5000, 3, 0, 0, 0, 20000)
	for k := uint64(1); k <= BallisticMaxK; k++ {
		probe := Trajectory(5000, 3, 0, 0, k, 20000)
		if probe == base {
			t.Fatalf("probe k=%d collided with k=0 base", k)
		}
	}
}

func TestTrajectoryWithinRange(t *testing.T) {
	for k := uint64(0); k <= BallisticMaxK; k++ {
		lba := Trajectory(123456, 7, 42, 3, k, 9999)
		if lba >= 9999 {
			t.Fatalf("trajectory(k=%d) = %d, out of [0, 9999)", k, lba)
		}
	}
}
