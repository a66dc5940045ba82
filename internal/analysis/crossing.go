package analysis

import (
	"math"

	"github.com/san-kum/phokimo/internal/trajectory"
)

// CrossingTime returns the first time the trajectory reaches level, in
// either direction, interpolating linearly between samples.
func CrossingTime(tr *trajectory.Trajectory, level float64) (float64, bool) {
	if tr.Len() == 0 {
		return 0, false
	}
	t0, prev := tr.At(0)
	if prev == level {
		return t0, true
	}
	for i := 1; i < tr.Len(); i++ {
		t1, cur := tr.At(i)
		if (prev < level && cur >= level) || (prev > level && cur <= level) {
			frac := (level - prev) / (cur - prev)
			if math.IsNaN(frac) || math.IsInf(frac, 0) {
				frac = 1
			}
			return t0 + frac*(t1-t0), true
		}
		t0, prev = t1, cur
	}
	return 0, false
}

// HalfLife is the first time the trajectory falls to half its initial value.
func HalfLife(tr *trajectory.Trajectory) (float64, bool) {
	if tr.Len() == 0 {
		return 0, false
	}
	_, v0 := tr.At(0)
	if v0 <= 0 {
		return 0, false
	}
	return CrossingTime(tr, v0/2)
}
