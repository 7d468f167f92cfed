// Package display paces the render loop. It measures whether presenting
// a frame blocks on the display refresh and, if not, falls back to a
// sleep based frame period.
package display

import (
	"sort"
	"time"
)

// Rates outside this band are not treated as a display refresh
const (
	MinRefreshHz = 10
	MaxRefreshHz = 170
)

// Calibration is the outcome of analysing measured present intervals
type Calibration struct {
	HasVsync   bool
	UsPerFrame uint32 // average of kept samples; 0 when too few samples
	Median     uint64
	Samples    int // plausible intervals measured
	Kept       int // intervals within 5% of the median
	Reason     string
}

// NoiseFloorUS is the shortest interval accepted as a real frame
const NoiseFloorUS = 1_000_000 / MaxRefreshHz

// Analyze decides from a list of present-to-present intervals (in
// microseconds, noise already removed) whether they come from a
// display refresh. window is the length of the measurement.
func Analyze(deltasUS []uint64, window time.Duration) Calibration {
	c := Calibration{Samples: len(deltasUS)}
	if len(deltasUS) <= 2 {
		c.Reason = "too few samples"
		return c
	}

	sorted := append([]uint64(nil), deltasUS...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	median := sorted[len(sorted)/2]
	upper := median * 21 / 20
	lower := median * 19 / 20
	c.Median = median

	var sum uint64
	for _, d := range sorted {
		if d > lower && d < upper {
			sum += d
			c.Kept++
		}
	}
	if c.Kept == 0 {
		c.Reason = "no samples near the median"
		return c
	}
	c.UsPerFrame = uint32(sum / uint64(c.Kept))

	windowUS := uint64(window / time.Microsecond)
	switch {
	case sum <= windowUS/3:
		c.Reason = "not enough significant intervals"
	case c.UsPerFrame <= 1_000_000/MaxRefreshHz || c.UsPerFrame >= 1_000_000/MinRefreshHz:
		c.Reason = "outside 10..170 Hz"
	default:
		c.HasVsync = true
	}
	return c
}
