package display

import (
	"fmt"
	"io"
	"time"

	"go-pianofall/debug"
)

// Canvas is the render target whose present latency is measured. Either
// call may block until the next display refresh.
type Canvas interface {
	Clear() error
	Present() error
}

// Config tunes a FrameClock. Zero values select the defaults.
type Config struct {
	FallbackFPS     int           // frame rate used without vsync (60)
	MeasureWindow   time.Duration // length of the calibration (300ms)
	PresentOverhead time.Duration // assumed clear+present cost (1ms)

	Now   func() time.Time
	Sleep func(time.Duration)
}

const (
	DefaultFallbackFPS     = 60
	DefaultMeasureWindow   = 300 * time.Millisecond
	DefaultPresentOverhead = time.Millisecond

	measureSleep = 200 * time.Microsecond
)

// Stat is a timing histogram of one named checkpoint
type Stat struct {
	Name  string
	Min   time.Duration
	Max   time.Duration
	Sum   time.Duration
	Count int
}

// Avg returns the mean interval
func (s Stat) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / time.Duration(s.Count)
}

// FrameClock presents frames and tells the render loop how much time is
// left before the next one. Calibration runs on the first
// PresentThenClear. Not safe for concurrent use.
type FrameClock struct {
	canvas Canvas
	cfg    Config

	calibration Calibration
	measured    bool
	initialized bool
	fallbackUS  uint32
	lostFrames  int

	stamp    time.Time
	last     time.Duration
	base     time.Time // start of the current frame; zero when unset
	cpAvg    time.Duration
	stats    map[string]*Stat
	statKeys []string
}

// New creates a frame clock for the canvas
func New(canvas Canvas, cfg Config) *FrameClock {
	if cfg.FallbackFPS <= 0 {
		cfg.FallbackFPS = DefaultFallbackFPS
	}
	if cfg.MeasureWindow <= 0 {
		cfg.MeasureWindow = DefaultMeasureWindow
	}
	if cfg.PresentOverhead < 0 {
		cfg.PresentOverhead = 0
	} else if cfg.PresentOverhead == 0 {
		cfg.PresentOverhead = DefaultPresentOverhead
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	return &FrameClock{
		canvas:     canvas,
		cfg:        cfg,
		fallbackUS: uint32(1_000_000 / cfg.FallbackFPS),
		stats:      make(map[string]*Stat),
	}
}

// HasVsync reports whether presenting was found to block on the refresh
func (f *FrameClock) HasVsync() bool { return f.calibration.HasVsync }

// Calibration returns the result of the measurement
func (f *FrameClock) Calibration() Calibration { return f.calibration }

// LostFrames returns how often a frame deadline was overrun
func (f *FrameClock) LostFrames() int { return f.lostFrames }

// UsPerFrame returns the measured period with vsync, else the fallback
func (f *FrameClock) UsPerFrame() uint32 {
	if f.calibration.HasVsync && f.calibration.UsPerFrame > 0 {
		return f.calibration.UsPerFrame
	}
	return f.fallbackUS
}

func (f *FrameClock) period() time.Duration {
	return time.Duration(f.UsPerFrame()) * time.Microsecond
}

// Calibrate measures present intervals over the measurement window. It
// blocks for the whole window.
func (f *FrameClock) Calibrate() error {
	if f.stamp.IsZero() {
		f.stamp = f.cfg.Now()
	}
	start := f.cfg.Now()
	var deltas []uint64
	var last time.Duration
	first := true
	for {
		elapsed := f.cfg.Now().Sub(start)
		if elapsed > f.cfg.MeasureWindow {
			break
		}
		if !first {
			if d := uint64((elapsed - last) / time.Microsecond); d > NoiseFloorUS {
				deltas = append(deltas, d)
			}
		}
		first = false
		last = elapsed

		f.cfg.Sleep(measureSleep)
		f.Sample("measure: sleep")
		if err := f.canvas.Clear(); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		_, avg := f.Sample("measure: clear")
		if err := f.canvas.Present(); err != nil {
			return fmt.Errorf("present: %w", err)
		}
		_, p := f.Sample("measure: present")
		f.cpAvg = avg + p
	}

	f.calibration = Analyze(deltas, f.cfg.MeasureWindow)
	f.measured = true
	if f.calibration.HasVsync {
		debug.Log("frame", "vsync detected: %d us/frame from %d of %d intervals",
			f.calibration.UsPerFrame, f.calibration.Kept, f.calibration.Samples)
	} else {
		debug.Warn("frame", "vsync not in use (%s), pacing at %d us/frame",
			f.calibration.Reason, f.fallbackUS)
	}
	return nil
}

// PresentThenClear shows the previous frame and prepares the next. The
// first call calibrates instead of presenting. Without vsync it sleeps
// until the frame deadline before presenting.
func (f *FrameClock) PresentThenClear() error {
	var cp time.Duration
	if f.initialized {
		if !f.calibration.HasVsync {
			f.cfg.Sleep(f.TimeUntilNextFrame())
			f.Sample("frame: sleep")
			if !f.base.IsZero() {
				f.base = f.base.Add(f.period())
			}
		} else {
			f.base = time.Time{}
		}
		f.Sample("frame: before present")
		if err := f.canvas.Present(); err != nil {
			return fmt.Errorf("present: %w", err)
		}
		_, cp = f.Sample("frame: present")
	} else {
		f.stamp = f.cfg.Now()
		f.last = 0
		f.initialized = true
		if !f.measured {
			// fill both buffers before measuring
			if err := f.canvas.Clear(); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			if err := f.canvas.Present(); err != nil {
				return fmt.Errorf("present: %w", err)
			}
			if err := f.canvas.Clear(); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			if err := f.Calibrate(); err != nil {
				return err
			}
		}
	}

	if err := f.canvas.Clear(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	if f.base.IsZero() {
		f.base = f.cfg.Now()
	}
	_, c := f.Sample("frame: clear")
	f.cpAvg = cp + c
	return nil
}

// Sample records the time since the previous sample under name and
// returns that interval and the running average for the name.
func (f *FrameClock) Sample(name string) (time.Duration, time.Duration) {
	if f.stamp.IsZero() {
		f.stamp = f.cfg.Now()
	}
	elapsed := f.cfg.Now().Sub(f.stamp)
	dt := elapsed - f.last
	f.last = elapsed

	s, ok := f.stats[name]
	if !ok {
		s = &Stat{Name: name, Min: dt}
		f.stats[name] = s
		f.statKeys = append(f.statKeys, name)
	}
	s.Min = min(s.Min, dt)
	s.Max = max(s.Max, dt)
	s.Sum += dt
	s.Count++
	return dt, s.Avg()
}

// ResetStats drops all histograms
func (f *FrameClock) ResetStats() {
	f.stats = make(map[string]*Stat)
	f.statKeys = nil
}

// Stats returns the histograms in order of first use
func (f *FrameClock) Stats() []Stat {
	out := make([]Stat, 0, len(f.statKeys))
	for _, k := range f.statKeys {
		out = append(out, *f.stats[k])
	}
	return out
}

// TimeUntilNextFrame returns how long the render loop may keep working
// before the next frame has to be presented, less the present overhead.
// An overrun counts as a lost frame and returns 0.
func (f *FrameClock) TimeUntilNextFrame() time.Duration {
	now := f.cfg.Now()
	if f.base.IsZero() {
		f.base = now
		return 0
	}
	elapsed := now.Sub(f.base)
	period := f.period()
	if elapsed > period {
		f.lostFrames++
		debug.Warn("frame", "sync missed: %d, this time by %s", f.lostFrames, elapsed-period)
		return 0
	}
	rem := period - elapsed
	if rem < f.cfg.PresentOverhead {
		return 0
	}
	return rem - f.cfg.PresentOverhead
}

// ProcessingLeft is TimeUntilNextFrame minus 1.5 times the average
// clear+present cost.
func (f *FrameClock) ProcessingLeft() time.Duration {
	reserve := f.cpAvg * 3 / 2
	left := f.TimeUntilNextFrame()
	if left < reserve {
		return 0
	}
	return left - reserve
}

// Report writes the calibration result and all histograms
func (f *FrameClock) Report(w io.Writer) {
	if f.calibration.HasVsync {
		fmt.Fprintln(w, "VSYNC is in use")
		fmt.Fprintf(w, "measured frame rate= %d us/frame\n", f.calibration.UsPerFrame)
	} else {
		fmt.Fprintf(w, "VSYNC not detected (%s), paced at %d us/frame\n", f.calibration.Reason, f.fallbackUS)
	}
	if f.lostFrames > 0 {
		fmt.Fprintf(w, "Lost frame happened: %d times\n", f.lostFrames)
	}
	for _, s := range f.Stats() {
		fmt.Fprintf(w, "cnt=%6d min=%6dus avg=%6dus max=%6dus %s\n",
			s.Count, s.Min.Microseconds(), s.Avg().Microseconds(), s.Max.Microseconds(), s.Name)
	}
}
