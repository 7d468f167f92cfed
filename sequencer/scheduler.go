package sequencer

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"go-pianofall/clock"
	"go-pianofall/debug"
	"go-pianofall/midi"
)

// DefaultLatencyCap bounds how long the dispatch loop sleeps before it
// looks at the command queue again.
const DefaultLatencyCap = 20 * time.Millisecond

const defaultQueueSize = 64

var ErrNoOutput = errors.New("scheduler: no output opener")

// State of the dispatch loop
type State int32

const (
	Stopped State = iota
	Playing
	StartPlaying
	EndOfStream
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case StartPlaying:
		return "start-playing"
	case EndOfStream:
		return "end-of-stream"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type cmdKind int

const (
	cmdPing cmdKind = iota
	cmdSeek
	cmdPlay
	cmdSetEvents
	cmdScale
	cmdStop
)

type command struct {
	kind   cmdKind
	pos    int64
	scale  uint16
	events []midi.TimedEvent
}

// Options configure a Scheduler
type Options struct {
	// Open is called once on the scheduler goroutine. A failure ends the
	// goroutine.
	Open func() (midi.Sink, error)

	LatencyCap time.Duration // 0 means DefaultLatencyCap
	QueueSize  int

	// ExitOnEnd ends the goroutine when playback reaches the last event
	ExitOnEnd bool

	// Now replaces the wall clock (tests)
	Now func() time.Time
}

// Scheduler plays a time ordered event list to a sink on its own
// goroutine. All methods only enqueue commands and are safe to call from
// the render loop.
type Scheduler struct {
	cmds     chan command
	done     chan struct{}
	listener clock.Listener
	state    atomic.Int32
	err      error

	closeMu sync.RWMutex
	closed  bool
}

// New starts the scheduler goroutine. The scheduler begins in
// EndOfStream with no events.
func New(opts Options) *Scheduler {
	if opts.LatencyCap <= 0 {
		opts.LatencyCap = DefaultLatencyCap
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	ctl := clock.New()
	if opts.Now != nil {
		ctl = clock.NewWithSource(opts.Now)
	}

	s := &Scheduler{
		cmds:     make(chan command, opts.QueueSize),
		done:     make(chan struct{}),
		listener: ctl.NewListener(),
	}
	s.state.Store(int32(EndOfStream))
	go s.run(ctl, opts)
	return s
}

// Listener returns a read-only handle to the playback clock
func (s *Scheduler) Listener() clock.Listener { return s.listener }

// State returns the current state of the dispatch loop
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Done is closed when the scheduler goroutine has exited
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the goroutine, if any. Only valid
// after Done is closed.
func (s *Scheduler) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Seek moves the playback position. While playing, playback continues
// from there; otherwise only the clock is moved.
func (s *Scheduler) Seek(pos int64) { s.send(command{kind: cmdSeek, pos: pos}) }

// Play starts playback at pos
func (s *Scheduler) Play(pos int64) { s.send(command{kind: cmdPlay, pos: pos}) }

// SetEvents replaces the event list. The scheduler takes ownership of
// the slice.
func (s *Scheduler) SetEvents(events []midi.TimedEvent) {
	s.send(command{kind: cmdSetEvents, events: events})
}

// SetScale changes the playback rate (1000 = real time)
func (s *Scheduler) SetScale(permille uint16) { s.send(command{kind: cmdScale, scale: permille}) }

// Stop halts playback and releases all sounding keys
func (s *Scheduler) Stop() { s.send(command{kind: cmdStop}) }

// IsFinished reports whether the goroutine has exited, probing it with a
// ping.
func (s *Scheduler) IsFinished() bool {
	return !s.send(command{kind: cmdPing})
}

// Close ends the scheduler. Sounding keys are released before the
// output is closed. Close does not wait; use Done.
func (s *Scheduler) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.cmds)
	}
}

func (s *Scheduler) send(c command) bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.cmds <- c:
		return true
	case <-s.done:
		return false
	}
}

func (s *Scheduler) run(ctl *clock.Controller, opts Options) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)

	if opts.Open == nil {
		s.err = ErrNoOutput
		debug.Error("sched", s.err, "no output")
		return
	}
	sink, err := opts.Open()
	if err != nil {
		s.err = fmt.Errorf("open output: %w", err)
		debug.Error("sched", err, "open output failed")
		return
	}
	debug.Log("sched", "output opened")

	r := &runner{
		cmds:      s.cmds,
		clock:     ctl,
		sink:      sink,
		keys:      midi.NewKeySet(),
		cap:       opts.LatencyCap,
		exitOnEnd: opts.ExitOnEnd,
		state:     &s.state,
	}
	err = r.loop()
	if err != nil {
		debug.Error("sched", err, "dispatch stopped")
	}
	s.err = multierr.Append(err, sink.Close())
	debug.Log("sched", "output closed")
}

// runner is the state owned by the scheduler goroutine
type runner struct {
	cmds      <-chan command
	clock     *clock.Controller
	sink      midi.Sink
	keys      *midi.KeySet
	cap       time.Duration
	exitOnEnd bool

	events []midi.TimedEvent
	idx    int
	start  int64 // target of StartPlaying
	state  *atomic.Int32
}

var errClosed = errors.New("command queue closed")

func (r *runner) get() State   { return State(r.state.Load()) }
func (r *runner) set(st State) { r.state.Store(int32(st)) }

// active reports Playing or a pending StartPlaying
func (r *runner) active() bool {
	st := r.get()
	return st == Playing || st == StartPlaying
}

func (r *runner) loop() error {
	err := r.step()
	for err == nil {
		err = r.step()
	}
	if errors.Is(err, errClosed) {
		r.clock.Stop()
		return r.release()
	}
	if errors.Is(err, errEnd) {
		return nil
	}
	return err
}

var errEnd = errors.New("end of stream")

func (r *runner) step() error {
	if st := r.get(); st == Stopped || st == EndOfStream {
		c, ok := <-r.cmds
		if !ok {
			return errClosed
		}
		if err := r.apply(c); err != nil {
			return err
		}
	}

	// last command wins: apply everything queued before dispatching
drain:
	for {
		select {
		case c, ok := <-r.cmds:
			if !ok {
				return errClosed
			}
			if err := r.apply(c); err != nil {
				return err
			}
		default:
			break drain
		}
	}

	if r.get() == StartPlaying {
		if err := r.begin(); err != nil {
			return err
		}
	}
	if r.get() != Playing {
		return nil
	}

	wait, err := r.dispatch()
	if err != nil || wait <= 0 {
		return err
	}
	return r.sleep(wait)
}

func (r *runner) apply(c command) error {
	switch c.kind {
	case cmdPing:
	case cmdSeek:
		if r.active() {
			r.start = c.pos
			r.set(StartPlaying)
		} else {
			r.clock.SetPosition(c.pos)
		}
	case cmdPlay:
		r.start = c.pos
		r.set(StartPlaying)
	case cmdSetEvents:
		r.events = c.events
		r.idx = 0
		switch r.get() {
		case Playing:
			r.start = r.clock.Position()
			r.set(StartPlaying)
		case StartPlaying:
		default:
			r.set(Stopped)
		}
		debug.Log("sched", "events set: %d", len(c.events))
	case cmdScale:
		if c.scale == 0 {
			debug.Warn("sched", "ignoring zero scale")
			return nil
		}
		r.clock.SetScale(c.scale)
	case cmdStop:
		r.clock.Stop()
		if r.active() {
			r.set(Stopped)
		}
		return r.release()
	}
	return nil
}

// begin positions the cursor at the first event at or after the start
// position. Earlier events are skipped, never sent.
func (r *runner) begin() error {
	if err := r.release(); err != nil {
		return err
	}
	pos := r.start
	r.clock.SetPosition(pos)
	r.idx = sort.Search(len(r.events), func(i int) bool {
		return int64(r.events[i].TimeUS) >= pos
	})
	if r.idx >= len(r.events) {
		r.clock.Stop()
		r.set(EndOfStream)
		debug.Log("sched", "start at %d: past end", pos)
		if r.exitOnEnd {
			return errEnd
		}
		return nil
	}
	r.clock.Start()
	r.set(Playing)
	debug.Log("sched", "start at %d: idx=%d", pos, r.idx)
	return nil
}

// dispatch sends everything due and returns how long to wait for the
// next event.
func (r *runner) dispatch() (time.Duration, error) {
	pos := r.clock.Position()
	for r.idx < len(r.events) && int64(r.events[r.idx].TimeUS) <= pos {
		ev := r.events[r.idx]
		if err := r.send(ev); err != nil {
			return 0, err
		}
		r.idx++
	}

	if r.idx >= len(r.events) {
		r.clock.Stop()
		r.set(EndOfStream)
		debug.Log("sched", "end of stream at %d", pos)
		if r.exitOnEnd {
			return 0, errEnd
		}
		return 0, nil
	}

	wait, ok := r.clock.Until(int64(r.events[r.idx].TimeUS))
	if !ok {
		return 0, nil
	}
	return min(wait, r.cap), nil
}

// sleep waits for the timer or the next command, whichever comes first
func (r *runner) sleep(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case c, ok := <-r.cmds:
		if !ok {
			return errClosed
		}
		return r.apply(c)
	case <-timer.C:
		return nil
	}
}

func (r *runner) send(ev midi.TimedEvent) error {
	data := ev.Event.Encode()
	if data == nil {
		return nil
	}
	if err := r.sink.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", ev.Event, err)
	}
	r.keys.Apply(ev)
	debug.LogEvery(100, "dispatch", "t=%d track=%d %s", ev.TimeUS, ev.Track, ev.Event)
	return nil
}

// release sends a note-off for every sounding key
func (r *runner) release() error {
	var err error
	for _, off := range r.keys.Release() {
		err = multierr.Append(err, r.sink.Send(off.Event.Encode()))
	}
	return err
}
