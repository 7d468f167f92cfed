package midi

import (
	"context"
	"errors"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"go.bug.st/serial"
)

// ErrScanTimeout is returned when the driver does not answer a port scan.
var ErrScanTimeout = errors.New("midi port scan timed out")

// PortInfo describes one output port
type PortInfo struct {
	Number int
	Name   string
}

// ListOutPorts returns the driver output ports. The scan runs in its own
// goroutine because CoreMIDI can hang; a hung scan returns ErrScanTimeout.
func ListOutPorts(timeout time.Duration) ([]PortInfo, error) {
	ch := make(chan []PortInfo, 1)
	go func() {
		var infos []PortInfo
		for _, p := range gomidi.GetOutPorts() {
			infos = append(infos, PortInfo{Number: p.Number(), Name: p.String()})
		}
		ch <- infos
	}()

	select {
	case infos := <-ch:
		return infos, nil
	case <-time.After(timeout):
		return nil, ErrScanTimeout
	}
}

// ListSerialPorts returns serial devices usable with the "serial:" target
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// PortEvent is emitted when an output port appears or disappears
type PortEvent struct {
	Type PortEventType
	Name string
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

// PortWatcher polls the driver for output port changes
type PortWatcher struct {
	known    map[string]bool
	mu       sync.RWMutex
	events   chan PortEvent
	pollRate time.Duration
	timeout  time.Duration
}

// NewPortWatcher creates a watcher polling at the given rate
func NewPortWatcher(pollRate time.Duration) *PortWatcher {
	if pollRate <= 0 {
		pollRate = time.Second
	}
	return &PortWatcher{
		known:    make(map[string]bool),
		events:   make(chan PortEvent, 16),
		pollRate: pollRate,
		timeout:  3 * time.Second,
	}
}

// Events returns a channel of connect/disconnect events. It is closed
// when Run returns.
func (w *PortWatcher) Events() <-chan PortEvent {
	return w.events
}

// Ports returns a snapshot of the currently known port names
func (w *PortWatcher) Ports() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.known))
	for n := range w.known {
		names = append(names, n)
	}
	return names
}

// Run polls until ctx is cancelled (blocking - run in goroutine)
func (w *PortWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()
	defer close(w.events)

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *PortWatcher) scan(ctx context.Context) {
	infos, err := ListOutPorts(w.timeout)
	if err != nil {
		// driver hung - skip this scan
		return
	}
	seen := make(map[string]bool, len(infos))
	for _, p := range infos {
		seen[p.Name] = true
	}

	var changes []PortEvent
	w.mu.Lock()
	for name := range seen {
		if !w.known[name] {
			w.known[name] = true
			changes = append(changes, PortEvent{Type: PortConnected, Name: name})
		}
	}
	for name := range w.known {
		if !seen[name] {
			delete(w.known, name)
			changes = append(changes, PortEvent{Type: PortDisconnected, Name: name})
		}
	}
	w.mu.Unlock()

	for _, ev := range changes {
		select {
		case w.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
