package midi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"go.bug.st/serial"
)

// Errors returned when opening or using an output
var (
	ErrPortNotFound = errors.New("midi output port not found")
	ErrSinkClosed   = errors.New("midi sink closed")
)

// DefaultSerialBaud is the DIN MIDI line rate.
const DefaultSerialBaud = 31250

// Sink accepts one encoded message per call. A failed Send means the
// output has gone away.
type Sink interface {
	Send(data []byte) error
	Close() error
}

// PortSink sends through a gomidi driver output port
type PortSink struct {
	port drivers.Out
	send func(msg gomidi.Message) error

	mu     sync.Mutex
	closed bool
}

// OpenPort opens a driver output port for sending
func OpenPort(port drivers.Out) (*PortSink, error) {
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", port.String(), err)
	}
	return &PortSink{port: port, send: send}, nil
}

func (p *PortSink) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrSinkClosed
	}
	return p.send(gomidi.Message(data))
}

func (p *PortSink) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.port.Close()
}

// String returns the port name
func (p *PortSink) String() string {
	return p.port.String()
}

// SerialSink writes raw MIDI bytes to a serial line (DIN MIDI adapters,
// microcontroller bridges).
type SerialSink struct {
	name string
	port serial.Port

	mu     sync.Mutex
	closed bool
}

// OpenSerial opens a serial device at the given baud rate
func OpenSerial(device string, baud int) (*SerialSink, error) {
	if baud <= 0 {
		baud = DefaultSerialBaud
	}
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	return &SerialSink{name: device, port: port}, nil
}

func (s *SerialSink) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	for len(data) > 0 {
		n, err := s.port.Write(data)
		if err != nil {
			return fmt.Errorf("serial write %s: %w", s.name, err)
		}
		data = data[n:]
	}
	return nil
}

func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

func (s *SerialSink) String() string {
	return "serial:" + s.name
}

// Open resolves an output target:
//
//	"serial:/dev/ttyUSB0"        serial line at 31250 baud
//	"serial:/dev/ttyUSB0@115200" serial line at the given baud
//	"2"                          driver output port by number
//	"Synth"                      first driver output port whose name contains the text
//	""                           first driver output port
func Open(target string) (Sink, error) {
	if dev, ok := strings.CutPrefix(target, "serial:"); ok {
		baud := DefaultSerialBaud
		if at := strings.LastIndex(dev, "@"); at >= 0 {
			b, err := strconv.Atoi(dev[at+1:])
			if err != nil {
				return nil, fmt.Errorf("bad baud rate in %q: %w", target, err)
			}
			dev, baud = dev[:at], b
		}
		return OpenSerial(dev, baud)
	}

	port, err := FindOutPort(target)
	if err != nil {
		return nil, err
	}
	return OpenPort(port)
}

// FindOutPort looks up a driver output port by number or name fragment
func FindOutPort(target string) (drivers.Out, error) {
	ports := gomidi.GetOutPorts()
	if len(ports) == 0 {
		return nil, ErrPortNotFound
	}
	if target == "" {
		return ports[0], nil
	}
	if n, err := strconv.Atoi(target); err == nil {
		for _, p := range ports {
			if p.Number() == n {
				return p, nil
			}
		}
		return nil, fmt.Errorf("%w: number %d", ErrPortNotFound, n)
	}
	want := strings.ToLower(target)
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.String()), want) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrPortNotFound, target)
}
