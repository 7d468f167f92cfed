package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-pianofall/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "note":
		target := ""
		if len(os.Args) > 2 {
			target = os.Args[2]
		}
		testNotes(target)
	case "poll":
		pollDevices()
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list           - List MIDI output ports and serial devices")
	fmt.Println("  note [TARGET]  - Play a C major arpeggio on an output")
	fmt.Println("  poll           - Poll for output port changes")
}

func listPorts() {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ports, err := midi.ListOutPorts(3 * time.Second)
	if err != nil {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return
	}
	for _, p := range ports {
		fmt.Printf("  %d: %s\n", p.Number, p.Name)
	}

	fmt.Println("\n=== Serial Devices ===")
	serials, err := midi.ListSerialPorts()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for _, name := range serials {
		fmt.Printf("  serial:%s\n", name)
	}
}

func testNotes(target string) {
	sink, err := midi.Open(target)
	if err != nil {
		fmt.Printf("Error opening output: %v\n", err)
		return
	}
	defer sink.Close()

	if s, ok := sink.(fmt.Stringer); ok {
		fmt.Printf("Using output: %s\n", s.String())
	}

	for _, note := range []uint8{60, 64, 67, 72} {
		on := midi.Event{Type: midi.NoteOn, Note: note, Velocity: 100}
		fmt.Println("Sending:", on)
		if err := sink.Send(on.Encode()); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		time.Sleep(250 * time.Millisecond)

		off := midi.Event{Type: midi.NoteOff, Note: note}
		if err := sink.Send(off.Encode()); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
	}
	fmt.Println("Done!")
}

func pollDevices() {
	fmt.Println("Polling for output port changes every 2 seconds...")
	fmt.Println("Connect/disconnect a device to test. Ctrl+C to exit.")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	w := midi.NewPortWatcher(2 * time.Second)
	go w.Run(ctx)

	for ev := range w.Events() {
		stamp := time.Now().Format("15:04:05")
		switch ev.Type {
		case midi.PortConnected:
			fmt.Printf("[%s] connected:    %s\n", stamp, ev.Name)
		case midi.PortDisconnected:
			fmt.Printf("[%s] disconnected: %s\n", stamp, ev.Name)
		}
	}
	fmt.Printf("\nKnown ports at exit: %v\n", w.Ports())
}
