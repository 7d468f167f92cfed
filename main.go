package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-pianofall/config"
	"go-pianofall/debug"
)

// flags holds command line overrides. Zero values leave the config file
// setting alone.
var flags struct {
	configPath string
	output     string
	transpose  int
	playTracks []int
	showTracks []int
	rd64       bool
	scale      int
	leadInMs   int
	fps        int
	logFile    string
	logLevel   string
	palette    string
}

var rootCmd = &cobra.Command{
	Use:   "pianofall [FILE]",
	Short: "Falling-notes MIDI player",
	Long: `pianofall plays a standard MIDI file to a MIDI output port or serial line
while drawing the notes as a waterfall above a keyboard in the terminal.

Keys: space pause, +/- speed, up/down seek, left/right transpose, esc quit.`,
	Version:      "0.1.0",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runShow(args[0])
	},
}

var showCmd = &cobra.Command{
	Use:   "show FILE",
	Short: "Play a file with the waterfall display",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShow(args[0])
	},
}

var playCmd = &cobra.Command{
	Use:   "play FILE",
	Short: "Play a file without display and exit at the end",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlay(args[0])
	},
}

var listCmd = &cobra.Command{
	Use:   "list FILE",
	Short: "List the tracks of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.OutOrStdout(), args[0])
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports and serial devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPorts(cmd.OutOrStdout())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.config/go-pianofall/config.yaml)")
	pf.StringVarP(&flags.output, "output", "o", "", "output port name, number, or serial:<device>[@baud]")
	pf.IntVarP(&flags.transpose, "transpose", "t", 0, "transpose played notes by semitones")
	pf.IntSliceVarP(&flags.playTracks, "play-tracks", "p", nil, "tracks to send to the output (default all)")
	pf.IntSliceVarP(&flags.showTracks, "show-tracks", "s", nil, "tracks to draw (default all)")
	pf.BoolVar(&flags.rd64, "rd64", false, "limit the keyboard to the 64 keys of an RD-64")
	pf.IntVar(&flags.scale, "scale", 0, "playback rate in permille (1000 is real time)")
	pf.IntVar(&flags.leadInMs, "lead-in", -1, "milliseconds before the first note")
	pf.IntVar(&flags.fps, "fps", 0, "frame rate when the display has no vsync")
	pf.StringVarP(&flags.logFile, "log", "l", "", "write a debug log to this file")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug log level (debug, info, warn, error)")
	pf.StringVar(&flags.palette, "palette", "", "palette name or path to a .gpl file")

	rootCmd.AddCommand(showCmd, playCmd, listCmd, portsCmd)
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFrom(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Log.File != "" {
		if err := debug.Enable(cfg.Log.File, cfg.Log.Level); err != nil {
			return nil, fmt.Errorf("enable debug log: %w", err)
		}
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config) {
	if flags.output != "" {
		cfg.Output.Target = flags.output
	}
	if flags.scale > 0 {
		cfg.Playback.ScalePermille = flags.scale
	}
	if flags.leadInMs >= 0 {
		cfg.Playback.LeadInMs = flags.leadInMs
	}
	if flags.fps > 0 {
		cfg.Display.FallbackFPS = flags.fps
	}
	if flags.rd64 {
		cfg.Keyboard.LeftKey, cfg.Keyboard.RightKey = rd64Left, rd64Right
	}
	if flags.logFile != "" {
		cfg.Log.File = flags.logFile
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
}

// Key range of the Roland RD-64
const (
	rd64Left  = 33
	rd64Right = 96
)

func main() {
	err := rootCmd.Execute()
	debug.Disable()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
