package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultPath is used when Enable is given an empty path
const DefaultPath = "~/.config/go-pianofall/debug.log"

var (
	mu      sync.Mutex
	file    *os.File
	logger  = zap.NewNop().Sugar()
	enabled bool
)

// Enable starts logging to path at the given level ("debug", "info",
// "warn", "error"; empty means debug). The file is truncated.
func Enable(path, level string) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}
	if path == "" {
		path = DefaultPath
	}
	logPath, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	lvl := zapcore.DebugLevel
	if level != "" {
		if lvl, err = zapcore.ParseLevel(level); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
	}

	os.MkdirAll(filepath.Dir(logPath), 0755)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(f), lvl)

	file = f
	logger = zap.New(core).Sugar()
	enabled = true

	logger.Infow("=== Debug logging started ===", "category", "debug")
	return nil
}

// Disable stops logging and closes the file
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	logger.Sync()
	logger = zap.NewNop().Sugar()
	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
}

// Enabled reports whether a log file is open
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

func current() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Log writes a debug message under a category
func Log(category, format string, args ...any) {
	current().Debugw(fmt.Sprintf(format, args...), "category", category)
}

// Warn records a recovered anomaly (frame overrun, rejected calibration)
func Warn(category, format string, args ...any) {
	current().Warnw(fmt.Sprintf(format, args...), "category", category)
}

// Error records a failure that ended some part of the program
func Error(category string, err error, format string, args ...any) {
	current().Errorw(fmt.Sprintf(format, args...), "category", category, "error", err)
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
