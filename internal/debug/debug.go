// Package debug provides the opt-in debug logger. Disabled it costs a
// single atomic load per call site. Enabled (via --debug or SDD_DEBUG)
// it writes timestamped lines to stderr and to a size-rotated log file
// under the user cache directory.
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	enabled atomic.Bool
	mu      sync.Mutex
	logger  *log.Logger
)

func init() {
	if os.Getenv("SDD_DEBUG") != "" {
		Enable()
	}
}

// Enable turns on debug logging for the rest of the process.
func Enable() {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = log.New(debugWriter(), "sdd ", log.LstdFlags|log.Lmicroseconds)
	}
	enabled.Store(true)
}

// Enabled reports whether debug logging is active.
func Enabled() bool {
	return enabled.Load()
}

func debugWriter() io.Writer {
	dir, err := os.UserCacheDir()
	if err != nil {
		return os.Stderr
	}
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "sdd", "debug.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
	return io.MultiWriter(os.Stderr, rotated)
}

// Logf writes a formatted debug line when debug logging is enabled.
func Logf(format string, args ...any) {
	if !enabled.Load() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return
	}
	logger.Output(2, fmt.Sprintf(format, args...))
}
