package debug

import (
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	Enabled = false
	Path    = "debug.log"

	mu sync.Mutex
)

// Log writes to the debug log only if debug mode is enabled. The
// terminal belongs to the UI, so nothing is ever printed to stdout.
func Log(format string, args ...interface{}) {
	write("INFO", format, args...)
}

// Error logs a failed operation together with its cause.
func Error(op string, err error) {
	if err == nil {
		return
	}
	write("ERROR", "%s: %v", op, err)
}

func write(level, format string, args ...interface{}) {
	if !Enabled {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	f, err := os.OpenFile(Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s %-5s "+format+"\n", append([]interface{}{time.Now().Format(time.RFC3339), level}, args...)...)
}
