package master

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// FailureLog aggregates every LOOP_FAIL message's failure text across all
// tracked workers into one append-only file, flushed on Scheduler.Run's
// termination.
type FailureLog struct {
	path string
	buf  *bufio.Writer
	f    *os.File
}

// OpenFailureLog opens (creating if needed) the aggregated failure log at
// path in append mode.
func OpenFailureLog(path string) (*FailureLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open failure log: %w", err)
	}
	return &FailureLog{path: path, f: f, buf: bufio.NewWriter(f)}, nil
}

// Record appends one worker's failed-loop messages, one line per message.
func (fl *FailureLog) Record(workerName string, loop int, messages []string) {
	stamp := time.Now().Format(time.RFC3339)
	for _, msg := range messages {
		fmt.Fprintf(fl.buf, "%s %s loop=%d %s\n", stamp, workerName, loop, strings.TrimSpace(msg))
	}
}

// Flush writes any buffered lines to disk and closes the file.
func (fl *FailureLog) Flush() error {
	if err := fl.buf.Flush(); err != nil {
		return err
	}
	return fl.f.Close()
}
