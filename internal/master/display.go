package master

import (
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/term"
)

// ANSI color codes, matching the teacher's cmd/stats.go palette.
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// cursorUp and eraseLine are the raw ANSI cursor-movement escapes used to
// erase one display frame before rendering the next, grounded on
// original_source/src/cursor.py's escape-code table.
const (
	cursorUp  = "\033[1A"
	eraseLine = "\033[2K"
)

// display renders one progress frame per refresh tick and erases it before
// the next, only when stdout is a terminal.
type display struct {
	isTerminal  bool
	lastLines   int
}

func newDisplay() *display {
	return &display{isTerminal: term.IsTerminal(int(os.Stdout.Fd()))}
}

// render prints one frame describing every tracked worker. On a terminal,
// it first erases the previous frame via cursorUp+eraseLine, matching
// cursor.py's move-up-and-clear idiom; when stdout isn't a terminal (e.g.
// redirected to a file or piped through `tee`) it just appends lines, since
// cursor escapes would otherwise corrupt the log.
func (d *display) render(recs []WorkerRecord) {
	var b strings.Builder

	if d.isTerminal && d.lastLines > 0 {
		for i := 0; i < d.lastLines; i++ {
			b.WriteString(cursorUp)
			b.WriteString(eraseLine)
		}
	}

	lines := 0
	for _, rec := range recs {
		b.WriteString(formatWorkerLine(rec))
		b.WriteString("\n")
		lines++
	}

	fmt.Print(b.String())
	if d.isTerminal {
		d.lastLines = lines
	}
}

func formatWorkerLine(rec WorkerRecord) string {
	statusColor := colorYellow
	if rec.Status == StatusCompleted {
		statusColor = colorGreen
	}

	rss := ""
	if rec.Process != nil {
		if info, err := process.NewProcess(int32(rec.Process.Pid)); err == nil {
			if mem, err := info.MemoryInfo(); err == nil && mem != nil {
				rss = fmt.Sprintf(" %srss=%dMB%s", colorDim, mem.RSS/(1024*1024), colorReset)
			}
		}
	}

	return fmt.Sprintf("  %s%-20s%s [%s%s%s] %s%d/%d%s pass=%s%d%s fail=%s%d%s unknown=%d%s",
		colorBold, rec.Name, colorReset,
		statusColor, rec.Status, colorReset,
		colorCyan, rec.SuccessLoops+rec.FailureLoops, rec.TotalLoops, colorReset,
		colorGreen, rec.SuccessLoops, colorReset,
		colorRed, rec.FailureLoops, colorReset,
		rec.UnknownLoops,
		rss)
}
