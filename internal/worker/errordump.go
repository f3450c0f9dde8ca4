package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// dumpError writes an error's kind, prompt and output snapshot to a
// per-worker, per-loop file under cfg.ErrorDumpPath, matching the
// original's one file per failed iteration so an operator can replay the
// exact transcript behind a LOOP_FAIL (recordLoop calls it for FAIL rows
// only, which includes a loop whose recovery budget ran out).
func (w *Worker) dumpError(loopNum int, kind, prompt, output string) error {
	if w.cfg.ErrorDumpPath == "" {
		return nil
	}
	if err := os.MkdirAll(w.cfg.ErrorDumpPath, 0o755); err != nil {
		return fmt.Errorf("create error dump dir: %w", err)
	}

	name := fmt.Sprintf("%s_loop%d_%s.txt", w.Name, loopNum, kind)
	path := filepath.Join(w.cfg.ErrorDumpPath, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create error dump file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "worker: %s\nloop: %d\nkind: %s\nprompt: %q\n\n%s\n", w.Name, loopNum, kind, prompt, output)
	return nil
}

// recordLoop appends one row to the worker's in-memory CSV buffer; it is
// flushed to disk by Stop via internal/csvreport.
func (w *Worker) recordLoop(loopNum int, result string, duration time.Duration, summary string) {
	w.loopRecords = append(w.loopRecords, csvRecord{
		Loop:     loopNum,
		Result:   result,
		Duration: duration,
		Summary:  summary,
	})

	if result == "FAIL" && w.pendingErr != nil {
		w.dumpError(loopNum, w.pendingErr.Kind.String(), w.pendingErr.Prompt, w.pendingErr.Output)
		w.pendingErr = nil
	}
}
