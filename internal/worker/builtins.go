package worker

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mingsxs/UCS-AutoRobot/internal/agent"
	"github.com/mingsxs/UCS-AutoRobot/internal/sequence"
)

// dispatchBuiltin executes one Builtin-kind Command. It returns the
// (mostly unused) classification hint, a jump target (or -1 to just
// advance to current+1), and an error if the builtin itself failed.
//
// Grounded on original_source/src/worker.py's per-opcode dispatch inside
// SequenceWorker.run_one_loop.
func (w *Worker) dispatchBuiltin(cmd sequence.Command, current, loopNum int) (loopResult, int, error) {
	switch cmd.Builtin {
	case sequence.BuiltinIntr:
		return resultPass, -1, w.agent.SendControl('c')

	case sequence.BuiltinQuit:
		return resultPass, -1, w.agent.Quit()

	case sequence.BuiltinClose:
		w.agent.ClosePTY()
		return resultPass, -1, nil

	case sequence.BuiltinPulse:
		// SEND-PULSE/END-PULSE bracket a background send; the Send itself
		// was already dispatched as a regular KindSend with BgRun set, so
		// this builtin is a no-op marker in the command stream.
		return resultPass, -1, nil

	case sequence.BuiltinWait:
		d, err := parseWaitDuration(cmd.WaitDuration)
		if err != nil {
			return resultFail, -1, err
		}
		time.Sleep(d)
		return resultPass, -1, nil

	case sequence.BuiltinSetPrompt:
		frame := w.agent.CurrentFrame()
		frame.Prompt = cmd.NewPrompt
		w.agent.SetCurrentFrame(frame)
		return resultPass, -1, nil

	case sequence.BuiltinEnter:
		return resultPass, -1, w.agent.SendEnter()

	case sequence.BuiltinFind:
		return w.runFind(cmd)

	case sequence.BuiltinMonitor:
		return w.runMonitor(cmd)

	case sequence.BuiltinNewWorker:
		return w.runNewWorker(cmd, loopNum)

	case sequence.BuiltinSubsequence, sequence.BuiltinEndSubsequence:
		// Markers only; control flow through a subsequence range is driven
		// by a preceding LOOP, never by falling into the marker itself.
		return resultPass, -1, nil

	case sequence.BuiltinLoop:
		return w.runLoop(cmd, current)

	default:
		return resultPass, -1, nil
	}
}

// parseWaitDuration parses a WAIT builtin's argument: a bare number of
// seconds (e.g. "5" or "2.5") or a unit-suffixed duration (e.g. "90s" or
// "1h30m").
func parseWaitDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	return 0, &agent.AgentError{Kind: agent.KindSequenceParse, Message: "bad WAIT duration: " + s}
}

// fsSlotRe matches a serial-port storage slot token like "FS0:" that must be
// sent bare, never prefixed with "cd ".
var fsSlotRe = regexp.MustCompile(`^FS\d+:$`)

// findItemTimeout bounds each cd/ls item FIND sends, independent of the
// session's normal command timeout, so a FIND with many SearchDirs entries
// doesn't stall waiting out a long default per directory.
const findItemTimeout = 2.0

// runFind drives the remote shell through each SearchDirs entry in order,
// looking for TargetFile: for each dir it sends "cd <dir>" (unless the dir
// is already a bare "FS<n>:" storage-slot token or already starts with
// "cd "), then sends "ls" and scans the remote output for TargetFile. The
// first dir whose listing contains TargetFile wins; lastFoundFile is
// recorded so later steps can reference it. FileNotFound (classified
// Unknown by Worker.classify, matching §7's taxonomy entry for FIND) is
// raised only once every SearchDirs entry has been tried.
//
// Grounded on original_source/src/worker.py's FIND handler (cd/ls pairs
// sent through self.run_item, `utils.in_search` substring check).
func (w *Worker) runFind(cmd sequence.Command) (loopResult, int, error) {
	var outputs []string

	for _, dir := range cmd.SearchDirs {
		cdTarget := dir
		if !fsSlotRe.MatchString(strings.TrimSpace(dir)) && !strings.HasPrefix(strings.TrimSpace(dir), "cd ") {
			cdTarget = "cd " + dir
		}
		if _, err := w.agent.RunCommand(sequence.Command{Kind: sequence.KindSend, Command: cdTarget, Timeout: findItemTimeout}); err != nil {
			return resultUnknown, -1, err
		}

		out, err := w.agent.RunCommand(sequence.Command{Kind: sequence.KindSend, Command: "ls", Timeout: findItemTimeout})
		if err != nil {
			return resultUnknown, -1, err
		}
		outputs = append(outputs, out)

		if containsPattern(out, cmd.TargetFile) {
			w.lastFoundFile = filepath.Join(dir, cmd.TargetFile)
			return resultPass, -1, nil
		}
	}

	return resultUnknown, -1, &agent.AgentError{
		Kind:    agent.KindFileNotFound,
		Message: fmt.Sprintf("%s not found under %v: %v", cmd.TargetFile, cmd.SearchDirs, outputs),
	}
}

// runMonitor runs InnerCommand repeatedly every Interval until one of the
// Watch patterns appears in its output, or, when the command's own Timeout
// is positive, that Timeout elapses (treated as Unknown, matching a stalled
// long-running watch). With no Timeout it repeats until a pattern appears.
func (w *Worker) runMonitor(cmd sequence.Command) (loopResult, int, error) {
	deadline := time.Now().Add(time.Duration(cmd.Timeout * float64(time.Second)))
	inner := sequence.Command{Kind: sequence.KindSend, Command: cmd.InnerCommand, Timeout: cmd.Interval}

	for cmd.Timeout <= 0 || time.Now().Before(deadline) {
		out, err := w.agent.RunCommand(inner)
		if err != nil {
			return resultUnknown, -1, err
		}
		for _, pattern := range cmd.Watch {
			if containsPattern(out, pattern) {
				return resultPass, -1, nil
			}
		}
		time.Sleep(time.Duration(cmd.Interval * float64(time.Second)))
	}
	return resultUnknown, -1, &agent.AgentError{Kind: agent.KindTimeout, Message: "MONITOR timed out waiting for watch pattern"}
}

func containsPattern(s, pattern string) bool {
	return pattern == "" || strings.Contains(s, pattern)
}

// runNewWorker spawns a child worker process via self re-exec
// (RUN-SEQUENCE / RUN-SEQUENCE-WAIT), matching the teacher's idiom of
// `exec.Command(os.Args[0], ...)` rather than forking into a library
// helper, with a detached process group so the child survives this
// worker's own exit.
func (w *Worker) runNewWorker(cmd sequence.Command, loopNum int) (loopResult, int, error) {
	childName := fmt.Sprintf("%s/%s", w.Name, filepath.Base(cmd.SequenceFile))

	args := []string{
		"runworker",
		"--sequence", cmd.SequenceFile,
		"--loops", fmt.Sprintf("%d", cmd.Loops),
		"--name", childName,
		"--socket", w.cfg.SocketPath,
	}
	child := exec.Command(os.Args[0], args...)
	child.Env = append(os.Environ(),
		"AUTOROBOT_PARENT_WORKER="+w.Name,
		"AUTOROBOT_PARENT_LOOP="+fmt.Sprintf("%d", loopNum),
	)
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return resultFail, -1, &agent.AgentError{Kind: agent.KindConnection, Message: "spawn child worker: " + err.Error()}
	}

	if cmd.WaitForChild {
		err := child.Wait()
		if err != nil {
			return resultFail, -1, &agent.AgentError{Kind: agent.KindConnection, Message: "child worker failed: " + err.Error()}
		}
		return resultPass, -1, nil
	}

	w.spawnedChildren = append(w.spawnedChildren, child.Process)
	return resultPass, -1, nil
}

// runLoop re-enters the Subsequences range named by cmd LoopCount times
// before falling through to the command after the matching
// END-SUBSEQUENCE, grounded on the original's nested-range interpreter
// loop rather than recursion, since ranges never nest in practice.
func (w *Worker) runLoop(cmd sequence.Command, current int) (loopResult, int, error) {
	rng, ok := w.Seq.Subsequences[cmd.SubsequenceName]
	if !ok {
		return resultFail, -1, &agent.AgentError{
			Kind:    agent.KindSequenceParse,
			Message: "LOOP references unknown subsequence " + cmd.SubsequenceName,
		}
	}

	for iter := 0; iter < cmd.LoopCount; iter++ {
		for i := rng.Start; i < rng.End; i++ {
			inner := w.Seq.Commands[i]
			if inner.Kind == sequence.KindBuiltin {
				if _, _, err := w.dispatchBuiltin(inner, i, 0); err != nil {
					if cls := w.classify(err, false); cls != resultPass {
						return cls, -1, err
					}
				}
				continue
			}
			if _, err := w.agent.RunCommand(inner); err != nil {
				if cls := w.classify(err, w.cfg.StopOnFailure); cls != resultPass {
					return cls, -1, err
				}
			}
		}
	}

	return resultPass, rng.End, nil
}
