// Package worker implements the Sequence Worker: it iterates a parsed
// sequence over one Agent, classifies each step's outcome, performs
// bounded recovery on unknown errors, and reports status to the Master
// over internal/ipc.
package worker

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mingsxs/UCS-AutoRobot/internal/agent"
	"github.com/mingsxs/UCS-AutoRobot/internal/csvreport"
	"github.com/mingsxs/UCS-AutoRobot/internal/history"
	"github.com/mingsxs/UCS-AutoRobot/internal/ipc"
	"github.com/mingsxs/UCS-AutoRobot/internal/sequence"
)

// loopResult is the internal-only (never sent over IPC) classification of
// one iteration's outcome, distinct from the five IPC wire codes.
type loopResult int

const (
	resultPass loopResult = iota
	resultFail
	resultUnknown
)

// Config bundles the tunables a Worker needs, sourced from internal/core's
// viper-backed Config so they can be overridden without a rebuild.
type Config struct {
	StopOnFailure    bool
	RecoverRetry     int
	SocketPath       string
	LogPath          string
	ErrorDumpPath    string
	CSVDumpDir       string
	HistoryDB        *history.DB
	Logger           *slog.Logger
	TranscriptWriter func(p []byte)
}

// Worker owns one Agent and walks one parsed sequence.
type Worker struct {
	Name           string
	Seq            *sequence.Sequence
	TotalLoops     int
	completedLoops int

	agent *agent.Agent
	cfg   Config

	spawnedChildren  []*os.Process
	lastRecoveryLoop int
	recoveryBudget   int

	pendingErr    *agent.AgentError
	loopRecords   []csvRecord
	runID         int64
	lastFoundFile string
	startedAt     time.Time
}

type csvRecord struct {
	Loop     int
	Result   string
	Duration time.Duration
	Summary  string
}

// New constructs a Worker for seq, named name (used in IPC messages and
// history rows).
func New(name string, seq *sequence.Sequence, totalLoops int, cfg Config) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := agent.New(cfg.Logger)
	a.TranscriptWriter = cfg.TranscriptWriter
	return &Worker{
		Name:           name,
		Seq:            seq,
		TotalLoops:     totalLoops,
		agent:          a,
		cfg:            cfg,
		recoveryBudget: cfg.RecoverRetry,
	}
}

// RunAll iterates the sequence from loop 1 to TotalLoops, reporting status
// to the Master over IPC after every iteration and on SEQUENCE_START /
// SEQUENCE_COMPLETE.
func (w *Worker) RunAll() error {
	w.startedAt = time.Now()
	w.sendIPC(ipc.Message{Code: ipc.SequenceStart, Name: w.Name, Loops: w.TotalLoops})

	if w.cfg.HistoryDB != nil {
		runID, err := w.cfg.HistoryDB.StartWorkerRun(w.Name, w.Seq.Path, w.TotalLoops)
		if err == nil {
			w.runID = runID
		}
	}

	passCount, failCount := 0, 0

	for w.completedLoops < w.TotalLoops {
		loopNum := w.completedLoops + 1
		start := time.Now()

		result, messages := w.runOneIteration(loopNum)

		switch result {
		case resultUnknown:
			w.sendIPC(ipc.Message{Code: ipc.LoopUnknown, Name: w.Name, Loop: loopNum, MsgQ: messages})
			if w.cfg.HistoryDB != nil && w.runID != 0 {
				w.cfg.HistoryDB.LogLoopResult(w.runID, loopNum, "UNKNOWN", joinMessages(messages))
			}
			w.killSpawnedChildren()
			w.agent.ClosePTY()

			if loopNum == w.lastRecoveryLoop {
				w.recoveryBudget--
			} else {
				w.lastRecoveryLoop = loopNum
				w.recoveryBudget = w.cfg.RecoverRetry
			}
			if w.recoveryBudget <= 0 {
				w.recordLoop(loopNum, "FAIL", time.Since(start), "recovery budget exhausted")
				w.sendIPC(ipc.Message{Code: ipc.LoopFail, Name: w.Name, Loop: loopNum, MsgQ: messages})
				failCount++
				if w.cfg.HistoryDB != nil && w.runID != 0 {
					w.cfg.HistoryDB.LogLoopResult(w.runID, loopNum, "FAIL", "recovery budget exhausted")
				}
				w.Stop()
				return &agent.AgentError{Kind: agent.KindRecovery, Message: "recovery budget exhausted"}
			}
			// Restart this iteration from step 0 against a fresh PTY.
			continue

		case resultFail:
			w.recordLoop(loopNum, "FAIL", time.Since(start), joinMessages(messages))
			w.sendIPC(ipc.Message{Code: ipc.LoopFail, Name: w.Name, Loop: loopNum, MsgQ: messages})
			failCount++

			if w.cfg.StopOnFailure {
				if w.cfg.HistoryDB != nil && w.runID != 0 {
					w.cfg.HistoryDB.LogLoopResult(w.runID, loopNum, "FAIL", joinMessages(messages))
					w.cfg.HistoryDB.FinishWorkerRun(w.runID, passCount, failCount, "stopped")
				}
				w.Stop()
				return &agent.AgentError{Kind: agent.KindExpect, Message: joinMessages(messages)}
			}

		case resultPass:
			w.recordLoop(loopNum, "PASS", time.Since(start), "")
			w.sendIPC(ipc.Message{Code: ipc.LoopPass, Name: w.Name, Loop: loopNum})
			passCount++
		}

		if w.cfg.HistoryDB != nil && w.runID != 0 {
			status := "PASS"
			if result == resultFail {
				status = "FAIL"
			}
			w.cfg.HistoryDB.LogLoopResult(w.runID, loopNum, status, joinMessages(messages))
		}

		w.completedLoops++
	}

	w.Stop()

	if w.cfg.HistoryDB != nil && w.runID != 0 {
		w.cfg.HistoryDB.FinishWorkerRun(w.runID, passCount, failCount, "complete")
	}

	return nil
}

// runOneIteration walks the sequence once, dispatching each command by
// kind, and returns the iteration's overall classification plus any
// accumulated failure messages.
func (w *Worker) runOneIteration(loopNum int) (loopResult, []string) {
	var messages []string
	current := 0

	for current < len(w.Seq.Commands) {
		cmd := w.Seq.Commands[current]

		if cmd.Kind == sequence.KindBuiltin {
			result, jump, err := w.dispatchBuiltin(cmd, current, loopNum)
			if err != nil {
				classification := w.classify(err, false)
				if classification == resultUnknown {
					return resultUnknown, append(messages, err.Error())
				}
				messages = append(messages, err.Error())
				if classification == resultFail && w.cfg.StopOnFailure {
					return resultFail, messages
				}
			}
			if jump >= 0 {
				current = jump
				continue
			}
			_ = result
			current++
			continue
		}

		_, err := w.agent.RunCommand(cmd)
		if err != nil {
			classification := w.classify(err, w.cfg.StopOnFailure)
			if aerr, ok := err.(*agent.AgentError); ok {
				w.pendingErr = aerr
			}
			switch classification {
			case resultUnknown:
				return resultUnknown, append(messages, err.Error())
			case resultFail:
				messages = append(messages, err.Error())
				if w.cfg.StopOnFailure {
					return resultFail, messages
				}
			}
		}

		current++
	}

	if len(messages) > 0 {
		return resultFail, messages
	}
	return resultPass, nil
}

// classify maps an Agent error to a loop classification per §4.3's table.
// This is the single place that performs this mapping, per the
// "Exception-driven control flow" design note.
func (w *Worker) classify(err error, stopOnFailure bool) loopResult {
	aerr, ok := err.(*agent.AgentError)
	if !ok {
		return resultUnknown
	}
	_ = stopOnFailure // caller decides whether a Fail classification halts the iteration
	switch aerr.Kind {
	case agent.KindExpect:
		return resultFail
	case agent.KindTimeout:
		return resultUnknown // fatal to worker; RunAll's caller treats budget exhaustion as terminal
	case agent.KindSendMiswrite, agent.KindInvalidCommand:
		return resultUnknown
	case agent.KindFileNotFound:
		return resultUnknown
	default:
		return resultUnknown
	}
}

// Stop tears down the Agent's PTY, reaps any still-running spawned
// children, flushes the accumulated CSV report, and sends
// SEQUENCE_COMPLETE. It is safe to call more than once.
func (w *Worker) Stop() {
	w.agent.ClosePTY()
	w.killSpawnedChildren()

	if w.cfg.CSVDumpDir != "" && len(w.loopRecords) > 0 {
		rows := make([]csvreport.Row, len(w.loopRecords))
		for i, r := range w.loopRecords {
			rows[i] = csvreport.Row{Loop: r.Loop, Result: r.Result, Duration: r.Duration, Summary: r.Summary}
		}
		if _, err := csvreport.Write(w.cfg.CSVDumpDir, w.Name, w.startedAt, rows); err != nil {
			w.cfg.Logger.Warn("csv report write failed", "worker", w.Name, "error", err)
		}
	}

	w.sendIPC(ipc.Message{Code: ipc.SequenceComplete, Name: w.Name})
}

func (w *Worker) killSpawnedChildren() {
	for _, p := range w.spawnedChildren {
		if p != nil {
			p.Kill()
		}
	}
	time.Sleep(100 * time.Millisecond)
	w.spawnedChildren = nil
}

func (w *Worker) sendIPC(msg ipc.Message) {
	if w.cfg.SocketPath == "" {
		return
	}
	if err := ipc.Send(w.cfg.SocketPath, msg); err != nil {
		w.cfg.Logger.Warn("ipc send failed", "worker", w.Name, "error", err)
	}
}

func joinMessages(msgs []string) string {
	out := ""
	for i, m := range msgs {
		if i > 0 {
			out += "; "
		}
		out += m
	}
	return out
}

// NewRunID returns a fresh random UUID string. IPC messages and history
// rows do not carry it; history rows are keyed by the integer id that
// StartWorkerRun returns.
func NewRunID() string {
	return uuid.NewString()
}
