// Package master implements the Master Scheduler: it spawns one child
// Worker process per entry sequence, collects their status over
// internal/ipc, enforces a concurrency cap, and drives a live progress
// display until every tracked worker reaches Completed.
package master

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/mingsxs/UCS-AutoRobot/internal/ipc"
)

// Status is a tracked worker's lifecycle state.
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
)

func (s Status) String() string {
	if s == StatusCompleted {
		return "Completed"
	}
	return "Running"
}

// WorkerRecord is the Master's view of one tracked worker, updated as IPC
// messages arrive.
type WorkerRecord struct {
	Name           string
	Status         Status
	TotalLoops     int
	SuccessLoops   int
	FailureLoops   int
	UnknownLoops   int
	LastMessages   []string
	Process        *os.Process
	StartedAt      time.Time
}

// Config bundles the Scheduler's tunables, sourced from internal/core.
type Config struct {
	SocketPath        string
	MaxSequences      int
	RefreshInterval   time.Duration
	FailureLogPath    string
	Logger            *slog.Logger
	BinaryPath        string // os.Args[0], for the re-exec of the entry worker
}

// Scheduler owns the listening socket and the set of tracked workers.
type Scheduler struct {
	cfg     Config
	server  *ipc.Server
	workers map[string]*WorkerRecord
	order   []string
	failLog *FailureLog
}

// New binds the Scheduler's IPC socket at cfg.SocketPath (removing any
// stale file first — the unique-suffix-per-sequence naming happens at the
// call site, per §4.5).
func New(cfg Config) (*Scheduler, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}
	if cfg.MaxSequences <= 0 {
		cfg.MaxSequences = 5
	}

	srv, err := ipc.Listen(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("bind master socket: %w", err)
	}

	var fl *FailureLog
	if cfg.FailureLogPath != "" {
		fl, err = OpenFailureLog(cfg.FailureLogPath)
		if err != nil {
			srv.Close()
			return nil, err
		}
	}

	return &Scheduler{
		cfg:     cfg,
		server:  srv,
		workers: make(map[string]*WorkerRecord),
		failLog: fl,
	}, nil
}

// SpawnEntryWorker starts the entry sequence's Worker as a child process of
// this Master, via self re-exec (`<binary> runworker --sequence ... `),
// matching the teacher's process-per-subsystem idiom.
func (m *Scheduler) SpawnEntryWorker(name, sequenceFile string, loops int) error {
	args := []string{
		"runworker",
		"--sequence", sequenceFile,
		"--loops", fmt.Sprintf("%d", loops),
		"--name", name,
		"--socket", m.cfg.SocketPath,
	}
	cmd := exec.Command(m.cfg.BinaryPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn entry worker: %w", err)
	}

	m.track(&WorkerRecord{
		Name:       name,
		Status:     StatusRunning,
		TotalLoops: loops,
		Process:    cmd.Process,
		StartedAt:  time.Now(),
	})
	return nil
}

func (m *Scheduler) track(rec *WorkerRecord) {
	m.workers[rec.Name] = rec
	m.order = append(m.order, rec.Name)
}

// Run drives the refresh-tick loop: on each tick it drains any pending IPC
// messages non-blockingly, updates worker records, renders one display
// frame (erasing the previous one), and repeats until every tracked worker
// has reached Completed. It returns a summary once done.
func (m *Scheduler) Run() (Summary, error) {
	disp := newDisplay()

	for {
		m.drainMessages()

		disp.render(m.records())

		if m.allDone() {
			break
		}
		time.Sleep(m.cfg.RefreshInterval)
	}

	// Final drain in case SEQUENCE_COMPLETE arrived between the last
	// render and the allDone check.
	m.drainMessages()
	disp.render(m.records())

	summary := m.summarize()

	if m.failLog != nil {
		m.failLog.Flush()
	}
	m.server.Close()

	return summary, nil
}

// drainMessages accepts every pending connection on the socket without
// blocking past one refresh tick's worth of budget.
func (m *Scheduler) drainMessages() {
	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		msg, err := m.server.Accept(10 * time.Millisecond)
		if err != nil {
			m.cfg.Logger.Warn("ipc accept error", "error", err)
			return
		}
		if msg == nil {
			return
		}
		m.apply(*msg)
	}
}

func (m *Scheduler) apply(msg ipc.Message) {
	rec, ok := m.workers[msg.Name]
	if !ok {
		if msg.Code == ipc.SequenceStart && len(m.runningCount()) >= m.cfg.MaxSequences {
			m.cfg.Logger.Error("rejecting sequence over concurrency cap", "name", msg.Name, "cap", m.cfg.MaxSequences)
			return
		}
		rec = &WorkerRecord{Name: msg.Name, Status: StatusRunning, StartedAt: time.Now()}
		m.track(rec)
	}

	switch msg.Code {
	case ipc.SequenceStart:
		rec.TotalLoops = msg.Loops
		rec.Status = StatusRunning
	case ipc.SequenceComplete:
		rec.Status = StatusCompleted
	case ipc.LoopPass:
		rec.SuccessLoops++
	case ipc.LoopFail:
		rec.FailureLoops++
		rec.LastMessages = msg.MsgQ
		if m.failLog != nil {
			m.failLog.Record(rec.Name, msg.Loop, msg.MsgQ)
		}
	case ipc.LoopUnknown:
		rec.UnknownLoops++
		rec.LastMessages = msg.MsgQ
	}
}

func (m *Scheduler) runningCount() []string {
	var names []string
	for _, name := range m.order {
		if m.workers[name].Status == StatusRunning {
			names = append(names, name)
		}
	}
	return names
}

func (m *Scheduler) allDone() bool {
	for _, name := range m.order {
		if m.workers[name].Status != StatusCompleted {
			return false
		}
	}
	return len(m.order) > 0
}

func (m *Scheduler) records() []WorkerRecord {
	recs := make([]WorkerRecord, 0, len(m.order))
	for _, name := range m.order {
		recs = append(recs, *m.workers[name])
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
	return recs
}

// Summary is the aggregate printed once the Master terminates.
type Summary struct {
	TotalWorkers int
	TotalPass    int
	TotalFail    int
	TotalUnknown int
}

func (m *Scheduler) summarize() Summary {
	var s Summary
	s.TotalWorkers = len(m.order)
	for _, name := range m.order {
		rec := m.workers[name]
		s.TotalPass += rec.SuccessLoops
		s.TotalFail += rec.FailureLoops
		s.TotalUnknown += rec.UnknownLoops
	}
	return s
}

// SocketPathFor derives a unique socket name from the entry sequence file's
// base name, appending a timestamp suffix if that name is already taken —
// per §4.5's "unique suffix derived from the entry sequence file; if the
// name exists, append a timestamp" rule.
func SocketPathFor(configDir, sequenceFile string) string {
	base := filepath.Base(sequenceFile)
	ext := filepath.Ext(base)
	base = base[:len(base)-len(ext)]

	candidate := filepath.Join(configDir, base+".sock")
	if _, err := os.Stat(candidate); err != nil {
		return candidate
	}
	return filepath.Join(configDir, fmt.Sprintf("%s_%d.sock", base, time.Now().UnixNano()))
}
