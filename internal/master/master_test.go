package master

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mingsxs/UCS-AutoRobot/internal/ipc"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	dir := t.TempDir()
	sched, err := New(Config{SocketPath: filepath.Join(dir, "m.sock"), MaxSequences: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { sched.server.Close() })
	return sched
}

func TestApply_SequenceStartTracksWorker(t *testing.T) {
	m := newTestScheduler(t)
	m.apply(ipc.Message{Code: ipc.SequenceStart, Name: "w1", Loops: 5})

	rec, ok := m.workers["w1"]
	if !ok {
		t.Fatal("expected worker w1 to be tracked")
	}
	if rec.TotalLoops != 5 || rec.Status != StatusRunning {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestApply_LoopPassFailUnknownCounters(t *testing.T) {
	m := newTestScheduler(t)
	m.apply(ipc.Message{Code: ipc.SequenceStart, Name: "w1", Loops: 3})
	m.apply(ipc.Message{Code: ipc.LoopPass, Name: "w1", Loop: 1})
	m.apply(ipc.Message{Code: ipc.LoopFail, Name: "w1", Loop: 2, MsgQ: []string{"boom"}})
	m.apply(ipc.Message{Code: ipc.LoopUnknown, Name: "w1", Loop: 3, MsgQ: []string{"stuck"}})

	rec := m.workers["w1"]
	if rec.SuccessLoops != 1 || rec.FailureLoops != 1 || rec.UnknownLoops != 1 {
		t.Errorf("unexpected counters: %+v", rec)
	}
}

func TestApply_SequenceCompleteMarksDone(t *testing.T) {
	m := newTestScheduler(t)
	m.apply(ipc.Message{Code: ipc.SequenceStart, Name: "w1", Loops: 1})
	if m.allDone() {
		t.Error("expected allDone() false while worker is running")
	}
	m.apply(ipc.Message{Code: ipc.SequenceComplete, Name: "w1"})
	if !m.allDone() {
		t.Error("expected allDone() true after SEQUENCE_COMPLETE")
	}
}

func TestApply_RejectsOverConcurrencyCap(t *testing.T) {
	m := newTestScheduler(t)
	m.apply(ipc.Message{Code: ipc.SequenceStart, Name: "w1", Loops: 1})
	m.apply(ipc.Message{Code: ipc.SequenceStart, Name: "w2", Loops: 1})
	m.apply(ipc.Message{Code: ipc.SequenceStart, Name: "w3", Loops: 1})

	if _, ok := m.workers["w3"]; ok {
		t.Error("expected w3 to be rejected over the concurrency cap of 2")
	}
}

func TestSummarize(t *testing.T) {
	m := newTestScheduler(t)
	m.apply(ipc.Message{Code: ipc.SequenceStart, Name: "w1", Loops: 2})
	m.apply(ipc.Message{Code: ipc.LoopPass, Name: "w1"})
	m.apply(ipc.Message{Code: ipc.LoopFail, Name: "w1", MsgQ: []string{"x"}})

	s := m.summarize()
	if s.TotalWorkers != 1 || s.TotalPass != 1 || s.TotalFail != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestSocketPathFor_UniqueWhenTaken(t *testing.T) {
	dir := t.TempDir()
	first := SocketPathFor(dir, "switch_reload.seq")
	if filepath.Base(first) != "switch_reload.sock" {
		t.Errorf("first candidate = %q, want switch_reload.sock", first)
	}

	if err := os.WriteFile(first, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	second := SocketPathFor(dir, "switch_reload.seq")
	if second == first {
		t.Error("expected a distinct socket path once the first name is taken")
	}
}
