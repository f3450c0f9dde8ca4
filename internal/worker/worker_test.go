package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mingsxs/UCS-AutoRobot/internal/agent"
	"github.com/mingsxs/UCS-AutoRobot/internal/sequence"
)

func newTestWorker(t *testing.T, seq *sequence.Sequence) *Worker {
	t.Helper()
	return New("test-worker", seq, 1, Config{RecoverRetry: 3})
}

func TestClassify_ExpectIsFail(t *testing.T) {
	w := newTestWorker(t, &sequence.Sequence{})
	got := w.classify(&agent.AgentError{Kind: agent.KindExpect}, false)
	if got != resultFail {
		t.Errorf("classify(Expect) = %v, want resultFail", got)
	}
}

func TestClassify_TimeoutIsUnknown(t *testing.T) {
	w := newTestWorker(t, &sequence.Sequence{})
	got := w.classify(&agent.AgentError{Kind: agent.KindTimeout}, false)
	if got != resultUnknown {
		t.Errorf("classify(Timeout) = %v, want resultUnknown", got)
	}
}

func TestClassify_NonAgentErrorIsUnknown(t *testing.T) {
	w := newTestWorker(t, &sequence.Sequence{})
	got := w.classify(os.ErrClosed, false)
	if got != resultUnknown {
		t.Errorf("classify(plain error) = %v, want resultUnknown", got)
	}
}

func TestJoinMessages(t *testing.T) {
	if got := joinMessages(nil); got != "" {
		t.Errorf("joinMessages(nil) = %q, want empty", got)
	}
	if got := joinMessages([]string{"a", "b"}); got != "a; b" {
		t.Errorf("joinMessages = %q, want %q", got, "a; b")
	}
}

func TestParseWaitDuration(t *testing.T) {
	d, err := parseWaitDuration("2.5")
	if err != nil {
		t.Fatalf("parseWaitDuration: %v", err)
	}
	if d != 2500*time.Millisecond {
		t.Errorf("parseWaitDuration(2.5) = %v, want 2.5s", d)
	}

	if _, err := parseWaitDuration("not-a-number"); err == nil {
		t.Error("expected error for non-numeric WAIT duration")
	}
}

// runFind drives "cd <dir>" then "ls" through the Agent's RunCommand, the
// same call a connected remote session would dispatch to its PTY. With an
// empty Agent stack (no Connect has been performed) RunCommand falls back
// to running each command as a plain local subprocess, so these tests
// exercise that exact dispatch rather than a local-filesystem stub — "ls"
// here lists the real package directory, which is the process's cwd during
// `go test`.
func TestRunFind_Success(t *testing.T) {
	w := newTestWorker(t, &sequence.Sequence{})
	cmd := sequence.Command{TargetFile: "worker_test.go", SearchDirs: []string{"."}}

	result, jump, err := w.runFind(cmd)
	if err != nil {
		t.Fatalf("runFind: %v", err)
	}
	if result != resultPass || jump != -1 {
		t.Errorf("runFind = (%v, %d), want (resultPass, -1)", result, jump)
	}
	want := filepath.Join(".", "worker_test.go")
	if w.lastFoundFile != want {
		t.Errorf("lastFoundFile = %q, want %q", w.lastFoundFile, want)
	}
}

func TestRunFind_NotFound(t *testing.T) {
	w := newTestWorker(t, &sequence.Sequence{})
	cmd := sequence.Command{TargetFile: "does-not-exist-xyz.bin", SearchDirs: []string{"."}}

	result, _, err := w.runFind(cmd)
	if err == nil {
		t.Fatal("expected FileNotFound error")
	}
	if result != resultUnknown {
		t.Errorf("runFind not-found result = %v, want resultUnknown", result)
	}
	aerr, ok := err.(*agent.AgentError)
	if !ok || aerr.Kind != agent.KindFileNotFound {
		t.Errorf("expected KindFileNotFound, got %v", err)
	}
}

func TestRunLoop_UnknownSubsequence(t *testing.T) {
	seq := &sequence.Sequence{Subsequences: map[string]sequence.Range{}}
	w := newTestWorker(t, seq)
	cmd := sequence.Command{SubsequenceName: "does-not-exist", LoopCount: 1}

	_, _, err := w.runLoop(cmd, 0)
	if err == nil {
		t.Fatal("expected SequenceParse error for unknown subsequence")
	}
	aerr, ok := err.(*agent.AgentError)
	if !ok || aerr.Kind != agent.KindSequenceParse {
		t.Errorf("expected KindSequenceParse, got %v", err)
	}
}

func TestRunLoop_ZeroIterationsJumpsToEnd(t *testing.T) {
	seq := &sequence.Sequence{
		Commands: []sequence.Command{
			{Kind: sequence.KindBuiltin, Builtin: sequence.BuiltinSubsequence},
			{Kind: sequence.KindSend, Command: "echo hi"},
			{Kind: sequence.KindBuiltin, Builtin: sequence.BuiltinEndSubsequence},
		},
		Subsequences: map[string]sequence.Range{"block": {Start: 1, End: 2}},
	}
	w := newTestWorker(t, seq)
	cmd := sequence.Command{SubsequenceName: "block", LoopCount: 0}

	result, jump, err := w.runLoop(cmd, 0)
	if err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if result != resultPass || jump != 2 {
		t.Errorf("runLoop(0 iterations) = (%v, %d), want (resultPass, 2)", result, jump)
	}
}

func TestContainsPattern(t *testing.T) {
	if !containsPattern("anything", "") {
		t.Error("empty pattern should always match (P9 complement)")
	}
	if !containsPattern("hello world", "world") {
		t.Error("expected substring match")
	}
	if containsPattern("hello", "world") {
		t.Error("expected no match")
	}
}
