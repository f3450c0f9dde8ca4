package sequence

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSeq(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.seq")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write sequence file: %v", err)
	}
	return path
}

func TestParse_SimpleSend(t *testing.T) {
	path := writeSeq(t, "echo hello ; WORLD\n")
	seq, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(seq.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(seq.Commands))
	}
	cmd := seq.Commands[0]
	if cmd.Kind != KindSend {
		t.Errorf("expected KindSend, got %v", cmd.Kind)
	}
	if cmd.Command != "echo hello" {
		t.Errorf("Command = %q, want %q", cmd.Command, "echo hello")
	}
	if len(cmd.Expect) != 1 || cmd.Expect[0] != "WORLD" {
		t.Errorf("Expect = %v, want [WORLD]", cmd.Expect)
	}
}

func TestParse_CommentAndContinuation(t *testing.T) {
	path := writeSeq(t, "# a comment\necho \\\nhello\n")
	seq, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(seq.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(seq.Commands))
	}
	if seq.Commands[0].Command != "echo hello" {
		t.Errorf("Command = %q, want %q", seq.Commands[0].Command, "echo hello")
	}
}

func TestParse_Connect(t *testing.T) {
	path := writeSeq(t, "ssh user@10.0.0.1 ; secret\n")
	seq, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(seq.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(seq.Commands))
	}
	cmd := seq.Commands[0]
	if cmd.Kind != KindConnect {
		t.Errorf("expected KindConnect, got %v", cmd.Kind)
	}
	if cmd.User != "user" {
		t.Errorf("User = %q, want %q", cmd.User, "user")
	}
	if cmd.Password != "secret" {
		t.Errorf("Password = %q, want %q", cmd.Password, "secret")
	}
}

func TestParse_BuiltinWait(t *testing.T) {
	path := writeSeq(t, "WAIT 1h30m\n")
	seq, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd := seq.Commands[0]
	if cmd.Kind != KindBuiltin || cmd.Builtin != BuiltinWait {
		t.Fatalf("expected Builtin(Wait), got %v/%v", cmd.Kind, cmd.Builtin)
	}
	if cmd.WaitDuration != "1h30m" {
		t.Errorf("WaitDuration = %q, want %q", cmd.WaitDuration, "1h30m")
	}
}

func TestParse_Subsequence(t *testing.T) {
	path := writeSeq(t, "SUBSEQUENCE reboot\necho one\necho two\nEND-SUBSEQUENCE\necho three\n")
	seq, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(seq.Commands) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(seq.Commands))
	}
	r, ok := seq.Subsequences["reboot"]
	if !ok {
		t.Fatal("expected subsequence 'reboot' to be registered")
	}
	if r.Start != 0 || r.End != 2 {
		t.Errorf("range = %+v, want {0 2}", r)
	}
}

func TestParse_BackgroundSend(t *testing.T) {
	path := writeSeq(t, "long-running-task &\n")
	seq, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !seq.Commands[0].BgRun {
		t.Error("expected BgRun to be true")
	}
}

func TestParse_PromptExpectIsNil(t *testing.T) {
	path := writeSeq(t, "echo hi ; PROMPT\n")
	seq, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if seq.Commands[0].Expect != nil {
		t.Errorf("expected nil Expect for bare PROMPT, got %v", seq.Commands[0].Expect)
	}
}
