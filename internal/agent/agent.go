// Package agent implements the Session Agent: a state machine wrapping one
// pseudo-terminal that models a stack of nested logins, auto-detects
// prompts, performs retry-based login negotiation, and reads command
// output until a prompt reappears.
//
// The PTY primitive is github.com/creack/pty, the same library the teacher
// uses to wrap a child process for terminal-level signal delivery.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"

	"github.com/mingsxs/UCS-AutoRobot/internal/prompt"
	"github.com/mingsxs/UCS-AutoRobot/internal/secrets"
)

const (
	localShellPrompt = ">>>"
	pollInterval     = 30 * time.Millisecond
	pollChunk        = 1024
	promptOffset     = 16
)

// commandErrorLexicon is checked against command output by
// checkCommandOutput; a hit (outside the bypass set) raises InvalidCommand.
var commandErrorLexicon = []string{
	"command not found",
	"no such file or directory",
	"Is a directory",
	"not recognized as an internal or external command",
	"invalid input detected",
	"invalid pass phrase",
	"permission denied",
}

// errorBypassCommands are command words exempt from the error-lexicon
// check, because their normal output can legitimately contain lexicon
// substrings (e.g. `ls` listing a file named "permission denied.txt").
var errorBypassCommands = map[string]bool{
	"rm": true,
	"ls": true,
	"":   true,
}

// Agent is one PTY plus its stack of Session Frames.
type Agent struct {
	ptmx *os.File
	cmd  *exec.Cmd

	stack []Frame

	intershell IntershellState

	readLeftover string
	lastCommand  string

	logger *slog.Logger

	// TranscriptWriter, when non-nil, receives a byte-for-byte copy of
	// everything read from the PTY — a separate channel from Logger, never
	// run through slog, matching the Agent's raw session-transcript file.
	TranscriptWriter func(p []byte)
}

// New creates an Agent with no active PTY (local-only) and the given
// structured logger for operator-facing diagnostics.
func New(logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{logger: logger}
}

// RunningLocally reports whether the Agent has no active session frame
// (I1: empty stack ⇔ pty == nil ⇔ running locally). If the stack is
// non-empty but the child has died, this returns false and the next
// RunCommand will surface PtyDied.
func (a *Agent) RunningLocally() bool {
	if len(a.stack) == 0 {
		if a.ptmx != nil {
			a.ClosePTY()
		}
		return true
	}
	return false
}

func (a *Agent) ptyAlive() bool {
	if a.ptmx == nil || a.cmd == nil || a.cmd.Process == nil {
		return false
	}
	return a.cmd.ProcessState == nil
}

// CurrentFrame returns the top of the stack, or a synthetic local frame if
// the stack is empty.
func (a *Agent) CurrentFrame() Frame {
	if len(a.stack) == 0 {
		return Frame{Prompt: localShellPrompt, LineSeparator: "\n", CommandTimeout: 60}
	}
	return a.stack[len(a.stack)-1]
}

func (a *Agent) setTopFrame(f Frame) {
	if len(a.stack) == 0 {
		a.stack = append(a.stack, f)
		return
	}
	a.stack[len(a.stack)-1] = f
}

// SetCurrentFrame overwrites the top of the stack, used by the SET-PROMPT
// builtin to record an operator-declared prompt override.
func (a *Agent) SetCurrentFrame(f Frame) {
	a.setTopFrame(f)
}

// SendEnter writes a bare line separator, used by the SEND-ENTER builtin to
// dismiss a "press any key" style banner without sending a real command.
func (a *Agent) SendEnter() error {
	if !a.ptyAlive() {
		return nil
	}
	return a.writeRaw([]byte(a.CurrentFrame().LineSeparator))
}

// ClosePTY tears down the active child and returns the Agent to local-only
// mode, regardless of stack contents.
func (a *Agent) ClosePTY() {
	if a.ptmx != nil {
		a.ptmx.Close()
		a.ptmx = nil
	}
	if a.cmd != nil && a.cmd.Process != nil {
		a.cmd.Process.Kill()
		a.cmd.Wait()
	}
	a.cmd = nil
	a.stack = nil
	a.intershell = IntershellState{}
	a.readLeftover = ""
}

// Flush drains any output sitting in the PTY's buffer without blocking for
// a prompt, for use before a write so stale output from a previous command
// cannot be mistaken for the new command's output.
func (a *Agent) Flush(delay time.Duration) {
	if delay > 0 {
		time.Sleep(delay)
	}
	if !a.ptyAlive() {
		return
	}
	a.ptmx.SetReadDeadline(time.Now().Add(pollInterval))
	buf := make([]byte, pollChunk)
	for {
		n, err := a.ptmx.Read(buf)
		if n > 0 && a.TranscriptWriter != nil {
			a.TranscriptWriter(buf[:n])
		}
		if err != nil || n == 0 {
			return
		}
	}
}

// SendControl sends a single control character to the PTY — e.g. 'c' for
// Ctrl-C, ']' for the telnet escape Ctrl-]. If ch is 'c' it then waits for
// the frame's prompt to reappear, ignoring a timeout (the far end may not
// echo anything for an interrupt).
func (a *Agent) SendControl(ch byte) error {
	if !a.ptyAlive() {
		return nil
	}
	ctrl := ch &^ 0x60
	if _, err := a.ptmx.Write([]byte{ctrl}); err != nil {
		return newError(KindPtyDied, "write control char: %v", err)
	}
	if ch == 'c' {
		a.readUntilPatterns([]string{a.CurrentFrame().Prompt}, 2*time.Second, true)
	}
	return nil
}

func (a *Agent) writeRaw(b []byte) error {
	if !a.ptyAlive() {
		return newError(KindPtyDied, "write to dead pty")
	}
	_, err := a.ptmx.Write(b)
	if err != nil {
		return newError(KindPtyDied, "write: %v", err)
	}
	return nil
}

// spawnLocal starts a bare local shell under a new PTY, used when the
// Connect FSM needs to spawn the very first frame (stack is empty).
func (a *Agent) spawnLocal(command string) error {
	cmd := exec.Command("sh", "-c", command)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return newError(KindConnection, "spawn pty: %v", err)
	}
	a.ptmx = ptmx
	a.cmd = cmd
	return nil
}

// resolvePassword resolves a keyring:<name> reference through
// internal/secrets, leaving a literal password untouched.
func resolvePassword(field string) (string, error) {
	if field == "" {
		return "", nil
	}
	pass, err := secrets.Resolve(field)
	if err != nil {
		return "", newError(KindConnection, "resolve credential: %v", err)
	}
	return pass, nil
}

// logf emits an operator-facing diagnostic line through the Agent's
// structured logger — a different channel from the raw PTY transcript.
func (a *Agent) logf(level slog.Level, msg string, args ...any) {
	a.logger.Log(context.Background(), level, fmt.Sprintf(msg, args...))
}

// wordAfterAt returns the token after the last '@' in s, or s itself if
// there is no '@'.
func wordAfterAt(s string) string {
	if i := strings.LastIndex(s, "@"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// lastPathComponent returns the final '/'-separated component of s.
func lastPathComponent(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// cleanPromptCandidate removes ANSI and leading timestamp noise so prompt matching
// operates on a clean candidate line.
func cleanPromptCandidate(s string) string {
	return prompt.StripLeadingTimestamp(prompt.StripANSI(s))
}
