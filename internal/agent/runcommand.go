package agent

import (
	"strings"
	"time"

	"github.com/mingsxs/UCS-AutoRobot/internal/sequence"
)

// connectRetries is the number of Connect FSM attempts per §4.2.2.
const connectRetries = 3

// RunCommand executes one non-builtin parsed Command (Send or Connect)
// against the Agent and returns the command's output, or an *AgentError
// tagged with one of the taxonomy's kinds.
func (a *Agent) RunCommand(cmd sequence.Command) (string, error) {
	if cmd.Kind == sequence.KindConnect {
		if err := a.Connect(cmd, connectRetries); err != nil {
			return "", err
		}
		return "", nil
	}

	if !a.ptyAlive() && len(a.stack) == 0 {
		return a.runLocal(cmd)
	}
	if !a.ptyAlive() {
		return "", newError(KindPtyDied, "pty not alive but stack non-empty")
	}

	a.maybeTriggerIntershell(cmd)

	timeout := a.CurrentFrame().CommandTimeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}

	if err := a.ensureSendLine(cmd.Command, !cmd.TextInvisible); err != nil {
		return "", err
	}

	if cmd.BgRun {
		return "", nil
	}

	out, err := a.atomicRead(time.Duration(timeout * float64(time.Second)))
	if err != nil {
		return out, err
	}

	word := ""
	if len(cmd.Argv) > 0 {
		word = cmd.Argv[0]
	}
	if err := a.checkCommandOutput(word, cmd.Command, out); err != nil {
		return out, err
	}

	if err := a.checkExpectEscape(cmd, out); err != nil {
		return out, err
	}

	return out, nil
}

// runLocal executes cmd as a plain local subprocess when the Agent is
// running locally and has no active PTY yet, used for lightweight Send
// steps before any Connect has happened.
func (a *Agent) runLocal(cmd sequence.Command) (string, error) {
	if err := a.spawnLocal(cmd.Command); err != nil {
		return "", err
	}
	timeout := 60.0
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}
	out, err := a.atomicRead(time.Duration(timeout * float64(time.Second)))
	a.ClosePTY()
	if err != nil {
		return out, err
	}
	return out, a.checkExpectEscape(cmd, out)
}

// checkExpectEscape validates a command's declared expect/escape pattern
// lists against out: every expect pattern must be present (P9: an empty
// list never raises), and no escape pattern may be present.
func (a *Agent) checkExpectEscape(cmd sequence.Command, out string) error {
	for _, pattern := range cmd.Expect {
		if !containsPattern(out, pattern) {
			return newErrorWithSnapshot(KindExpect, a.CurrentFrame().Prompt, out,
				"expected pattern %q not found", pattern)
		}
	}
	for _, pattern := range cmd.Escape {
		if containsPattern(out, pattern) {
			return newErrorWithSnapshot(KindExpect, a.CurrentFrame().Prompt, out,
				"escape pattern %q unexpectedly present", pattern)
		}
	}
	return nil
}

func containsPattern(s, pattern string) bool {
	return strings.Contains(s, pattern)
}
