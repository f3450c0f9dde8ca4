package agent

import (
	"strings"
	"time"
)

const delayAfterQuit = 800 * time.Millisecond

// Quit pops the top of the stack per §4.2.5's branch-by-frame-type rules,
// then re-verifies host and prompt against the frame popped to.
func (a *Agent) Quit() error {
	if len(a.stack) == 0 {
		a.ClosePTY()
		return nil
	}

	if a.intershell.Active {
		if err := a.exitIntershell(); err != nil {
			return err
		}
		time.Sleep(delayAfterQuit)
		a.Flush(0)
		return nil
	}

	top := a.stack[len(a.stack)-1]

	switch {
	case top.SerialPortMode:
		a.SendControl('c')
		a.SendControl(']')
		a.readUntilPatterns([]string{`telnet>`}, 20*time.Second, true)
		a.writeRaw([]byte("q\n"))
		a.popFromFirstMatching(func(f Frame) bool { return f.SerialPortMode })
	case top.CiscoSolMode:
		a.SendControl('x')
		a.popFromFirstMatching(func(f Frame) bool { return f.CiscoSolMode })
	default:
		a.SendControl('c')
		a.ensureSendLine("exit", false)
		a.stack = a.stack[:len(a.stack)-1]
	}

	time.Sleep(delayAfterQuit)
	a.Flush(200 * time.Millisecond)

	return a.verifyContextAfterPop()
}

// popFromFirstMatching pops every frame from the first one matching pred
// upward (i.e. truncates the stack at the first matching index).
func (a *Agent) popFromFirstMatching(pred func(Frame) bool) {
	for i, f := range a.stack {
		if pred(f) {
			a.stack = a.stack[:i]
			return
		}
	}
}

// verifyContextAfterPop re-probes the host and prompt of the frame now on
// top of the stack; a double mismatch raises Context.
func (a *Agent) verifyContextAfterPop() error {
	if len(a.stack) == 0 {
		return nil
	}
	frame := a.stack[len(a.stack)-1]

	a.writeRaw([]byte("ifconfig | awk '/inet /{print $2}'\n"))
	out, _, _ := a.readUntilPatterns([]string{frame.Prompt}, 5*time.Second, true)
	hostOK := frame.TargetHost == "" || strings.Contains(out, frame.TargetHost)

	promptLine := lastNonBlank(cleanPromptCandidate(out))
	promptOK := promptLine == frame.Prompt || strings.Contains(promptLine, frame.Prompt)

	if !hostOK && !promptOK {
		return newErrorWithSnapshot(KindContext, frame.Prompt, out,
			"post-quit verification mismatch for %s", frame.SessionLabel)
	}
	return nil
}
