package agent

import (
	"regexp"
	"strings"
	"time"

	"github.com/mingsxs/UCS-AutoRobot/internal/prompt"
)

// ensureSendLine writes text to the PTY, optionally verifying the echo
// before terminating the line, per §4.2.4.
func (a *Agent) ensureSendLine(text string, visible bool) error {
	a.Flush(0)

	if err := a.writeRaw([]byte(text)); err != nil {
		return err
	}

	if visible {
		if err := a.verifyEcho(text); err != nil {
			return err
		}
	}

	frame := a.CurrentFrame()
	return a.writeRaw([]byte(frame.LineSeparator))
}

// verifyEcho reads until text appears in the PTY's echo of what was just
// sent. On timeout it computes the fuzzy complement of text against what
// has been read so far and, if non-empty, recursively sends that
// complement — covering a terminal that silently dropped the tail of a
// fast write.
func (a *Agent) verifyEcho(text string) error {
	const echoTimeout = 3 * time.Second
	deadline := time.Now().Add(echoTimeout)
	var buf strings.Builder

	for time.Now().Before(deadline) {
		chunk, err := a.pollOnce()
		if err != nil {
			return err
		}
		if chunk != "" {
			buf.WriteString(chunk)
			if prompt.SearchCommandInEcho(text, buf.String()) {
				return nil
			}
		} else {
			time.Sleep(pollInterval)
		}
	}

	if prompt.SearchCommandInEcho(text, buf.String()) {
		return nil
	}

	complement := fuzzyComplementOf(text, buf.String())
	if complement != "" {
		return a.ensureSendLine(complement, true)
	}
	return nil
}

// fuzzyComplementOf returns the portion of sent not yet present in echoed,
// tolerating one embedded '\r' in echoed.
func fuzzyComplementOf(sent, echoed string) string {
	if strings.Contains(echoed, sent) {
		return ""
	}
	idx := strings.LastIndex(echoed, sent[:min(len(sent), 1)])
	if idx < 0 {
		return sent
	}
	matched, pos, skippedCR := 0, idx, false
	for matched < len(sent) && pos < len(echoed) {
		if sent[matched] == echoed[pos] {
			matched++
			pos++
			continue
		}
		if echoed[pos] == '\r' && !skippedCR {
			skippedCR = true
			pos++
			continue
		}
		break
	}
	if matched >= len(sent) {
		return ""
	}
	return sent[matched:]
}

// pollOnce reads up to pollChunk bytes with a pollInterval deadline,
// forwarding anything read to the transcript writer.
func (a *Agent) pollOnce() (string, error) {
	if !a.ptyAlive() {
		return "", nil
	}
	a.ptmx.SetReadDeadline(time.Now().Add(pollInterval))
	buf := make([]byte, pollChunk)
	n, err := a.ptmx.Read(buf)
	if n > 0 {
		if a.TranscriptWriter != nil {
			a.TranscriptWriter(buf[:n])
		}
		return string(buf[:n]), nil
	}
	if err != nil {
		if isTimeoutErr(err) {
			return "", nil
		}
		return "", nil // PTY closed/EOF: treat as empty poll, caller decides on liveness.
	}
	return "", nil
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

// atomicRead reads in ~30ms polls, accumulating output until the frame's
// prompt reappears at the tail of the buffer, per §4.2.4. timeout <= 0
// returns immediately with empty output and no error (P10).
func (a *Agent) atomicRead(timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return "", nil
	}

	frame := a.CurrentFrame()
	deadline := time.Now().Add(timeout)
	staleSendDeadline := time.Now().Add(time.Duration(float64(timeout) * 0.6))
	sentStrayLinesep := false

	var buf strings.Builder

	for time.Now().Before(deadline) {
		chunk, err := a.pollOnce()
		if err != nil {
			return buf.String(), err
		}
		buf.WriteString(chunk)

		if chunk == "" && buf.Len() > 0 {
			stripped := prompt.StripANSI(buf.String())
			tailLen := len(frame.Prompt) + promptOffset
			tail := stripped
			if len(stripped) > tailLen {
				tail = stripped[len(stripped)-tailLen:]
			}
			if idx := strings.Index(tail, frame.Prompt); idx >= 0 {
				splitAt := len(stripped) - len(tail) + idx + len(frame.Prompt)
				out := stripped[:splitAt-len(frame.Prompt)]
				a.readLeftover = stripped[splitAt:]
				return out, nil
			}
		}

		if chunk == "" && !sentStrayLinesep && time.Now().After(staleSendDeadline) {
			a.writeRaw([]byte(frame.LineSeparator))
			sentStrayLinesep = true
		}

		if chunk == "" {
			time.Sleep(pollInterval)
		}
	}

	if a.RunningLocally() {
		return buf.String(), nil
	}
	return buf.String(), newErrorWithSnapshot(KindTimeout, frame.Prompt, buf.String(), "no prompt within %s", timeout)
}

// readUntilPatterns reads in polls until any of patterns matches the
// accumulated buffer, or timeout elapses. Unlike atomicRead it does not
// implicitly test for the frame's prompt.
func (a *Agent) readUntilPatterns(patterns []string, timeout time.Duration, ignoreError bool) (string, string, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			re = regexp.MustCompile(regexp.QuoteMeta(p))
		}
		compiled = append(compiled, re)
	}

	deadline := time.Now().Add(timeout)
	var buf strings.Builder

	for time.Now().Before(deadline) {
		chunk, err := a.pollOnce()
		if err != nil {
			if ignoreError {
				return buf.String(), "", nil
			}
			return buf.String(), "", err
		}
		if chunk != "" {
			buf.WriteString(chunk)
			clean := cleanPromptCandidate(buf.String())
			for i, re := range compiled {
				if re.MatchString(clean) {
					return buf.String(), patterns[i], nil
				}
			}
		} else {
			time.Sleep(pollInterval)
		}
	}

	if ignoreError {
		return buf.String(), "", nil
	}
	return buf.String(), "", newErrorWithSnapshot(KindTimeout, "", buf.String(), "no pattern matched within %s", timeout)
}

// checkCommandOutput validates a completed command's output per §4.2.4:
// the command's own echo must appear, and the output must not contain any
// entry from the command-error lexicon unless the command word is exempt.
func (a *Agent) checkCommandOutput(cmdWord, sentText, out string) error {
	if !prompt.SearchCommandInEcho(sentText, out) {
		return newErrorWithSnapshot(KindSendMiswrite, a.CurrentFrame().Prompt, out,
			"command echo not found for %q", sentText)
	}

	if errorBypassCommands[cmdWord] {
		return nil
	}
	for _, lexeme := range commandErrorLexicon {
		if strings.Contains(out, lexeme) {
			return newErrorWithSnapshot(KindInvalidCommand, a.CurrentFrame().Prompt, out,
				"command error lexicon hit: %q", lexeme)
		}
	}
	if matched, _ := regexp.MatchString(`Module .* is not found`, out); matched {
		return newErrorWithSnapshot(KindInvalidCommand, a.CurrentFrame().Prompt, out, "module not found")
	}
	return nil
}

