// Package prompt implements the text heuristics an Agent uses to decide
// whether a command has finished producing output: stripping terminal
// noise, recognizing a shell prompt at the tail of a read buffer, and
// tolerating the handful of ways a remote echo can arrive mangled by
// carriage returns.
package prompt

import (
	"regexp"
	"strings"
)

// ansiEscape matches SGR/cursor control sequences so they can be stripped
// before a prompt or error lexicon is matched against raw PTY output.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// dateStamp matches a syslog-style timestamp a remote prompt sometimes
// prepends, e.g. "Mon Jan 02 15:04:05 ".
var dateStamp = regexp.MustCompile(`^[A-Za-z]{3} [A-Za-z]{3} \d{2} \d{2}:\d{2}:\d{2} `)

// StripANSI removes ANSI escape sequences from s.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// StripLeadingTimestamp removes a leading syslog-style date stamp from s, if
// present, so it does not defeat prompt/command matching.
func StripLeadingTimestamp(s string) string {
	return dateStamp.ReplaceAllString(s, "")
}

// LastNonBlankLine returns the last non-empty line of s, after splitting on
// both '\n' and '\r'. PTY output frequently ends in a trailing blank line,
// and callers care about the last line that actually has content.
func LastNonBlankLine(s string) string {
	lines := splitLines(s)
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

// HasTerminatorChar reports whether line ends (ignoring trailing spaces)
// with one of the PROMPT_WAIT_INPUT terminators: '$', '#' or '>', each
// optionally followed by up to three trailing spaces. Login-prompt
// terminators (':' and '?', PROMPT_WAIT_LOGIN) are a separate check the
// login-negotiation loop already makes; a committed Frame.Prompt must only
// ever match this narrower input-prompt set.
func HasTerminatorChar(line string) bool {
	trimmed := strings.TrimRight(line, " ")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '$', '#', '>':
		return len(line)-len(trimmed) <= 3
	}
	return false
}

// IsDuplicatedHalf reports whether s splits, at some point within
// plus-or-minus 3 characters of its midpoint, into two halves that are equal
// once surrounding spaces are trimmed. Some terminals echo a just-sent prompt twice when a command
// races the shell's own redraw; this lets the caller collapse it to one.
func IsDuplicatedHalf(s string) bool {
	n := len(s)
	if n < 2 {
		return false
	}
	mid := n / 2
	for offset := -3; offset <= 3; offset++ {
		split := mid + offset
		if split <= 0 || split >= n {
			continue
		}
		first, second := strings.TrimSpace(s[:split]), strings.TrimSpace(s[split:])
		if first != "" && first == second {
			return true
		}
	}
	return false
}

// FuzzyComplement reports whether s contains p (the expected prompt),
// either as is or once the first '\r' in s, which has no counterpart in p,
// is removed. This catches a prompt that arrived with a stray
// carriage return spliced into it by a flaky serial link.
func FuzzyComplement(p, s string) bool {
	if p == "" {
		return false
	}
	if strings.Contains(s, p) {
		return true
	}
	parts := strings.SplitN(s, "\r", 2)
	if len(parts) != 2 {
		return false
	}
	candidate := parts[0] + parts[1]
	return strings.Contains(candidate, p) || strings.HasSuffix(candidate, p)
}

// SearchCommandInEcho reports whether cmd appears in out, the PTY's echo of
// what was just sent, skipping any inserted '\r' or " \r" sequences and
// allowing at most one backtrack step. Terminals sometimes split a fast
// write across echoed chunks, inserting one of these sequences at each
// boundary.
func SearchCommandInEcho(cmd, out string) bool {
	if cmd == "" {
		return true
	}
	if strings.Contains(out, cmd) {
		return true
	}

	ci, oi := 0, 0
	backtracked := false
	for ci < len(cmd) && oi < len(out) {
		if cmd[ci] == out[oi] {
			ci++
			oi++
			continue
		}
		if oi+1 < len(out) && out[oi] == '\r' {
			oi++
			continue
		}
		if oi+2 < len(out) && out[oi] == ' ' && out[oi+1] == '\r' {
			oi += 2
			continue
		}
		if !backtracked && oi > 0 {
			backtracked = true
			oi--
			continue
		}
		return false
	}
	return ci == len(cmd)
}
