package agent

import (
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mingsxs/UCS-AutoRobot/internal/sequence"
)

var (
	loginPromptPatterns = []string{`: {0,3}$`, `\? {0,3}$`}
	inputPromptPatterns = []string{`\$ {0,3}$`, `# {0,3}$`, `> {0,3}$`}

	timeoutBannerRe  = regexp.MustCompile(`(?i)timeout expired`)
	yesNoRe          = regexp.MustCompile(`(?i)\(yes/no\)\??\s*$`)
	hostIdentChanged = regexp.MustCompile(`(?i)remote host identification has changed`)
	loginPromptRe    = regexp.MustCompile(`(?i)login:\s*$`)
	userPromptRe     = regexp.MustCompile(`(?i)user(name)?:\s*$`)
	passwordPromptRe = regexp.MustCompile(`(?i)password:\s*$`)
	connRefusedRe    = regexp.MustCompile(`(?i)connection refused`)
)

// ConnectTimeouts holds the per-method default connect timeouts named in
// §4.2.2.
type ConnectTimeouts struct {
	SSH     time.Duration
	Telnet  time.Duration
	Host    time.Duration
	Default time.Duration
}

// DefaultConnectTimeouts mirrors the spec's literal defaults. Connect reads
// this package variable directly; the timeout.* config keys are not applied
// to it.
var DefaultConnectTimeouts = ConnectTimeouts{
	SSH:     30 * time.Second,
	Telnet:  20 * time.Second,
	Host:    5 * time.Second,
	Default: 15 * time.Second,
}

// BootupWatch bounds the serial/SOL boot-watch loop: a CRLF is sent every
// Period until either Timeout elapses or a prompt line appears.
type BootupWatch struct {
	Period  time.Duration
	Timeout time.Duration
}

var DefaultBootupWatch = BootupWatch{
	Period:  30 * time.Second,
	Timeout: 600 * time.Second,
}

// Connect executes the Connect FSM of §4.2.2 against cmd, pushing a new
// Session Frame on success.
func (a *Agent) Connect(cmd sequence.Command, retries int) error {
	word := ""
	if len(cmd.Argv) > 0 {
		word = cmd.Argv[0]
	}

	targetHost := targetHostFromArgv(cmd.Argv)
	serialPortMode := word == "telnet" && serialPortFromArgv(cmd.Argv) >= 2003

	connectTimeout := DefaultConnectTimeouts.Default
	switch word {
	case "ssh":
		connectTimeout = DefaultConnectTimeouts.SSH
	case "telnet":
		connectTimeout = DefaultConnectTimeouts.Telnet
	case "connect":
		connectTimeout = DefaultConnectTimeouts.Host
	}
	if cmd.Timeout > 0 {
		connectTimeout = time.Duration(cmd.Timeout * float64(time.Second))
	}

	password, err := resolvePassword(cmd.Password)
	if err != nil {
		return err
	}
	user := cmd.User

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		frame, err := a.attemptConnect(cmd, word, targetHost, serialPortMode, user, password, connectTimeout)
		if err == nil {
			a.stack = append(a.stack, frame)
			return nil
		}
		lastErr = err
		a.logf(0, "connect retry %d/%d: %v", attempt+1, retries, err)
	}
	return newError(KindConnection, "connect exhausted %d attempts: %v", retries, lastErr)
}

func (a *Agent) attemptConnect(cmd sequence.Command, word, targetHost string, serialPortMode bool, user, password string, connectTimeout time.Duration) (Frame, error) {
	if len(a.stack) == 0 {
		if err := a.spawnLocal(cmd.Command); err != nil {
			return Frame{}, err
		}
	} else {
		pingCmd := exec.Command("ping", "-c", "2", targetHost)
		if err := pingCmd.Run(); err != nil {
			return Frame{}, newError(KindConnection, "host %s unreachable: %v", targetHost, err)
		}
		if err := a.writeRaw([]byte(cmd.Command + a.CurrentFrame().LineSeparator)); err != nil {
			return Frame{}, err
		}
	}

	var until []string
	if serialPortMode || word == "connect" {
		until = append([]string{}, inputPromptPatterns...)
		a.writeRaw([]byte("\n"))
	} else {
		until = append([]string{}, loginPromptPatterns...)
	}

	sessionConnected := false
	var connectedPrompt string

	deadline := time.Now().Add(connectTimeout)
	passwordSent := false

	for time.Now().Before(deadline) && !sessionConnected {
		out, _, err := a.readUntilPatterns(append(until,
			timeoutBannerRe.String(), yesNoRe.String(), hostIdentChanged.String(),
			loginPromptRe.String(), userPromptRe.String(), passwordPromptRe.String(), connRefusedRe.String(),
		), connectTimeout, true)
		if err != nil {
			return Frame{}, err
		}
		clean := cleanPromptCandidate(out)
		last := lastNonBlank(clean)

		switch {
		case connRefusedRe.MatchString(clean):
			return Frame{}, newError(KindConnection, "connection refused by %s", targetHost)
		case timeoutBannerRe.MatchString(clean):
			a.writeRaw([]byte("\n"))
		case yesNoRe.MatchString(last):
			a.writeRaw([]byte("yes\n"))
		case hostIdentChanged.MatchString(clean):
			removeKnownHosts()
			return a.attemptConnect(cmd, word, targetHost, serialPortMode, user, password, connectTimeout)
		case loginPromptRe.MatchString(last) || userPromptRe.MatchString(last):
			sendUser, sendPass := user, password
			if sendUser == "" && sendPass != "" {
				sendUser, sendPass = sendPass, sendUser
			}
			if sendUser == "" {
				return Frame{}, newError(KindConnection, "login prompt seen but no username configured")
			}
			a.writeRaw([]byte(sendUser + "\n"))
		case passwordPromptRe.MatchString(last):
			sendPass := password
			if sendPass == "" && user != "" {
				sendPass = user
			}
			a.writeRaw([]byte(sendPass + "\n"))
			passwordSent = true
		default:
			if hasTerminator(last) {
				requireUserToken := !serialPortMode
				if validatePromptLine(last, user, requireUserToken) {
					sessionConnected = true
					connectedPrompt = last
					break
				}
				if serialPortMode {
					watched, err := a.bootupWatch()
					if err != nil {
						return Frame{}, err
					}
					if watched != "" {
						sessionConnected = true
						connectedPrompt = watched
					}
				}
			}
		}
	}

	if !sessionConnected {
		return Frame{}, newError(KindConnection, "no session prompt within %s (passwordSent=%v)", connectTimeout, passwordSent)
	}

	frame := Frame{
		TargetHost:     targetHost,
		SessionLabel:   cmd.Command,
		User:           user,
		Password:       password,
		Prompt:         connectedPrompt,
		LineSeparator:  "\n",
		SerialPortMode: serialPortMode,
		CommandTimeout: 120,
	}
	if cmd.Timeout > 0 {
		frame.CommandTimeout = cmd.Timeout
	}

	a.stack = append(a.stack, frame)
	if err := a.probeLineSeparatorAndPrompt(); err != nil {
		a.stack = a.stack[:len(a.stack)-1]
		return Frame{}, err
	}
	frame = a.stack[len(a.stack)-1]
	a.stack = a.stack[:len(a.stack)-1]
	return frame, nil
}

// bootupWatch sends a CRLF every DefaultBootupWatch.Period until a small
// well-formed prompt line appears or the overall timeout elapses.
func (a *Agent) bootupWatch() (string, error) {
	deadline := time.Now().Add(DefaultBootupWatch.Timeout)
	for time.Now().Before(deadline) {
		a.writeRaw([]byte("\r\n"))
		out, _, _ := a.readUntilPatterns(inputPromptPatterns, DefaultBootupWatch.Period, true)
		last := lastNonBlank(cleanPromptCandidate(out))
		if hasTerminator(last) && len(last) < 40 {
			return last, nil
		}
	}
	return "", newError(KindConnection, "boot-watch exceeded %s", DefaultBootupWatch.Timeout)
}

// probeLineSeparatorAndPrompt runs the line-separator probe then the prompt
// probe against the just-pushed top frame, each up to 4 attempts.
func (a *Agent) probeLineSeparatorAndPrompt() error {
	const maxAttempts = 4

	var lineSep string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		a.Flush(0)
		a.writeRaw([]byte("\r\n"))
		out, _, err := a.readUntilPatterns(inputPromptPatterns, 5*time.Second, true)
		if err != nil {
			continue
		}
		n := strings.Count(out, "\n")
		switch n {
		case 1:
			lineSep = "\r\n"
		case 2:
			lineSep = "\n"
		default:
			continue
		}
		break
	}
	if lineSep == "" {
		lineSep = "\n"
	}
	frame := a.stack[len(a.stack)-1]
	frame.LineSeparator = lineSep
	a.stack[len(a.stack)-1] = frame

	var validated string
	var prev string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		a.writeRaw([]byte(lineSep))
		out, _, _ := a.readUntilPatterns(inputPromptPatterns, 5*time.Second, true)
		candidate := lastNonBlank(cleanPromptCandidate(out))
		if candidate == "" {
			continue
		}
		if candidate == prev && hasTerminator(candidate) {
			validated = candidate
			break
		}
		prev = candidate
	}
	if validated == "" {
		return newError(KindConnection, "prompt probe mismatch for %s", a.stack[len(a.stack)-1].SessionLabel)
	}
	frame = a.stack[len(a.stack)-1]
	frame.Prompt = validated
	a.stack[len(a.stack)-1] = frame
	return nil
}

func targetHostFromArgv(argv []string) string {
	for _, tok := range argv[1:] {
		if strings.HasPrefix(tok, "-") {
			continue
		}
		return wordAfterAt(tok)
	}
	return ""
}

func serialPortFromArgv(argv []string) int {
	for _, tok := range argv {
		if p, err := strconv.Atoi(tok); err == nil {
			return p
		}
	}
	return 0
}

// hasTerminator reports whether line ends in one of the three input-prompt
// terminators ($, #, >), ignoring any number of trailing spaces (unlike
// inputPromptPatterns above, which allow at most three). Login-prompt
// terminators (:, ?) are a separate check (loginPromptPatterns) since only
// an input-prompt terminator is allowed to land in a committed Frame.Prompt.
func hasTerminator(line string) bool {
	trimmed := strings.TrimRight(line, " ")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '$', '#', '>':
		return true
	}
	return false
}

// validatePromptLine checks a candidate terminator line is a plausible
// session prompt. With requireUserToken false (Connect passes false for
// serial-port-mode telnet) any line passes; otherwise the line must contain
// the user token or the literal "IBMC-SLOT" marker for BMC shells. When no
// user is configured the user check is skipped as well.
func validatePromptLine(line, user string, requireUserToken bool) bool {
	if !requireUserToken {
		return true
	}
	if strings.Contains(line, "IBMC-SLOT") {
		return true
	}
	if user != "" && strings.Contains(line, user) {
		return true
	}
	return user == ""
}

func lastNonBlank(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r", "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

func removeKnownHosts() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	os.Remove(filepath.Join(home, ".ssh", "known_hosts"))
}
