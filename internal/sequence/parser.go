package sequence

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Parse reads a sequence file and returns its parsed Commands plus any
// SUBSEQUENCE ranges registered along the way.
//
// Per the resolved Open Question on SUBSEQUENCE/LOOP registration, ranges
// are registered during this same parse pass: a SUBSEQUENCE <name> line
// opens a range at the current command index, END-SUBSEQUENCE closes it.
func Parse(path string) (*Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sequence file: %w", err)
	}
	defer f.Close()

	seq := &Sequence{
		Path:         path,
		Subsequences: make(map[string]Range),
	}

	var openName string
	var openStart int
	lineNum := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var pending strings.Builder
	var pendingStartLine int

	flushLine := func(raw string, startLine int) error {
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			return nil
		}
		cmd, err := parseLine(line, filepath.Dir(path))
		if err != nil {
			return fmt.Errorf("line %d: %w", startLine, err)
		}
		if cmd == nil {
			return nil
		}
		cmd.LineNumber = startLine

		switch cmd.Builtin {
		case BuiltinSubsequence:
			openName = cmd.SubsequenceName
			openStart = len(seq.Commands)
			return nil
		case BuiltinEndSubsequence:
			if openName != "" {
				seq.Subsequences[openName] = Range{Start: openStart, End: len(seq.Commands)}
				openName = ""
			}
			return nil
		}

		seq.Commands = append(seq.Commands, *cmd)
		return nil
	}

	for scanner.Scan() {
		lineNum++
		raw := scanner.Text()

		trimmed := strings.TrimRight(raw, "\r\n")
		if strings.HasSuffix(trimmed, `\`) && !strings.HasSuffix(trimmed, `\\`) {
			if pending.Len() == 0 {
				pendingStartLine = lineNum
			}
			pending.WriteString(strings.TrimSuffix(trimmed, `\`))
			continue
		}

		if pending.Len() > 0 {
			pending.WriteString(trimmed)
			if err := flushLine(pending.String(), pendingStartLine); err != nil {
				return nil, err
			}
			pending.Reset()
			continue
		}

		if err := flushLine(trimmed, lineNum); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sequence file: %w", err)
	}
	if pending.Len() > 0 {
		if err := flushLine(pending.String(), pendingStartLine); err != nil {
			return nil, err
		}
	}

	finalize(seq)
	return seq, nil
}

// stripComment removes a '#'-introduced trailing comment, ignoring any '#'
// that was escaped with a backslash.
func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] == '#' && (i == 0 || line[i-1] != '\\') {
			return line[:i]
		}
	}
	return line
}

// itemSplit splits line on delimiter, treating a backslash as an escape for
// the delimiter itself (so "\," and "\;" survive as literal characters).
func itemSplit(line string, delimiter byte) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '\\' && i+1 < len(line) && line[i+1] == delimiter {
			cur.WriteByte(delimiter)
			i++
			continue
		}
		if c == delimiter {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	parts = append(parts, cur.String())
	return parts
}

func parseExpectField(field string) []string {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}
	if field == "PROMPT" || field == `"PROMPT"` || field == "'PROMPT'" {
		return nil
	}
	items := itemSplit(field, ',')
	var out []string
	for _, it := range items {
		it = strings.TrimSpace(strings.Trim(it, `"'`))
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

// parseLine parses one logical (continuation-joined, comment-stripped)
// sequence-file line into a Command. baseDir is the directory the sequence
// file lives in, used to resolve NEW_WORKER's relative sequence-file paths.
func parseLine(line string, baseDir string) (*Command, error) {
	fields := itemSplit(line, ';')
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) == 0 || fields[0] == "" {
		return nil, nil
	}

	head := fields[0]
	bgRun := false
	if strings.HasSuffix(head, "&") {
		bgRun = true
		head = strings.TrimSpace(strings.TrimSuffix(head, "&"))
	}

	argv := strings.Fields(head)
	if len(argv) == 0 {
		return nil, nil
	}
	word := argv[0]

	cmd := &Command{
		Argv:    argv,
		Command: head,
		BgRun:   bgRun,
	}

	if kind, ok := matchBuiltin(word); ok {
		cmd.Kind = KindBuiltin
		cmd.Builtin = kind
		return parseBuiltinArgs(cmd, argv, fields, baseDir)
	}

	if isConnectCommand(word) {
		return parseConnect(cmd, argv, fields)
	}

	cmd.Kind = KindSend
	if len(fields) > 1 {
		cmd.Expect = parseExpectField(fields[1])
	}
	if len(fields) > 2 {
		cmd.Escape = parseExpectField(fields[2])
	}
	if len(fields) > 3 {
		cmd.Timeout = parseTimeoutField(fields[3])
	}
	return cmd, nil
}

func parseTimeoutField(field string) float64 {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseConnect(cmd *Command, argv []string, fields []string) (*Command, error) {
	cmd.Kind = KindConnect

	if len(fields) > 1 && fields[1] != "" {
		login := itemSplit(fields[1], ',')
		if len(login) > 0 {
			cmd.User = strings.TrimSpace(login[0])
		}
		if len(login) > 1 {
			cmd.Password = strings.TrimSpace(login[1])
		} else {
			// A user@host target already names the user; the single login
			// item is then the password.
			for _, tok := range argv[1:] {
				if i := strings.Index(tok, "@"); i > 0 && !strings.HasPrefix(tok, "-") {
					cmd.Password, cmd.User = cmd.User, tok[:i]
					break
				}
			}
		}
	}
	if len(fields) > 2 {
		cmd.BootExpect = parseExpectField(fields[2])
	}
	if len(fields) > 3 {
		cmd.BootEscape = parseExpectField(fields[3])
	}
	if len(fields) > 4 {
		cmd.Timeout = parseTimeoutField(fields[4])
	}
	return cmd, nil
}

func parseBuiltinArgs(cmd *Command, argv []string, fields []string, baseDir string) (*Command, error) {
	rest := argv[1:]

	switch cmd.Builtin {
	case BuiltinWait:
		if len(rest) > 0 {
			cmd.WaitDuration = rest[0]
		}
	case BuiltinSetPrompt:
		if len(rest) > 0 {
			cmd.NewPrompt = strings.Join(rest, " ")
		}
	case BuiltinFind:
		if len(rest) > 0 {
			cmd.TargetFile = rest[0]
		}
		if len(rest) > 1 {
			cmd.SearchDirs = strings.Split(rest[1], ",")
			for i := range cmd.SearchDirs {
				cmd.SearchDirs[i] = strings.TrimSpace(cmd.SearchDirs[i])
			}
		}
	case BuiltinMonitor:
		if len(rest) > 0 {
			cmd.InnerCommand = rest[0]
		}
		if len(rest) > 1 {
			cmd.Watch = strings.Split(rest[1], ",")
			for i := range cmd.Watch {
				cmd.Watch[i] = strings.TrimSpace(cmd.Watch[i])
			}
		}
		if len(rest) > 2 {
			if v, err := strconv.ParseFloat(rest[2], 64); err == nil {
				cmd.Interval = v
			}
		}
		if cmd.Interval == 0 {
			cmd.Interval = 5.0
		}
	case BuiltinNewWorker:
		if len(rest) > 0 {
			seqPath := rest[0]
			if !filepath.IsAbs(seqPath) {
				seqPath = filepath.Join(baseDir, seqPath)
			}
			cmd.SequenceFile = seqPath
		}
		if len(rest) > 1 {
			if v, err := strconv.Atoi(rest[1]); err == nil {
				cmd.Loops = v
			}
		}
		if cmd.Loops == 0 {
			cmd.Loops = 1
		}
		for _, tok := range rest {
			if tok == "WAIT" {
				cmd.WaitForChild = true
			}
		}
		if strings.Contains(cmd.Command, "RUN-SEQUENCE-WAIT") {
			cmd.WaitForChild = true
		}
	case BuiltinSubsequence:
		if len(rest) > 0 {
			cmd.SubsequenceName = rest[0]
		}
	case BuiltinLoop:
		if len(rest) > 0 {
			cmd.SubsequenceName = rest[0]
		}
		if len(rest) > 1 {
			if v, err := strconv.Atoi(rest[1]); err == nil {
				cmd.LoopCount = v
			}
		}
	}

	return cmd, nil
}

// finalize applies the two sequence-wide passes the original performs after
// line-by-line parsing: marking trailing-'&' commands as background (done
// inline during parseLine here) and flagging the Send command immediately
// after a password-style expect as a passphrase prompt whose text should
// not be echoed to the log.
func finalize(seq *Sequence) {
	for i := 1; i < len(seq.Commands); i++ {
		prev := seq.Commands[i-1]
		if prev.Kind != KindSend {
			continue
		}
		for _, e := range prev.Expect {
			if strings.Contains(strings.ToLower(e), "password") || strings.Contains(strings.ToLower(e), "passphrase") {
				seq.Commands[i].WaitPassphrase = true
				seq.Commands[i].TextInvisible = true
			}
		}
	}
}
