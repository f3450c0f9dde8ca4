package sequence

import "regexp"

// connectPatterns matches the first token of a command line that should be
// parsed as a Connect step rather than a plain Send.
var connectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^ssh$`),
	regexp.MustCompile(`^telnet$`),
	regexp.MustCompile(`^connect$`),
}

// quitPatterns matches the builtin QUIT spellings a sequence file may use.
var quitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^quit$`),
	regexp.MustCompile(`^exit$`),
	regexp.MustCompile(`^ctrl-\]$`),
	regexp.MustCompile(`^ctrl-x$`),
}

// builtinTokens maps the exact, case-sensitive first token of a command
// line to the builtin it invokes. This mirrors the original's
// COMMAND_ACTION_MAPPING table.
var builtinTokens = map[string]BuiltinKind{
	"CTRL-C":           BuiltinIntr,
	"CLOSE":            BuiltinClose,
	"SEND-PULSE":       BuiltinPulse,
	"END-PULSE":        BuiltinPulse,
	"WAIT":             BuiltinWait,
	"SET-PROMPT":       BuiltinSetPrompt,
	"SEND-ENTER":       BuiltinEnter,
	"FIND":             BuiltinFind,
	"MONITOR":          BuiltinMonitor,
	"RUN-SEQUENCE":     BuiltinNewWorker,
	"RUN-SEQUENCE-WAIT": BuiltinNewWorker,
	"SUBSEQUENCE":      BuiltinSubsequence,
	"END-SUBSEQUENCE":  BuiltinEndSubsequence,
	"LOOP":             BuiltinLoop,
}

// matchBuiltin reports the BuiltinKind for word, if any, checking both the
// fixed token table and the quit-pattern family.
func matchBuiltin(word string) (BuiltinKind, bool) {
	if kind, ok := builtinTokens[word]; ok {
		return kind, true
	}
	for _, p := range quitPatterns {
		if p.MatchString(word) {
			return BuiltinQuit, true
		}
	}
	return BuiltinNone, false
}

// isConnectCommand reports whether word is the first token of a Connect
// step (ssh/telnet/connect host).
func isConnectCommand(word string) bool {
	for _, p := range connectPatterns {
		if p.MatchString(word) {
			return true
		}
	}
	return false
}

// intershellImage matches the last path component of a send command's
// argument against the registered diagnostic-image regexes; a match
// transitions the current frame into intershell mode.
type intershellImage struct {
	Name       string
	ImageRegex *regexp.Regexp
	ExitCmd    string
	InitWait   float64
	Terminator *regexp.Regexp
}

// IntershellImages is the registered set of diagnostic binaries that, once
// launched, replace the host shell's command interpreter until exited.
var IntershellImages = []intershellImage{
	{
		Name:       "bmc_diag",
		ImageRegex: regexp.MustCompile(`^udibmc_.*(\.stripped)?$`),
		ExitCmd:    "exit",
		InitWait:   5.0,
		Terminator: regexp.MustCompile(`% {0,3}$`),
	},
	{
		Name:       "efi_diag",
		ImageRegex: regexp.MustCompile(`^Dsh\.efi$`),
		ExitCmd:    "exit",
		InitWait:   3.0,
		Terminator: regexp.MustCompile(`> {0,3}$`),
	},
	{
		Name:       "i2c_uart",
		ImageRegex: regexp.MustCompile(`^i2c_uart.*$`),
		ExitCmd:    "ctrl+p+d",
		InitWait:   3.0,
		Terminator: regexp.MustCompile(`> {0,3}$`),
	},
}

// MatchIntershellImage returns the registered intershell image whose
// ImageRegex matches the last path component of arg, if any.
func MatchIntershellImage(lastPathComponent string) (intershellImage, bool) {
	for _, img := range IntershellImages {
		if img.ImageRegex.MatchString(lastPathComponent) {
			return img, true
		}
	}
	return intershellImage{}, false
}
