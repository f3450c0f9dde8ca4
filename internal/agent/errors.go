package agent

import "fmt"

// ErrorKind tags which of the taxonomy's error kinds a Go error value
// carries, so the Worker can classify it in exactly one place
// (worker.classify) without type-switching on every concrete error type.
type ErrorKind int

const (
	KindExpect ErrorKind = iota
	KindTimeout
	KindInvalidCommand
	KindSendMiswrite
	KindConnection
	KindContext
	KindPtyDied
	KindFileNotFound
	KindRecovery
	KindSequenceParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindExpect:
		return "Expect"
	case KindTimeout:
		return "Timeout"
	case KindInvalidCommand:
		return "InvalidCommand"
	case KindSendMiswrite:
		return "SendMiswrite"
	case KindConnection:
		return "Connection"
	case KindContext:
		return "Context"
	case KindPtyDied:
		return "PtyDied"
	case KindFileNotFound:
		return "FileNotFound"
	case KindRecovery:
		return "Recovery"
	case KindSequenceParse:
		return "SequenceParse"
	default:
		return "Unknown"
	}
}

// AgentError is the single error type raised by Agent operations. It
// carries a prompt/output snapshot for error-dump files, matching the
// "Exception-driven control flow" design note's Result<Output, ErrorKind>
// model.
type AgentError struct {
	Kind    ErrorKind
	Message string
	Prompt  string
	Output  string
}

func (e *AgentError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

func newError(kind ErrorKind, format string, args ...any) *AgentError {
	return &AgentError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func newErrorWithSnapshot(kind ErrorKind, prompt, output string, format string, args ...any) *AgentError {
	return &AgentError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Prompt:  prompt,
		Output:  output,
	}
}
