package agent

// Frame is one nested shell in the Agent's session stack. All per-session
// state lives here rather than being mirrored onto the Agent itself, per
// the "Frame stack" design note.
type Frame struct {
	TargetHost   string
	SessionLabel string

	User     string
	Password string

	Prompt        string
	LineSeparator string

	SerialPortMode bool
	CiscoSolMode   bool

	CommandTimeout float64
}

// SerialConnect reports whether this frame represents a serial-style
// console connection (serial-port-mode telnet or a Cisco SOL session),
// the union resolved for the IBMC-SLOT suppression Open Question.
func (f Frame) SerialConnect() bool {
	return f.SerialPortMode || f.CiscoSolMode
}

// IntershellState tracks the current frame's intershell sub-mode, if any.
// Intershell does not push a new Frame; it is a mode switch within the
// current top frame.
type IntershellState struct {
	Active     bool
	Name       string
	ExitCmd    string
	InitWait   float64
	Terminator string
}
