package agent

import (
	"time"

	"github.com/mingsxs/UCS-AutoRobot/internal/sequence"
)

// maybeTriggerIntershell checks whether the last path component of a send
// command's argument matches a registered diagnostic-image regex; if so it
// transitions the current frame into intershell mode without pushing a new
// Frame, per §4.2.3.
func (a *Agent) maybeTriggerIntershell(cmd sequence.Command) {
	if len(cmd.Argv) == 0 {
		return
	}
	last := lastPathComponent(cmd.Argv[len(cmd.Argv)-1])
	img, ok := sequence.MatchIntershellImage(last)
	if !ok {
		return
	}
	a.intershell = IntershellState{
		Active:     true,
		Name:       img.Name,
		ExitCmd:    img.ExitCmd,
		InitWait:   img.InitWait,
		Terminator: img.Terminator.String(),
	}
	time.Sleep(time.Duration(img.InitWait * float64(time.Second)))
}

// exitIntershell sends the configured exit sequence (plain text, or a
// ctrl+x+y control combo) and clears the intershell sub-mode.
func (a *Agent) exitIntershell() error {
	if !a.intershell.Active {
		return nil
	}
	exitCmd := a.intershell.ExitCmd
	if len(exitCmd) > 5 && exitCmd[:5] == "ctrl+" {
		for _, ch := range exitCmd[5:] {
			if ch == '+' {
				continue
			}
			if err := a.SendControl(byte(ch)); err != nil {
				return err
			}
		}
	} else {
		if err := a.ensureSendLine(exitCmd, false); err != nil {
			return err
		}
	}
	a.intershell = IntershellState{}
	return nil
}
