package agent

import (
	"testing"

	"github.com/mingsxs/UCS-AutoRobot/internal/sequence"
)

func TestRunningLocally_EmptyStack(t *testing.T) {
	a := New(nil)
	if !a.RunningLocally() {
		t.Error("expected RunningLocally() true for empty stack (I1)")
	}
}

func TestCurrentFrame_DefaultsToLocalShell(t *testing.T) {
	a := New(nil)
	f := a.CurrentFrame()
	if f.Prompt != localShellPrompt {
		t.Errorf("Prompt = %q, want %q", f.Prompt, localShellPrompt)
	}
}

func TestCheckExpectEscape_EmptyListNeverFails(t *testing.T) {
	a := New(nil)
	cmd := sequence.Command{}
	if err := a.checkExpectEscape(cmd, "anything at all"); err != nil {
		t.Errorf("expected no error for empty expect/escape (P9), got %v", err)
	}
}

func TestCheckExpectEscape_MissingExpect(t *testing.T) {
	a := New(nil)
	cmd := sequence.Command{Expect: []string{"WORLD"}}
	err := a.checkExpectEscape(cmd, "hello")
	if err == nil {
		t.Fatal("expected Expect error for missing pattern")
	}
	aerr, ok := err.(*AgentError)
	if !ok || aerr.Kind != KindExpect {
		t.Errorf("expected KindExpect, got %v", err)
	}
}

func TestCheckExpectEscape_EscapePresent(t *testing.T) {
	a := New(nil)
	cmd := sequence.Command{Escape: []string{"ERROR"}}
	err := a.checkExpectEscape(cmd, "an ERROR occurred")
	if err == nil {
		t.Fatal("expected Expect error for present escape pattern")
	}
}

func TestCheckCommandOutput_MiswriteOnMissingEcho(t *testing.T) {
	a := New(nil)
	err := a.checkCommandOutput("show", "show version", "totally unrelated output")
	if err == nil {
		t.Fatal("expected SendMiswrite error")
	}
	aerr := err.(*AgentError)
	if aerr.Kind != KindSendMiswrite {
		t.Errorf("expected KindSendMiswrite, got %v", aerr.Kind)
	}
}

func TestCheckCommandOutput_InvalidCommandLexicon(t *testing.T) {
	a := New(nil)
	err := a.checkCommandOutput("frobnicate", "frobnicate", "frobnicate\r\ncommand not found\r\n")
	if err == nil {
		t.Fatal("expected InvalidCommand error")
	}
	aerr := err.(*AgentError)
	if aerr.Kind != KindInvalidCommand {
		t.Errorf("expected KindInvalidCommand, got %v", aerr.Kind)
	}
}

func TestCheckCommandOutput_BypassCommand(t *testing.T) {
	a := New(nil)
	err := a.checkCommandOutput("ls", "ls", "ls\r\npermission denied.txt\r\n")
	if err != nil {
		t.Errorf("expected bypass command to skip lexicon check, got %v", err)
	}
}

func TestValidatePromptLine(t *testing.T) {
	if !validatePromptLine("admin@switch1# ", "admin", true) {
		t.Error("expected prompt containing user token to validate")
	}
	if !validatePromptLine("IBMC-SLOT1# ", "someuser", true) {
		t.Error("expected IBMC-SLOT marker to validate regardless of user token")
	}
	if validatePromptLine("switch1# ", "admin", true) {
		t.Error("expected prompt without user token or IBMC-SLOT to fail validation")
	}
	if !validatePromptLine("switch1# ", "admin", false) {
		t.Error("expected serial-mode (requireUserToken=false) to skip the user check")
	}
}

func TestFuzzyComplementOf(t *testing.T) {
	if got := fuzzyComplementOf("show version", "show version"); got != "" {
		t.Errorf("fuzzyComplementOf(sent, sent) = %q, want empty (P8)", got)
	}
}
