package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogPath_RoutesBySuffix(t *testing.T) {
	if got := NewLogPath("switch.seq", ""); !strings.HasPrefix(got, filepath.Clean(LogDir)+"/") {
		t.Errorf("plain log path = %q, want prefix %q", got, filepath.Clean(LogDir)+"/")
	}
	if got := NewLogPath("switch.seq", "failure"); !strings.HasPrefix(got, filepath.Clean(FailureLogDir)+"/") {
		t.Errorf("failure log path = %q, want prefix %q", got, filepath.Clean(FailureLogDir)+"/")
	}
	if got := NewLogPath("switch.seq", "errordump"); !strings.HasPrefix(got, filepath.Clean(ErrorDumpDir)+"/") {
		t.Errorf("errordump log path = %q, want prefix %q", got, filepath.Clean(ErrorDumpDir)+"/")
	}
}

func TestNewSocketName_UniqueWhenTaken(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(cwd)

	first := NewSocketName("switch_reload.seq")
	if first != "./.uds_switch_reload.sock" {
		t.Errorf("first candidate = %q", first)
	}

	os.WriteFile(first, nil, 0o644)

	second := NewSocketName("switch_reload.seq")
	if second == first {
		t.Error("expected a distinct socket name once the plain name is taken")
	}
}
