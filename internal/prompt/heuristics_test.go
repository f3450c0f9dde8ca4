package prompt

import "testing"

func TestStripANSI(t *testing.T) {
	in := "\x1b[32mOK\x1b[0m done"
	want := "OK done"
	if got := StripANSI(in); got != want {
		t.Errorf("StripANSI(%q) = %q, want %q", in, got, want)
	}
}

func TestStripLeadingTimestamp(t *testing.T) {
	in := "Mon Jan 02 15:04:05 switch1# "
	want := "switch1# "
	if got := StripLeadingTimestamp(in); got != want {
		t.Errorf("StripLeadingTimestamp(%q) = %q, want %q", in, got, want)
	}
}

func TestLastNonBlankLine(t *testing.T) {
	in := "line one\nline two\r\n\n"
	want := "line two"
	if got := LastNonBlankLine(in); got != want {
		t.Errorf("LastNonBlankLine(%q) = %q, want %q", in, got, want)
	}
}

func TestHasTerminatorChar(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"switch1# ", true},
		{"switch1#", true},
		{"user@host:~$ ", true},
		{"Password: ", false}, // login-prompt terminator, not input-prompt
		{"Continue? ", false}, // login-prompt terminator, not input-prompt
		{"just text", false},
		{"", false},
		{"switch1#     ", false}, // more than 3 trailing spaces
	}
	for _, c := range cases {
		if got := HasTerminatorChar(c.line); got != c.want {
			t.Errorf("HasTerminatorChar(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

func TestIsDuplicatedHalf(t *testing.T) {
	if !IsDuplicatedHalf("switch1# switch1# ") {
		t.Error("expected duplicated-half prompt to be detected")
	}
	if IsDuplicatedHalf("switch1# ") {
		t.Error("did not expect a plain prompt to be flagged as duplicated")
	}
}

func TestFuzzyComplement(t *testing.T) {
	prompt := "switch1# "
	if !FuzzyComplement(prompt, "some output\rswitch1# ") {
		t.Error("expected fuzzy complement to match with embedded CR")
	}
	if !FuzzyComplement(prompt, "sw\ritch1# ") {
		t.Error("expected fuzzy complement to match with CR mid-prompt")
	}
	if FuzzyComplement(prompt, "totally different") {
		t.Error("did not expect unrelated text to match")
	}
}

func TestSearchCommandInEcho(t *testing.T) {
	cases := []struct {
		cmd, out string
		want     bool
	}{
		{"show version", "show version\r\n", true},
		{"show version", "show\r version\r\n", true},
		{"show version", "show ver\rsion\r\n", true},
		{"show version", "completely unrelated", false},
		{"", "anything", true},
	}
	for _, c := range cases {
		if got := SearchCommandInEcho(c.cmd, c.out); got != c.want {
			t.Errorf("SearchCommandInEcho(%q, %q) = %v, want %v", c.cmd, c.out, got, c.want)
		}
	}
}
