package core

import (
	"path/filepath"
	"testing"
)

func TestGetSocketPath(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = GetDefaultConfig()
	Config.Set("config_path", "/tmp/test-autorobot")

	got := GetSocketPath()
	want := filepath.Join("/tmp/test-autorobot", SocketName)
	if got != want {
		t.Errorf("GetSocketPath() = %q, want %q", got, want)
	}
}

func TestGetHistoryDBPath(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = GetDefaultConfig()
	Config.Set("config_path", "/tmp/test-autorobot")

	got := GetHistoryDBPath()
	want := filepath.Join("/tmp/test-autorobot", "history.db")
	if got != want {
		t.Errorf("GetHistoryDBPath() = %q, want %q", got, want)
	}
}

func TestConstants(t *testing.T) {
	if BaseDirName != ".config/autorobot" {
		t.Errorf("BaseDirName = %q, want %q", BaseDirName, ".config/autorobot")
	}
	if SocketName != "autorobot.sock" {
		t.Errorf("SocketName = %q, want %q", SocketName, "autorobot.sock")
	}
}

func TestDefaultTunables(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = GetDefaultConfig()

	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"session.connect_retry", float64(GetSessionConnectRetry()), 3},
		{"session.recover_retry", float64(GetSessionRecoverRetry()), 3},
		{"session.prompt_retry", float64(GetSessionPromptRetry()), 4},
		{"session.prompt_retry_timeout", GetSessionPromptRetryTimeout(), 5.0},
		{"session.prompt_offset_range", float64(GetPromptOffsetRange()), 16},
		{"session.base_serial_port", float64(GetBaseSerialPort()), 2003},
		{"scheduler.max_sequences", float64(GetMaxSequences()), 5},
		{"scheduler.window_refresh_interval", GetWindowRefreshInterval(), 5.0},
		{"timeout.ssh", GetSSHTimeout(), 30.0},
		{"timeout.telnet", GetTelnetTimeout(), 20.0},
		{"timeout.local_command", GetLocalCommandTimeout(), 60.0},
		{"timeout.remote_command", GetRemoteCommandTimeout(), 120.0},
		{"timeout.intershell_command", GetIntershellCommandTimeout(), 300.0},
		{"timeout.host_ping", GetHostPingTimeout(), 8.0},
		{"timeout.send_intr", GetSendIntrTimeout(), 0.6},
		{"timeout.wait_passphrase", GetWaitPassphraseTimeout(), 5.0},
		{"timeout.delay_after_quit", GetDelayAfterQuit(), 0.8},
		{"timeout.delay_before_prompt_flush", GetDelayBeforePromptFlush(), 0.2},
		{"timeout.bootup_watch_period", GetBootupWatchPeriod(), 30.0},
		{"timeout.bootup_watch_timeout", GetBootupWatchTimeout(), 600.0},
		{"ipc.sock_retry_timeout", GetSockRetryTimeout(), 90.0},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if got := GetLocalShellPrompt(); got != ">>>" {
		t.Errorf("GetLocalShellPrompt() = %q, want %q", got, ">>>")
	}
}
