package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	BaseDirName = ".config/autorobot"
	SocketName  = "autorobot.sock"
)

// Config is the process-wide configuration instance. It is populated once at
// startup by InitializeConfig and then treated as read-only, matching the
// distilled spec's design note to lift global mutable state into a single
// immutable Config passed to each process at start.
var Config *viper.Viper

var globalFlagsToConfigKey = map[string]string{
	"config-path": "config_path",
	"verbose":     "verbose",
}

// GetSocketPath returns the default IPC control socket path under the
// config directory. A Master does not listen on it: it listens on a
// per-sequence name built by NewSocketName.
func GetSocketPath() string {
	return filepath.Join(Config.GetString("config_path"), SocketName)
}

// GetHistoryDBPath returns the path of the SQLite run-history database.
func GetHistoryDBPath() string {
	return filepath.Join(Config.GetString("config_path"), "history.db")
}

func GetStopOnFailure() bool               { return Config.GetBool("session.stop_on_failure") }
func GetSessionConnectRetry() int          { return Config.GetInt("session.connect_retry") }
func GetSessionRecoverRetry() int          { return Config.GetInt("session.recover_retry") }
func GetSessionPromptRetry() int           { return Config.GetInt("session.prompt_retry") }
func GetSessionPromptRetryTimeout() float64 { return Config.GetFloat64("session.prompt_retry_timeout") }
func GetMaxSequences() int                 { return Config.GetInt("scheduler.max_sequences") }
func GetWindowRefreshInterval() float64    { return Config.GetFloat64("scheduler.window_refresh_interval") }
func GetPromptOffsetRange() int            { return Config.GetInt("session.prompt_offset_range") }
func GetBaseSerialPort() int               { return Config.GetInt("session.base_serial_port") }
func GetLocalShellPrompt() string          { return Config.GetString("session.local_shell_prompt") }

func GetSSHTimeout() float64            { return Config.GetFloat64("timeout.ssh") }
func GetTelnetTimeout() float64         { return Config.GetFloat64("timeout.telnet") }
func GetConnectHostTimeout() float64    { return Config.GetFloat64("timeout.connect_host") }
func GetDefaultConnectTimeout() float64 { return Config.GetFloat64("timeout.default_connect") }
func GetLocalCommandTimeout() float64   { return Config.GetFloat64("timeout.local_command") }
func GetRemoteCommandTimeout() float64  { return Config.GetFloat64("timeout.remote_command") }
func GetIntershellCommandTimeout() float64 {
	return Config.GetFloat64("timeout.intershell_command")
}
func GetHostPingTimeout() float64       { return Config.GetFloat64("timeout.host_ping") }
func GetSendIntrTimeout() float64       { return Config.GetFloat64("timeout.send_intr") }
func GetWaitPassphraseTimeout() float64 { return Config.GetFloat64("timeout.wait_passphrase") }
func GetDelayAfterQuit() float64        { return Config.GetFloat64("timeout.delay_after_quit") }
func GetDelayBeforePromptFlush() float64 {
	return Config.GetFloat64("timeout.delay_before_prompt_flush")
}
func GetBootupWatchPeriod() float64  { return Config.GetFloat64("timeout.bootup_watch_period") }
func GetBootupWatchTimeout() float64 { return Config.GetFloat64("timeout.bootup_watch_timeout") }
func GetSockRetryTimeout() float64   { return Config.GetFloat64("ipc.sock_retry_timeout") }
func GetBuiltinMonitorInterval() float64 {
	return Config.GetFloat64("session.builtin_monitor_interval")
}

// InitializeConfig loads the TOML config file (creating it with defaults on
// first run), binds environment variables, and reconciles persistent CLI
// flags with stored config values -- mirroring the teacher's
// core.InitializeConfig almost line for line.
func InitializeConfig(cmd *cobra.Command) ([]string, error) {
	Config = viper.New()

	configPath, err := cmd.Flags().GetString("config-path")
	if err != nil {
		panic("unable to determine config path")
	}
	Config.AddConfigPath(configPath)
	Config.SetConfigName("config")
	Config.SetConfigType("toml")

	setDefaults(Config)

	Config.SetEnvPrefix("autorobot")
	Config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Config.AutomaticEnv()

	if err := Config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := os.MkdirAll(configPath, 0o755); err != nil {
				panic(err)
			}
			Config.SafeWriteConfig()
		} else {
			panic(err)
		}
	}

	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			configKey, ok := globalFlagsToConfigKey[f.Name]
			if !ok {
				return
			}
			if !f.Changed && Config.IsSet(configKey) {
				cmd.Flags().Set(f.Name, fmt.Sprintf("%v", Config.Get(configKey)))
			} else {
				Config.Set(configKey, fmt.Sprintf("%v", f.Value))
			}
		})
	}

	return nil, nil
}

// setDefaults installs every tunable named in the spec's Data Model as a
// viper default, so it can be overridden per-deployment without a rebuild.
func setDefaults(v *viper.Viper) {
	v.SetDefault("verbose", 0)

	v.SetDefault("session.local_shell_prompt", ">>>")
	v.SetDefault("session.stop_on_failure", false)
	v.SetDefault("session.connect_retry", 3)
	v.SetDefault("session.recover_retry", 3)
	v.SetDefault("session.prompt_retry", 4)
	v.SetDefault("session.prompt_retry_timeout", 5.0)
	v.SetDefault("session.prompt_offset_range", 16)
	v.SetDefault("session.base_serial_port", 2003)
	v.SetDefault("session.builtin_monitor_interval", 5.0)

	v.SetDefault("scheduler.max_sequences", 5)
	v.SetDefault("scheduler.window_refresh_interval", 5.0)

	v.SetDefault("timeout.ssh", 30.0)
	v.SetDefault("timeout.telnet", 20.0)
	v.SetDefault("timeout.connect_host", 5.0)
	v.SetDefault("timeout.default_connect", 15.0)
	v.SetDefault("timeout.local_command", 60.0)
	v.SetDefault("timeout.remote_command", 120.0)
	v.SetDefault("timeout.intershell_command", 300.0)
	v.SetDefault("timeout.host_ping", 8.0)
	v.SetDefault("timeout.send_intr", 0.6)
	v.SetDefault("timeout.wait_passphrase", 5.0)
	v.SetDefault("timeout.delay_after_quit", 0.8)
	v.SetDefault("timeout.delay_before_prompt_flush", 0.2)
	v.SetDefault("timeout.bootup_watch_period", 30.0)
	v.SetDefault("timeout.bootup_watch_timeout", 600.0)

	v.SetDefault("ipc.sock_retry_timeout", 90.0)
}

// GetDefaultConfig returns a standalone viper instance populated with
// defaults only, for use by tests that don't want to touch the filesystem.
func GetDefaultConfig() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}
