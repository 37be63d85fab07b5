// Package config builds the Supervisor's Config value by merging, in
// precedence order, built-in defaults, an optional config file,
// environment variables, and CLI flags; flags win.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServerSpec describes one Server definition the supervisor forks workers
// for, as carried in a config file/flags rather than constructed in
// code.
type ServerSpec struct {
	Name         string   `mapstructure:"name"`
	Transport    string   `mapstructure:"transport"` // tcp, udp, unix, ssl
	Addr         string   `mapstructure:"addr"`
	ReusePort    bool     `mapstructure:"reuse_port"`
	WorkerCount  int      `mapstructure:"worker_count"`
	Reloadable   bool     `mapstructure:"reloadable"`
	CodecScheme  string   `mapstructure:"codec"` // length, text, http, ws, wss
	Subprotocols []string `mapstructure:"subprotocols"`
	TLSCertFile  string   `mapstructure:"tls_cert"`
	TLSKeyFile   string   `mapstructure:"tls_key"`
}

// Config is a value, not a singleton; it is passed by value into
// Supervisor.RunAll.
type Config struct {
	RuntimeDir  string        `mapstructure:"runtime_dir"`
	PIDFile     string        `mapstructure:"pid_file"`
	LogFile     string        `mapstructure:"log_file"`
	StatusFile  string        `mapstructure:"status_file"`
	Servers     []ServerSpec  `mapstructure:"servers"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	Daemonize   bool          `mapstructure:"daemonize"`
	Graceful    bool          `mapstructure:"graceful"`
	Quiet       bool          `mapstructure:"quiet"`

	// EventLoopDriver selects a specific event-loop driver;
	// TraceCallbacks enables tracing-mode wrapping of callbacks.
	EventLoopDriver string
	TraceCallbacks  bool
}

// Default returns the built-in baseline every other source overrides.
func Default() Config {
	return Config{
		RuntimeDir:  "/var/run/netcored",
		PIDFile:     "/var/run/netcored/netcored.pid",
		LogFile:     "/var/log/netcored/netcored.log",
		StatusFile:  "/var/run/netcored/netcored.status",
		StopTimeout: 2 * time.Second,
	}
}

// Load merges Default() with an optional config file, NETCORED_-prefixed
// environment variables, and any flags already registered on cmd, in that
// precedence order.
func Load(cmd *cobra.Command, configFile string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("NETCORED")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	if v.IsSet("runtime_dir") {
		cfg.RuntimeDir = v.GetString("runtime_dir")
	}
	if v.IsSet("pid_file") {
		cfg.PIDFile = v.GetString("pid_file")
	}
	if v.IsSet("log_file") {
		cfg.LogFile = v.GetString("log_file")
	}
	if v.IsSet("status_file") {
		cfg.StatusFile = v.GetString("status_file")
	}
	if v.IsSet("stop_timeout") {
		cfg.StopTimeout = v.GetDuration("stop_timeout")
	}
	if v.IsSet("daemonize") {
		cfg.Daemonize = v.GetBool("daemonize")
	}
	if v.IsSet("graceful") {
		cfg.Graceful = v.GetBool("graceful")
	}
	if v.IsSet("quiet") {
		cfg.Quiet = v.GetBool("quiet")
	}
	if v.IsSet("servers") {
		if err := v.UnmarshalKey("servers", &cfg.Servers); err != nil {
			return Config{}, fmt.Errorf("config: servers: %w", err)
		}
	}

	// These two are read directly rather than through viper's
	// NETCORED_-prefixed AutomaticEnv, since eventloop.New itself reads
	// NETCORED_EVENT_LOOP via os.Getenv and must see the exact same value
	// this Config reports.
	cfg.EventLoopDriver = os.Getenv("NETCORED_EVENT_LOOP")
	cfg.TraceCallbacks = os.Getenv("NETCORED_TRACE_CALLBACKS") == "1"

	return cfg, nil
}
