package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/smazurov/devbooster/internal/logging"
)

// AppDirName is the per-user folder holding instances and history.
const AppDirName = "RockDevBooster"

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"devbooster.toml"`

	// Server settings
	Instance string `help:"Instance to run" short:"i" toml:"server.instance" env:"SERVER_INSTANCE"`
	Port     string `help:"Port for the web server" short:"p" default:"6229" toml:"server.port" env:"SERVER_PORT"`

	// Instance settings
	InstancesRoot         string `help:"Folder holding instance folders" toml:"instances.root" env:"INSTANCES_ROOT"`
	InstancesDetachOnExit bool   `help:"Detach the database when the web server exits on its own" default:"false" toml:"instances.detach_on_exit" env:"INSTANCES_DETACH_ON_EXIT"`

	// Database engine settings
	EngineName string `help:"LocalDB engine instance name" default:"RockDevBooster" toml:"engine.name" env:"ENGINE_NAME"`
	EngineTool string `help:"Path to the SqlLocalDB utility" default:"SqlLocalDB" toml:"engine.tool" env:"ENGINE_TOOL"`

	// Web server settings
	WebserverExecutable  string `help:"Path to iisexpress.exe (default: Program Files)" toml:"webserver.executable" env:"WEBSERVER_EXECUTABLE"`
	WebserverKillTimeout string `help:"How long to wait for a killed web server to exit" default:"10s" toml:"webserver.kill_timeout" env:"WEBSERVER_KILL_TIMEOUT"`
	WebserverReadyMarker string `help:"Output line that marks the web server ready" default:"IIS Express is running." toml:"webserver.ready_marker" env:"WEBSERVER_READY_MARKER"`

	// History and metrics
	HistoryPath     string `help:"Session history database (default: per-user app folder)" toml:"history.path" env:"HISTORY_PATH"`
	MetricsTextfile string `help:"Write Prometheus metrics to this file on exit" toml:"metrics.textfile" env:"METRICS_TEXTFILE"`

	// Logging settings
	LoggingLevel        string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat       string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingFile         string `help:"Also append logs to this file" toml:"logging.file" env:"LOGGING_FILE"`
	LoggingOrchestrator string `help:"Orchestrator logging level" default:"info" toml:"logging.orchestrator" env:"LOGGING_ORCHESTRATOR"`
	LoggingLocaldb      string `help:"Database engine logging level" default:"info" toml:"logging.localdb" env:"LOGGING_LOCALDB"`
	LoggingProcess      string `help:"Process supervisor logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingIisexpress   string `help:"Web server output logging level" default:"info" toml:"logging.iisexpress" env:"LOGGING_IISEXPRESS"`
	LoggingRegistry     string `help:"Instance registry logging level" default:"info" toml:"logging.registry" env:"LOGGING_REGISTRY"`
	LoggingHistory      string `help:"Session history logging level" default:"info" toml:"logging.history" env:"LOGGING_HISTORY"`
}

// LoggingConfig returns the configuration for logging.Initialize.
func (o *Options) LoggingConfig() logging.Config {
	return logging.Config{
		Level:   o.LoggingLevel,
		Format:  o.LoggingFormat,
		File:    o.LoggingFile,
		Modules: o.LoggingModules(),
	}
}

// LoggingModules returns the per-module levels for logging.Initialize.
func (o *Options) LoggingModules() map[string]string {
	return map[string]string{
		"orchestrator": o.LoggingOrchestrator,
		"localdb":      o.LoggingLocaldb,
		"process":      o.LoggingProcess,
		"iisexpress":   o.LoggingIisexpress,
		"registry":     o.LoggingRegistry,
		"history":      o.LoggingHistory,
	}
}

// KillTimeout parses WebserverKillTimeout, falling back to 10s.
func (o *Options) KillTimeout() time.Duration {
	d, err := time.ParseDuration(o.WebserverKillTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// ResolvedInstancesRoot returns InstancesRoot or the per-user default.
func (o *Options) ResolvedInstancesRoot() string {
	if o.InstancesRoot != "" {
		return o.InstancesRoot
	}
	return filepath.Join(AppDir(), "Instances")
}

// ResolvedHistoryPath returns HistoryPath or the per-user default.
func (o *Options) ResolvedHistoryPath() string {
	if o.HistoryPath != "" {
		return o.HistoryPath
	}
	return filepath.Join(AppDir(), "history.db")
}

// AppDir returns the per-user application folder.
func AppDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, AppDirName)
}
