// Package logging provides structured logging with per-module log level configuration.
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Appends to Config.File when one is set (useful on Windows, which has
//     no journal)
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"orchestrator": "debug",
//			"iisexpress":   "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("localdb")
//	logger.Info("Engine started", "engine", name)
//
// Loggers obtained before Initialize are cached and pick up the configured
// level once Initialize runs.
//
// Module-specific levels override the global level for that module only:
//
//	[logging]
//	level = "info"
//	format = "text"
//	file = "C:/Users/me/AppData/Roaming/RockDevBooster/devbooster.log"
//
//	[logging.modules]
//	orchestrator = "debug"
//	iisexpress = "warn"
//
// Journal entries carry SYSLOG_IDENTIFIER=devbooster:
//
//	journalctl -t devbooster MODULE=orchestrator
package logging
