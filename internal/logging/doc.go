// Package logging provides slog loggers with per-module levels.
//
// Each module gets its own logger and level:
//
//	logger := logging.GetLogger("hal")
//	logger.Info("Rescanned devices", "count", n)
//
// Output goes to stdout (text or json) when stdout is attached, to the
// systemd journal when journald is reachable, and always to an in-memory
// ring buffer that backs the log tail endpoint. Journal entries carry the
// identifier "audionode" and every attribute as an upper-case field:
//
//	journalctl -t audionode MODULE=streams
//	journalctl -t audionode STREAM_ID=3f0c...
//
// Levels are read from the [logging] table:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	hal = "debug"
//	streams = "warn"
//
// SetLevels applies a reloaded table without rebuilding outputs.
package logging
