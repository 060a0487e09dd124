// Package logging owns the daemon's slog logger: a hot-swappable handler
// fanning out to console and file sinks, reconfigurable at runtime without
// replacing the *slog.Logger handed to services.
package logging
