// Package logx is a small structured logging facade over zerolog.
//
// It exists for components that run before (or independently of) the
// slog-based logging service: the config manager and the daemon bootstrap.
// The zero Logger value is a safe no-op.
package logx
