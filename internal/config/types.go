package config

// Config is the daemon's whole configuration surface. Everything the engine
// and ticker need is read from here and passed down by handle; no package
// reads configuration ambiently.
type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Engine  EngineConfig   `json:"engine"`
	History *HistoryConfig `json:"history,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// EngineConfig maps bar names to rule strings.
//
// A bar with an empty rule string falls back to DefaultRule (or the built-in
// default when that is empty too). ShowSeconds gates second-granularity
// bars: with it off they are simply not registered, so the scheduler never
// has to wake at per-second cadence for them.
type EngineConfig struct {
	ShowSeconds bool              `json:"show_seconds"`
	DefaultRule string            `json:"default_rule,omitempty"`
	Bars        map[string]string `json:"bars"`
}

// HistoryConfig controls the optional SQLite sample store.
// Durations are Go duration strings (e.g. "720h").
type HistoryConfig struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path"`
	BusyTimeout   string `json:"busy_timeout,omitempty"`
	MaxAge        string `json:"max_age,omitempty"`
	PruneSchedule string `json:"prune_schedule,omitempty"` // cron spec, default @daily
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
}
