package config

import (
	"reflect"
	"sort"
	"strings"

	"chronobar/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections, structured
// attrs suitable for logging, and the names of bars whose rule changed
// (added, removed, or rewritten).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 3)
	attrs := make([]logx.Field, 0, 8)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	bars := diffBars(oldCfg.Engine.Bars, newCfg.Engine.Bars)
	if len(bars) > 0 ||
		oldCfg.Engine.ShowSeconds != newCfg.Engine.ShowSeconds ||
		strings.TrimSpace(oldCfg.Engine.DefaultRule) != strings.TrimSpace(newCfg.Engine.DefaultRule) {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Bool("engine.show_seconds", newCfg.Engine.ShowSeconds),
			logx.Int("engine.bars", len(newCfg.Engine.Bars)),
			logx.Int("engine.bars_changed", len(bars)),
		)
	}

	if !reflect.DeepEqual(oldCfg.History, newCfg.History) {
		changed = append(changed, "history")
		enabled := newCfg.History != nil && newCfg.History.Enabled
		attrs = append(attrs, logx.Bool("history.enabled", enabled))
	}

	return changed, attrs, bars
}

func diffBars(oldBars, newBars map[string]string) []string {
	seen := map[string]bool{}
	for name, r := range oldBars {
		if nr, ok := newBars[name]; !ok || strings.TrimSpace(nr) != strings.TrimSpace(r) {
			seen[name] = true
		}
	}
	for name := range newBars {
		if _, ok := oldBars[name]; !ok {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
