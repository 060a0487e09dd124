package engine

import "chronobar/internal/rule"

func (s *Service) Snapshot() Snapshot {
	ts := s.tick.Snapshot()

	byGran := map[string][]string{}
	for _, g := range []rule.Granularity{rule.Second, rule.Minute, rule.Hour, rule.Day} {
		if names := s.tick.Names(g); len(names) > 0 {
			byGran[g.String()] = names
		}
	}

	s.mu.Lock()
	bars := len(s.bars)
	s.mu.Unlock()

	return Snapshot{
		Bars:     bars,
		ByGran:   byGran,
		LastTick: ts.LastTick,
		Ticks:    ts.Ticks,
	}
}
