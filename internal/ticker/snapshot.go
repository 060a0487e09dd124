package ticker

import "sort"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.stopCh != nil
	regs := make([]Registration, 0, len(s.regs))
	for name, g := range s.regs {
		regs = append(regs, Registration{Name: name, Granularity: g})
	}
	last := s.lastTick
	ticks := s.ticks
	s.mu.Unlock()

	sort.Slice(regs, func(i, j int) bool { return regs[i].Name < regs[j].Name })

	snap := Snapshot{
		Running:       running,
		Active:        len(regs) > 0,
		Registrations: regs,
		LastTick:      last,
		Ticks:         ticks,
	}
	if g, ok := s.finest(); ok {
		snap.Finest = g
	}
	return snap
}
