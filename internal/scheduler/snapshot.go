package scheduler

import (
	"context"
	"time"

	"cronkeep/internal/gate"
)

// Snapshot reports the scheduler state and, for each job, what the gate
// would decide right now. It reads markers but never writes them.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	s.mu.Lock()
	c := s.c
	entryID := s.entryID
	tz := s.cfg.Timezone
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	s.mu.Unlock()

	if tz == "" {
		tz = loc.String()
	}
	out := Snapshot{
		Timezone: tz,
		Running:  c != nil,
		Ticks:    s.ticks.Load(),
		Skipped:  s.skipped.Load(),
	}
	if c != nil && entryID != 0 {
		e := c.Entry(entryID)
		out.Next = e.Next
		out.Prev = e.Prev
	}
	if ns := s.lastTick.Load(); ns != 0 {
		out.LastTick = time.Unix(0, ns).In(loc)
	}

	st, err := s.loadSettings(ctx)
	if err == nil && st != nil {
		out.Enabled = st.Enabled
	} else {
		st = &Settings{}
	}

	now := time.Now().In(loc)
	for _, def := range s.jobs.All() {
		spec := def.Spec()
		if tod, ok := st.Thresholds[def.ID]; ok {
			spec.Earliest = tod
		}
		info := JobInfo{
			ID:          def.ID,
			Label:       def.DisplayLabel(),
			Granularity: def.Granularity.String(),
		}
		if spec.Earliest != nil && spec.Granularity == gate.Daily {
			info.Earliest = spec.Earliest.String()
		}
		d, err := s.eval.Eligible(ctx, spec, now)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Marker = d.LastRun
			info.Period = d.Period
			info.Eligible = d.Eligible
			info.Reason = string(d.Reason)
		}
		out.Jobs = append(out.Jobs, info)
	}

	s.hmu.Lock()
	out.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}
