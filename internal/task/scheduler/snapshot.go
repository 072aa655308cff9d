package scheduler

import (
	"github.com/robfig/cron/v3"

	"cadence/internal/task"
)

// Snapshot returns a point-in-time view for diagnostics.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	c := s.c
	snap := Snapshot{Started: s.started, Stopping: s.stopping}
	entries := make([]cron.EntryID, len(s.slots))
	for i, sl := range s.slots {
		entries[i] = sl.entryID
	}
	s.mu.Unlock()

	snap.Tasks = make([]TaskInfo, 0, len(s.slots))
	for i, sl := range s.slots {
		sl.mu.Lock()
		it := TaskInfo{
			Name:         sl.task.Name,
			Interval:     sl.task.Interval,
			State:        sl.state,
			RunningSince: sl.runningSince,
			Runs:         sl.runs,
			Skips:        sl.skips,
		}
		if sl.last != nil {
			last := *sl.last
			it.Last = &last
		}
		sl.mu.Unlock()

		if c != nil && entries[i] != 0 {
			e := c.Entry(entries[i])
			it.Prev = e.Prev
			it.Next = e.Next
		}
		if it.State == task.StateRunning {
			snap.InFlight++
		}
		snap.Tasks = append(snap.Tasks, it)
	}
	return snap
}
