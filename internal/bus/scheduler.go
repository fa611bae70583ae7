package bus

import "sort"

const (
	schedulerCapacity         = 32
	schedulerDefaultTimeoutS  = 3600
	schedulerReadyBatchLimit  = 8
)

// ScheduledCommand is one entry in the time-tagged scheduler.
type ScheduledCommand struct {
	Command     Command
	ScheduledAt uint64
}

// SchedulerStats tracks cumulative scheduler counters.
type SchedulerStats struct {
	TotalScheduled      uint64
	TotalExecuted       uint64
	TotalExpired        uint64
	CurrentlyScheduled  int
}

// CommandScheduler holds commands with a deferred execution_time,
// bounded to a fixed capacity and drained in non-decreasing
// execution-time order with ties broken by submission id.
type CommandScheduler struct {
	entries   []ScheduledCommand
	timeoutS  uint64
	stats     SchedulerStats
}

// NewCommandScheduler constructs an empty scheduler using the default
// 3600 s expiry timeout.
func NewCommandScheduler() *CommandScheduler {
	return &CommandScheduler{timeoutS: schedulerDefaultTimeoutS}
}

// Schedule enqueues a command for deferred execution. Capacity overflow
// and duplicate ids both fail with BufferOverflow.
func (s *CommandScheduler) Schedule(cmd Command, now uint64) error {
	for _, e := range s.entries {
		if e.Command.ID == cmd.ID {
			return newProtoErr(ErrBufferOverflow, "command id %d already scheduled", cmd.ID)
		}
	}
	if len(s.entries) >= schedulerCapacity {
		return newProtoErr(ErrBufferOverflow, "scheduler at capacity %d", schedulerCapacity)
	}
	s.entries = append(s.entries, ScheduledCommand{Command: cmd, ScheduledAt: now})
	s.stats.TotalScheduled++
	s.stats.CurrentlyScheduled = len(s.entries)
	return nil
}

// Ready returns, in execution order, every scheduled command whose
// execution_time is now due, removing them from the schedule. At most
// schedulerReadyBatchLimit commands are returned per call.
func (s *CommandScheduler) Ready(now uint64) []Command {
	sort.SliceStable(s.entries, func(i, j int) bool {
		ti, tj := execTimeOf(s.entries[i].Command), execTimeOf(s.entries[j].Command)
		if ti != tj {
			return ti < tj
		}
		return s.entries[i].Command.ID < s.entries[j].Command.ID
	})

	var ready []Command
	var remaining []ScheduledCommand
	for _, e := range s.entries {
		if execTimeOf(e.Command) <= now && len(ready) < schedulerReadyBatchLimit {
			ready = append(ready, e.Command)
			continue
		}
		remaining = append(remaining, e)
	}
	s.entries = remaining
	s.stats.TotalExecuted += uint64(len(ready))
	s.stats.CurrentlyScheduled = len(s.entries)
	return ready
}

func execTimeOf(cmd Command) uint64 {
	if cmd.ExecutionTime == nil {
		return 0
	}
	return *cmd.ExecutionTime
}

// CleanupExpired drops entries older than the configured timeout,
// counting them as expired.
func (s *CommandScheduler) CleanupExpired(now uint64) {
	var kept []ScheduledCommand
	for _, e := range s.entries {
		if now > e.ScheduledAt+s.timeoutS*1000 {
			s.stats.TotalExpired++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	s.stats.CurrentlyScheduled = len(s.entries)
}

// ClearAll drops every scheduled command without counting it as
// expired.
func (s *CommandScheduler) ClearAll() {
	s.entries = nil
	s.stats.CurrentlyScheduled = 0
}

// Stats returns a copy of the cumulative counters.
func (s *CommandScheduler) Stats() SchedulerStats {
	return s.stats
}
