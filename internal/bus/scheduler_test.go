package bus

import "testing"

func schedCmd(id uint32, execAt uint64) Command {
	return Command{ID: id, CommandType: CommandType{Kind: KindPing}, ExecutionTime: &execAt}
}

func TestSchedulerReadyOrdersByExecTimeThenID(t *testing.T) {
	s := NewCommandScheduler()
	_ = s.Schedule(schedCmd(2, 2000), 0)
	_ = s.Schedule(schedCmd(1, 1000), 0)
	_ = s.Schedule(schedCmd(3, 1000), 0)

	ready := s.Ready(3000)
	if len(ready) != 3 {
		t.Fatalf("expected 3 ready commands, got %d", len(ready))
	}
	if ready[0].ID != 1 || ready[1].ID != 3 || ready[2].ID != 2 {
		t.Fatalf("unexpected order: %v %v %v", ready[0].ID, ready[1].ID, ready[2].ID)
	}
}

func TestSchedulerReadyBatchLimit(t *testing.T) {
	s := NewCommandScheduler()
	for i := uint32(0); i < schedulerCapacity; i++ {
		_ = s.Schedule(schedCmd(i, 100), 0)
	}
	ready := s.Ready(200)
	if len(ready) != schedulerReadyBatchLimit {
		t.Fatalf("expected at most %d ready per call, got %d", schedulerReadyBatchLimit, len(ready))
	}
}

func TestSchedulerLeavesNotYetDueCommandsQueued(t *testing.T) {
	s := NewCommandScheduler()
	_ = s.Schedule(schedCmd(1, 5000), 0)
	ready := s.Ready(1000)
	if len(ready) != 0 {
		t.Fatalf("expected no ready commands before execution time, got %d", len(ready))
	}
	if s.Stats().CurrentlyScheduled != 1 {
		t.Fatalf("expected command to remain scheduled, got stats %+v", s.Stats())
	}
}

func TestSchedulerRejectsDuplicateIDAndOverflow(t *testing.T) {
	s := NewCommandScheduler()
	_ = s.Schedule(schedCmd(1, 1000), 0)
	if err := s.Schedule(schedCmd(1, 2000), 0); err == nil {
		t.Fatalf("expected error scheduling duplicate id")
	}
	for i := uint32(2); i <= schedulerCapacity; i++ {
		if err := s.Schedule(schedCmd(i, 1000), 0); err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
	}
	if err := s.Schedule(schedCmd(schedulerCapacity+1, 1000), 0); err == nil {
		t.Fatalf("expected BufferOverflow at capacity")
	}
}

func TestSchedulerCleanupExpiredDropsStaleEntries(t *testing.T) {
	s := NewCommandScheduler()
	_ = s.Schedule(schedCmd(1, 999999999), 0)
	s.CleanupExpired(schedulerDefaultTimeoutS*1000 + 1)
	if s.Stats().CurrentlyScheduled != 0 {
		t.Fatalf("expected stale entry dropped, got %d remaining", s.Stats().CurrentlyScheduled)
	}
	if s.Stats().TotalExpired != 1 {
		t.Fatalf("expected expired counter to increment, got %d", s.Stats().TotalExpired)
	}
}
