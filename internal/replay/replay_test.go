package replay

import (
	"path/filepath"
	"testing"
	"time"

	"satbus/internal/bus"
)

func TestRecorderWritesJSONLThatReplayReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	for i := 0; i < 3; i++ {
		pkt := bus.TelemetryPacket{SequenceNumber: uint32(i + 1), TimestampMS: uint64(i * 1000)}
		if err := rec.Write(pkt); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []bus.TelemetryPacket
	err = ReplayFile(path, func(pkt bus.TelemetryPacket) error {
		got = append(got, pkt)
		return nil
	}, 0)
	if err != nil {
		t.Fatalf("ReplayFile: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 replayed packets, got %d", len(got))
	}
	if got[0].SequenceNumber != 1 || got[2].SequenceNumber != 3 {
		t.Fatalf("unexpected sequence order: %+v", got)
	}
}

func TestReplayPacesBySpeedMultiplier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	rec, _ := NewRecorder(path)
	rec.Write(bus.TelemetryPacket{SequenceNumber: 1, TimestampMS: 0})
	rec.Write(bus.TelemetryPacket{SequenceNumber: 2, TimestampMS: 100})
	rec.Close()

	start := time.Now()
	err := ReplayFile(path, func(bus.TelemetryPacket) error { return nil }, 10)
	if err != nil {
		t.Fatalf("ReplayFile: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("expected accelerated replay to finish quickly, took %v", elapsed)
	}
}

func TestReplayPropagatesSinkError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	rec, _ := NewRecorder(path)
	rec.Write(bus.TelemetryPacket{SequenceNumber: 1})
	rec.Close()

	errBoom := errBoomType{}
	err := ReplayFile(path, func(bus.TelemetryPacket) error { return errBoom }, 0)
	if err != errBoom {
		t.Fatalf("expected sink error to propagate, got %v", err)
	}
}

type errBoomType struct{}

func (errBoomType) Error() string { return "boom" }
