package bus

import "testing"

func TestPackBootVoltageRoundTrip(t *testing.T) {
	boot, volt := UnpackBootVoltage(PackBootVoltage(42, 3700))
	if boot != 42 || volt != 3700 {
		t.Fatalf("round trip mismatch: boot=%d volt=%d", boot, volt)
	}
}

func TestPackSignedPairRoundTrip(t *testing.T) {
	cases := []struct{ hi, lo int8 }{
		{0, 0},
		{-80, 20},
		{127, -128},
		{-1, -1},
	}
	for _, c := range cases {
		hi, lo := UnpackSignedPair(PackSignedPair(c.hi, c.lo))
		if hi != c.hi || lo != c.lo {
			t.Fatalf("round trip mismatch for (%d,%d): got (%d,%d)", c.hi, c.lo, hi, lo)
		}
	}
}

func TestPackHealthScoresRoundTrip(t *testing.T) {
	power, thermal, comms, spare := UnpackHealthScores(PackHealthScores(255, 140, 20, 0))
	if power != 255 || thermal != 140 || comms != 20 || spare != 0 {
		t.Fatalf("round trip mismatch: %d %d %d %d", power, thermal, comms, spare)
	}
}

func TestQuaternionXYZClampsToInt16Range(t *testing.T) {
	q := QuaternionXYZ(2.0, -2.0, 0.0)
	if q[0] != 32767 || q[1] != -32768 {
		t.Fatalf("expected clamped fixed-point values, got %v", q)
	}
}
