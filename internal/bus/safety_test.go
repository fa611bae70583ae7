package bus

import "testing"

func nominalSnapshots() (PowerState, ThermalState, CommsState) {
	p := PowerState{BatteryVoltageMV: powerNominalVoltageMV}
	th := ThermalState{CoreTempC: int8(thermalNominalC)}
	c := CommsState{LinkUp: true, LinkRequested: true}
	return p, th, c
}

func TestSafetyManagerStartsNormal(t *testing.T) {
	m := NewSafetyManager()
	if m.State().Level != LevelNormal {
		t.Fatalf("expected Normal at start, got %s", m.State().Level)
	}
	if m.State().SafeModeActive {
		t.Fatalf("expected safe-mode inactive at start")
	}
}

func TestBatteryLowRequiresHysteresisBeforeRaising(t *testing.T) {
	m := NewSafetyManager()
	p, th, c := nominalSnapshots()
	p.BatteryVoltageMV = powerCriticalVoltageMV - 1

	m.Update(1000, p, th, c)
	if m.State().Level != LevelNormal {
		t.Fatalf("expected no event before 500ms hysteresis elapses, got %s", m.State().Level)
	}

	m.Update(1600, p, th, c)
	if m.State().Level == LevelNormal {
		t.Fatalf("expected BatteryLow to raise after the hysteresis window")
	}
}

func TestLevelStepsAtMostOneRankPerTick(t *testing.T) {
	m := NewSafetyManager()
	p, th, c := nominalSnapshots()
	p.Fault = FaultFailed // PowerFailure -> Emergency directly

	m.Update(1000, p, th, c)
	m.Update(1600, p, th, c) // raise condition met here
	first := levelRank[m.State().Level]
	m.Update(2000, p, th, c)
	second := levelRank[m.State().Level]
	if second-first > 1 {
		t.Fatalf("level jumped more than one rank in a single tick: %d -> %d", first, second)
	}
}

func TestSafeModeEntersAtCriticalAndExitsAfterQuietWindow(t *testing.T) {
	m := NewSafetyManager()
	p, th, c := nominalSnapshots()
	p.BatteryVoltageMV = powerCriticalVoltageMV - 1

	now := uint64(0)
	for i := 0; i < 10; i++ {
		now += 1000
		m.Update(now, p, th, c)
	}
	if !m.State().SafeModeActive {
		t.Fatalf("expected safe-mode active once level reaches Critical")
	}

	p.BatteryVoltageMV = powerNominalVoltageMV
	for i := 0; i < 20; i++ {
		now += 1000
		m.Update(now, p, th, c)
	}
	if m.State().SafeModeActive {
		t.Fatalf("expected safe-mode to clear once level drops and the quiet window elapses")
	}
}

func TestForceSafeModeAndDisableSafeModeOverride(t *testing.T) {
	m := NewSafetyManager()
	p, th, c := nominalSnapshots()

	m.ForceSafeMode(1000)
	if !m.State().SafeModeActive {
		t.Fatalf("expected forced safe-mode to be active")
	}

	m.DisableSafeMode(2000)
	if m.State().SafeModeActive {
		t.Fatalf("expected safe-mode disabled after manual override")
	}

	m.Update(2100, p, th, c)
	if m.State().SafeModeActive {
		t.Fatalf("expected manual override cooldown to suppress automatic re-entry")
	}
}

func TestComputeActionsRestoresOnceSafeModeClears(t *testing.T) {
	m := NewSafetyManager()
	a := m.computeActions()
	if !a.RestoreNormalOperations {
		t.Fatalf("expected RestoreNormalOperations when safe-mode is inactive")
	}
}
