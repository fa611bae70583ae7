package bus

import "testing"

func TestNewThermalSystemStartsPassiveAtNominal(t *testing.T) {
	th := NewThermalSystem()
	s := th.Snapshot()
	if s.Mode != ThermalPassive {
		t.Fatalf("expected Passive mode at start, got %s", s.Mode)
	}
	if s.CoreTempC != int8(thermalNominalC) {
		t.Fatalf("expected nominal core temp %v, got %d", thermalNominalC, s.CoreTempC)
	}
}

func TestHeaterNeverOnInPassiveMode(t *testing.T) {
	th := NewThermalSystem()
	for i := 0; i < 10000; i++ {
		th.Update(1000)
		s := th.Snapshot()
		if s.Mode == ThermalPassive && s.HeaterPowerW > 0 {
			t.Fatalf("invariant violated: heater on (%dW) while mode is Passive", s.HeaterPowerW)
		}
	}
}

func TestManualHeaterOnPromotesOutOfPassive(t *testing.T) {
	th := NewThermalSystem()
	th.SetHeaterState(true)
	th.Update(100)
	s := th.Snapshot()
	if s.Mode == ThermalPassive {
		t.Fatalf("expected manual heater-on to leave Passive mode")
	}
	if s.HeaterPowerW == 0 {
		t.Fatalf("expected heater power > 0 after manual on command")
	}
}

func TestSafetyLockoutForcesHeaterOffAndSurvivesUntilCleared(t *testing.T) {
	th := NewThermalSystem()
	th.SetHeaterState(true)
	th.Update(100)
	if th.Snapshot().HeaterPowerW == 0 {
		t.Fatalf("expected heater on before lockout")
	}
	th.SetSafetyLockout(true)
	th.Update(100)
	if th.Snapshot().HeaterPowerW != 0 {
		t.Fatalf("expected lockout to force heater off")
	}
	th.SetSafetyLockout(false)
	th.Update(100)
	if th.Snapshot().HeaterPowerW == 0 {
		t.Fatalf("expected manual heater command to resume once lockout lifts")
	}
}

func TestThermalEmergencyLatchesUntilClearFault(t *testing.T) {
	th := NewThermalSystem()
	th.InjectFault(FaultFailed)
	for i := 0; i < 200; i++ {
		th.SetExternalHeat(10000)
		th.Update(1000)
	}
	if th.Snapshot().Mode != ThermalEmergency {
		t.Fatalf("expected Emergency mode after extreme heat, got %s", th.Snapshot().Mode)
	}
	th.ClearFault()
	th.SetExternalHeat(0)
	if th.Snapshot().Mode == ThermalPassive {
		t.Fatalf("ClearFault should drop Emergency to Active, not straight to Passive")
	}
}

func TestThermalHealthIsFullInHealthyBand(t *testing.T) {
	th := NewThermalSystem()
	if th.Snapshot().Health != 255 {
		t.Fatalf("expected full health at nominal temperature, got %d", th.Snapshot().Health)
	}
}
