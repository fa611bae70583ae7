package bus

import "math"

const (
	thermalNominalC        = 20.0
	thermalMassJPerK       = 2000.0
	thermalHeaterPowerW    = 50.0
	thermalOrbitPeriodS    = 5400.0
	thermalSpaceMinC       = -150.0
	thermalSpaceMaxC       = 120.0
	thermalGradientWPerK   = 10.0
	thermalActiveLowC      = 10.0
	thermalActiveHighC     = 40.0
	thermalEmergencyLowC   = -30.0
	thermalEmergencyHighC  = 65.0
	thermalHealthyLowC     = -20.0
	thermalHealthyHighC    = 50.0
	thermalVarianceWindow  = 16
	thermalBatteryLagAlpha = 0.15
	thermalPanelLagAlpha   = 0.4
)

// ThermalMode is the thermal control mode, per the data model: Passive
// is the default, Active engages heater control outside the comfort
// band, Emergency latches once temperature leaves the safe envelope.
type ThermalMode string

const (
	ThermalPassive   ThermalMode = "Passive"
	ThermalActive    ThermalMode = "Active"
	ThermalEmergency ThermalMode = "Emergency"
)

// ThermalState is the externally visible snapshot of the thermal
// subsystem.
type ThermalState struct {
	CoreTempC       int8
	BatteryTempC    int8
	PanelTempC      int8
	HeaterPowerW    uint8
	HeaterSetpointC int8
	Mode            ThermalMode
	TempVarianceC   uint8
	Fault           FaultKind
	Health          uint8 // 0-255
}

// ThermalSystem owns the thermal subsystem's mutable state.
type ThermalSystem struct {
	coreTempC     float64
	batteryTempC  float64
	panelTempC    float64
	setpointC     float64
	mode          ThermalMode
	survival      bool
	manualHeater  *bool
	safetyLockout bool
	fault         FaultKind
	orbitClockMS  uint64
	externalHeatW float64
	history       [thermalVarianceWindow]float64
	historyLen    int
	historyIdx    int
	heaterOn      bool
}

// NewThermalSystem constructs a thermal subsystem starting at the
// nominal temperature in Passive mode.
func NewThermalSystem() *ThermalSystem {
	return &ThermalSystem{
		coreTempC:    thermalNominalC,
		batteryTempC: thermalNominalC,
		panelTempC:   thermalNominalC,
		setpointC:    thermalNominalC,
		mode:         ThermalPassive,
	}
}

// SetExternalHeat records heat (in watts) generated by other
// subsystems this tick, e.g. comms RF amplifier dissipation.
func (t *ThermalSystem) SetExternalHeat(w float64) {
	t.externalHeatW = w
}

// SetHeaterState commands the heater directly. A manual "on" forces
// the mode out of Passive, preserving the heater-power-implies-active
// invariant; a manual "off" only suppresses auto control, it does not
// force the mode.
func (t *ThermalSystem) SetHeaterState(on bool) {
	v := on
	t.manualHeater = &v
}

// SetSurvivalMode scales heater output down, applied by the safety
// manager's enable_survival_mode action.
func (t *ThermalSystem) SetSurvivalMode(on bool) {
	t.survival = on
}

// SetSafetyLockout forces the heater off regardless of mode or manual
// command, applied by the safety manager's disable_heaters action. It
// is distinct from the manual override so a lockout never clobbers the
// operator's last commanded heater state once it lifts.
func (t *ThermalSystem) SetSafetyLockout(on bool) {
	t.safetyLockout = on
}

// InjectFault sets the active fault mode.
func (t *ThermalSystem) InjectFault(f FaultKind) {
	t.fault = f
}

// ClearFault clears the active fault, any manual heater override, and
// drops an Emergency latch, letting Update recompute mode from the
// current temperature.
func (t *ThermalSystem) ClearFault() {
	t.fault = ""
	t.manualHeater = nil
	if t.mode == ThermalEmergency {
		t.mode = ThermalActive
	}
}

func (t *ThermalSystem) ambientC(nowMS uint64) float64 {
	phase := float64(nowMS) / 1000.0 / thermalOrbitPeriodS * 2 * math.Pi
	mid := (thermalSpaceMaxC + thermalSpaceMinC) / 2
	amp := (thermalSpaceMaxC - thermalSpaceMinC) / 2
	return mid + amp*math.Cos(phase)
}

// Update advances the thermal model by dtMS simulated milliseconds.
func (t *ThermalSystem) Update(dtMS uint64) {
	t.orbitClockMS += dtMS
	dtS := float64(dtMS) / 1000.0

	t.updateModeAndHeater()

	heaterPower := thermalHeaterPowerW
	if t.survival {
		heaterPower *= 0.5
	}
	if t.fault == FaultDegraded {
		heaterPower *= 0.4
	}

	qHeater := 0.0
	if t.heaterOn && t.fault != FaultFailed {
		qHeater = heaterPower
	}

	s := solarAvailability(t.orbitClockMS)
	qSun := 30.0 * s
	qExt := qSun - 20.0

	qInternal := t.externalHeatW
	if t.fault == FaultIntermittent {
		qInternal += 15
	}

	ambient := t.ambientC(t.orbitClockMS)
	qLoss := (t.coreTempC - ambient) * thermalGradientWPerK / 100.0

	netQ := qExt + qInternal + qHeater - qLoss
	dT := netQ * dtS / thermalMassJPerK * 1000.0

	t.coreTempC += dT
	t.coreTempC = clampF64(t.coreTempC, -200, 200)

	t.batteryTempC += (t.coreTempC - t.batteryTempC) * dtS * thermalBatteryLagAlpha
	t.panelTempC += (ambient - t.panelTempC) * dtS * thermalPanelLagAlpha

	t.externalHeatW = 0
	t.pushHistory(t.coreTempC)
}

func (t *ThermalSystem) updateModeAndHeater() {
	if t.mode != ThermalEmergency {
		switch {
		case t.coreTempC < thermalEmergencyLowC || t.coreTempC > thermalEmergencyHighC:
			t.mode = ThermalEmergency
		case t.coreTempC < thermalActiveLowC || t.coreTempC > thermalActiveHighC:
			t.mode = ThermalActive
		default:
			t.mode = ThermalPassive
		}
	}

	if t.safetyLockout {
		t.heaterOn = false
		return
	}

	if t.manualHeater != nil {
		t.heaterOn = *t.manualHeater
		if t.heaterOn && t.mode == ThermalPassive {
			t.mode = ThermalActive
		}
		return
	}

	switch t.mode {
	case ThermalPassive:
		// Heater power > 0 implies mode != Passive, so auto control
		// never engages the heater while Passive.
		t.heaterOn = false
	case ThermalActive, ThermalEmergency:
		t.heaterOn = t.coreTempC < t.setpointC
	}
}

func (t *ThermalSystem) pushHistory(v float64) {
	t.history[t.historyIdx] = v
	t.historyIdx = (t.historyIdx + 1) % thermalVarianceWindow
	if t.historyLen < thermalVarianceWindow {
		t.historyLen++
	}
}

func (t *ThermalSystem) variance() float64 {
	if t.historyLen < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < t.historyLen; i++ {
		sum += t.history[i]
	}
	mean := sum / float64(t.historyLen)
	var sq float64
	for i := 0; i < t.historyLen; i++ {
		d := t.history[i] - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(t.historyLen))
}

// health decreases linearly outside [-20, 50] C, reaching zero at the
// emergency limits (-30, 65), then is further reduced by active faults.
func (t *ThermalSystem) health() uint8 {
	base := 255.0
	switch {
	case t.coreTempC >= thermalHealthyLowC && t.coreTempC <= thermalHealthyHighC:
		base = 255
	case t.coreTempC < thermalHealthyLowC:
		span := thermalHealthyLowC - thermalEmergencyLowC
		frac := clampF64((t.coreTempC-thermalEmergencyLowC)/span, 0, 1)
		base = 255 * frac
	default:
		span := thermalEmergencyHighC - thermalHealthyHighC
		frac := clampF64((thermalEmergencyHighC-t.coreTempC)/span, 0, 1)
		base = 255 * frac
	}

	switch t.fault {
	case FaultFailed:
		base = math.Min(base, 20)
	case FaultDegraded:
		base = math.Min(base, 140)
	case FaultIntermittent:
		base = math.Min(base, 190)
	}
	return clampU8(int(math.Round(base)))
}

func (t *ThermalSystem) heaterPowerW() uint8 {
	if !t.heaterOn || t.fault == FaultFailed {
		return 0
	}
	p := thermalHeaterPowerW
	if t.survival {
		p *= 0.5
	}
	return clampU8(int(math.Round(p)))
}

// Snapshot returns the current externally visible state.
func (t *ThermalSystem) Snapshot() ThermalState {
	return ThermalState{
		CoreTempC:       int8(clampF64(t.coreTempC, -128, 127)),
		BatteryTempC:    int8(clampF64(t.batteryTempC, -128, 127)),
		PanelTempC:      int8(clampF64(t.panelTempC, -128, 127)),
		HeaterPowerW:    t.heaterPowerW(),
		HeaterSetpointC: int8(clampF64(t.setpointC, -128, 127)),
		Mode:            t.mode,
		TempVarianceC:   clampU8(int(math.Round(t.variance()))),
		Fault:           t.fault,
		Health:          t.health(),
	}
}
