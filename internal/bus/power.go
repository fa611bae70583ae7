package bus

import "math"

const (
	powerNominalVoltageMV   = 3700
	powerMaxVoltageMV       = 4200
	powerCriticalVoltageMV  = 3200
	powerWarningVoltageMV   = 3400
	powerNominalLoadMA      = 500
	powerSolarCurrentMA     = 800
	powerInternalResMOhm    = 100
	powerInternalResDegMOhm = 200
	powerVoltageLagAlpha    = 0.08
	powerVarianceWindow     = 16
	powerFirmwareHash       = 0x53420001
)

// PowerState is the externally visible snapshot of the power subsystem,
// matching the PowerState record in the data model.
type PowerState struct {
	BatteryVoltageMV    uint16
	BatteryLevelPercent uint8
	ChargeCurrentMA     int16
	DischargeCurrentMA  uint16
	SolarEnabled        bool
	SolarInputMA        uint16
	PowerSaveEnabled    bool
	Charging            bool
	Health              uint8 // 0-255
	BootCount           uint16
	FirmwareHash        uint32
	Fault               FaultKind
	VoltageVarianceMV   uint16
}

// PowerSystem owns the power subsystem's mutable state and advances it
// one tick at a time. It never reads the wall clock; callers supply the
// elapsed simulated milliseconds.
type PowerSystem struct {
	voltageMV      float64
	solarEnabled   bool
	powerSave      bool
	bootCount      uint16
	fault          FaultKind
	externalLoadMA float64
	lastSolarMA    float64
	lastLoadMA     float64
	orbitClockMS   uint64
	history        [powerVarianceWindow]float64
	historyLen     int
	historyIdx     int
	rng            *detRand
}

// NewPowerSystem constructs a power subsystem at nominal voltage with
// the solar panel enabled and one boot already recorded.
func NewPowerSystem() *PowerSystem {
	return &PowerSystem{
		voltageMV:    powerNominalVoltageMV,
		solarEnabled: true,
		bootCount:    1,
		rng:          newDetRand(0x506f7765), // "Powe"
	}
}

// SetExternalLoad records additional load (in mA) imposed by other
// subsystems this tick, e.g. comms transmit current draw. The agent
// calls this before Update each tick.
func (p *PowerSystem) SetExternalLoad(ma float64) {
	p.externalLoadMA = ma
}

// Reboot increments the boot counter and clears the active fault,
// matching SystemReboot's effect on the power subsystem.
func (p *PowerSystem) Reboot() {
	p.bootCount++
	p.fault = ""
}

// InjectFault sets the active fault mode. An empty FaultKind clears it.
func (p *PowerSystem) InjectFault(f FaultKind) {
	p.fault = f
}

// ClearFault clears any active fault.
func (p *PowerSystem) ClearFault() {
	p.fault = ""
}

// SetSolarPanel enables or disables the solar panel.
func (p *PowerSystem) SetSolarPanel(enabled bool) {
	p.solarEnabled = enabled
}

// SetPowerSave enables or disables the power-save load reduction.
func (p *PowerSystem) SetPowerSave(enabled bool) {
	p.powerSave = enabled
}

// solarAvailability returns s(t) in [0,1], a clipped sinusoid of uptime
// with a ~90-minute orbital period.
func solarAvailability(orbitClockMS uint64) float64 {
	phase := float64(orbitClockMS) / 1000.0 / (90.0 * 60.0) * 2 * math.Pi
	return clampF64(math.Sin(phase), 0, 1)
}

// Update advances the power model by dtMS simulated milliseconds.
func (p *PowerSystem) Update(dtMS uint64) {
	p.orbitClockMS += dtMS
	dtS := float64(dtMS) / 1000.0

	s := solarAvailability(p.orbitClockMS)
	degradation := 0.0
	if p.fault == FaultDegraded {
		degradation = 0.5
	}

	inputMA := 0.0
	if p.solarEnabled && p.fault != FaultFailed {
		inputMA = s * powerSolarCurrentMA * (1 - degradation)
	}

	loadMA := float64(powerNominalLoadMA) + p.externalLoadMA
	if !p.powerSave {
		loadMA += 150
	}
	if p.fault == FaultDegraded {
		loadMA *= 1.3
	}

	p.lastSolarMA = inputMA
	p.lastLoadMA = loadMA

	netMA := inputMA - loadMA

	resistance := float64(powerInternalResMOhm)
	if p.fault == FaultDegraded {
		resistance = powerInternalResDegMOhm
	}

	targetMV := powerNominalVoltageMV + netMA*resistance/1000.0
	if p.fault == FaultFailed {
		// A failed power system drifts steadily toward zero charge
		// regardless of solar input.
		targetMV = powerCriticalVoltageMV - 500
	}

	p.voltageMV += (targetMV - p.voltageMV) * dtS * powerVoltageLagAlpha

	if p.fault == FaultIntermittent {
		p.voltageMV += p.rng.normalish() * 120
	}

	p.voltageMV = clampF64(p.voltageMV, 0, 5000)

	p.externalLoadMA = 0
	p.pushHistory(p.voltageMV)
}

func (p *PowerSystem) pushHistory(v float64) {
	p.history[p.historyIdx] = v
	p.historyIdx = (p.historyIdx + 1) % powerVarianceWindow
	if p.historyLen < powerVarianceWindow {
		p.historyLen++
	}
}

func (p *PowerSystem) variance() float64 {
	if p.historyLen < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < p.historyLen; i++ {
		sum += p.history[i]
	}
	mean := sum / float64(p.historyLen)
	var sq float64
	for i := 0; i < p.historyLen; i++ {
		d := p.history[i] - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(p.historyLen))
}

// batteryLevel is a monotone piecewise-linear function of voltage:
// 0% at or below critical, 100% at or above max.
func (p *PowerSystem) batteryLevel() uint8 {
	voltageRange := float64(powerMaxVoltageMV - powerCriticalVoltageMV)
	level := (p.voltageMV - powerCriticalVoltageMV) / voltageRange * 100.0
	return clampU8(int(math.Round(clampF64(level, 0, 100))))
}

func (p *PowerSystem) health() uint8 {
	base := 255
	switch p.fault {
	case FaultFailed:
		base = 20
	case FaultDegraded:
		base = 140
	case FaultIntermittent:
		base = 190
	}
	if p.voltageMV < powerCriticalVoltageMV && base > 60 {
		base = 60
	} else if p.voltageMV < powerWarningVoltageMV && base > 150 {
		base = 150
	}
	return clampU8(base)
}

// Snapshot returns the current externally visible state.
func (p *PowerSystem) Snapshot() PowerState {
	discharge := 0.0
	if p.lastLoadMA > p.lastSolarMA {
		discharge = p.lastLoadMA - p.lastSolarMA
	}
	charge := int16(clampF64(p.lastSolarMA-p.lastLoadMA, -32768, 32767))
	return PowerState{
		BatteryVoltageMV:    uint16(clampF64(p.voltageMV, 0, 65535)),
		BatteryLevelPercent: p.batteryLevel(),
		ChargeCurrentMA:     charge,
		DischargeCurrentMA:  uint16(clampF64(discharge, 0, 65535)),
		SolarEnabled:        p.solarEnabled,
		SolarInputMA:        uint16(clampF64(p.lastSolarMA, 0, 65535)),
		PowerSaveEnabled:    p.powerSave,
		Charging:            charge > 0 && p.fault != FaultFailed,
		Health:              p.health(),
		BootCount:           p.bootCount,
		FirmwareHash:        powerFirmwareHash,
		Fault:               p.fault,
		VoltageVarianceMV:   uint16(clampF64(p.variance(), 0, 65535)),
	}
}

// detRand is a tiny deterministic PRNG (xorshift32) so intermittent
// faults can perturb state without reading the wall clock or the
// global math/rand source.
type detRand struct{ state uint32 }

func newDetRand(seed uint32) *detRand {
	if seed == 0 {
		seed = 1
	}
	return &detRand{state: seed}
}

func (r *detRand) next() uint32 {
	x := r.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.state = x
	return x
}

// normalish returns a value roughly in [-1, 1], not a true normal
// distribution, good enough to jitter a voltage reading deterministically.
func (r *detRand) normalish() float64 {
	return float64(r.next()%2000)/1000.0 - 1.0
}
