package bus

const (
	safetyEventLogCapacity   = 32
	safetyRaiseHysteresisMS  = 500
	safetyLowerHysteresisMS  = 2000
	safetyWatchdogDefaultMS  = 2000
	safetyExitQuietWindowMS  = 2000
	safetyOverrideCooldownMS = 600000 // 10 minutes, grounded on original_source/src/safety.rs

	safetyBatteryVarianceThresholdMV = 80
	safetyTempWarningHighC           = 65
	safetyTempCriticalHighC          = 75
	safetyTempWarningLowC            = -30
	safetyTempCriticalLowC           = -40
	safetyCommsFailureDownMS         = 5000
)

// SafetyLevel is the safety manager's overall severity level.
type SafetyLevel string

const (
	LevelNormal    SafetyLevel = "Normal"
	LevelCaution   SafetyLevel = "Caution"
	LevelWarning   SafetyLevel = "Warning"
	LevelCritical  SafetyLevel = "Critical"
	LevelEmergency SafetyLevel = "Emergency"
)

var levelRank = map[SafetyLevel]int{
	LevelNormal:    0,
	LevelCaution:   1,
	LevelWarning:   2,
	LevelCritical:  3,
	LevelEmergency: 4,
}

func rankToLevel(r int) SafetyLevel {
	for l, v := range levelRank {
		if v == r {
			return l
		}
	}
	return LevelNormal
}

// SafetyEventKind is a closed set of conditions the safety manager
// monitors.
type SafetyEventKind string

const (
	EventBatteryLow        SafetyEventKind = "BatteryLow"
	EventBatteryUnstable   SafetyEventKind = "BatteryUnstable"
	EventTemperatureHigh   SafetyEventKind = "TemperatureHigh"
	EventTemperatureLow    SafetyEventKind = "TemperatureLow"
	EventCommsLinkLost     SafetyEventKind = "CommsLinkLost"
	EventSystemOverload    SafetyEventKind = "SystemOverload"
	EventWatchdogTimeout   SafetyEventKind = "WatchdogTimeout"
	EventPowerFailure      SafetyEventKind = "PowerFailure"
	EventThermalFailure    SafetyEventKind = "ThermalFailure"
	EventCommsFailure      SafetyEventKind = "CommsFailure"
)

// SafetyEvent is one entry in the bounded event history.
type SafetyEvent struct {
	Kind        SafetyEventKind
	Level       SafetyLevel
	TimestampMS uint64
	Resolved    bool
}

// SafetyState is the externally visible snapshot of the safety
// manager.
type SafetyState struct {
	Level              SafetyLevel
	SafeModeActive     bool
	LastTransitionMS   uint64
	Events             []SafetyEvent
	WatchdogDeadlineMS uint64
}

// Actions is the best-effort mitigation record the agent applies after
// every safety update.
type Actions struct {
	EnableEmergencyPowerSave bool
	DisableHeaters           bool
	DisableCommsTx           bool
	ForceSolarOn             bool
	EnableSurvivalMode       bool
	RestoreNormalOperations  bool
}

// hysteresisTimer tracks how long a boolean predicate has held its
// current value, so the safety manager can require continuity before
// raising or lowering an event.
type hysteresisTimer struct {
	initialized bool
	state       bool
	sinceMS     uint64
}

func (h *hysteresisTimer) update(now uint64, active bool) (raiseReady, lowerReady bool) {
	if !h.initialized || active != h.state {
		h.state = active
		h.sinceMS = now
		h.initialized = true
	}
	dur := now - h.sinceMS
	if h.state && dur >= safetyRaiseHysteresisMS {
		raiseReady = true
	}
	if !h.state && dur >= safetyLowerHysteresisMS {
		lowerReady = true
	}
	return
}

// SafetyManager monitors subsystem snapshots, maintains the bounded
// event history, and drives safe-mode entry/exit with hysteresis.
type SafetyManager struct {
	level            SafetyLevel
	safeModeActive   bool
	lastTransitionMS uint64
	events           []SafetyEvent
	lastCriticalMS   uint64
	haveCritical     bool

	manualOverrideUntilMS uint64
	manualOverrideActive  bool

	watchdogIntervalMS uint64
	lastUpdateMS       uint64
	haveLastUpdate     bool
	missedDeadlines    int

	timers map[SafetyEventKind]*hysteresisTimer
}

// NewSafetyManager constructs a safety manager at level Normal with no
// active events, using the default 2000 ms watchdog interval.
func NewSafetyManager() *SafetyManager {
	return &SafetyManager{
		level:              LevelNormal,
		watchdogIntervalMS: safetyWatchdogDefaultMS,
		timers:             make(map[SafetyEventKind]*hysteresisTimer),
	}
}

func (m *SafetyManager) timer(kind SafetyEventKind) *hysteresisTimer {
	t, ok := m.timers[kind]
	if !ok {
		t = &hysteresisTimer{}
		m.timers[kind] = t
	}
	return t
}

// Update evaluates all subsystem snapshots, advances the FSM by at
// most one severity step, and returns the mitigation actions to apply.
func (m *SafetyManager) Update(now uint64, power PowerState, thermal ThermalState, comms CommsState) Actions {
	m.checkWatchdog(now)

	m.evalPredicate(now, EventBatteryLow, LevelCritical, power.BatteryVoltageMV < powerCriticalVoltageMV)
	m.evalPredicate(now, EventBatteryUnstable, LevelWarning, power.VoltageVarianceMV > safetyBatteryVarianceThresholdMV)

	hot := thermal.CoreTempC > safetyTempWarningHighC
	hotLevel := LevelWarning
	if thermal.CoreTempC > safetyTempCriticalHighC {
		hotLevel = LevelCritical
	}
	m.evalPredicate(now, EventTemperatureHigh, hotLevel, hot)

	cold := thermal.CoreTempC < safetyTempWarningLowC
	coldLevel := LevelWarning
	if thermal.CoreTempC < safetyTempCriticalLowC {
		coldLevel = LevelCritical
	}
	m.evalPredicate(now, EventTemperatureLow, coldLevel, cold)

	m.evalPredicate(now, EventCommsLinkLost, LevelWarning, comms.LinkRequested && !comms.LinkUp)
	m.evalPredicate(now, EventCommsFailure, LevelCritical, comms.LinkRequested && comms.LinkDownSinceMS >= safetyCommsFailureDownMS)

	m.evalPredicate(now, EventPowerFailure, LevelEmergency, power.Fault == FaultFailed)
	m.evalPredicate(now, EventThermalFailure, LevelEmergency, thermal.Fault == FaultFailed)

	faultCount := 0
	for _, f := range []FaultKind{power.Fault, thermal.Fault, comms.Fault} {
		if f != "" {
			faultCount++
		}
	}
	m.evalPredicate(now, EventSystemOverload, LevelWarning, faultCount >= 2)

	m.recomputeLevel(now)
	m.evaluateSafeModePolicy(now)

	return m.computeActions()
}

func (m *SafetyManager) evalPredicate(now uint64, kind SafetyEventKind, level SafetyLevel, active bool) {
	raiseReady, lowerReady := m.timer(kind).update(now, active)
	if raiseReady {
		m.recordEvent(now, kind, level)
	} else if lowerReady {
		m.resolveEvent(kind)
	}
}

func (m *SafetyManager) checkWatchdog(now uint64) {
	if !m.haveLastUpdate {
		m.haveLastUpdate = true
		m.lastUpdateMS = now
		return
	}
	if now-m.lastUpdateMS > m.watchdogIntervalMS {
		m.missedDeadlines++
		if m.missedDeadlines >= 2 {
			m.recordEvent(now, EventWatchdogTimeout, LevelCritical)
			m.missedDeadlines = 0
		}
	} else {
		m.missedDeadlines = 0
	}
	m.lastUpdateMS = now
}

// recordEvent dedups against an existing unresolved entry of the same
// kind (refreshing its timestamp/level) and otherwise appends, evicting
// the oldest resolved entry, or failing that the oldest entry, when the
// ring is full.
func (m *SafetyManager) recordEvent(now uint64, kind SafetyEventKind, level SafetyLevel) {
	for i := range m.events {
		if m.events[i].Kind == kind && !m.events[i].Resolved {
			m.events[i].Level = level
			m.events[i].TimestampMS = now
			m.trackCritical(now, level)
			return
		}
	}
	if len(m.events) >= safetyEventLogCapacity {
		m.evictOne()
	}
	m.events = append(m.events, SafetyEvent{Kind: kind, Level: level, TimestampMS: now})
	m.trackCritical(now, level)
}

func (m *SafetyManager) trackCritical(now uint64, level SafetyLevel) {
	if levelRank[level] >= levelRank[LevelCritical] {
		m.lastCriticalMS = now
		m.haveCritical = true
	}
}

func (m *SafetyManager) evictOne() {
	for i := range m.events {
		if m.events[i].Resolved {
			m.events = append(m.events[:i], m.events[i+1:]...)
			return
		}
	}
	m.events = m.events[1:]
}

func (m *SafetyManager) resolveEvent(kind SafetyEventKind) {
	for i := range m.events {
		if m.events[i].Kind == kind && !m.events[i].Resolved {
			m.events[i].Resolved = true
		}
	}
}

func (m *SafetyManager) recomputeLevel(now uint64) {
	target := LevelNormal
	for _, e := range m.events {
		if !e.Resolved && levelRank[e.Level] > levelRank[target] {
			target = e.Level
		}
	}

	cur := levelRank[m.level]
	want := levelRank[target]
	switch {
	case want > cur:
		cur++
	case want < cur:
		cur--
	}
	newLevel := rankToLevel(cur)
	if newLevel != m.level {
		m.level = newLevel
		m.lastTransitionMS = now
	}
}

func (m *SafetyManager) evaluateSafeModePolicy(now uint64) {
	if m.manualOverrideActive && now >= m.manualOverrideUntilMS {
		m.manualOverrideActive = false
	}

	if levelRank[m.level] >= levelRank[LevelCritical] && !m.manualOverrideActive {
		if !m.safeModeActive {
			m.safeModeActive = true
			m.lastTransitionMS = now
		}
		return
	}

	if !m.safeModeActive {
		return
	}

	quiet := !m.haveCritical || now-m.lastCriticalMS >= safetyExitQuietWindowMS
	if levelRank[m.level] <= levelRank[LevelWarning] && quiet {
		m.safeModeActive = false
		m.lastTransitionMS = now
	}
}

func (m *SafetyManager) computeActions() Actions {
	if !m.safeModeActive {
		return Actions{RestoreNormalOperations: true}
	}
	a := Actions{
		EnableEmergencyPowerSave: true,
		DisableHeaters:           levelRank[m.level] >= levelRank[LevelEmergency],
		ForceSolarOn:             true,
		EnableSurvivalMode:       true,
		DisableCommsTx:           levelRank[m.level] >= levelRank[LevelCritical],
	}
	return a
}

// ForceSafeMode asserts safe-mode regardless of the computed level.
func (m *SafetyManager) ForceSafeMode(now uint64) {
	m.safeModeActive = true
	m.manualOverrideActive = false
	m.lastTransitionMS = now
}

// DisableSafeMode forces an exit from safe-mode and grants a cooldown
// window during which a Critical/Emergency level will not automatically
// re-enter safe-mode, grounded on original_source/src/safety.rs's
// manual-override cooldown.
func (m *SafetyManager) DisableSafeMode(now uint64) {
	m.safeModeActive = false
	m.manualOverrideActive = true
	m.manualOverrideUntilMS = now + safetyOverrideCooldownMS
	m.lastTransitionMS = now
}

// EventHistory returns a copy of the bounded event log.
func (m *SafetyManager) EventHistory() []SafetyEvent {
	out := make([]SafetyEvent, len(m.events))
	copy(out, m.events)
	return out
}

// ClearResolved sweeps resolved events out of the log.
func (m *SafetyManager) ClearResolved() {
	kept := m.events[:0]
	for _, e := range m.events {
		if !e.Resolved {
			kept = append(kept, e)
		}
	}
	m.events = kept
}

// State returns the externally visible safety snapshot.
func (m *SafetyManager) State() SafetyState {
	return SafetyState{
		Level:              m.level,
		SafeModeActive:     m.safeModeActive,
		LastTransitionMS:   m.lastTransitionMS,
		Events:             m.EventHistory(),
		WatchdogDeadlineMS: m.lastUpdateMS + m.watchdogIntervalMS,
	}
}
