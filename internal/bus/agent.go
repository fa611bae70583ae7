package bus

import "fmt"

// AgentConfig configures a new Agent. Zero-value fields fall back to
// the defaults applied in NewAgent.
type AgentConfig struct {
	// TickIntervalMS is the nominal simulated step size, used only as
	// the dt of the first Tick and of any Tick whose timestamp does not
	// advance past the previous one.
	TickIntervalMS uint64
	// WatchdogIntervalMS is the safety manager's maximum silent period
	// before a WatchdogTimeout event is raised.
	WatchdogIntervalMS uint64
	// DefaultCommandTimeoutMS is the tracker timeout applied to every
	// submitted command.
	DefaultCommandTimeoutMS uint64
	// FaultInjectionEnabled gates both operator-commanded
	// (SimulateFault) and any future random fault injection.
	FaultInjectionEnabled bool
}

func (c AgentConfig) withDefaults() AgentConfig {
	if c.TickIntervalMS == 0 {
		c.TickIntervalMS = 100
	}
	if c.WatchdogIntervalMS == 0 {
		c.WatchdogIntervalMS = safetyWatchdogDefaultMS
	}
	if c.DefaultCommandTimeoutMS == 0 {
		c.DefaultCommandTimeoutMS = 30000
	}
	return c
}

// Agent is the single owner of every subsystem, the safety manager, the
// command tracker, and the scheduler. It is the only mutating actor
// within a tick and is not safe for concurrent use.
type Agent struct {
	cfg AgentConfig

	power   *PowerSystem
	thermal *ThermalSystem
	comms   *CommsSystem
	safety  *SafetyManager
	tracker *CommandTracker
	sched   *CommandScheduler
	packer  *TelemetryPacker

	faultInjectionEnabled bool
	lastTickMS            uint64
	haveLastTick           bool
}

// NewAgent constructs an agent with every subsystem at its nominal
// starting state.
func NewAgent(cfg AgentConfig) *Agent {
	cfg = cfg.withDefaults()
	m := NewSafetyManager()
	m.watchdogIntervalMS = cfg.WatchdogIntervalMS
	t := NewCommandTracker()
	return &Agent{
		cfg:                   cfg,
		power:                 NewPowerSystem(),
		thermal:               NewThermalSystem(),
		comms:                 NewCommsSystem(),
		safety:                m,
		tracker:               t,
		sched:                 NewCommandScheduler(),
		packer:                NewTelemetryPacker(),
		faultInjectionEnabled: cfg.FaultInjectionEnabled,
	}
}

// isAllowedInSafeMode implements the safe-mode command filter: commands
// that could undermine recovery are rejected, everything else
// (including administrative/query commands) passes.
func isAllowedInSafeMode(ct CommandType) bool {
	switch ct.Kind {
	case KindSetSolarPanel:
		return ct.SetSolarPanel != nil && ct.SetSolarPanel.Enabled
	case KindSetCommsLink:
		return ct.SetCommsLink != nil && !ct.SetCommsLink.Enabled
	case KindSetHeaterState, KindSetTxPower, KindTransmitMessage, KindSimulateFault:
		return false
	default:
		return true
	}
}

// Submit validates, schedules-or-executes, and tracks one command,
// returning the initial response. Deferred commands are tracked as
// Accepted and left to Tick; immediate commands run to a terminal
// status before Submit returns.
func (a *Agent) Submit(cmd Command, now uint64) CommandResponse {
	resp := CommandResponse{ID: cmd.ID, TimestampMS: now}

	if err := ValidateCommand(cmd, now); err != nil {
		resp.Status = StatusNegativeAck
		resp.Message = err.Error()
		return resp
	}

	if cmd.ExecutionTime != nil && *cmd.ExecutionTime > now {
		if err := a.sched.Schedule(cmd, now); err != nil {
			resp.Status = StatusSystemBusy
			resp.Message = err.Error()
			return resp
		}
		if err := a.tracker.Track(cmd.ID, now, a.cfg.DefaultCommandTimeoutMS); err != nil {
			resp.Status = StatusSystemBusy
			resp.Message = err.Error()
			return resp
		}
		resp.Status = StatusScheduled
		return resp
	}

	if a.safety.State().SafeModeActive && !isAllowedInSafeMode(cmd.CommandType) {
		resp.Status = StatusSafeModeActive
		resp.Message = fmt.Sprintf("%s rejected while safe-mode is active", cmd.CommandType.Kind)
		return resp
	}

	if err := a.tracker.Track(cmd.ID, now, a.cfg.DefaultCommandTimeoutMS); err != nil {
		resp.Status = StatusSystemBusy
		resp.Message = err.Error()
		return resp
	}
	_ = a.tracker.UpdateStatus(cmd.ID, TrackedStarted, now)

	ok, msg := a.execute(cmd.CommandType, now)
	if ok {
		_ = a.tracker.UpdateStatus(cmd.ID, TrackedSuccess, now)
		resp.Status = StatusSuccess
		resp.Message = msg
	} else {
		_ = a.tracker.UpdateStatus(cmd.ID, TrackedFailed, now)
		resp.Status = StatusExecutionFailed
		resp.Message = msg
	}
	return resp
}

// execute routes one command to the owning subsystem, or to
// agent-level housekeeping for system-wide commands. It returns a
// best-effort success flag and a short textual reason on failure.
func (a *Agent) execute(ct CommandType, now uint64) (bool, string) {
	switch ct.Kind {
	case KindPing:
		return true, "pong"

	case KindSystemStatus:
		return true, fmt.Sprintf("level=%s safe_mode=%v tracked=%d scheduled=%d",
			a.safety.State().Level, a.safety.State().SafeModeActive, a.tracker.Len(), a.sched.Stats().CurrentlyScheduled)

	case KindSystemReboot:
		a.power.Reboot()
		a.thermal.ClearFault()
		a.comms.ClearFault()
		a.thermal.SetSurvivalMode(false)
		a.comms.SetTxEnabled(true)
		return true, "rebooted"

	case KindSetSolarPanel:
		a.power.SetSolarPanel(ct.SetSolarPanel.Enabled)
		return true, ""

	case KindSetHeaterState:
		a.thermal.SetHeaterState(ct.SetHeaterState.On)
		return true, ""

	case KindSetCommsLink:
		a.comms.SetLinkEnabled(ct.SetCommsLink.Enabled)
		return true, ""

	case KindSetTxPower:
		a.comms.SetTxPower(ct.SetTxPower.PowerDBm)
		return true, ""

	case KindTransmitMessage:
		if err := a.comms.Enqueue(ct.TransmitMessage.Message); err != nil {
			return false, err.Error()
		}
		return true, ""

	case KindSetSafeMode:
		if ct.SetSafeMode.Enabled {
			a.safety.ForceSafeMode(now)
		} else {
			a.safety.DisableSafeMode(now)
		}
		return true, ""

	case KindSimulateFault:
		if !a.faultInjectionEnabled {
			return false, "fault injection disabled"
		}
		a.injectFault(ct.SimulateFault.Target, ct.SimulateFault.FaultType)
		return true, ""

	case KindClearFaults:
		if ct.ClearFaults == nil || ct.ClearFaults.Target == nil {
			a.power.ClearFault()
			a.thermal.ClearFault()
			a.comms.ClearFault()
			return true, ""
		}
		a.clearFault(*ct.ClearFaults.Target)
		return true, ""

	case KindSetFaultInjection:
		a.faultInjectionEnabled = ct.SetFaultInjection.Enabled
		return true, ""

	case KindGetFaultInjectionStatus:
		return true, fmt.Sprintf("enabled=%v", a.faultInjectionEnabled)
	}
	return false, "unhandled command kind"
}

func (a *Agent) injectFault(target SubsystemID, kind FaultKind) {
	switch target {
	case SubsystemPower:
		a.power.InjectFault(kind)
	case SubsystemThermal:
		a.thermal.InjectFault(kind)
	case SubsystemComms:
		a.comms.InjectFault(kind)
	}
}

func (a *Agent) clearFault(target SubsystemID) {
	switch target {
	case SubsystemPower:
		a.power.ClearFault()
	case SubsystemThermal:
		a.thermal.ClearFault()
	case SubsystemComms:
		a.comms.ClearFault()
	}
}

// Tick runs one full cycle: scheduler drain, command execution,
// subsystem update, safety update, tracker aging, telemetry build. The
// ordering is load-bearing and must not change.
func (a *Agent) Tick(now uint64) TelemetryPacket {
	dt := a.cfg.TickIntervalMS
	if a.haveLastTick && now > a.lastTickMS {
		dt = now - a.lastTickMS
	}
	a.haveLastTick = true
	a.lastTickMS = now

	for _, cmd := range a.sched.Ready(now) {
		a.runScheduled(cmd, now)
	}

	a.comms.Update(dt)
	commsSnap := a.comms.Snapshot()

	a.power.SetExternalLoad(a.comms.LoadMA())
	a.power.Update(dt)

	a.thermal.SetExternalHeat(a.comms.TxDissipationW())
	if a.power.Snapshot().PowerSaveEnabled {
		// power-save trims comms-driven internal dissipation too
		a.thermal.SetExternalHeat(a.comms.TxDissipationW() * 0.5)
	}
	a.thermal.Update(dt)

	powerSnap := a.power.Snapshot()
	thermalSnap := a.thermal.Snapshot()

	actions := a.safety.Update(now, powerSnap, thermalSnap, commsSnap)
	a.applyActions(actions)

	a.tracker.CleanupExpired(now)
	a.sched.CleanupExpired(now)

	_, packet, _ := a.packer.Build(now, a.power.Snapshot(), a.thermal.Snapshot(), a.comms.Snapshot(), a.safety.State())
	return packet
}

func (a *Agent) runScheduled(cmd Command, now uint64) {
	if _, tracked := a.tracker.StatusOf(cmd.ID); tracked {
		_ = a.tracker.UpdateStatus(cmd.ID, TrackedStarted, now)
	}

	if a.safety.State().SafeModeActive && !isAllowedInSafeMode(cmd.CommandType) {
		_ = a.tracker.UpdateStatus(cmd.ID, TrackedNegativeAck, now)
		return
	}

	ok, _ := a.execute(cmd.CommandType, now)
	if ok {
		_ = a.tracker.UpdateStatus(cmd.ID, TrackedSuccess, now)
	} else {
		_ = a.tracker.UpdateStatus(cmd.ID, TrackedFailed, now)
	}
}

func (a *Agent) applyActions(actions Actions) {
	if actions.RestoreNormalOperations {
		a.power.SetPowerSave(false)
		a.thermal.SetSurvivalMode(false)
		a.thermal.SetSafetyLockout(false)
		a.comms.SetTxEnabled(true)
		return
	}
	if actions.EnableEmergencyPowerSave {
		a.power.SetPowerSave(true)
	}
	if actions.ForceSolarOn {
		a.power.SetSolarPanel(true)
	}
	if actions.EnableSurvivalMode {
		a.thermal.SetSurvivalMode(true)
	}
	a.thermal.SetSafetyLockout(actions.DisableHeaters)
	if actions.DisableCommsTx {
		a.comms.SetTxEnabled(false)
	}
}

// SafetyState returns the current safety manager snapshot.
func (a *Agent) SafetyState() SafetyState {
	return a.safety.State()
}

// TrackedCommand returns a tracked command's current status, and false
// if the id is not tracked.
func (a *Agent) TrackedCommand(id uint32) (TrackedStatus, bool) {
	return a.tracker.StatusOf(id)
}
