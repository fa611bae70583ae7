package bus

import "testing"

func pingCmd(id uint32, now uint64) Command {
	return Command{ID: id, TimestampMS: now, CommandType: CommandType{Kind: KindPing}}
}

func TestAgentSubmitPingSucceedsImmediately(t *testing.T) {
	a := NewAgent(AgentConfig{})
	resp := a.Submit(pingCmd(1, 0), 0)
	if resp.Status != StatusSuccess {
		t.Fatalf("expected Success, got %s (%s)", resp.Status, resp.Message)
	}
	status, ok := a.TrackedCommand(1)
	if !ok || status != TrackedSuccess {
		t.Fatalf("expected command 1 tracked as Success, got %s ok=%v", status, ok)
	}
}

func TestAgentSubmitDeferredCommandIsScheduledNotExecuted(t *testing.T) {
	a := NewAgent(AgentConfig{})
	execAt := uint64(5000)
	cmd := Command{ID: 2, TimestampMS: 0, ExecutionTime: &execAt, CommandType: CommandType{Kind: KindPing}}
	resp := a.Submit(cmd, 0)
	if resp.Status != StatusScheduled {
		t.Fatalf("expected Scheduled, got %s", resp.Status)
	}
	status, ok := a.TrackedCommand(2)
	if !ok || status != TrackedAccepted {
		t.Fatalf("expected command 2 tracked as Accepted while scheduled, got %s ok=%v", status, ok)
	}
}

func TestAgentDeferredCommandExecutesOnTick(t *testing.T) {
	a := NewAgent(AgentConfig{})
	execAt := uint64(1000)
	cmd := Command{ID: 3, TimestampMS: 0, ExecutionTime: &execAt, CommandType: CommandType{Kind: KindSetSolarPanel, SetSolarPanel: &EnabledParams{Enabled: false}}}
	a.Submit(cmd, 0)
	a.Tick(1000)
	status, ok := a.TrackedCommand(3)
	if !ok || status != TrackedSuccess {
		t.Fatalf("expected deferred command to complete by its execution tick, got %s ok=%v", status, ok)
	}
}

func TestAgentRejectsInvalidCommand(t *testing.T) {
	a := NewAgent(AgentConfig{})
	cmd := Command{ID: 4, TimestampMS: 0, CommandType: CommandType{Kind: KindSetTxPower, SetTxPower: &TxPowerParams{PowerDBm: -5}}}
	resp := a.Submit(cmd, 0)
	if resp.Status != StatusNegativeAck {
		t.Fatalf("expected NegativeAck for out-of-range tx power, got %s", resp.Status)
	}
}

func TestAgentSimulateFaultRejectedWhenInjectionDisabled(t *testing.T) {
	a := NewAgent(AgentConfig{FaultInjectionEnabled: false})
	cmd := Command{ID: 5, CommandType: CommandType{Kind: KindSimulateFault, SimulateFault: &SimulateFaultParams{Target: SubsystemPower, FaultType: FaultFailed}}}
	resp := a.Submit(cmd, 0)
	if resp.Status != StatusExecutionFailed {
		t.Fatalf("expected ExecutionFailed with fault injection disabled, got %s", resp.Status)
	}
}

func TestAgentSafeModeRejectsDisallowedCommands(t *testing.T) {
	a := NewAgent(AgentConfig{})
	a.safety.ForceSafeMode(0)

	cmd := Command{ID: 6, CommandType: CommandType{Kind: KindSetHeaterState, SetHeaterState: &HeaterParams{On: true}}}
	resp := a.Submit(cmd, 0)
	if resp.Status != StatusSafeModeActive {
		t.Fatalf("expected SafeModeActive rejection, got %s", resp.Status)
	}

	pingResp := a.Submit(pingCmd(7, 0), 0)
	if pingResp.Status != StatusSuccess {
		t.Fatalf("expected Ping to still succeed in safe-mode, got %s", pingResp.Status)
	}
}

func TestAgentTickProducesGrowingSequenceNumbers(t *testing.T) {
	a := NewAgent(AgentConfig{})
	p1 := a.Tick(100)
	p2 := a.Tick(200)
	if p2.SequenceNumber != p1.SequenceNumber+1 {
		t.Fatalf("expected monotone telemetry sequence, got %d then %d", p1.SequenceNumber, p2.SequenceNumber)
	}
}

func TestAgentSafetyMitigationDoesNotClobberManualHeaterOnceLifted(t *testing.T) {
	a := NewAgent(AgentConfig{})
	heaterCmd := Command{ID: 8, CommandType: CommandType{Kind: KindSetHeaterState, SetHeaterState: &HeaterParams{On: true}}}
	a.Submit(heaterCmd, 0)
	a.Tick(100)
	if a.thermal.Snapshot().HeaterPowerW == 0 {
		t.Fatalf("expected heater on after manual command")
	}

	a.applyActions(Actions{DisableHeaters: true})
	a.thermal.Update(100)
	if a.thermal.Snapshot().HeaterPowerW != 0 {
		t.Fatalf("expected lockout to force heater off")
	}

	a.applyActions(Actions{DisableHeaters: false})
	a.thermal.Update(100)
	if a.thermal.Snapshot().HeaterPowerW == 0 {
		t.Fatalf("expected manual heater command to resume once the mitigation lifts")
	}
}
