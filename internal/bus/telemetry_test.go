package bus

import (
	"encoding/json"
	"testing"
)

func nominalStates() (PowerState, ThermalState, CommsState, SafetyState) {
	p := PowerState{BatteryVoltageMV: powerNominalVoltageMV, BatteryLevelPercent: 80, Health: 255, FirmwareHash: powerFirmwareHash}
	th := ThermalState{CoreTempC: int8(thermalNominalC), Health: 255}
	c := CommsState{LinkUp: true, Health: 255}
	s := SafetyState{Level: LevelNormal}
	return p, th, c, s
}

func TestTelemetryBuildStaysWithinHardBounds(t *testing.T) {
	pk := NewTelemetryPacker()
	p, th, c, s := nominalStates()
	body, packet, err := pk.Build(1000, p, th, c, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body) < telemetryHardMin || len(body) > telemetryHardMax {
		t.Fatalf("packet size %d outside hard bounds [%d,%d]", len(body), telemetryHardMin, telemetryHardMax)
	}
	if packet.Truncated {
		t.Fatalf("did not expect truncation for a nominal packet")
	}
	if packet.SequenceNumber != 1 {
		t.Fatalf("expected first sequence number 1, got %d", packet.SequenceNumber)
	}
}

func TestTelemetrySequenceNumberIncrements(t *testing.T) {
	pk := NewTelemetryPacker()
	p, th, c, s := nominalStates()
	_, first, _ := pk.Build(1000, p, th, c, s)
	_, second, _ := pk.Build(2000, p, th, c, s)
	if second.SequenceNumber != first.SequenceNumber+1 {
		t.Fatalf("expected monotone sequence, got %d then %d", first.SequenceNumber, second.SequenceNumber)
	}
}

func TestTelemetryCapsSafetyEventsWithinBudget(t *testing.T) {
	pk := NewTelemetryPacker()
	p, th, c, s := nominalStates()
	for i := 0; i < 32; i++ {
		s.Events = append(s.Events, SafetyEvent{Kind: EventSystemOverload, Level: LevelWarning, TimestampMS: uint64(i)})
	}
	body, packet, err := pk.Build(1000, p, th, c, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body) > telemetryHardMax {
		t.Fatalf("packet with 32 safety events exceeded the hard max: %d", len(body))
	}
	if len(packet.SafetyEvents) > safetyEventSummaryCap {
		t.Fatalf("expected safety events capped at %d, got %d", safetyEventSummaryCap, len(packet.SafetyEvents))
	}
}

func TestTelemetryPacketRoundTripsThroughJSON(t *testing.T) {
	pk := NewTelemetryPacker()
	p, th, c, s := nominalStates()
	body, _, err := pk.Build(1000, p, th, c, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded TelemetryPacket
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("failed to decode telemetry packet: %v", err)
	}
	if decoded.TimestampMS != 1000 {
		t.Fatalf("expected timestamp 1000, got %d", decoded.TimestampMS)
	}
}
