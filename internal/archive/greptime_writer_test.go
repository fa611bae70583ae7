package archive

import (
	"testing"

	"satbus/internal/bus"
)

func TestToRowFlattensTelemetryPacket(t *testing.T) {
	pkt := bus.TelemetryPacket{
		SequenceNumber: 42,
		TimestampMS:    5000,
		Truncated:      true,
	}
	pkt.Power.BatteryLevelPercent = 81
	pkt.Power.Health = 250
	pkt.Thermal.CoreTempC = 12
	pkt.Thermal.Mode = bus.ThermalActive
	pkt.Thermal.Health = 200
	pkt.Comms.Flags = 1 // link-up bit set
	pkt.Comms.BitErrorRate = 0.0003
	pkt.Comms.Health = 180

	row := toRow(pkt, bus.LevelWarning)

	if row.SequenceNumber != 42 {
		t.Fatalf("expected sequence number 42, got %v", row.SequenceNumber)
	}
	if row.BatteryLevelPercent != 81 {
		t.Fatalf("expected battery level 81, got %v", row.BatteryLevelPercent)
	}
	if row.ThermalMode != string(bus.ThermalActive) {
		t.Fatalf("expected thermal mode %q, got %q", bus.ThermalActive, row.ThermalMode)
	}
	if row.CommsLinkUp != "true" {
		t.Fatalf("expected comms_link_up true, got %q", row.CommsLinkUp)
	}
	if row.Truncated != "true" {
		t.Fatalf("expected truncated true, got %q", row.Truncated)
	}
	if row.SafetyLevel != string(bus.LevelWarning) {
		t.Fatalf("expected safety level %q, got %q", bus.LevelWarning, row.SafetyLevel)
	}
	if row.TimestampMS != 5000 {
		t.Fatalf("expected timestamp 5000, got %d", row.TimestampMS)
	}
}

func TestToRowClearsLinkUpWhenFlagUnset(t *testing.T) {
	pkt := bus.TelemetryPacket{}
	pkt.Comms.Flags = 0
	row := toRow(pkt, bus.LevelNormal)
	if row.CommsLinkUp != "false" {
		t.Fatalf("expected comms_link_up false, got %q", row.CommsLinkUp)
	}
}
