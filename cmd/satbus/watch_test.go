package main

import (
	"testing"

	"satbus/internal/bus"
)

func TestSafetyFromPacketPicksWorstUnresolvedLevel(t *testing.T) {
	pkt := bus.TelemetryPacket{SafetyEvents: []bus.SafetyEventSummary{
		{Kind: bus.EventBatteryUnstable, Level: bus.LevelWarning, Resolved: false},
		{Kind: bus.EventCommsFailure, Level: bus.LevelCritical, Resolved: true},
		{Kind: bus.EventPowerFailure, Level: bus.LevelEmergency, Resolved: false},
	}}

	if got := safetyFromPacket(pkt); got != bus.LevelEmergency {
		t.Fatalf("expected LevelEmergency, got %s", got)
	}
}

func TestSafetyFromPacketDefaultsToNormal(t *testing.T) {
	if got := safetyFromPacket(bus.TelemetryPacket{}); got != bus.LevelNormal {
		t.Fatalf("expected LevelNormal for a packet with no events, got %s", got)
	}
}

func TestSafetyFromPacketIgnoresResolvedEvents(t *testing.T) {
	pkt := bus.TelemetryPacket{SafetyEvents: []bus.SafetyEventSummary{
		{Kind: bus.EventCommsFailure, Level: bus.LevelCritical, Resolved: true},
	}}
	if got := safetyFromPacket(pkt); got != bus.LevelNormal {
		t.Fatalf("expected LevelNormal when all events are resolved, got %s", got)
	}
}
