package bus

import "encoding/json"

const (
	telemetryTargetBytes   = 2048
	telemetryOverheadConst = 150
	telemetryPadMin        = 1
	telemetryPadMax        = 500
	telemetryHardMin       = 1800
	telemetryHardMax       = 2200
	telemetryPadMarker     = 0x42

	performanceHistoryDepth = 8
	safetyEventSummaryCap   = 8
)

// PerformanceSnapshot is one entry in the fixed performance-history
// ring, using downsized types per the sizing contract.
type PerformanceSnapshot struct {
	UptimeS    uint32 `json:"uptime_s"`
	LoopTimeUS uint16 `json:"loop_time_us"`
	FreeMemKiB uint16 `json:"free_mem_kib"`
}

// SafetyEventSummary is the bounded wire representation of a safety
// event.
type SafetyEventSummary struct {
	Kind        SafetyEventKind `json:"kind"`
	Level       SafetyLevel     `json:"level"`
	TimestampMS uint64          `json:"timestamp"`
	Resolved    bool            `json:"resolved"`
}

// paddingBytes is filler for the sizing contract. It rides the standard
// []byte JSON encoding (a base64 string), which keeps the padding's
// on-wire cost close to its raw byte count, unlike a literal JSON array
// of numbers whose per-byte cost balloons with decimal width.
type paddingBytes []byte

type powerTelemetry struct {
	BootVoltagePack     uint32 `json:"boot_voltage_pack"`
	FirmwareHash        uint32 `json:"firmware_hash"`
	BatteryLevelPercent uint8  `json:"battery_level_percent"`
	ChargeCurrentMA     int16  `json:"charge_current_ma"`
	DischargeCurrentMA  uint16 `json:"discharge_current_ma"`
	SolarInputMA        uint16 `json:"solar_input_ma"`
	Flags               uint8  `json:"flags"`
	Health              uint8  `json:"health"`
}

const (
	powerFlagSolarEnabled = 1 << 0
	powerFlagPowerSave    = 1 << 1
	powerFlagCharging     = 1 << 2
)

type thermalTelemetry struct {
	CoreTempC       int8        `json:"core_temp_c"`
	BatteryTempC    int8        `json:"battery_temp_c"`
	PanelTempC      int8        `json:"panel_temp_c"`
	HeaterPowerW    uint8       `json:"heater_power_w"`
	HeaterSetpointC int8        `json:"heater_setpoint_c"`
	Mode            ThermalMode `json:"mode"`
	VarianceC       uint8       `json:"variance_c"`
	Health          uint8       `json:"health"`
}

type commsTelemetry struct {
	SignalTxPack             uint16  `json:"signal_tx_pack"`
	RxPackets                uint32  `json:"rx_packets"`
	TxPackets                uint32  `json:"tx_packets"`
	TxQueueDepth             uint8   `json:"tx_queue_depth"`
	BitErrorRate             float64 `json:"bit_error_rate"`
	AdaptiveRateBPS          uint16  `json:"adaptive_rate_bps"`
	AtmosphericAttenuationDB float64 `json:"atmospheric_attenuation_db"`
	Flags                    uint8   `json:"flags"`
	Health                   uint8   `json:"health"`
}

const (
	commsFlagLinkUp     = 1 << 0
	commsFlagTxDisabled = 1 << 1
)

type orbitalData struct {
	AltitudeKM    uint16    `json:"altitude_km"`
	MagneticField [3]int16  `json:"magnetic_field"`
	PositionKM    [3]int32  `json:"position_km"`
	VelocityMPS   [3]int16  `json:"velocity_mps"`
	AttitudeQuatXYZ [3]int16 `json:"attitude_quat_xyz"`
}

type missionData struct {
	ElapsedS             uint32 `json:"elapsed_s"`
	GroundStationVisible bool   `json:"ground_station_visible"`
	NextPassS            uint32 `json:"next_pass_s"`
}

// TelemetryPacket is the full wire telemetry representation, matching
// the data model's TelemetryPacket record.
type TelemetryPacket struct {
	TimestampMS        uint64                                      `json:"timestamp"`
	SequenceNumber      uint32                                      `json:"sequence_number"`
	Power               powerTelemetry                              `json:"power"`
	Thermal             thermalTelemetry                            `json:"thermal"`
	Comms               commsTelemetry                              `json:"comms"`
	HealthScores        uint32                                      `json:"health_scores"`
	PerformanceHistory  [performanceHistoryDepth]PerformanceSnapshot `json:"performance_history"`
	SafetyEvents        []SafetyEventSummary                        `json:"safety_events"`
	Orbital             orbitalData                                 `json:"orbital"`
	Mission             missionData                                 `json:"mission"`
	Truncated           bool                                        `json:"truncated"`
	Padding             paddingBytes                                `json:"padding"`
}

// TelemetryPacker builds telemetry packets with monotone sequence
// numbers and a fixed-depth performance-history ring.
type TelemetryPacker struct {
	sequence   uint32
	history    [performanceHistoryDepth]PerformanceSnapshot
	historyLen int
	historyIdx int
	startMS    uint64
	haveStart  bool
}

// NewTelemetryPacker constructs an empty packer; the first Build call
// emits sequence number 1.
func NewTelemetryPacker() *TelemetryPacker {
	return &TelemetryPacker{}
}

// pushPerf records the current tick's performance snapshot into the
// ring, overwriting the oldest entry once full.
func (p *TelemetryPacker) pushPerf(s PerformanceSnapshot) {
	p.history[p.historyIdx] = s
	p.historyIdx = (p.historyIdx + 1) % performanceHistoryDepth
	if p.historyLen < performanceHistoryDepth {
		p.historyLen++
	}
}

func (p *TelemetryPacker) orderedHistory() [performanceHistoryDepth]PerformanceSnapshot {
	var out [performanceHistoryDepth]PerformanceSnapshot
	if p.historyLen < performanceHistoryDepth {
		copy(out[:], p.history[:])
		return out
	}
	for i := 0; i < performanceHistoryDepth; i++ {
		out[i] = p.history[(p.historyIdx+i)%performanceHistoryDepth]
	}
	return out
}

// Build assembles and serializes one telemetry packet for the given
// tick, advancing the sequence number and performance-history ring.
func (p *TelemetryPacker) Build(now uint64, power PowerState, thermal ThermalState, comms CommsState, safety SafetyState) ([]byte, TelemetryPacket, error) {
	if !p.haveStart {
		p.haveStart = true
		p.startMS = now
	}
	p.sequence++

	perf := PerformanceSnapshot{
		UptimeS:    uint32((now - p.startMS) / 1000),
		LoopTimeUS: 850,
		FreeMemKiB: 4096,
	}
	p.pushPerf(perf)

	var flagsPower uint8
	if power.SolarEnabled {
		flagsPower |= powerFlagSolarEnabled
	}
	if power.PowerSaveEnabled {
		flagsPower |= powerFlagPowerSave
	}
	if power.Charging {
		flagsPower |= powerFlagCharging
	}

	var flagsComms uint8
	if comms.LinkUp {
		flagsComms |= commsFlagLinkUp
	}
	if comms.TxDisabled {
		flagsComms |= commsFlagTxDisabled
	}

	events := safety.Events
	if len(events) > safetyEventSummaryCap {
		events = events[len(events)-safetyEventSummaryCap:]
	}
	summaries := make([]SafetyEventSummary, len(events))
	for i, e := range events {
		summaries[i] = SafetyEventSummary{Kind: e.Kind, Level: e.Level, TimestampMS: e.TimestampMS, Resolved: e.Resolved}
	}

	packet := TelemetryPacket{
		TimestampMS:    now,
		SequenceNumber: p.sequence,
		Power: powerTelemetry{
			BootVoltagePack:     PackBootVoltage(power.BootCount, power.BatteryVoltageMV),
			FirmwareHash:        power.FirmwareHash,
			BatteryLevelPercent: power.BatteryLevelPercent,
			ChargeCurrentMA:     power.ChargeCurrentMA,
			DischargeCurrentMA:  power.DischargeCurrentMA,
			SolarInputMA:        power.SolarInputMA,
			Flags:               flagsPower,
			Health:              power.Health,
		},
		Thermal: thermalTelemetry{
			CoreTempC:       thermal.CoreTempC,
			BatteryTempC:    thermal.BatteryTempC,
			PanelTempC:      thermal.PanelTempC,
			HeaterPowerW:    thermal.HeaterPowerW,
			HeaterSetpointC: thermal.HeaterSetpointC,
			Mode:            thermal.Mode,
			VarianceC:       thermal.TempVarianceC,
			Health:          thermal.Health,
		},
		Comms: commsTelemetry{
			SignalTxPack:             comms.SignalTxPack,
			RxPackets:                comms.RxPackets,
			TxPackets:                comms.TxPackets,
			TxQueueDepth:             comms.TxQueueDepth,
			BitErrorRate:             comms.BitErrorRate,
			AdaptiveRateBPS:          comms.AdaptiveRateBPS,
			AtmosphericAttenuationDB: comms.AtmosphericAttenuationDB,
			Flags:                    flagsComms,
			Health:                   comms.Health,
		},
		HealthScores:       PackHealthScores(power.Health, thermal.Health, comms.Health, 0),
		PerformanceHistory: p.orderedHistory(),
		SafetyEvents:       summaries,
		Orbital: orbitalData{
			AltitudeKM:      550,
			MagneticField:   [3]int16{int16((now / 7) % 1000), int16((now / 11) % 1000), int16((now / 13) % 1000)},
			PositionKM:      [3]int32{int32(now % 7000), int32(now % 5000), int32(now % 3000)},
			VelocityMPS:     [3]int16{7660, 0, 0},
			AttitudeQuatXYZ: QuaternionXYZ(0, 0, 0), // UNSPECIFIED placeholder, see design notes
		},
		Mission: missionData{
			ElapsedS:             uint32((now - p.startMS) / 1000),
			GroundStationVisible: (now/1000)%900 < 300,
			NextPassS:            uint32(900 - (now/1000)%900),
		},
	}

	body, err := json.Marshal(packet)
	if err != nil {
		return nil, packet, newProtoErr(ErrSerialization, "%v", err)
	}

	l := len(body)
	if l > telemetryHardMax {
		packet.Truncated = true
		packet.Padding = nil
		body, err = json.Marshal(packet)
		if err != nil {
			return nil, packet, newProtoErr(ErrSerialization, "%v", err)
		}
		return body, packet, nil
	}

	padLen := telemetryTargetBytes - l - telemetryOverheadConst
	if padLen < telemetryPadMin {
		padLen = telemetryPadMin
	}
	if padLen > telemetryPadMax {
		padLen = telemetryPadMax
	}
	padding := make(paddingBytes, padLen)
	for i := range padding {
		padding[i] = telemetryPadMarker
	}
	packet.Padding = padding

	body, err = json.Marshal(packet)
	if err != nil {
		return nil, packet, newProtoErr(ErrSerialization, "%v", err)
	}
	return body, packet, nil
}
