package bus

import "math"

const (
	commsNominalSignalDBm  = -80
	commsCriticalSignalDBm = -120
	commsAntennaGainDB     = 3
	commsPathLossDB        = 140
	commsNoiseFloorDBm     = -110
	commsQueueCapacity     = 8
	commsMaxMessageBytes   = 256
	commsDrainPerTick      = 1
	commsLinkLostMS        = 3000 // S below threshold this long flips link down
	commsTXPowerDrawWPerDBm = 0.04
)

// CommsState is the externally visible snapshot of the comms subsystem.
type CommsState struct {
	LinkUp          bool
	LinkRequested   bool
	LinkDownSinceMS uint64
	SignalTxPack    uint16 // packed (signal_dbm, tx_power_dbm) via UnpackSignedPair
	RxPackets       uint32
	TxPackets       uint32
	RxQueueDepth    uint8
	TxQueueDepth    uint8
	BitErrorRate    float64
	AdaptiveRateBPS uint16
	AtmosphericAttenuationDB float64
	TxDisabled      bool
	Fault           FaultKind
	Health          uint8 // 0-255
}

// CommsSystem owns the comms subsystem's mutable state, including the
// bounded outbound message queue.
type CommsSystem struct {
	linkUp       bool
	linkEnabled  bool
	txEnabled    bool
	txPowerDBm   int8
	signalDBm    int8
	rxPackets    uint32
	txPackets    uint32
	queue        [][]byte
	fault        FaultKind
	orbitClockMS uint64
	belowSinceMS uint64
	belowActive  bool
	downSinceMS  uint64
	atmosphericDB float64
}

// NewCommsSystem constructs a comms subsystem with the link enabled at
// a nominal transmit power.
func NewCommsSystem() *CommsSystem {
	return &CommsSystem{
		linkUp:      true,
		linkEnabled: true,
		txEnabled:   true,
		txPowerDBm:  20,
		signalDBm:   commsNominalSignalDBm,
	}
}

// SetLinkEnabled enables or disables the comms link (SetCommsLink).
func (c *CommsSystem) SetLinkEnabled(enabled bool) {
	c.linkEnabled = enabled
}

// SetTxEnabled gates transmission independent of link state; used by
// the safety manager's disable_comms_tx action.
func (c *CommsSystem) SetTxEnabled(enabled bool) {
	c.txEnabled = enabled
}

// SetTxPower sets the transmit power in dBm. The caller validates the
// 0-30 dBm range before invoking this.
func (c *CommsSystem) SetTxPower(dBm int8) {
	c.txPowerDBm = dBm
}

// InjectFault sets the active fault mode.
func (c *CommsSystem) InjectFault(f FaultKind) {
	c.fault = f
}

// ClearFault clears the active fault.
func (c *CommsSystem) ClearFault() {
	c.fault = ""
}

// ErrQueueFull is returned by Enqueue when the outbound queue is at
// capacity.
var ErrQueueFull = &ProtocolError{Kind: ErrBufferOverflow, Msg: "outbound comms queue full"}

// Enqueue appends a message to the outbound queue. The caller has
// already validated message length against commsMaxMessageBytes.
func (c *CommsSystem) Enqueue(msg string) error {
	if len(c.queue) >= commsQueueCapacity {
		return ErrQueueFull
	}
	c.queue = append(c.queue, []byte(msg))
	return nil
}

func (c *CommsSystem) linkBudget() float64 {
	c.atmosphericDB = 2.0 * math.Sin(float64(c.orbitClockMS)/1000.0/600.0)
	return float64(c.txPowerDBm) - commsPathLossDB + commsAntennaGainDB - c.atmosphericDB
}

func (c *CommsSystem) bitErrorRate(signal float64) float64 {
	switch {
	case signal > -70:
		return 1e-6
	case signal > -90:
		return 1e-4
	case signal > -100:
		return 1e-3
	default:
		return 1e-2
	}
}

func (c *CommsSystem) adaptiveRate(signal float64) uint16 {
	switch {
	case signal > -90:
		return 19200
	case signal > -100:
		return 9600
	default:
		return 4800
	}
}

// Update advances the comms model by dtMS simulated milliseconds.
func (c *CommsSystem) Update(dtMS uint64) {
	c.orbitClockMS += dtMS

	signal := c.linkBudget()
	if c.fault == FaultDegraded {
		signal -= 15
	}
	if c.fault == FaultIntermittent {
		signal -= 25
	}
	c.signalDBm = int8(clampF64(signal, -128, 127))

	belowThreshold := c.fault == FaultFailed || signal < commsCriticalSignalDBm || !c.linkEnabled
	if belowThreshold {
		if !c.belowActive {
			c.belowActive = true
			c.belowSinceMS = c.orbitClockMS
		}
	} else {
		c.belowActive = false
	}

	wasUp := c.linkUp
	if c.belowActive && c.orbitClockMS-c.belowSinceMS >= commsLinkLostMS {
		c.linkUp = false
	} else if !c.belowActive {
		c.linkUp = true
	}
	if wasUp && !c.linkUp {
		c.downSinceMS = c.orbitClockMS
	}

	if c.linkUp && c.txEnabled && c.fault != FaultFailed && len(c.queue) > 0 {
		drain := commsDrainPerTick
		if drain > len(c.queue) {
			drain = len(c.queue)
		}
		c.queue = c.queue[drain:]
		c.txPackets += uint32(drain)
	}

	if c.linkUp {
		c.rxPackets++
	}
}

func (c *CommsSystem) health() uint8 {
	base := 255
	switch c.fault {
	case FaultFailed:
		base = 20
	case FaultDegraded:
		base = 140
	case FaultIntermittent:
		base = 190
	}
	if !c.linkUp && base > 80 {
		base = 80
	}
	return clampU8(base)
}

// TxDissipationW estimates the watts the RF amplifier dissipates at
// the current transmit power, fed to the thermal model as internal
// heat when transmitting.
func (c *CommsSystem) TxDissipationW() float64 {
	if !c.txEnabled || !c.linkUp {
		return 0
	}
	return float64(c.txPowerDBm) * commsTXPowerDrawWPerDBm
}

// LoadMA estimates the milliamps the comms subsystem draws, fed to the
// power model as external load.
func (c *CommsSystem) LoadMA() float64 {
	if !c.linkUp {
		return 20
	}
	if c.txEnabled {
		return 60 + float64(c.txPowerDBm)*2
	}
	return 40
}

// downDurationMS returns how long the link has been continuously down,
// used by the safety manager's 5 s CommsFailure threshold.
func (c *CommsSystem) downDurationMS() uint64 {
	if c.linkUp {
		return 0
	}
	return c.orbitClockMS - c.downSinceMS
}

// Snapshot returns the current externally visible state.
func (c *CommsSystem) Snapshot() CommsState {
	return CommsState{
		LinkUp:                   c.linkUp,
		LinkRequested:            c.linkEnabled,
		LinkDownSinceMS:          c.downDurationMS(),
		SignalTxPack:             PackSignedPair(c.signalDBm, c.txPowerDBm),
		RxPackets:                c.rxPackets,
		TxPackets:                c.txPackets,
		RxQueueDepth:             0,
		TxQueueDepth:             uint8(len(c.queue)),
		BitErrorRate:             c.bitErrorRate(float64(c.signalDBm)),
		AdaptiveRateBPS:          c.adaptiveRate(float64(c.signalDBm)),
		AtmosphericAttenuationDB: c.atmosphericDB,
		TxDisabled:               !c.txEnabled,
		Fault:                    c.fault,
		Health:                   c.health(),
	}
}
