package bus

import (
	"encoding/json"
	"fmt"
)

const (
	MaxCommandBytes   = 512
	MaxResponseBytes  = 1024
	MaxTelemetryBytes = telemetryHardMax

	trackerCapacity        = 16
	trackerDefaultGraceMS  = 5000
	maxExecutionSkewMS     = 24 * 60 * 60 * 1000
)

// ProtocolErrorKind enumerates the closed error taxonomy from the
// protocol layer.
type ProtocolErrorKind string

const (
	ErrInvalidJSON       ProtocolErrorKind = "InvalidJson"
	ErrMessageTooLarge   ProtocolErrorKind = "MessageTooLarge"
	ErrSerialization     ProtocolErrorKind = "SerializationError"
	ErrInvalidCommand    ProtocolErrorKind = "InvalidCommand"
	ErrInvalidParameter  ProtocolErrorKind = "InvalidParameter"
	ErrBufferOverflow    ProtocolErrorKind = "BufferOverflow"
)

// ProtocolError is the error type returned by every protocol-layer
// operation that can fail.
type ProtocolError struct {
	Kind ProtocolErrorKind
	Msg  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newProtoErr(kind ProtocolErrorKind, format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// CommandKind is the closed set of wire command tags.
type CommandKind string

const (
	KindPing                    CommandKind = "Ping"
	KindSystemStatus            CommandKind = "SystemStatus"
	KindSystemReboot            CommandKind = "SystemReboot"
	KindSetSolarPanel           CommandKind = "SetSolarPanel"
	KindSetHeaterState          CommandKind = "SetHeaterState"
	KindSetCommsLink            CommandKind = "SetCommsLink"
	KindSetTxPower              CommandKind = "SetTxPower"
	KindTransmitMessage         CommandKind = "TransmitMessage"
	KindSetSafeMode             CommandKind = "SetSafeMode"
	KindSimulateFault           CommandKind = "SimulateFault"
	KindClearFaults             CommandKind = "ClearFaults"
	KindSetFaultInjection       CommandKind = "SetFaultInjection"
	KindGetFaultInjectionStatus CommandKind = "GetFaultInjectionStatus"
)

var allCommandKinds = map[CommandKind]bool{
	KindPing: true, KindSystemStatus: true, KindSystemReboot: true,
	KindSetSolarPanel: true, KindSetHeaterState: true, KindSetCommsLink: true,
	KindSetTxPower: true, KindTransmitMessage: true, KindSetSafeMode: true,
	KindSimulateFault: true, KindClearFaults: true, KindSetFaultInjection: true,
	KindGetFaultInjectionStatus: true,
}

// EnabledParams is the `{ "enabled": bool }` parameter shape shared by
// SetSolarPanel, SetCommsLink, SetSafeMode, and SetFaultInjection.
type EnabledParams struct {
	Enabled bool `json:"enabled"`
}

// HeaterParams is SetHeaterState's parameter shape.
type HeaterParams struct {
	On bool `json:"on"`
}

// TxPowerParams is SetTxPower's parameter shape.
type TxPowerParams struct {
	PowerDBm int8 `json:"power_dbm"`
}

// TransmitParams is TransmitMessage's parameter shape.
type TransmitParams struct {
	Message string `json:"message"`
}

// SimulateFaultParams is SimulateFault's parameter shape.
type SimulateFaultParams struct {
	Target    SubsystemID `json:"target"`
	FaultType FaultKind   `json:"fault_type"`
}

// ClearFaultsParams is ClearFaults's parameter shape; a nil Target
// clears every subsystem.
type ClearFaultsParams struct {
	Target *SubsystemID `json:"target"`
}

// CommandType is a tagged union over every command kind. Exactly one of
// the pointer fields is populated, selected by Kind. This mirrors the
// wire shape `{ "<kind>": { ...params } }` — a single-key JSON object.
type CommandType struct {
	Kind CommandKind

	SetSolarPanel     *EnabledParams
	SetHeaterState    *HeaterParams
	SetCommsLink      *EnabledParams
	SetTxPower        *TxPowerParams
	TransmitMessage   *TransmitParams
	SetSafeMode       *EnabledParams
	SimulateFault     *SimulateFaultParams
	ClearFaults       *ClearFaultsParams
	SetFaultInjection *EnabledParams
}

func (ct CommandType) MarshalJSON() ([]byte, error) {
	var payload any = struct{}{}
	switch ct.Kind {
	case KindSetSolarPanel:
		payload = ct.SetSolarPanel
	case KindSetHeaterState:
		payload = ct.SetHeaterState
	case KindSetCommsLink:
		payload = ct.SetCommsLink
	case KindSetTxPower:
		payload = ct.SetTxPower
	case KindTransmitMessage:
		payload = ct.TransmitMessage
	case KindSetSafeMode:
		payload = ct.SetSafeMode
	case KindSimulateFault:
		payload = ct.SimulateFault
	case KindClearFaults:
		payload = ct.ClearFaults
	case KindSetFaultInjection:
		payload = ct.SetFaultInjection
	}
	return json.Marshal(map[string]any{string(ct.Kind): payload})
}

func (ct *CommandType) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("command_type must have exactly one kind key, got %d", len(raw))
	}
	var kind CommandKind
	var body json.RawMessage
	for k, v := range raw {
		kind = CommandKind(k)
		body = v
	}
	if !allCommandKinds[kind] {
		return fmt.Errorf("unknown command kind %q", kind)
	}
	ct.Kind = kind
	switch kind {
	case KindSetSolarPanel:
		var p EnabledParams
		if err := json.Unmarshal(body, &p); err != nil {
			return err
		}
		ct.SetSolarPanel = &p
	case KindSetHeaterState:
		var p HeaterParams
		if err := json.Unmarshal(body, &p); err != nil {
			return err
		}
		ct.SetHeaterState = &p
	case KindSetCommsLink:
		var p EnabledParams
		if err := json.Unmarshal(body, &p); err != nil {
			return err
		}
		ct.SetCommsLink = &p
	case KindSetTxPower:
		var p TxPowerParams
		if err := json.Unmarshal(body, &p); err != nil {
			return err
		}
		ct.SetTxPower = &p
	case KindTransmitMessage:
		var p TransmitParams
		if err := json.Unmarshal(body, &p); err != nil {
			return err
		}
		ct.TransmitMessage = &p
	case KindSetSafeMode:
		var p EnabledParams
		if err := json.Unmarshal(body, &p); err != nil {
			return err
		}
		ct.SetSafeMode = &p
	case KindSimulateFault:
		var p SimulateFaultParams
		if err := json.Unmarshal(body, &p); err != nil {
			return err
		}
		ct.SimulateFault = &p
	case KindClearFaults:
		var p ClearFaultsParams
		if len(body) > 0 && string(body) != "null" {
			if err := json.Unmarshal(body, &p); err != nil {
				return err
			}
		}
		ct.ClearFaults = &p
	case KindSetFaultInjection:
		var p EnabledParams
		if err := json.Unmarshal(body, &p); err != nil {
			return err
		}
		ct.SetFaultInjection = &p
	}
	return nil
}

// Command is one decoded inbound message: a monotonic id, a submit
// timestamp, an optional deferred execution time, and a tagged kind.
type Command struct {
	ID            uint32      `json:"id"`
	TimestampMS   uint64      `json:"timestamp"`
	ExecutionTime *uint64     `json:"execution_time"`
	CommandType   CommandType `json:"command_type"`
}

// ResponseStatus is the closed set of response status tags.
type ResponseStatus string

const (
	StatusAcknowledged     ResponseStatus = "Acknowledged"
	StatusNegativeAck      ResponseStatus = "NegativeAck"
	StatusExecutionStarted ResponseStatus = "ExecutionStarted"
	StatusSuccess          ResponseStatus = "Success"
	StatusExecutionFailed  ResponseStatus = "ExecutionFailed"
	StatusTimeout          ResponseStatus = "Timeout"
	StatusInProgress       ResponseStatus = "InProgress"
	StatusError            ResponseStatus = "Error"
	StatusInvalidCommand   ResponseStatus = "InvalidCommand"
	StatusSystemBusy       ResponseStatus = "SystemBusy"
	StatusSafeModeActive   ResponseStatus = "SafeModeActive"
	StatusScheduled        ResponseStatus = "Scheduled"
)

// CommandResponse is the wire response to a submitted command.
type CommandResponse struct {
	ID          uint32         `json:"id"`
	TimestampMS uint64         `json:"timestamp"`
	Status      ResponseStatus `json:"status"`
	Message     string         `json:"message,omitempty"`
}

// ParseCommand decodes a single inbound line. Oversized input or
// malformed JSON is reported as a ProtocolError; the caller never sees
// a partially-decoded Command on error.
func ParseCommand(data []byte) (Command, error) {
	if len(data) > MaxCommandBytes {
		return Command{}, newProtoErr(ErrMessageTooLarge, "command is %d bytes, limit %d", len(data), MaxCommandBytes)
	}
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, newProtoErr(ErrInvalidJSON, "%v", err)
	}
	return cmd, nil
}

// SerializeResponse encodes a response, enforcing the outbound byte
// budget.
func SerializeResponse(resp CommandResponse) ([]byte, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, newProtoErr(ErrSerialization, "%v", err)
	}
	if len(b) > MaxResponseBytes {
		return nil, newProtoErr(ErrMessageTooLarge, "response is %d bytes, limit %d", len(b), MaxResponseBytes)
	}
	return b, nil
}

// ValidateCommand applies the range/shape rules from the protocol
// layer. A command that fails validation never reaches a subsystem.
func ValidateCommand(cmd Command, nowMS uint64) error {
	switch cmd.CommandType.Kind {
	case KindSetTxPower:
		p := cmd.CommandType.SetTxPower
		if p == nil || p.PowerDBm < 0 || p.PowerDBm > 30 {
			return newProtoErr(ErrInvalidParameter, "power_dbm out of range [0,30]")
		}
	case KindTransmitMessage:
		p := cmd.CommandType.TransmitMessage
		if p == nil || len(p.Message) > commsMaxMessageBytes {
			return newProtoErr(ErrInvalidParameter, "message exceeds %d bytes", commsMaxMessageBytes)
		}
	case KindSimulateFault:
		p := cmd.CommandType.SimulateFault
		if p == nil || !p.Target.Valid() || !p.FaultType.Valid() || p.FaultType == "" {
			return newProtoErr(ErrInvalidParameter, "invalid simulate-fault target or fault_type")
		}
	case KindClearFaults:
		p := cmd.CommandType.ClearFaults
		if p != nil && p.Target != nil && !p.Target.Valid() {
			return newProtoErr(ErrInvalidParameter, "invalid clear-faults target")
		}
	}

	if cmd.ExecutionTime != nil {
		et := *cmd.ExecutionTime
		if et+maxExecutionSkewMS < nowMS || et > nowMS+maxExecutionSkewMS {
			return newProtoErr(ErrInvalidParameter, "execution_time outside +/-24h window")
		}
	}
	return nil
}

// TrackedStatus is the command lifecycle status tracked per in-flight
// command; a smaller set than ResponseStatus since many response
// statuses (SystemBusy, InvalidCommand, Scheduled, ...) never appear as
// a tracked terminal state.
type TrackedStatus string

const (
	TrackedAccepted    TrackedStatus = "Accepted"
	TrackedNegativeAck TrackedStatus = "NegativeAck"
	TrackedStarted     TrackedStatus = "Started"
	TrackedInProgress  TrackedStatus = "InProgress"
	TrackedSuccess     TrackedStatus = "Success"
	TrackedFailed      TrackedStatus = "Failed"
	TrackedTimeout     TrackedStatus = "Timeout"
)

var trackedRank = map[TrackedStatus]int{
	TrackedAccepted:    0,
	TrackedStarted:     1,
	TrackedInProgress:  2,
	TrackedNegativeAck: 3,
	TrackedSuccess:     3,
	TrackedFailed:      3,
	TrackedTimeout:     3,
}

func (s TrackedStatus) Terminal() bool {
	switch s {
	case TrackedSuccess, TrackedFailed, TrackedTimeout, TrackedNegativeAck:
		return true
	}
	return false
}

// TrackedCommand is one entry in the command tracker.
type TrackedCommand struct {
	ID             uint32
	Status         TrackedStatus
	SubmissionMS   uint64
	DeadlineMS     uint64
	terminalSinceMS uint64
}

// CommandTracker is the fixed-capacity (16) in-flight command lifecycle
// tracker.
type CommandTracker struct {
	entries []TrackedCommand
	graceMS uint64
}

// NewCommandTracker constructs an empty tracker using the default GC
// grace period.
func NewCommandTracker() *CommandTracker {
	return &CommandTracker{graceMS: trackerDefaultGraceMS}
}

func (t *CommandTracker) indexOf(id uint32) int {
	for i := range t.entries {
		if t.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// Track begins tracking a command. Capacity overflow and duplicate ids
// both fail with BufferOverflow.
func (t *CommandTracker) Track(id uint32, now, timeoutMS uint64) error {
	if t.indexOf(id) >= 0 {
		return newProtoErr(ErrBufferOverflow, "command id %d already tracked", id)
	}
	if len(t.entries) >= trackerCapacity {
		return newProtoErr(ErrBufferOverflow, "tracker at capacity %d", trackerCapacity)
	}
	t.entries = append(t.entries, TrackedCommand{
		ID:           id,
		Status:       TrackedAccepted,
		SubmissionMS: now,
		DeadlineMS:   now + timeoutMS,
	})
	return nil
}

// UpdateStatus advances a tracked command's status. Transitions must be
// strictly forward; a non-terminal command past its deadline is moved to
// Timeout instead of the requested status.
func (t *CommandTracker) UpdateStatus(id uint32, status TrackedStatus, now uint64) error {
	i := t.indexOf(id)
	if i < 0 {
		return newProtoErr(ErrInvalidCommand, "command id %d is not tracked", id)
	}
	e := &t.entries[i]
	if e.DeadlineMS != 0 && now > e.DeadlineMS && !e.Status.Terminal() {
		e.Status = TrackedTimeout
		e.terminalSinceMS = now
		return nil
	}
	if trackedRank[status] <= trackedRank[e.Status] {
		return newProtoErr(ErrInvalidCommand, "status transition %s -> %s is not forward", e.Status, status)
	}
	e.Status = status
	if status.Terminal() {
		e.terminalSinceMS = now
	}
	return nil
}

// StatusOf returns a tracked command's current status.
func (t *CommandTracker) StatusOf(id uint32) (TrackedStatus, bool) {
	i := t.indexOf(id)
	if i < 0 {
		return "", false
	}
	return t.entries[i].Status, true
}

// CleanupExpired removes entries that are terminal and past the grace
// period, and times out entries whose deadline has passed.
func (t *CommandTracker) CleanupExpired(now uint64) {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if !e.Status.Terminal() && e.DeadlineMS != 0 && now > e.DeadlineMS {
			e.Status = TrackedTimeout
			e.terminalSinceMS = now
		}
		if e.Status.Terminal() && now-e.terminalSinceMS > t.graceMS {
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
}

// Len reports the number of in-flight (non-swept) entries.
func (t *CommandTracker) Len() int {
	return len(t.entries)
}
