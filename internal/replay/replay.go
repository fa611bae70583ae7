// Telemetry log recording and replay
package replay

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"time"

	"satbus/internal/bus"
)

// Recorder appends each telemetry packet it is given to a JSONL file, one
// packet per line, in on-wire form.
type Recorder struct {
	f   *os.File
	enc *json.Encoder
}

// NewRecorder creates (or truncates) the file at path for recording.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Recorder{f: f, enc: json.NewEncoder(f)}, nil
}

// Write appends one packet.
func (r *Recorder) Write(pkt bus.TelemetryPacket) error {
	return r.enc.Encode(pkt)
}

// Close closes the underlying file.
func (r *Recorder) Close() error {
	return r.f.Close()
}

// Sink receives one replayed telemetry packet, in the order it was
// recorded.
type Sink func(bus.TelemetryPacket) error

// Replay decodes telemetry packets from r and feeds them to sink. A
// speed >0 reproduces the original tick cadence (scaled by speed) using
// the gap between consecutive TimestampMS fields; speed<=0 replays as
// fast as possible.
func Replay(r io.Reader, sink Sink, speed float64) error {
	dec := json.NewDecoder(bufio.NewReader(r))
	var havePrev bool
	var prevMS uint64
	for {
		var pkt bus.TelemetryPacket
		if err := dec.Decode(&pkt); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if havePrev && speed > 0 && pkt.TimestampMS > prevMS {
			gap := time.Duration(pkt.TimestampMS-prevMS) * time.Millisecond
			time.Sleep(time.Duration(float64(gap) / speed))
		}
		if err := sink(pkt); err != nil {
			return err
		}
		prevMS = pkt.TimestampMS
		havePrev = true
	}
}

// ReplayFile opens path and replays its recorded telemetry packets.
func ReplayFile(path string, sink Sink, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Replay(f, sink, speed)
}
