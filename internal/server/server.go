// NDJSON command/telemetry server wrapping a bus.Agent
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"satbus/internal/bus"
)

const sessionOutboxCapacity = 4

// session is one connected ground-station link: a queue of outbound
// telemetry/response frames drained by a writer goroutine.
type session struct {
	id  uuid.UUID
	out chan []byte
}

// Server accepts TCP connections speaking newline-delimited JSON. Each
// line in is a bus.Command, each line out is either a bus.CommandResponse
// (in reply to that connection's own commands) or a broadcast
// bus.TelemetryPacket produced once per tick.
type Server struct {
	agent        *bus.Agent
	logger       *slog.Logger
	tickInterval time.Duration
	onTick       func(bus.TelemetryPacket)

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	epoch    time.Time
}

// OnTick registers a callback invoked with every telemetry packet
// produced by the tick loop, after it has been broadcast to sessions.
// Used to wire in archival or recording without coupling this package
// to those concerns.
func (s *Server) OnTick(fn func(bus.TelemetryPacket)) {
	s.onTick = fn
}

// New constructs a Server driving agent on the given tick cadence.
func New(agent *bus.Agent, logger *slog.Logger, tickInterval time.Duration) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		agent:        agent,
		logger:       logger,
		tickInterval: tickInterval,
		sessions:     make(map[uuid.UUID]*session),
	}
}

// Start listens on addr, ticking the agent and serving connections until
// ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	s.mu.Lock()
	s.epoch = time.Now()
	s.mu.Unlock()

	go s.tickLoop(ctx)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			nowMS := uint64(now.Sub(s.epoch) / time.Millisecond)
			packet := s.agent.Tick(nowMS)
			s.mu.Unlock()

			body, err := json.Marshal(packet)
			if err != nil {
				s.logger.Error("marshal telemetry packet", "error", err)
				continue
			}
			s.broadcast(append(body, '\n'))
			if s.onTick != nil {
				s.onTick(packet)
			}
		}
	}
}

func (s *Server) broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		select {
		case sess.out <- frame:
		default:
			s.logger.Warn("dropping telemetry frame for slow session", "session", id)
		}
	}
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *Server) removeSession(id uuid.UUID) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		close(sess.out)
		delete(s.sessions, id)
	}
	s.mu.Unlock()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	sess := &session{id: uuid.New(), out: make(chan []byte, sessionOutboxCapacity)}
	s.addSession(sess)
	logger := s.logger.With("session", sess.id, "remote", conn.RemoteAddr())
	logger.Info("session opened")
	defer func() {
		s.removeSession(sess.id)
		conn.Close()
		logger.Info("session closed")
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range sess.out {
			if _, err := conn.Write(frame); err != nil {
				return
			}
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, bus.MaxCommandBytes), bus.MaxCommandBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.handleLine(logger, line)
		body, err := bus.SerializeResponse(resp)
		if err != nil {
			logger.Error("serialize response", "error", err)
			continue
		}
		select {
		case sess.out <- append(body, '\n'):
		case <-ctx.Done():
			return
		}
	}

	<-writerDone
}

func (s *Server) handleLine(logger *slog.Logger, line []byte) bus.CommandResponse {
	cmd, err := bus.ParseCommand(line)
	if err != nil {
		logger.Warn("rejected malformed command", "error", err)
		return bus.CommandResponse{Status: bus.StatusInvalidCommand, Message: err.Error()}
	}

	s.mu.Lock()
	nowMS := uint64(time.Since(s.epoch) / time.Millisecond)
	resp := s.agent.Submit(cmd, nowMS)
	s.mu.Unlock()

	logger.Info("command submitted", "id", cmd.ID, "kind", cmd.CommandType.Kind, "status", resp.Status)
	return resp
}
