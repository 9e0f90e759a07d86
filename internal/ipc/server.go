package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Default listen ports; both are overridable via configuration.
const (
	DefaultCommandPort = 5555
	DefaultEventPort   = 5556
)

// subscriberBufferSize bounds each event subscriber's send queue. Delivery is
// at-most-once: frames for a subscriber that cannot keep up are dropped.
const subscriberBufferSize = 64

// Handler processes one decoded command and returns the response to send.
// Handlers are invoked concurrently, one goroutine per inbound frame.
type Handler func(ctx context.Context, msg Message) Response

// ServerConfig holds the bind addresses for the two channels.
type ServerConfig struct {
	BindHost    string
	CommandPort int
	EventPort   int
}

// Server binds the command and event channels of the player service.
type Server struct {
	cfg     ServerConfig
	handler Handler

	upgrader websocket.Upgrader

	commandSrv *http.Server
	eventSrv   *http.Server

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

type subscriber struct {
	send chan []byte
}

// NewServer creates a Server that routes every inbound command through
// handler.
func NewServer(cfg ServerConfig, handler Handler) *Server {
	if cfg.CommandPort == 0 {
		cfg.CommandPort = DefaultCommandPort
	}
	if cfg.EventPort == 0 {
		cfg.EventPort = DefaultEventPort
	}
	return &Server{
		cfg:         cfg,
		handler:     handler,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Start binds both ports and begins serving. It returns once the listeners
// are established; serving continues in the background.
func (s *Server) Start() error {
	commandMux := http.NewServeMux()
	commandMux.HandleFunc("/commands", s.handleCommandConn)

	eventMux := http.NewServeMux()
	eventMux.HandleFunc("/events", s.handleEventConn)

	commandAddr := net.JoinHostPort(s.cfg.BindHost, fmt.Sprint(s.cfg.CommandPort))
	eventAddr := net.JoinHostPort(s.cfg.BindHost, fmt.Sprint(s.cfg.EventPort))

	commandLn, err := net.Listen("tcp", commandAddr)
	if err != nil {
		return fmt.Errorf("bind command channel: %w", err)
	}
	eventLn, err := net.Listen("tcp", eventAddr)
	if err != nil {
		commandLn.Close()
		return fmt.Errorf("bind event channel: %w", err)
	}

	s.commandSrv = &http.Server{Handler: commandMux}
	s.eventSrv = &http.Server{Handler: eventMux}

	go s.serve(s.commandSrv, commandLn, "command")
	go s.serve(s.eventSrv, eventLn, "event")

	slog.Info("ipc server listening",
		"command_addr", commandAddr,
		"event_addr", eventAddr,
	)
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener, channel string) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("ipc channel stopped", "channel", channel, "error", err)
	}
}

// Shutdown closes both listeners and detaches all subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for sub := range s.subscribers {
		close(sub.send)
	}
	s.subscribers = make(map[*subscriber]struct{})
	s.mu.Unlock()

	var errs []error
	if s.commandSrv != nil {
		errs = append(errs, s.commandSrv.Shutdown(ctx))
	}
	if s.eventSrv != nil {
		errs = append(errs, s.eventSrv.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Publish broadcasts an event to all connected subscribers. Frames are
// dropped per subscriber when its buffer is full rather than blocking the
// publishing guild.
func (s *Server) Publish(msg Message) {
	frame, err := msg.Encode()
	if err != nil {
		slog.Error("ipc publish encode failed", "action", msg.Action, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for sub := range s.subscribers {
		select {
		case sub.send <- frame:
		default:
			slog.Warn("ipc subscriber buffer full, dropping event",
				"action", msg.Action,
				"guild", msg.GuildID,
			)
		}
	}
}

func (s *Server) handleCommandConn(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ipc command upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	slog.Info("ipc command peer connected", "remote", r.RemoteAddr)

	// Writes are serialized; handlers run concurrently and responses are
	// matched by correlation ID on the client side.
	var writeMu sync.Mutex
	reply := func(resp Response) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(resp); err != nil {
			slog.Warn("ipc response write failed", "error", err)
		}
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			slog.Info("ipc command peer disconnected", "remote", r.RemoteAddr)
			return
		}

		msg, err := DecodeMessage(frame)
		if err != nil {
			reply(Errorf(CodeProtocolError, "%v", err))
			continue
		}
		if msg.Kind != KindCommand {
			resp := Errorf(CodeProtocolError, "expected command, got %s", msg.Kind)
			resp.CorrelationID = msg.CorrelationID
			reply(resp)
			continue
		}

		go func(msg Message) {
			resp := s.handler(r.Context(), msg)
			resp.CorrelationID = msg.CorrelationID
			reply(resp)
		}(msg)
	}
}

func (s *Server) handleEventConn(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ipc event upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sub := &subscriber{send: make(chan []byte, subscriberBufferSize)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	slog.Info("ipc event subscriber connected", "remote", r.RemoteAddr)

	// Reader goroutine exists only to detect peer close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.unsubscribe(sub)
				return
			}
		}
	}()

	for frame := range sub.send {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			s.unsubscribe(sub)
			break
		}
	}
	conn.Close()
}

func (s *Server) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[sub]; ok {
		delete(s.subscribers, sub)
		close(sub.send)
	}
}
