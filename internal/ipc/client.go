package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
)

// DefaultCommandTimeout bounds one command round-trip.
const DefaultCommandTimeout = 5 * time.Second

// eventRedialDelay is the pause between event-channel reconnect attempts.
const eventRedialDelay = 2 * time.Second

// ErrCommandTimeout is returned when the player service does not answer a
// command within the configured timeout, including the one retry.
var ErrCommandTimeout = errors.New("command timed out")

// ClientConfig holds the player service addresses for the front-end.
type ClientConfig struct {
	Host        string
	CommandPort int
	EventPort   int
	Timeout     time.Duration
}

// EventFunc receives one decoded event from the event channel.
type EventFunc func(msg Message)

// Client is the front-end side of the IPC channels. One Client multiplexes
// commands for all guilds over a single connection; responses are matched by
// correlation ID.
type Client struct {
	cfg ClientConfig

	writeMu sync.Mutex
	conn    *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan Response

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects the command channel and starts the response reader.
func Dial(cfg ClientConfig) (*Client, error) {
	if cfg.CommandPort == 0 {
		cfg.CommandPort = DefaultCommandPort
	}
	if cfg.EventPort == 0 {
		cfg.EventPort = DefaultEventPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCommandTimeout
	}

	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.CommandPort)),
		Path:   "/commands",
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial command channel: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		pending: make(map[string]chan Response),
		done:    make(chan struct{}),
	}
	go c.readResponses()

	slog.Info("ipc client connected", "command_addr", u.Host)
	return c, nil
}

// Close tears down the command connection and fails all in-flight commands.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()

		c.pendingMu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	})
	return err
}

// Command builds and sends a command, waiting for its response. A timed-out
// attempt is retried once; commands are idempotent by contract.
func (c *Client) Command(ctx context.Context, action Action, guildID snowflake.ID, payload any) (Response, error) {
	for attempt := 0; attempt < 2; attempt++ {
		msg, err := NewCommand(action, guildID, payload)
		if err != nil {
			return Response{}, err
		}

		resp, err := c.do(ctx, msg)
		if errors.Is(err, ErrCommandTimeout) {
			slog.Warn("ipc command timed out",
				"action", action,
				"guild", guildID,
				"attempt", attempt+1,
			)
			continue
		}
		return resp, err
	}
	return Response{}, fmt.Errorf("%w: %s", ErrCommandTimeout, action)
}

func (c *Client) do(ctx context.Context, msg Message) (Response, error) {
	respCh := make(chan Response, 1)

	c.pendingMu.Lock()
	c.pending[msg.CorrelationID] = respCh
	c.pendingMu.Unlock()
	defer c.forget(msg.CorrelationID)

	c.writeMu.Lock()
	err := c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return Response{}, fmt.Errorf("write command: %w", err)
	}

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return Response{}, errors.New("ipc client closed")
		}
		return resp, nil
	case <-timer.C:
		return Response{}, ErrCommandTimeout
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-c.done:
		return Response{}, errors.New("ipc client closed")
	}
}

func (c *Client) forget(correlationID string) {
	c.pendingMu.Lock()
	delete(c.pending, correlationID)
	c.pendingMu.Unlock()
}

func (c *Client) readResponses() {
	for {
		var resp Response
		if err := c.conn.ReadJSON(&resp); err != nil {
			select {
			case <-c.done:
			default:
				slog.Error("ipc response reader stopped", "error", err)
			}
			return
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.CorrelationID]
		if ok {
			delete(c.pending, resp.CorrelationID)
		}
		c.pendingMu.Unlock()

		if !ok {
			// Late response for a command that already timed out.
			slog.Debug("ipc dropping uncorrelated response",
				"correlation_id", resp.CorrelationID,
			)
			continue
		}
		ch <- resp
	}
}

// Subscribe connects the event channel and invokes fn for every event until
// ctx is cancelled. The connection is redialed with a fixed delay after
// failures; missed events are not replayed (at-most-once delivery).
func (c *Client) Subscribe(ctx context.Context, fn EventFunc) {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(c.cfg.Host, fmt.Sprint(c.cfg.EventPort)),
		Path:   "/events",
	}

	for {
		if err := c.consumeEvents(ctx, u.String(), fn); err != nil {
			slog.Warn("ipc event channel lost", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-time.After(eventRedialDelay):
		}
	}
}

func (c *Client) consumeEvents(ctx context.Context, addr string, fn EventFunc) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial event channel: %w", err)
	}
	defer conn.Close()

	slog.Info("ipc event subscription established", "event_addr", addr)

	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		}
		conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		msg, err := DecodeMessage(frame)
		if err != nil {
			slog.Warn("ipc dropping malformed event", "error", err)
			continue
		}
		if msg.Kind != KindEvent {
			continue
		}
		fn(msg)
	}
}
