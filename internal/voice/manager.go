package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"
)

// Manager errors.
var (
	// ErrCoolingDown is returned while a guild's reconnect cooldown is in
	// effect and the call did not force past it.
	ErrCoolingDown = errors.New("voice reconnect cooling down")

	// ErrConnectInProgress is returned when another connection attempt for
	// the guild is already running.
	ErrConnectInProgress = errors.New("voice connect already in progress")

	// ErrReconnectFailed is returned after the attempt budget is exhausted.
	ErrReconnectFailed = errors.New("voice reconnect failed")

	// ErrFatalClose is returned for close codes that must not be retried.
	ErrFatalClose = errors.New("fatal voice close")

	// ErrNoSession is returned when a guild has no retained session.
	ErrNoSession = errors.New("no voice session for guild")
)

// Handle is a live voice connection.
type Handle interface {
	Ready() bool
	Close() error
}

// Connector establishes voice connections. The discordgo implementation
// performs the gateway handshake; tests substitute fakes.
type Connector interface {
	Join(ctx context.Context, guildID, channelID snowflake.ID) (Handle, error)
}

// Notifier receives transport state changes so the playback engine can
// pause and resume. A nil Notifier disables notifications.
type Notifier interface {
	TransportSuspended(ctx context.Context, guildID snowflake.ID)
	TransportResumed(ctx context.Context, guildID snowflake.ID)
}

// Config tunes the reconnection policy.
type Config struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	HealthyReset time.Duration
	// Cooldowns are applied in order after each exhausted attempt budget;
	// the last entry repeats.
	Cooldowns []time.Duration
	// RetryRate bounds connection attempts across all guilds so a gateway
	// incident does not turn into a retry storm.
	RetryRate  rate.Limit
	RetryBurst int
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		BackoffBase:  time.Second,
		BackoffMax:   30 * time.Second,
		HealthyReset: 2 * time.Minute,
		Cooldowns:    []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
		RetryRate:    rate.Limit(2),
		RetryBurst:   4,
	}
}

type guildSession struct {
	channelID     snowflake.ID
	handle        Handle
	explicitLeave bool

	attempts      int
	lastFailureAt time.Time
	lastSuccessAt time.Time
	cooldownStage int
	cooldownUntil time.Time

	connecting bool
	cancelWait context.CancelFunc
}

// Manager owns one reconnection state machine per guild. Safe for
// concurrent use; at most one connection attempt runs per guild.
type Manager struct {
	cfg       Config
	connector Connector
	notifier  Notifier
	limiter   *rate.Limiter

	mu       sync.Mutex
	sessions map[snowflake.ID]*guildSession

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a Manager. notifier may be nil.
func NewManager(cfg Config, connector Connector, notifier Notifier) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = 30 * time.Second
	}
	if len(cfg.Cooldowns) == 0 {
		cfg.Cooldowns = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}
	}
	if cfg.RetryRate <= 0 {
		cfg.RetryRate = rate.Limit(2)
	}
	if cfg.RetryBurst <= 0 {
		cfg.RetryBurst = 4
	}
	return &Manager{
		cfg:       cfg,
		connector: connector,
		notifier:  notifier,
		limiter:   rate.NewLimiter(cfg.RetryRate, cfg.RetryBurst),
		sessions:  make(map[snowflake.ID]*guildSession),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureConnected makes the guild's voice connection live on channelID,
// reconnecting with backoff when it is not. Already-connected guilds return
// immediately. force overrides an active cooldown.
func (m *Manager) EnsureConnected(ctx context.Context, guildID, channelID snowflake.ID, force bool) error {
	m.mu.Lock()
	s := m.sessions[guildID]
	if s == nil {
		s = &guildSession{}
		m.sessions[guildID] = s
	}

	if s.handle != nil && s.handle.Ready() && s.channelID == channelID {
		m.mu.Unlock()
		return nil
	}
	if s.connecting {
		m.mu.Unlock()
		return ErrConnectInProgress
	}

	now := m.now()
	if !force && now.Before(s.cooldownUntil) {
		remaining := s.cooldownUntil.Sub(now)
		m.mu.Unlock()
		return fmt.Errorf("%w: %s remaining", ErrCoolingDown, remaining.Round(time.Second))
	}

	// A stretch without failures forgives past ones.
	if s.attempts > 0 && !s.lastFailureAt.IsZero() && now.Sub(s.lastFailureAt) > m.cfg.HealthyReset {
		s.attempts = 0
		s.cooldownStage = 0
	}

	s.channelID = channelID
	s.explicitLeave = false
	s.connecting = true
	waitCtx, cancel := context.WithCancel(ctx)
	s.cancelWait = cancel
	m.mu.Unlock()

	err := m.connectLoop(waitCtx, guildID, channelID, s)
	cancel()

	m.mu.Lock()
	s.connecting = false
	s.cancelWait = nil
	m.mu.Unlock()
	return err
}

// connectLoop runs the attempt budget for one guild. Only one loop runs per
// guild; fields it touches are read elsewhere under m.mu, and it re-locks
// for every mutation.
func (m *Manager) connectLoop(ctx context.Context, guildID, channelID snowflake.ID, s *guildSession) error {
	var lastErr error
	for {
		m.mu.Lock()
		attempt := s.attempts
		m.mu.Unlock()
		if attempt >= m.cfg.MaxAttempts {
			break
		}

		if attempt > 0 {
			delay := m.backoff(attempt)
			slog.Info("voice reconnect backoff",
				"guild", guildID,
				"attempt", attempt,
				"delay", delay,
			)
			if err := m.sleep(ctx, delay); err != nil {
				return err
			}
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}

		handle, err := m.connector.Join(ctx, guildID, channelID)

		m.mu.Lock()
		if err == nil {
			s.handle = handle
			s.attempts = 0
			s.cooldownStage = 0
			s.cooldownUntil = time.Time{}
			s.lastSuccessAt = m.now()
			m.mu.Unlock()
			slog.Info("voice connected", "guild", guildID, "channel", channelID)
			return nil
		}
		s.attempts++
		s.lastFailureAt = m.now()
		m.mu.Unlock()

		lastErr = err
		slog.Warn("voice connect attempt failed",
			"guild", guildID,
			"attempt", attempt+1,
			"error", err,
		)
	}

	m.mu.Lock()
	stage := s.cooldownStage
	if stage >= len(m.cfg.Cooldowns) {
		stage = len(m.cfg.Cooldowns) - 1
	}
	cooldown := m.cfg.Cooldowns[stage]
	s.cooldownUntil = m.now().Add(cooldown)
	s.cooldownStage++
	s.attempts = 0
	m.mu.Unlock()

	slog.Error("voice reconnect budget exhausted",
		"guild", guildID,
		"cooldown", cooldown,
		"error", lastErr,
	)
	return fmt.Errorf("%w after %d attempts: %v", ErrReconnectFailed, m.cfg.MaxAttempts, lastErr)
}

// backoff returns base·2^attempt with ±30% jitter, capped at BackoffMax.
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.cfg.BackoffBase << uint(attempt)
	if d > m.cfg.BackoffMax || d <= 0 {
		d = m.cfg.BackoffMax
	}
	jittered := time.Duration(float64(d) * (0.7 + 0.6*rand.Float64()))
	if jittered > m.cfg.BackoffMax {
		jittered = m.cfg.BackoffMax
	}
	return jittered
}

// HandleClose reacts to a voice websocket close. Transient codes reconnect
// to the retained channel in the background, bracketed by suspension and
// resume notifications. Fatal codes clear the session.
func (m *Manager) HandleClose(ctx context.Context, guildID snowflake.ID, code int) error {
	m.mu.Lock()
	s := m.sessions[guildID]
	if s == nil {
		m.mu.Unlock()
		return nil
	}
	s.handle = nil
	explicit := s.explicitLeave
	channelID := s.channelID
	m.mu.Unlock()

	class := Classify(code, explicit)
	slog.Warn("voice connection closed",
		"guild", guildID,
		"code", code,
		"class", class.String(),
	)

	if class == ClassFatal {
		m.mu.Lock()
		delete(m.sessions, guildID)
		m.mu.Unlock()
		if m.notifier != nil {
			m.notifier.TransportSuspended(ctx, guildID)
		}
		return fmt.Errorf("%w: code %d", ErrFatalClose, code)
	}

	if m.notifier != nil {
		m.notifier.TransportSuspended(ctx, guildID)
	}
	if err := m.EnsureConnected(ctx, guildID, channelID, false); err != nil {
		return err
	}
	if m.notifier != nil {
		m.notifier.TransportResumed(ctx, guildID)
	}
	return nil
}

// Disconnect leaves the guild's voice channel for good: any in-flight
// backoff wait is cancelled and the session is forgotten.
func (m *Manager) Disconnect(guildID snowflake.ID) error {
	m.mu.Lock()
	s := m.sessions[guildID]
	if s == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	s.explicitLeave = true
	if s.cancelWait != nil {
		s.cancelWait()
	}
	handle := s.handle
	delete(m.sessions, guildID)
	m.mu.Unlock()

	if handle != nil {
		return handle.Close()
	}
	return nil
}

// SessionInfo returns the guild's session record for observability.
func (m *Manager) SessionInfo(guildID snowflake.ID) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[guildID]
	if !ok {
		return Session{}, false
	}
	return Session{
		GuildID:       guildID,
		ChannelID:     s.channelID,
		Connected:     s.handle != nil && s.handle.Ready(),
		Attempts:      s.attempts,
		CooldownUntil: s.cooldownUntil,
		LastSuccessAt: s.lastSuccessAt,
	}, true
}
