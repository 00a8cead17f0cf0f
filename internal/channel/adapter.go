// Package channel maintains the connection from a device to the relay and
// exposes a small typed event surface on top of it.
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/protocol"
)

// State of the channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	// Offline is selected on purpose; Disconnected is an unintended loss.
	Offline
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// Conn is one live connection to the relay.
type Conn interface {
	ReadEvent() (protocol.Event, error)
	WriteEvent(protocol.Event) error
	Close() error
}

// Dialer opens connections. Dial must honor ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Config holds the retry and circuit breaker policy.
type Config struct {
	MaxAttempts    int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
	// OfflineThreshold is the number of consecutive failed attempts after
	// which OnTrip fires. Zero disables the breaker. Only Reconnect and a
	// successful connection reset the count, so a threshold above MaxAttempts
	// needs several Connect cycles to trip.
	OfflineThreshold int
	AutoReconnect    bool
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		RetryDelay:       time.Second,
		AttemptTimeout:   5 * time.Second,
		OfflineThreshold: 3,
		AutoReconnect:    true,
	}
}

// Handlers receive channel notifications. They are called from adapter
// goroutines and must not block.
type Handlers struct {
	OnEvent       func(protocol.Event)
	OnStateChange func(State, string)
	OnTrip        func()
}

// Adapter owns at most one live connection at a time. Every connection
// cycle gets a generation number; results belonging to a superseded
// generation are closed and discarded.
type Adapter struct {
	dialer Dialer
	cfg    Config
	log    *zap.Logger

	mu       sync.Mutex
	handlers Handlers
	state    State
	status   string
	gen      uint64
	parent   context.Context
	cancel   context.CancelFunc
	conn     Conn
	failures int
	tripped  bool
	connects int
}

func NewAdapter(dialer Dialer, cfg Config, log *zap.Logger) *Adapter {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	return &Adapter{
		dialer: dialer,
		cfg:    cfg,
		log:    log,
		state:  Disconnected,
		status: "Disconnected",
	}
}

// SetHandlers replaces the notification handlers.
func (a *Adapter) SetHandlers(h Handlers) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = h
}

func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Status is the human readable connection status.
func (a *Adapter) Status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Failures returns the number of consecutive failed attempts.
func (a *Adapter) Failures() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failures
}

// Connects returns how many connections have been established so far.
func (a *Adapter) Connects() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connects
}

// Connect starts a bounded connection cycle unless one is already running
// or a connection is live.
func (a *Adapter) Connect(ctx context.Context) {
	a.mu.Lock()
	if a.state == Connecting || a.state == Connected {
		a.mu.Unlock()
		return
	}
	a.startLocked(ctx)
	a.mu.Unlock()
	a.notify()
}

// Reconnect tears down any live connection and outstanding attempt, resets
// the failure counter and starts a fresh cycle, all in one step.
func (a *Adapter) Reconnect(ctx context.Context) {
	a.mu.Lock()
	a.teardownLocked()
	a.failures = 0
	a.tripped = false
	a.startLocked(ctx)
	a.mu.Unlock()
	a.log.Info("Manual reconnect requested")
	a.notify()
}

// Disconnect tears the channel down and leaves it Disconnected.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	a.teardownLocked()
	a.setLocked(Disconnected, "Disconnected")
	a.mu.Unlock()
	a.notify()
}

// GoOffline tears the channel down and pins it to Offline until the next
// Connect or Reconnect.
func (a *Adapter) GoOffline() {
	a.mu.Lock()
	a.teardownLocked()
	a.setLocked(Offline, "Offline mode")
	a.mu.Unlock()
	a.notify()
}

// Close releases the channel at the end of a session.
func (a *Adapter) Close() {
	a.mu.Lock()
	a.teardownLocked()
	if a.state != Offline {
		a.setLocked(Disconnected, "Closed")
	}
	a.mu.Unlock()
}

// Send writes ev if the channel is Connected and reports whether it was
// written. Events are never queued or retried.
func (a *Adapter) Send(ev protocol.Event) bool {
	a.mu.Lock()
	conn := a.conn
	ok := a.state == Connected && conn != nil
	a.mu.Unlock()
	if !ok {
		return false
	}
	if err := conn.WriteEvent(ev); err != nil {
		a.log.Debug("Send failed", zap.String("event", ev.Name), zap.Error(err))
		return false
	}
	return true
}

func (a *Adapter) startLocked(ctx context.Context) {
	a.gen++
	gen := a.gen
	cycleCtx, cancel := context.WithCancel(ctx)
	a.parent = ctx
	a.cancel = cancel
	a.setLocked(Connecting, "Connecting...")
	go a.dialLoop(cycleCtx, gen)
}

func (a *Adapter) teardownLocked() {
	a.gen++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
}

func (a *Adapter) setLocked(s State, status string) {
	a.state = s
	a.status = status
}

func (a *Adapter) dialLoop(ctx context.Context, gen uint64) {
	conn, err := backoff.Retry(ctx, func() (Conn, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.AttemptTimeout)
		defer cancel()

		c, err := a.dialer.Dial(attemptCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			a.attemptFailed(gen, err)
			return nil, err
		}
		return c, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(a.cfg.RetryDelay)),
		backoff.WithMaxTries(uint(a.cfg.MaxAttempts)),
	)

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		if a.cancel != nil {
			a.cancel()
			a.cancel = nil
		}
		a.setLocked(Disconnected, fmt.Sprintf("Connection failed after %d attempts: %v", a.cfg.MaxAttempts, err))
		a.mu.Unlock()
		a.log.Warn("Connection attempts exhausted", zap.Int("attempts", a.cfg.MaxAttempts), zap.Error(err))
		a.notify()
		return
	}
	a.conn = conn
	a.failures = 0
	a.tripped = false
	a.connects++
	a.setLocked(Connected, "Connected")
	a.mu.Unlock()

	a.log.Info("Channel connected")
	a.notify()
	go a.readLoop(gen, conn)
}

func (a *Adapter) attemptFailed(gen uint64, err error) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.failures++
	failures := a.failures
	trip := a.cfg.OfflineThreshold > 0 && failures >= a.cfg.OfflineThreshold && !a.tripped
	if trip {
		a.tripped = true
	}
	a.status = fmt.Sprintf("Connection error: %v", err)
	onTrip := a.handlers.OnTrip
	a.mu.Unlock()

	a.log.Warn("Connection attempt failed", zap.Int("consecutive_failures", failures), zap.Error(err))
	a.notify()
	if trip {
		a.log.Warn("Failure threshold reached, requesting offline mode", zap.Int("threshold", a.cfg.OfflineThreshold))
		if onTrip != nil {
			onTrip()
		}
	}
}

func (a *Adapter) readLoop(gen uint64, conn Conn) {
	for {
		ev, err := conn.ReadEvent()
		if err != nil {
			a.connectionLost(gen, conn, err)
			return
		}

		a.mu.Lock()
		current := gen == a.gen
		onEvent := a.handlers.OnEvent
		a.mu.Unlock()
		if !current {
			return
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}
}

func (a *Adapter) connectionLost(gen uint64, conn Conn, err error) {
	a.mu.Lock()
	if gen != a.gen || a.conn != conn {
		a.mu.Unlock()
		return
	}
	a.conn = nil
	conn.Close()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.setLocked(Disconnected, fmt.Sprintf("Disconnected: %v", err))
	a.mu.Unlock()

	a.log.Warn("Channel lost", zap.Error(err))
	a.notify()

	if !a.cfg.AutoReconnect {
		return
	}
	a.mu.Lock()
	// Skip if anything else touched the channel since the loss.
	if gen != a.gen || a.state != Disconnected || a.parent == nil || a.parent.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.startLocked(a.parent)
	a.mu.Unlock()
	a.notify()
}

func (a *Adapter) notify() {
	a.mu.Lock()
	s, status := a.state, a.status
	h := a.handlers.OnStateChange
	a.mu.Unlock()
	if h != nil {
		h(s, status)
	}
}
