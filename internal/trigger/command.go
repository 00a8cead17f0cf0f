// Package trigger is the command path of the trigger device: one press sends
// one stimulus-now to the paired display.
package trigger

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/channel"
	"github.com/chav-jf/speedy-green-flash/internal/protocol"
)

// DefaultCooldown is how long the "Sent!" confirmation blocks another press.
const DefaultCooldown = 500 * time.Millisecond

var (
	ErrNotConnected = errors.New("not connected to the relay, cannot send the signal")
	ErrCoolingDown  = errors.New("signal just sent, wait a moment")
)

// Sender is the part of the channel adapter the trigger needs.
type Sender interface {
	State() channel.State
	Send(protocol.Event) bool
}

type Command struct {
	sender   Sender
	cooldown time.Duration
	now      func() time.Time
	log      *zap.Logger

	mu     sync.Mutex
	sentAt time.Time
	sent   int
}

// NewCommand builds a trigger. cooldown <= 0 means DefaultCooldown, a nil
// clock means time.Now.
func NewCommand(sender Sender, cooldown time.Duration, clock func() time.Time, log *zap.Logger) *Command {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if clock == nil {
		clock = time.Now
	}
	return &Command{sender: sender, cooldown: cooldown, now: clock, log: log}
}

// Fire sends exactly one stimulus-now when the channel is Connected and the
// previous press is outside the cooldown window.
func (c *Command) Fire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.coolingDownLocked() {
		return ErrCoolingDown
	}
	if c.sender.State() != channel.Connected {
		c.log.Warn("Trigger pressed while not connected")
		return ErrNotConnected
	}
	if !c.sender.Send(protocol.New(protocol.StimulusNow)) {
		c.log.Warn("stimulus-now could not be written")
		return ErrNotConnected
	}
	c.sentAt = c.now()
	c.sent++
	c.log.Debug("stimulus-now sent", zap.Int("count", c.sent))
	return nil
}

// CoolingDown reports whether the "Sent!" confirmation is still showing.
func (c *Command) CoolingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coolingDownLocked()
}

// Sent returns the number of signals written so far.
func (c *Command) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

func (c *Command) coolingDownLocked() bool {
	return !c.sentAt.IsZero() && c.now().Sub(c.sentAt) < c.cooldown
}
