// Package delay provides the two sources that decide when a stimulus fires:
// a local randomized timer and the remote trigger device.
package delay

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/protocol"
)

// Kind names a delay source.
type Kind int

const (
	KindLocal Kind = iota
	KindRemote
)

func (k Kind) String() string {
	if k == KindRemote {
		return "remote"
	}
	return "local"
}

// Timer is the part of *time.Timer the local source needs.
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot timers.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// LocalConfig configures the local delay source.
type LocalConfig struct {
	MinDelay  time.Duration
	MaxDelay  time.Duration
	Scheduler Scheduler  // nil means real timers
	Rand      *rand.Rand // nil means a time-seeded source
}

// Local draws a random delay in [MinDelay, MaxDelay] and calls fire with the
// cycle id when it elapses. At most one timer is outstanding.
type Local struct {
	mu    sync.Mutex
	min   time.Duration
	max   time.Duration
	sched Scheduler
	rng   *rand.Rand
	fire  func(cycle uint64)
	timer Timer
	last  time.Duration
}

func NewLocal(cfg LocalConfig, fire func(cycle uint64)) *Local {
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MinDelay, cfg.MaxDelay = cfg.MaxDelay, cfg.MinDelay
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = realScheduler{}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Local{
		min:   cfg.MinDelay,
		max:   cfg.MaxDelay,
		sched: cfg.Scheduler,
		rng:   cfg.Rand,
		fire:  fire,
	}
}

func (l *Local) Kind() Kind { return KindLocal }

// Schedule cancels any outstanding timer, then arms a new one for cycle. It
// always succeeds.
func (l *Local) Schedule(cycle uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()
	d := l.min
	if span := l.max - l.min; span > 0 {
		d += time.Duration(l.rng.Int63n(int64(span) + 1))
	}
	l.last = d
	l.timer = l.sched.AfterFunc(d, func() { l.fire(cycle) })
	return true
}

// Cancel stops the outstanding timer. A timer that already fired still
// delivers its cycle id; the state machine discards it.
func (l *Local) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

// LastDelay returns the delay drawn by the most recent Schedule.
func (l *Local) LastDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

func (l *Local) stopLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// Remote hands timing authority to the trigger device: it announces that the
// display is armed and then waits for a stimulus-now event.
type Remote struct {
	send func(protocol.Event) bool
	log  *zap.Logger
}

func NewRemote(send func(protocol.Event) bool, log *zap.Logger) *Remote {
	return &Remote{send: send, log: log}
}

func (r *Remote) Kind() Kind { return KindRemote }

// Schedule reports whether ready-for-stimulus went out. When it did not, the
// trigger device will never fire this cycle and the caller must fall back to
// the local timer.
func (r *Remote) Schedule(cycle uint64) bool {
	if !r.send(protocol.New(protocol.ReadyForStimulus)) {
		r.log.Warn("ready-for-stimulus dropped, channel not connected", zap.Uint64("cycle", cycle))
		return false
	}
	return true
}

// Cancel is a no-op: the remote side keeps no countdown that could be revoked.
func (r *Remote) Cancel() {}
