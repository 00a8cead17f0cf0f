// Package session wires the reaction state machine, the delay sources, the
// mode controller and the channel adapter of a display device together.
// Everything that changes session state runs on a single goroutine that
// drains one event queue.
package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/channel"
	"github.com/chav-jf/speedy-green-flash/internal/delay"
	"github.com/chav-jf/speedy-green-flash/internal/mode"
	"github.com/chav-jf/speedy-green-flash/internal/protocol"
	"github.com/chav-jf/speedy-green-flash/internal/reaction"
	"github.com/chav-jf/speedy-green-flash/internal/results"
)

// Channel is the connection surface the session drives.
type Channel interface {
	SetHandlers(channel.Handlers)
	Connect(ctx context.Context)
	Reconnect(ctx context.Context)
	GoOffline()
	Close()
	Send(protocol.Event) bool
	State() channel.State
	Status() string
}

// Config tunes a session.
type Config struct {
	MinDelay  time.Duration
	MaxDelay  time.Duration
	QueueSize int

	// Optional hooks for tests.
	Clock     func() time.Time
	Scheduler delay.Scheduler
	Rand      *rand.Rand
}

func DefaultConfig() Config {
	return Config{
		MinDelay:  3 * time.Second,
		MaxDelay:  5 * time.Second,
		QueueSize: 64,
	}
}

// Snapshot is an immutable view of the session published after every event.
type Snapshot struct {
	State        reaction.State
	Cycle        uint64
	Source       delay.Kind
	LastReaction *int64
	FalseStart   bool
	Stats        results.Stats
	History      []results.Sample
	Connection   channel.State
	Status       string
	Offline      bool
}

type kind int

const (
	evTap kind = iota
	evStart
	evReact
	evReset
	evLocalStimulus
	evRemote
	evSetOffline
	evToggleOffline
	evReconnect
	evConnChanged
	evTrip
)

type event struct {
	kind    kind
	cycle   uint64
	offline bool
	remote  protocol.Event
}

type Session struct {
	log     *zap.Logger
	ch      Channel
	modes   *mode.Controller
	results *results.Aggregator
	machine *reaction.Machine
	local   *delay.Local
	remote  *delay.Remote

	events chan event
	done   chan struct{}

	// Owned by the Run goroutine.
	ctx         context.Context
	source      delay.Kind
	remoteCycle uint64

	mu       sync.RWMutex
	onChange func(Snapshot)
	snap     Snapshot
}

func New(ch Channel, modes *mode.Controller, cfg Config, log *zap.Logger) *Session {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	s := &Session{
		log:     log,
		ch:      ch,
		modes:   modes,
		results: results.NewAggregator(),
		events:  make(chan event, cfg.QueueSize),
		done:    make(chan struct{}),
		ctx:     context.Background(),
	}
	s.machine = reaction.NewMachine(s.results, cfg.Clock)
	s.local = delay.NewLocal(delay.LocalConfig{
		MinDelay:  cfg.MinDelay,
		MaxDelay:  cfg.MaxDelay,
		Scheduler: cfg.Scheduler,
		Rand:      cfg.Rand,
	}, func(cycle uint64) {
		s.post(event{kind: evLocalStimulus, cycle: cycle})
	})
	s.remote = delay.NewRemote(ch.Send, log)
	s.snap = s.buildSnapshot()
	return s
}

// OnChange registers the observer that receives every published snapshot.
// It runs on the session goroutine and must not block.
func (s *Session) OnChange(f func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = f
}

// Snapshot returns the most recently published view.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Results exposes the sample log for export.
func (s *Session) Results() *results.Aggregator { return s.results }

// Tap is the single-button input: it starts a test when waiting and records
// a reaction otherwise.
func (s *Session) Tap()            { s.post(event{kind: evTap}) }
func (s *Session) StartTest()      { s.post(event{kind: evStart}) }
func (s *Session) RecordReaction() { s.post(event{kind: evReact}) }
func (s *Session) Reset()          { s.post(event{kind: evReset}) }
func (s *Session) ToggleOffline()  { s.post(event{kind: evToggleOffline}) }
func (s *Session) Reconnect()      { s.post(event{kind: evReconnect}) }

func (s *Session) SetOffline(offline bool) {
	s.post(event{kind: evSetOffline, offline: offline})
}

// Run processes events until ctx is cancelled. It connects the channel unless
// the persisted mode is offline, and closes it on return.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	s.ctx = ctx
	s.ch.SetHandlers(channel.Handlers{
		OnEvent: func(ev protocol.Event) {
			s.post(event{kind: evRemote, remote: ev})
		},
		OnStateChange: func(channel.State, string) {
			s.notifyConn()
		},
		OnTrip: func() {
			s.post(event{kind: evTrip})
		},
	})

	if s.modes.Offline() {
		s.ch.GoOffline()
	} else {
		s.ch.Connect(ctx)
	}
	s.publish()

	for {
		select {
		case <-ctx.Done():
			s.local.Cancel()
			s.ch.Close()
			s.log.Info("Session stopped", zap.Int("samples", s.results.Len()))
			return ctx.Err()
		case ev := <-s.events:
			s.handle(ev)
			s.publish()
		}
	}
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// notifyConn is called synchronously from adapter methods, including ones
// the session goroutine itself invokes, so it never blocks. The snapshot
// reads connection state directly; a dropped notification loses nothing.
func (s *Session) notifyConn() {
	select {
	case s.events <- event{kind: evConnChanged}:
	default:
	}
}

func (s *Session) handle(ev event) {
	switch ev.kind {
	case evTap:
		if s.machine.State() == reaction.Waiting {
			s.startTest()
		} else {
			s.recordReaction()
		}
	case evStart:
		s.startTest()
	case evReact:
		s.recordReaction()
	case evReset:
		s.machine.Reset()
		s.log.Info("Results reset")
	case evLocalStimulus:
		if s.machine.OnStimulusSignal(ev.cycle) {
			s.log.Debug("Stimulus shown", zap.Uint64("cycle", ev.cycle), zap.Duration("delay", s.local.LastDelay()))
		}
	case evRemote:
		s.handleRemote(ev.remote)
	case evSetOffline:
		s.setOffline(ev.offline)
	case evToggleOffline:
		s.setOffline(!s.modes.Offline())
	case evReconnect:
		s.reconnect()
	case evConnChanged:
	case evTrip:
		s.log.Warn("Connection keeps failing, switching to offline mode")
		s.setOffline(true)
	}
	s.keepArmed()
}

func (s *Session) startTest() {
	kind := s.modes.Source(s.ch.State())
	var src reaction.DelaySource = s.local
	if kind == delay.KindRemote {
		src = s.remote
	}
	if !s.machine.StartTest(src) {
		return
	}
	s.source = kind
	s.remoteCycle = 0
	if kind == delay.KindRemote && s.machine.Scheduled() {
		s.remoteCycle = s.machine.Cycle()
	}
	s.log.Debug("Test started", zap.Uint64("cycle", s.machine.Cycle()), zap.Stringer("source", kind))
}

// keepArmed hands an Armed remote cycle to the local timer once the trigger
// can no longer deliver its stimulus: ready-for-stimulus was dropped or the
// channel left Connected.
func (s *Session) keepArmed() {
	if s.machine.State() != reaction.Armed || s.source != delay.KindRemote {
		return
	}
	if s.machine.Scheduled() && s.ch.State() == channel.Connected {
		return
	}
	cycle := s.machine.Cycle()
	s.source = delay.KindLocal
	s.remoteCycle = 0
	s.machine.Reschedule(s.local)
	s.log.Info("Trigger unreachable, local timer takes over", zap.Uint64("cycle", cycle), zap.Stringer("connection", s.ch.State()))
}

func (s *Session) recordReaction() {
	out := s.machine.RecordReaction()
	switch out.Kind {
	case reaction.Completed:
		s.log.Info("Reaction recorded", zap.Int64("reaction_ms", out.Sample.ReactionTimeMs))
		s.ch.Send(protocol.NewReactionResult(out.Sample.ReactionTimeMs))
	case reaction.FalseStart:
		s.log.Info("Early click")
		s.ch.Send(protocol.New(protocol.EarlyClick))
	}
}

func (s *Session) handleRemote(ev protocol.Event) {
	switch ev.Name {
	case protocol.StimulusNow:
		cycle := s.machine.Cycle()
		if s.remoteCycle != cycle {
			s.log.Debug("stimulus-now ignored, cycle not remotely scheduled", zap.Uint64("cycle", cycle))
			return
		}
		if !s.machine.OnStimulusSignal(cycle) {
			s.log.Debug("stimulus-now ignored", zap.Stringer("state", s.machine.State()))
		}
	default:
		s.log.Debug("Unexpected event for display", zap.String("event", ev.Name))
	}
}

func (s *Session) setOffline(offline bool) {
	changed, err := s.modes.SetOffline(offline)
	if err != nil {
		s.log.Error("Failed to persist mode", zap.Error(err))
	}
	if !changed {
		return
	}
	if offline {
		s.ch.GoOffline()
	} else {
		s.ch.Connect(s.ctx)
	}
}

// reconnect leaves offline mode if needed and restarts the connection with a
// fresh failure count.
func (s *Session) reconnect() {
	if _, err := s.modes.SetOffline(false); err != nil {
		s.log.Error("Failed to persist mode", zap.Error(err))
	}
	s.ch.Reconnect(s.ctx)
}

func (s *Session) publish() {
	snap := s.buildSnapshot()
	s.mu.Lock()
	s.snap = snap
	f := s.onChange
	s.mu.Unlock()
	if f != nil {
		f(snap)
	}
}

func (s *Session) buildSnapshot() Snapshot {
	snap := Snapshot{
		State:      s.machine.State(),
		Cycle:      s.machine.Cycle(),
		Source:     s.source,
		FalseStart: s.machine.FalseStarted(),
		Stats:      s.results.Stats(),
		History:    s.results.History(),
		Connection: s.ch.State(),
		Status:     s.ch.Status(),
		Offline:    s.modes.Offline(),
	}
	if ms, ok := s.machine.LastReaction(); ok {
		snap.LastReaction = &ms
	}
	return snap
}
