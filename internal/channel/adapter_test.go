package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/protocol"
)

var errClosed = errors.New("closed")

type fakeConn struct {
	in     chan protocol.Event
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []protocol.Event
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan protocol.Event, 8), closed: make(chan struct{})}
}

func (c *fakeConn) ReadEvent() (protocol.Event, error) {
	select {
	case ev := <-c.in:
		return ev, nil
	case <-c.closed:
		return protocol.Event{}, errClosed
	}
}

func (c *fakeConn) WriteEvent(ev protocol.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) sent() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Event(nil), c.written...)
}

type fakeDialer struct {
	mu      sync.Mutex
	fail    bool
	release chan struct{}
	calls   int
	conns   []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	d.calls++
	fail, release := d.fail, d.release
	d.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("connection refused")
	}

	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) setFail(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = v
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) openConns() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	var open []*fakeConn
	for _, c := range d.conns {
		if !c.isClosed() {
			open = append(open, c)
		}
	}
	return open
}

func testConfig() Config {
	return Config{
		MaxAttempts:    3,
		RetryDelay:     time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func waitState(t *testing.T, a *Adapter, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return a.State() == want }, 2*time.Second, time.Millisecond,
		"state never became %s (last %s: %s)", want, a.State(), a.Status())
}

func TestConnect_Succeeds(t *testing.T) {
	d := &fakeDialer{}
	a := NewAdapter(d, testConfig(), zap.NewNop())

	a.Connect(context.Background())
	waitState(t, a, Connected)

	assert.Equal(t, 1, a.Connects())
	assert.Equal(t, "Connected", a.Status())

	a.Connect(context.Background())
	assert.Equal(t, 1, d.callCount(), "connect while connected is a no-op")
}

func TestConnect_ExhaustsRetries(t *testing.T) {
	d := &fakeDialer{fail: true}
	a := NewAdapter(d, testConfig(), zap.NewNop())

	a.Connect(context.Background())
	require.Eventually(t, func() bool {
		return a.State() == Disconnected && d.callCount() == 3
	}, 2*time.Second, time.Millisecond)

	assert.Contains(t, a.Status(), "failed after 3 attempts")
	assert.Equal(t, 3, a.Failures())
}

func TestBreaker_TripsOnce(t *testing.T) {
	d := &fakeDialer{fail: true}
	cfg := testConfig()
	cfg.MaxAttempts = 5
	cfg.OfflineThreshold = 2
	a := NewAdapter(d, cfg, zap.NewNop())

	var trips atomic.Int32
	a.SetHandlers(Handlers{OnTrip: func() { trips.Add(1) }})

	a.Connect(context.Background())
	require.Eventually(t, func() bool { return d.callCount() == 5 && a.State() == Disconnected }, 2*time.Second, time.Millisecond)
	a.Connect(context.Background())
	require.Eventually(t, func() bool { return d.callCount() == 10 && a.State() == Disconnected }, 2*time.Second, time.Millisecond)

	assert.Equal(t, int32(1), trips.Load(), "failures beyond the threshold must not re-trip")

	a.Reconnect(context.Background())
	require.Eventually(t, func() bool { return d.callCount() == 15 && a.State() == Disconnected }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int32(2), trips.Load(), "manual reconnect re-arms the breaker")
}

func TestBreaker_DisabledAtZero(t *testing.T) {
	d := &fakeDialer{fail: true}
	a := NewAdapter(d, testConfig(), zap.NewNop())
	var trips atomic.Int32
	a.SetHandlers(Handlers{OnTrip: func() { trips.Add(1) }})

	a.Connect(context.Background())
	require.Eventually(t, func() bool { return a.State() == Disconnected && d.callCount() == 3 }, 2*time.Second, time.Millisecond)
	assert.Zero(t, trips.Load())
}

func TestSend_DroppedUnlessConnected(t *testing.T) {
	d := &fakeDialer{}
	a := NewAdapter(d, testConfig(), zap.NewNop())

	assert.False(t, a.Send(protocol.New(protocol.StimulusNow)))

	a.Connect(context.Background())
	waitState(t, a, Connected)
	assert.True(t, a.Send(protocol.New(protocol.StimulusNow)))

	conns := d.openConns()
	require.Len(t, conns, 1)
	assert.Equal(t, []protocol.Event{protocol.New(protocol.StimulusNow)}, conns[0].sent())

	a.GoOffline()
	assert.Equal(t, Offline, a.State())
	assert.False(t, a.Send(protocol.New(protocol.StimulusNow)))
	assert.Empty(t, d.openConns())
}

func TestInboundEventsDelivered(t *testing.T) {
	d := &fakeDialer{}
	a := NewAdapter(d, testConfig(), zap.NewNop())
	got := make(chan protocol.Event, 1)
	a.SetHandlers(Handlers{OnEvent: func(ev protocol.Event) { got <- ev }})

	a.Connect(context.Background())
	waitState(t, a, Connected)
	d.openConns()[0].in <- protocol.New(protocol.StimulusNow)

	select {
	case ev := <-got:
		assert.Equal(t, protocol.StimulusNow, ev.Name)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestReconnect_NeverTwoLiveConnections(t *testing.T) {
	release := make(chan struct{})
	d := &fakeDialer{release: release}
	a := NewAdapter(d, testConfig(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Reconnect(context.Background())
		}()
	}
	wg.Wait()
	close(release)

	waitState(t, a, Connected)
	// Let any superseded dial finish.
	time.Sleep(20 * time.Millisecond)

	assert.Len(t, d.openConns(), 1)
	assert.Equal(t, 1, a.Connects())

	a.Reconnect(context.Background())
	waitState(t, a, Connected)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, d.openConns(), 1)
	assert.Equal(t, 2, a.Connects())
}

func TestConnectionLoss_AutoReconnects(t *testing.T) {
	d := &fakeDialer{}
	cfg := testConfig()
	cfg.AutoReconnect = true
	a := NewAdapter(d, cfg, zap.NewNop())

	var mu sync.Mutex
	var seen []State
	a.SetHandlers(Handlers{OnStateChange: func(s State, _ string) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}})

	a.Connect(context.Background())
	waitState(t, a, Connected)
	d.openConns()[0].Close()

	require.Eventually(t, func() bool { return a.Connects() == 2 && a.State() == Connected }, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, Disconnected)
}

func TestConnectionLoss_WithoutAutoReconnect(t *testing.T) {
	d := &fakeDialer{}
	a := NewAdapter(d, testConfig(), zap.NewNop())

	a.Connect(context.Background())
	waitState(t, a, Connected)
	d.openConns()[0].Close()

	waitState(t, a, Disconnected)
	assert.Contains(t, a.Status(), "Disconnected")
	assert.Equal(t, 1, d.callCount())
}

func TestGoOffline_CancelsOutstandingAttempt(t *testing.T) {
	release := make(chan struct{})
	d := &fakeDialer{release: release}
	a := NewAdapter(d, testConfig(), zap.NewNop())

	a.Connect(context.Background())
	assert.Equal(t, Connecting, a.State())
	a.GoOffline()
	close(release)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Offline, a.State())
	assert.Empty(t, d.openConns())
	assert.Zero(t, a.Connects())
}

func TestConnect_FromOffline(t *testing.T) {
	d := &fakeDialer{}
	a := NewAdapter(d, testConfig(), zap.NewNop())
	a.GoOffline()

	d.setFail(false)
	a.Connect(context.Background())
	waitState(t, a, Connected)
}

func TestBreaker_DefaultConfigTripsAfterOneCycle(t *testing.T) {
	d := &fakeDialer{fail: true}
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	a := NewAdapter(d, cfg, zap.NewNop())

	var trips atomic.Int32
	a.SetHandlers(Handlers{OnTrip: func() { trips.Add(1) }})

	a.Connect(context.Background())
	require.Eventually(t, func() bool {
		return a.State() == Disconnected && d.callCount() == cfg.MaxAttempts
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, int32(1), trips.Load())

	for i := 0; i < 3; i++ {
		a.Reconnect(context.Background())
		want := cfg.MaxAttempts * (i + 2)
		require.Eventually(t, func() bool { return a.State() == Disconnected && d.callCount() == want }, 2*time.Second, time.Millisecond)
	}
	assert.Equal(t, int32(4), trips.Load(), "each manual reconnect that fails again trips again")
}
