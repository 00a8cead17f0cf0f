package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/channel"
	"github.com/chav-jf/speedy-green-flash/internal/protocol"
)

type fakeRecorder struct {
	mu        sync.Mutex
	opened    []string
	closed    []string
	reactions []int64
	early     int
}

func (r *fakeRecorder) RoomOpened(_ context.Context, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, room)
	return nil
}

func (r *fakeRecorder) RecordReaction(_ context.Context, _ string, ms int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reactions = append(r.reactions, ms)
	return nil
}

func (r *fakeRecorder) RecordEarlyClick(context.Context, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.early++
	return nil
}

func (r *fakeRecorder) RoomClosed(_ context.Context, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, room)
	return nil
}

func (r *fakeRecorder) snapshot() (opened, closed []string, reactions []int64, early int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.opened...), append([]string(nil), r.closed...), append([]int64(nil), r.reactions...), r.early
}

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("room")
		role := protocol.Role(r.URL.Query().Get("role"))
		if err := hub.Available(code, role); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p, err := hub.Join(code, role, ws)
		if err != nil {
			ws.Close()
			return
		}
		p.Serve(context.Background())
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, room string, role protocol.Role) channel.Conn {
	t.Helper()
	d := &channel.WebSocketDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Room: room, Role: role}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := d.Dial(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readEvent(t *testing.T, c channel.Conn) protocol.Event {
	t.Helper()
	got := make(chan protocol.Event, 1)
	go func() {
		ev, err := c.ReadEvent()
		if err == nil {
			got <- ev
		}
	}()
	select {
	case ev := <-got:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return protocol.Event{}
	}
}

func waitPaired(t *testing.T, hub *Hub, room string) {
	t.Helper()
	require.Eventually(t, func() bool {
		info, ok := hub.Room(room)
		return ok && info.Display && info.Trigger
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRelay_RoutesBothDirections(t *testing.T) {
	rec := &fakeRecorder{}
	hub := NewHub(DefaultConfig(), rec, zap.NewNop())
	srv := newTestServer(t, hub)

	display := dial(t, srv, "ROOM01", protocol.RoleDisplay)
	trig := dial(t, srv, "ROOM01", protocol.RoleTrigger)
	waitPaired(t, hub, "ROOM01")

	require.NoError(t, display.WriteEvent(protocol.New(protocol.ReadyForStimulus)))
	assert.Equal(t, protocol.ReadyForStimulus, readEvent(t, trig).Name)

	require.NoError(t, trig.WriteEvent(protocol.New(protocol.StimulusNow)))
	assert.Equal(t, protocol.StimulusNow, readEvent(t, display).Name)

	require.NoError(t, display.WriteEvent(protocol.NewReactionResult(250)))
	ev := readEvent(t, trig)
	ms, err := ev.ReactionTime()
	require.NoError(t, err)
	assert.Equal(t, int64(250), ms)

	require.NoError(t, display.WriteEvent(protocol.New(protocol.EarlyClick)))
	assert.Equal(t, protocol.EarlyClick, readEvent(t, trig).Name)

	opened, _, reactions, early := rec.snapshot()
	assert.Equal(t, []string{"ROOM01"}, opened)
	assert.Equal(t, []int64{250}, reactions)
	assert.Equal(t, 1, early)
}

func TestRelay_WrongDirectionDropped(t *testing.T) {
	rec := &fakeRecorder{}
	hub := NewHub(DefaultConfig(), rec, zap.NewNop())
	srv := newTestServer(t, hub)

	display := dial(t, srv, "ROOM02", protocol.RoleDisplay)
	trig := dial(t, srv, "ROOM02", protocol.RoleTrigger)
	waitPaired(t, hub, "ROOM02")

	// A trigger may not report results or arm the display.
	require.NoError(t, trig.WriteEvent(protocol.NewReactionResult(1)))
	require.NoError(t, trig.WriteEvent(protocol.New(protocol.ReadyForStimulus)))
	require.NoError(t, trig.WriteEvent(protocol.New(protocol.StimulusNow)))

	assert.Equal(t, protocol.StimulusNow, readEvent(t, display).Name)
	_, _, reactions, _ := rec.snapshot()
	assert.Empty(t, reactions)
}

func TestRelay_RoleTaken(t *testing.T) {
	hub := NewHub(DefaultConfig(), nil, zap.NewNop())
	srv := newTestServer(t, hub)

	dial(t, srv, "ROOM03", protocol.RoleDisplay)
	require.Eventually(t, func() bool {
		info, ok := hub.Room("ROOM03")
		return ok && info.Display
	}, 2*time.Second, 5*time.Millisecond)

	d := &channel.WebSocketDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Room: "ROOM03", Role: protocol.RoleDisplay}
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")

	assert.ErrorIs(t, hub.Available("ROOM03", protocol.RoleDisplay), ErrRoleTaken)
	assert.NoError(t, hub.Available("ROOM03", protocol.RoleTrigger))
	assert.ErrorIs(t, hub.Available("ROOM03", protocol.Role("observer")), ErrInvalidRole)
}

func TestRelay_AbsentCounterpartDrops(t *testing.T) {
	rec := &fakeRecorder{}
	hub := NewHub(DefaultConfig(), rec, zap.NewNop())
	srv := newTestServer(t, hub)

	display := dial(t, srv, "ROOM04", protocol.RoleDisplay)
	require.NoError(t, display.WriteEvent(protocol.NewReactionResult(300)))

	require.Eventually(t, func() bool {
		_, _, reactions, _ := rec.snapshot()
		return len(reactions) == 1 && reactions[0] == 300
	}, 2*time.Second, 5*time.Millisecond, "telemetry is recorded even without a trigger")
	info, ok := hub.Room("ROOM04")
	require.True(t, ok)
	assert.Equal(t, 1, info.Relayed)

	opened, _, _, _ := rec.snapshot()
	assert.Empty(t, opened, "a room is only opened once both peers are present")
}

func TestRelay_EmptyRoomRemoved(t *testing.T) {
	rec := &fakeRecorder{}
	hub := NewHub(DefaultConfig(), rec, zap.NewNop())
	srv := newTestServer(t, hub)

	display := dial(t, srv, "ROOM05", protocol.RoleDisplay)
	trig := dial(t, srv, "ROOM05", protocol.RoleTrigger)
	waitPaired(t, hub, "ROOM05")

	trig.Close()
	require.Eventually(t, func() bool {
		info, ok := hub.Room("ROOM05")
		return ok && info.Display && !info.Trigger
	}, 2*time.Second, 5*time.Millisecond)

	display.Close()
	require.Eventually(t, func() bool {
		_, ok := hub.Room("ROOM05")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, closed, _, _ := rec.snapshot()
		return len(closed) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHub_CreateAndPrune(t *testing.T) {
	hub := NewHub(DefaultConfig(), nil, zap.NewNop())
	now := time.Unix(1000, 0)
	hub.now = func() time.Time { return now }

	assert.True(t, hub.CreateRoom("AAAAAA"))
	assert.False(t, hub.CreateRoom("AAAAAA"))

	now = now.Add(time.Minute)
	assert.True(t, hub.CreateRoom("BBBBBB"))

	rooms := hub.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "AAAAAA", rooms[0].Code)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, hub.PruneIdle(time.Minute))
	_, ok := hub.Room("AAAAAA")
	assert.False(t, ok)
	_, ok = hub.Room("BBBBBB")
	assert.True(t, ok)
}
