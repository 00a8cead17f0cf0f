package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/channel"
	"github.com/chav-jf/speedy-green-flash/internal/protocol"
	"github.com/chav-jf/speedy-green-flash/internal/relay"
	"github.com/chav-jf/speedy-green-flash/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	*httptest.Server
	hub   *relay.Hub
	store *repository.MemoryStore
}

func newServer(t *testing.T, rateLimit uint) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	store := repository.NewMemoryStore()
	hub := relay.NewHub(relay.DefaultConfig(), store, zap.NewNop())
	engine := Setup(zap.NewNop(), Options{Ctx: ctx, Hub: hub, Results: store, RateLimit: rateLimit})
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		cancel()
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, hub: hub, store: store}
}

func (s *testServer) dial(t *testing.T, room string, role protocol.Role) channel.Conn {
	t.Helper()
	d := &channel.WebSocketDialer{URL: "ws" + strings.TrimPrefix(s.URL, "http") + "/ws", Room: room, Role: role}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := d.Dial(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func createRoom(t *testing.T, s *testServer) string {
	t.Helper()
	resp, err := http.Post(s.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body struct{ Code string }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Code
}

func TestRooms(t *testing.T) {
	s := newServer(t, 100)
	code := createRoom(t, s)

	var info relay.RoomInfo
	assert.Equal(t, http.StatusOK, getJSON(t, s.URL+"/rooms/"+code, &info))
	assert.Equal(t, code, info.Code)
	assert.False(t, info.Display)

	assert.Equal(t, http.StatusOK, getJSON(t, s.URL+"/rooms/"+strings.ToLower(code), nil), "codes are case-insensitive")
	assert.Equal(t, http.StatusNotFound, getJSON(t, s.URL+"/rooms/ZZZZZZ", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, s.URL+"/rooms/not-valid", nil))

	var list struct{ Rooms []relay.RoomInfo }
	assert.Equal(t, http.StatusOK, getJSON(t, s.URL+"/rooms", &list))
	assert.Len(t, list.Rooms, 1)
}

func TestHealthAndStatusPage(t *testing.T) {
	s := newServer(t, 100)
	code := createRoom(t, s)

	var health map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, s.URL+"/healthz", &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(s.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), code)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestWebSocket_PairAndReport(t *testing.T) {
	s := newServer(t, 100)
	code := createRoom(t, s)

	display := s.dial(t, code, protocol.RoleDisplay)
	trig := s.dial(t, code, protocol.RoleTrigger)
	require.Eventually(t, func() bool {
		info, ok := s.hub.Room(code)
		return ok && info.Display && info.Trigger
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, trig.WriteEvent(protocol.New(protocol.StimulusNow)))
	ev, err := display.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, protocol.StimulusNow, ev.Name)

	require.NoError(t, display.WriteEvent(protocol.NewReactionResult(240)))
	require.NoError(t, display.WriteEvent(protocol.New(protocol.EarlyClick)))
	require.NoError(t, display.WriteEvent(protocol.NewReactionResult(260)))

	var results struct {
		Summary struct {
			Count          int
			FalseStarts    int
			AverageRounded int64
			Best           *int64
		}
		History []struct{ ReactionTimeMs int64 }
	}
	require.Eventually(t, func() bool {
		getJSON(t, s.URL+"/rooms/"+code+"/results", &results)
		return results.Summary.Count == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, results.Summary.FalseStarts)
	assert.Equal(t, int64(250), results.Summary.AverageRounded)
	require.NotNil(t, results.Summary.Best)
	assert.Equal(t, int64(240), *results.Summary.Best)
	require.Len(t, results.History, 2)
	assert.Equal(t, int64(260), results.History[0].ReactionTimeMs)

	var chart map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, s.URL+"/rooms/"+code+"/chart?format=json", &chart))
	assert.Contains(t, chart, "series")

	resp, err := http.Get(s.URL + "/rooms/" + code + "/chart")
	require.NoError(t, err)
	defer resp.Body.Close()
	page, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(page), "echarts")
}

func TestWebSocket_Rejections(t *testing.T) {
	s := newServer(t, 100)
	code := createRoom(t, s)
	s.dial(t, code, protocol.RoleDisplay)
	require.Eventually(t, func() bool {
		info, ok := s.hub.Room(code)
		return ok && info.Display
	}, 2*time.Second, 5*time.Millisecond)

	base := s.URL + "/ws?room=" + code
	assert.Equal(t, http.StatusConflict, getJSON(t, base+"&role=display", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, base+"&role=observer", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, s.URL+"/ws?room=x&role=trigger", nil))
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, 1)
	createRoom(t, s)

	resp, err := http.Post(s.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
