// Package relay pairs one display with one trigger per room and forwards
// protocol events between them.
package relay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/protocol"
	"github.com/chav-jf/speedy-green-flash/internal/tracing"
)

var (
	ErrRoleTaken   = errors.New("role already taken in this room")
	ErrInvalidRole = errors.New("role must be display or trigger")
)

// Recorder receives the telemetry the display reports through the relay.
type Recorder interface {
	RoomOpened(ctx context.Context, room string) error
	RecordReaction(ctx context.Context, room string, reactionTimeMs int64) error
	RecordEarlyClick(ctx context.Context, room string) error
	RoomClosed(ctx context.Context, room string) error
}

// Config holds per-peer connection limits.
type Config struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func DefaultConfig() Config {
	return Config{
		SendBuffer:     16,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 4096,
	}
}

// RoomInfo describes a room for status endpoints.
type RoomInfo struct {
	Code      string    `json:"code"`
	Display   bool      `json:"display"`
	Trigger   bool      `json:"trigger"`
	CreatedAt time.Time `json:"createdAt"`
	Relayed   int       `json:"relayed"`
}

type room struct {
	code    string
	peers   map[protocol.Role]*Peer
	created time.Time
	relayed int
	opened  bool
}

func (r *room) info() RoomInfo {
	return RoomInfo{
		Code:      r.code,
		Display:   r.peers[protocol.RoleDisplay] != nil,
		Trigger:   r.peers[protocol.RoleTrigger] != nil,
		CreatedAt: r.created,
		Relayed:   r.relayed,
	}
}

type Hub struct {
	log      *zap.Logger
	cfg      Config
	recorder Recorder
	now      func() time.Time

	mu    sync.RWMutex
	rooms map[string]*room
}

// NewHub creates a hub. recorder may be nil.
func NewHub(cfg Config, recorder Recorder, log *zap.Logger) *Hub {
	def := DefaultConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	return &Hub{
		log:      log,
		cfg:      cfg,
		recorder: recorder,
		now:      time.Now,
		rooms:    make(map[string]*room),
	}
}

// CreateRoom registers an empty room so it can be looked up before any peer
// joins. It reports false if the code is already in use.
func (h *Hub) CreateRoom(code string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[code]; ok {
		return false
	}
	h.rooms[code] = &room{code: code, peers: map[protocol.Role]*Peer{}, created: h.now()}
	return true
}

// Available checks that role can join code right now.
func (h *Hub) Available(code string, role protocol.Role) error {
	if _, ok := protocol.ParseRole(string(role)); !ok {
		return ErrInvalidRole
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[code]; ok && r.peers[role] != nil {
		return ErrRoleTaken
	}
	return nil
}

// Join attaches ws to the room as role. The returned peer must be started
// with Serve.
func (h *Hub) Join(code string, role protocol.Role, ws *websocket.Conn) (*Peer, error) {
	if _, ok := protocol.ParseRole(string(role)); !ok {
		return nil, ErrInvalidRole
	}

	h.mu.Lock()
	r, ok := h.rooms[code]
	if !ok {
		r = &room{code: code, peers: map[protocol.Role]*Peer{}, created: h.now()}
		h.rooms[code] = r
	}
	if r.peers[role] != nil {
		h.mu.Unlock()
		return nil, ErrRoleTaken
	}
	p := newPeer(h, code, role, ws)
	r.peers[role] = p
	paired := len(r.peers) == 2 && !r.opened
	if paired {
		r.opened = true
	}
	h.mu.Unlock()

	h.log.Info("Peer joined", zap.String("room", code), zap.String("role", string(role)))
	if paired && h.recorder != nil {
		if err := h.recorder.RoomOpened(context.Background(), code); err != nil {
			h.log.Error("Failed to record pairing", zap.String("room", code), zap.Error(err))
		}
	}
	return p, nil
}

func (h *Hub) leave(p *Peer) {
	h.mu.Lock()
	r, ok := h.rooms[p.room]
	if !ok || r.peers[p.role] != p {
		h.mu.Unlock()
		return
	}
	delete(r.peers, p.role)
	empty := len(r.peers) == 0
	opened := r.opened
	if empty {
		delete(h.rooms, p.room)
	}
	h.mu.Unlock()

	h.log.Info("Peer left", zap.String("room", p.room), zap.String("role", string(p.role)))
	if empty && opened && h.recorder != nil {
		if err := h.recorder.RoomClosed(context.Background(), p.room); err != nil {
			h.log.Error("Failed to close pairing session", zap.String("room", p.room), zap.Error(err))
		}
	}
}

// route forwards ev from p to its counterpart. Events are never queued for an
// absent peer.
func (h *Hub) route(ctx context.Context, from *Peer, ev protocol.Event) {
	ctx, span := tracing.StartRouteSpan(ctx, from.room, ev.Name, string(from.role))
	defer span.End()

	origin, err := protocol.Origin(ev.Name)
	if err != nil || origin != from.role {
		if err == nil {
			err = errors.New("event sent in the wrong direction")
		}
		tracing.RecordError(span, err)
		h.log.Warn("Dropping event", zap.String("room", from.room), zap.String("role", string(from.role)),
			zap.String("event", ev.Name), zap.Error(err))
		return
	}

	data, err := protocol.Encode(ev)
	if err != nil {
		tracing.RecordError(span, err)
		return
	}

	h.mu.Lock()
	var to *Peer
	if r, ok := h.rooms[from.room]; ok {
		to = r.peers[from.role.Counterpart()]
		r.relayed++
	}
	h.mu.Unlock()

	delivered := to != nil && to.enqueue(data)
	tracing.RecordDelivery(span, delivered)
	if !delivered {
		h.log.Debug("Counterpart unavailable, event dropped", zap.String("room", from.room), zap.String("event", ev.Name))
	}

	h.record(ctx, from.room, ev)
}

func (h *Hub) record(ctx context.Context, code string, ev protocol.Event) {
	if h.recorder == nil {
		return
	}
	var err error
	switch ev.Name {
	case protocol.ReactionResult:
		var ms int64
		ms, err = ev.ReactionTime()
		if err == nil {
			err = h.recorder.RecordReaction(ctx, code, ms)
		}
	case protocol.EarlyClick:
		err = h.recorder.RecordEarlyClick(ctx, code)
	default:
		return
	}
	if err != nil {
		h.log.Error("Failed to record telemetry", zap.String("room", code), zap.String("event", ev.Name), zap.Error(err))
	}
}

// Room returns the state of one room.
func (h *Hub) Room(code string) (RoomInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[code]
	if !ok {
		return RoomInfo{}, false
	}
	return r.info(), true
}

// Rooms lists all rooms, oldest first.
func (h *Hub) Rooms() []RoomInfo {
	h.mu.RLock()
	infos := make([]RoomInfo, 0, len(h.rooms))
	for _, r := range h.rooms {
		infos = append(infos, r.info())
	}
	h.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].Code < infos[j].Code
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// PruneIdle removes rooms that never got a peer and are older than maxAge.
func (h *Hub) PruneIdle(maxAge time.Duration) int {
	cutoff := h.now().Add(-maxAge)
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for code, r := range h.rooms {
		if len(r.peers) == 0 && r.created.Before(cutoff) {
			delete(h.rooms, code)
			n++
		}
	}
	return n
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.Lock()
	var peers []*Peer
	for _, r := range h.rooms {
		for _, p := range r.peers {
			peers = append(peers, p)
		}
	}
	h.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}
