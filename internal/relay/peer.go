package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/protocol"
)

// Peer is one websocket connection bound to a room slot.
type Peer struct {
	hub  *Hub
	room string
	role protocol.Role
	ws   *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(h *Hub, code string, role protocol.Role, ws *websocket.Conn) *Peer {
	return &Peer{
		hub:  h,
		room: code,
		role: role,
		ws:   ws,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (p *Peer) Role() protocol.Role { return p.role }

func (p *Peer) Room() string { return p.room }

// Serve pumps messages until the connection drops or ctx is cancelled, then
// releases the room slot.
func (p *Peer) Serve(ctx context.Context) {
	defer func() {
		p.hub.leave(p)
		p.close()
	}()

	go p.writePump()
	go func() {
		select {
		case <-ctx.Done():
			p.close()
		case <-p.done:
		}
	}()
	p.readPump(ctx)
}

func (p *Peer) readPump(ctx context.Context) {
	cfg := p.hub.cfg
	log := p.hub.log.With(zap.String("room", p.room), zap.String("role", string(p.role)))

	p.ws.SetReadLimit(cfg.MaxMessageSize)
	p.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	p.ws.SetPongHandler(func(string) error {
		return p.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		kind, data, err := p.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("WebSocket error", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownEvent) {
				log.Warn("Unknown event dropped", zap.Error(err))
			} else {
				log.Warn("Malformed frame dropped", zap.Error(err))
			}
			continue
		}
		p.hub.route(ctx, p, ev)
	}
}

func (p *Peer) writePump() {
	cfg := p.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-p.send:
			p.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := p.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				p.hub.log.Debug("Write failed", zap.String("room", p.room), zap.Error(err))
				p.close()
				return
			}
		case <-ticker.C:
			if err := p.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteWait)); err != nil {
				p.close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// enqueue hands data to the write pump without blocking. A full queue drops
// the event.
func (p *Peer) enqueue(data []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- data:
		return true
	default:
		p.hub.log.Warn("Peer send queue full, event dropped", zap.String("room", p.room), zap.String("role", string(p.role)))
		return false
	}
}

func (p *Peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = p.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		p.ws.Close()
	})
}
