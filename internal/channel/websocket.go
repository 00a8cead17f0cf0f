package channel

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chav-jf/speedy-green-flash/internal/protocol"
)

const writeWait = 5 * time.Second

// WebSocketDialer connects to the relay's /ws endpoint for one room and role.
type WebSocketDialer struct {
	URL  string
	Room string
	Role protocol.Role

	Dialer *websocket.Dialer
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url %q: %w", d.URL, err)
	}
	q := u.Query()
	q.Set("room", d.Room)
	q.Set("role", string(d.Role))
	u.RawQuery = q.Encode()

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("relay refused %s (status %d): %w", d.Role, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing relay: %w", err)
	}
	return NewWebSocketConn(ws), nil
}

// WebSocketConn frames protocol events as JSON text messages. Writes are
// serialized; reads must come from a single goroutine.
type WebSocketConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

// ReadEvent returns the next well-formed event, skipping malformed frames and
// frames outside the contract.
func (c *WebSocketConn) ReadEvent() (protocol.Event, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return protocol.Event{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		return ev, nil
	}
}

func (c *WebSocketConn) WriteEvent(ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *WebSocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
