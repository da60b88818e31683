package wsbridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

// Client is the connecting side of the bridge, used by contexts that do not
// host the hub (a second app process, a background push handler). It also
// implements transport.Publisher, so it plugs into a local bus the same way
// the hub does.
type Client struct {
	origin string
	apply  ApplyFunc
	log    logx.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to a hub at url (ws:// or wss://) and starts the read loop.
func Dial(ctx context.Context, url string, apply ApplyFunc, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := &Client{
		origin: uuid.NewString(),
		apply:  apply,
		log:    log,
		conn:   conn,
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Name() string   { return "wsbridge-client" }
func (c *Client) Origin() string { return c.origin }

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Publish sends a locally committed record to the hub.
func (c *Client) Publish(ctx context.Context, rec update.Record) error {
	_ = ctx
	data, err := json.Marshal(Frame{Origin: c.origin, Record: rec})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	defer c.closeOnce.Do(func() { close(c.done) })
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("bridge frame dropped: malformed", logx.Err(err))
			continue
		}
		if f.Origin == "" || f.Origin == c.origin {
			continue
		}
		if c.apply != nil {
			c.apply(context.Background(), f.Record)
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	err := c.conn.Close()
	c.mu.Unlock()
	return err
}
