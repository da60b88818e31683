// Package wsbridge relays committed update records between execution
// contexts over WebSocket, the way a browser BroadcastChannel relays
// messages between tabs.
//
// The daemon hosts the hub; each foreground UI, background push handler, or
// extra tab connects as a client. A record committed anywhere is applied
// everywhere; replay is idempotent because flag writes are last-write-wins.
// Frames carry the origin's id so a context never re-applies its own post.
package wsbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

// Frame is the wire format: one committed record plus its origin.
type Frame struct {
	Origin string        `json:"origin"`
	Record update.Record `json:"record"`
}

// ApplyFunc hands an inbound remote record to the bus. Wired to bus.Apply.
type ApplyFunc func(ctx context.Context, rec update.Record) bool

const (
	writeWait      = 5 * time.Second
	defaultSendRPS = 50
)

// Hub accepts bridge connections and fans committed records out to them.
// It implements the bus's transport.Publisher.
type Hub struct {
	origin  string
	apply   ApplyFunc
	log     logx.Logger
	limiter *rate.Limiter

	mu    sync.RWMutex
	conns map[*websocket.Conn]bool

	// wmu serializes writes: gorilla connections allow one writer at a
	// time, and frames can arrive from the bus and from several read
	// loops at once.
	wmu sync.Mutex

	upgrader websocket.Upgrader
}

// NewHub builds a hub with a fresh origin id. sendRPS caps outbound
// broadcast frames per second (0 means default); a burst of triggers must
// not saturate every connected context.
func NewHub(apply ApplyFunc, sendRPS int, log logx.Logger) *Hub {
	if sendRPS <= 0 {
		sendRPS = defaultSendRPS
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Hub{
		origin:  uuid.NewString(),
		apply:   apply,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(sendRPS), sendRPS),
		conns:   map[*websocket.Conn]bool{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Origin returns the hub's own context id.
func (h *Hub) Origin() string { return h.origin }

func (h *Hub) Name() string { return "wsbridge" }

// ClientCount returns the number of connected contexts.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request and runs the connection's read loop until
// the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("bridge upgrade failed", logx.Err(err))
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()
	h.log.Debug("bridge context connected", logx.Int("clients", h.ClientCount()))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		h.handleInbound(r.Context(), conn, data)
	}

	h.drop(conn)
	h.log.Debug("bridge context disconnected", logx.Int("clients", h.ClientCount()))
}

// handleInbound applies a frame from one context and relays it to the rest.
func (h *Hub) handleInbound(ctx context.Context, from *websocket.Conn, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		h.log.Warn("bridge frame dropped: malformed", logx.Err(err))
		return
	}
	if f.Origin == "" || f.Origin == h.origin {
		return
	}
	if h.apply != nil {
		h.apply(ctx, f.Record)
	}
	h.broadcast(data, from)
}

// Publish implements transport.Publisher: a locally committed record goes
// out to every connected context.
func (h *Hub) Publish(ctx context.Context, rec update.Record) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(Frame{Origin: h.origin, Record: rec})
	if err != nil {
		return err
	}
	h.broadcast(data, nil)
	return nil
}

// broadcast writes data to every connection except skip. Dead connections
// are dropped; per-connection failures never abort the fan-out.
func (h *Hub) broadcast(data []byte, skip *websocket.Conn) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		if c != skip {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	h.wmu.Lock()
	defer h.wmu.Unlock()
	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
	}
	h.mu.Unlock()
	_ = c.Close()
}

// Close disconnects every context.
func (h *Hub) Close() error {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = map[*websocket.Conn]bool{}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(writeWait))
		_ = c.Close()
	}
	return nil
}
