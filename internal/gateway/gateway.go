// Package gateway is the realtime edge: it translates websocket events
// into registry operations, mirrors mutations to the durable store and
// fans broadcasts back out to connected clients.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/soulstream/livecast/internal/config"
	"github.com/soulstream/livecast/internal/domain"
	"github.com/soulstream/livecast/internal/registry"
	"github.com/soulstream/livecast/internal/storage/sqlite"
)

var ErrBackpressure = errors.New("backpressure")

const mirrorTimeout = 3 * time.Second

type Gateway struct {
	cfg     *config.Config
	reg     *registry.Registry
	store   *sqlite.Store
	limiter *RateLimiter

	mu    sync.RWMutex
	conns map[domain.ConnID]*wsConn
}

func New(cfg *config.Config, reg *registry.Registry, store *sqlite.Store) *Gateway {
	return &Gateway{
		cfg:     cfg,
		reg:     reg,
		store:   store,
		limiter: NewRateLimiter(cfg.MsgRateLimit, cfg.MsgRateWindow),
		conns:   make(map[domain.ConnID]*wsConn),
	}
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and runs the connection until it drops.
// The connection id is the client token assigned by the HTTP layer.
func (g *Gateway) HandleWS(ctx context.Context, c *gin.Context) {
	cid := domain.ConnID(c.GetString("client_token"))
	log.Info().Str("module", "gateway").Str("conn", string(cid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}
	g.register(cid, conn)

	// Fetch-once clients get the HTTP mirror; realtime clients get the
	// authoritative snapshot the moment they connect.
	g.sendJSON(conn, streamsUpdated{Type: evStreamsUpdated, Streams: g.reg.Snapshot()})

	ctx, cancel := context.WithCancel(ctx)
	go g.writePump(ctx, conn)
	go g.readPump(ctx, cancel, cid, conn)
}

func (g *Gateway) register(cid domain.ConnID, conn *wsConn) {
	g.mu.Lock()
	if old, ok := g.conns[cid]; ok {
		old.Close()
	}
	g.conns[cid] = conn
	g.mu.Unlock()
}

// unregister reports whether conn was still the registered connection
// for cid. A stale connection replaced by a reconnect must not trigger
// a disconnect sweep against the new one's sessions.
func (g *Gateway) unregister(cid domain.ConnID, conn *wsConn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conns[cid] == conn {
		delete(g.conns, cid)
		return true
	}
	return false
}

func (g *Gateway) lookup(cid domain.ConnID) (*wsConn, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	conn, ok := g.conns[cid]
	return conn, ok
}

func (g *Gateway) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (g *Gateway) sendTo(cid domain.ConnID, v any) {
	if conn, ok := g.lookup(cid); ok {
		g.sendJSON(conn, v)
	}
}

func (g *Gateway) sendError(c *wsConn, msg string) {
	g.sendJSON(c, streamError{Type: evStreamError, Message: msg})
}

// broadcastAll pushes the current live-list snapshot to every connection.
func (g *Gateway) broadcastAll() {
	payload := streamsUpdated{Type: evStreamsUpdated, Streams: g.reg.Snapshot()}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("broadcast marshal")
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, conn := range g.conns {
		_ = conn.TrySend(b)
	}
}

// broadcastGroup sends to the given roster. Membership of a stream's
// broadcast group is derived from its registry participant set.
func (g *Gateway) broadcastGroup(roster []domain.ConnID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("group marshal")
		return
	}
	for _, cid := range roster {
		if conn, ok := g.lookup(cid); ok {
			_ = conn.TrySend(b)
		}
	}
}

func (g *Gateway) mirrorCtx() (context.Context, context.CancelFunc) {
	// Mirror writes must not be canceled by the connection that
	// triggered them going away mid-teardown.
	return context.WithTimeout(context.Background(), mirrorTimeout)
}
