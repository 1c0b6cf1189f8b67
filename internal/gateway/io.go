package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/soulstream/livecast/internal/domain"
)

const writeWait = 5 * time.Second

func (g *Gateway) writePump(ctx context.Context, c *wsConn) {
	ping := time.NewTicker(g.cfg.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "gateway").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "gateway").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "gateway").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "gateway").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "gateway").Msg("writePump write error")
				return
			}
		}
	}
}

func (g *Gateway) readPump(ctx context.Context, cancel context.CancelFunc, cid domain.ConnID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "gateway").Str("conn", string(cid)).Msg("readPump closing")
		cancel()
		current := g.unregister(cid, c)
		c.Close()
		if current {
			g.handleDisconnect(cid)
		}
	}()

	if g.cfg.ReadLimit > 0 {
		c.conn.SetReadLimit(g.cfg.ReadLimit)
	}
	pongWait := g.cfg.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "gateway").Str("conn", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "gateway").Str("conn", string(cid)).Msg("readPump read error")
				return
			}
			g.dispatch(cid, c, data)
		}
	}
}

func (g *Gateway) dispatch(cid domain.ConnID, c *wsConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("bad json")
		g.sendError(c, "bad_payload")
		return
	}

	switch env.Type {
	case evCreateStream:
		g.handleCreate(cid, c, data)
	case evJoinStream:
		g.handleJoin(cid, c, data)
	case evStopStream:
		g.handleStop(cid, c, data)
	case evLeaveStream:
		g.handleLeave(cid, c, data)
	case evStreamMessage:
		g.handleStreamMessage(cid, c, data)
	case evChatMessage:
		g.handleChatMessage(cid, c, data)
	case evSignal:
		g.handleSignal(cid, c, data)
	default:
		log.Warn().Str("module", "gateway").Str("type", env.Type).Msg("unknown event")
	}
}
