package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/soulstream/livecast/internal/domain"
)

func (g *Gateway) handleCreate(cid domain.ConnID, c *wsConn, data []byte) {
	var p createStreamPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("bad create payload")
		g.sendError(c, "bad_payload")
		return
	}
	if p.StreamID == "" || len(p.StreamID) > domain.MaxStreamIDLen {
		g.sendError(c, "invalid stream id")
		return
	}
	meta := domain.StreamMeta{
		Owner:     p.Email,
		Title:     p.Title,
		Category:  p.Category,
		Thumbnail: p.Thumbnail,
	}
	if err := meta.Validate(); err != nil {
		g.sendError(c, err.Error())
		return
	}

	// The category must exist before the stream is admitted.
	ctx, cancelCat := g.mirrorCtx()
	categoryID, err := g.store.EnsureCategory(ctx, p.Category)
	cancelCat()
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Str("category", p.Category).Msg("category resolution failed")
		g.sendError(c, "category unavailable")
		return
	}

	id := domain.StreamID(p.StreamID)
	info, err := g.reg.Create(id, cid, meta, categoryID)
	if err != nil {
		g.sendError(c, "stream already live")
		return
	}

	// A stream without a mirror row would be invisible to fetch-once
	// clients, so a failed insert rolls the registration back.
	ctx, cancelIns := g.mirrorCtx()
	err = g.store.InsertActive(ctx, info, cid, categoryID)
	cancelIns()
	if err != nil {
		g.reg.Drop(id)
		log.Error().Err(err).Str("module", "gateway").Str("stream", p.StreamID).Msg("active mirror insert failed")
		g.sendError(c, "failed to start stream")
		return
	}

	log.Info().Str("module", "gateway").Str("stream", p.StreamID).Str("creator", string(cid)).Msg("stream created")
	g.broadcastAll()
}

func (g *Gateway) handleJoin(cid domain.ConnID, c *wsConn, data []byte) {
	var p joinStreamPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("bad join payload")
		g.sendError(c, "bad_payload")
		return
	}
	id := domain.StreamID(p.StreamID)
	info, err := g.reg.Join(id, cid)
	if err != nil {
		g.sendError(c, "stream not found")
		return
	}

	g.mirrorViewerCount(id, info.ViewerCount)

	if creator, ok := g.reg.Creator(id); ok {
		g.sendTo(creator, viewerEvent{Type: evViewerJoined, ViewerID: string(cid)})
	}
	g.broadcastGroup(g.reg.Participants(id), newParticipant{
		Type:        evNewParticipant,
		Email:       p.Email,
		ViewerCount: info.ViewerCount,
	})
	g.broadcastAll()
}

func (g *Gateway) handleLeave(cid domain.ConnID, c *wsConn, data []byte) {
	var p streamIDPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("bad leave payload")
		g.sendError(c, "bad_payload")
		return
	}
	id := domain.StreamID(p.StreamID)
	res, err := g.reg.Leave(id, cid)
	if err != nil || !res.Left {
		// Leaving a stream one never joined is not an error.
		return
	}
	if res.Ended {
		g.finishStream(res.Stats)
	} else {
		g.mirrorViewerCount(id, res.Info.ViewerCount)
		if creator, ok := g.reg.Creator(id); ok {
			g.sendTo(creator, viewerEvent{Type: evViewerLeft, ViewerID: string(cid)})
		}
		g.broadcastGroup(g.reg.Participants(id), viewerCountUpdate{
			Type:        evViewerCountUpdate,
			StreamID:    p.StreamID,
			ViewerCount: res.Info.ViewerCount,
		})
	}
	g.broadcastAll()
}

func (g *Gateway) handleStop(cid domain.ConnID, c *wsConn, data []byte) {
	var p streamIDPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("bad stop payload")
		g.sendError(c, "bad_payload")
		return
	}
	stats, err := g.reg.Stop(domain.StreamID(p.StreamID), cid)
	switch {
	case errors.Is(err, domain.ErrNotCreator):
		g.sendError(c, "only the creator can stop the stream")
		return
	case err != nil:
		g.sendError(c, "stream not found")
		return
	}
	g.finishStream(stats)
	g.broadcastAll()
}

func (g *Gateway) handleStreamMessage(cid domain.ConnID, c *wsConn, data []byte) {
	var p streamMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("bad message payload")
		g.sendError(c, "bad_payload")
		return
	}
	id := domain.StreamID(p.StreamID)
	if !g.allowMessage(cid, c) {
		return
	}
	if _, err := g.reg.RecordMessage(id, cid); err != nil {
		g.sendRelayError(c, err)
		return
	}
	g.broadcastGroup(g.reg.Participants(id), streamMessageOut{
		Type:      evStreamMessage,
		StreamID:  p.StreamID,
		From:      string(cid),
		Message:   p.Message,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (g *Gateway) handleChatMessage(cid domain.ConnID, c *wsConn, data []byte) {
	var p chatMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("bad chat payload")
		g.sendError(c, "bad_payload")
		return
	}
	id := domain.StreamID(p.StreamID)
	if !g.allowMessage(cid, c) {
		return
	}
	if _, err := g.reg.RecordMessage(id, cid); err != nil {
		g.sendRelayError(c, err)
		return
	}
	g.broadcastGroup(g.reg.Participants(id), chatMessageOut{
		Type:      evChatMessage,
		StreamID:  p.StreamID,
		ID:        p.ID,
		User:      p.User,
		Text:      p.Text,
		IsSystem:  p.IsSystem,
		From:      string(cid),
		Timestamp: time.Now().UnixMilli(),
	})
}

// handleSignal forwards opaque negotiation data point-to-point. The
// registry is not involved and the payload is never inspected.
func (g *Gateway) handleSignal(cid domain.ConnID, c *wsConn, data []byte) {
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("bad signal payload")
		g.sendError(c, "bad_payload")
		return
	}
	g.sendTo(domain.ConnID(p.To), signalOut{Type: evSignal, From: string(cid), Data: p.Data})
}

// handleDisconnect runs after the read pump exits, covering clients that
// vanished without a leave or stop. Every stream the connection was part
// of gets the same teardown-or-update treatment as the explicit paths.
func (g *Gateway) handleDisconnect(cid domain.ConnID) {
	g.limiter.Forget(cid)
	results := g.reg.SweepDisconnected(cid)
	for _, res := range results {
		if res.Ended {
			g.finishStream(res.Stats)
			continue
		}
		g.mirrorViewerCount(res.ID, res.Info.ViewerCount)
		if creator, ok := g.reg.Creator(res.ID); ok {
			g.sendTo(creator, viewerEvent{Type: evViewerLeft, ViewerID: string(cid)})
		}
		g.broadcastGroup(g.reg.Participants(res.ID), viewerCountUpdate{
			Type:        evViewerCountUpdate,
			StreamID:    string(res.ID),
			ViewerCount: res.Info.ViewerCount,
		})
	}
	if len(results) > 0 {
		g.broadcastAll()
	}
}

// finishStream runs the teardown side effects: history row, mirror row
// deletion and the terminal broadcast. The registry has already removed
// the stream, so store failures are logged and never block anything.
func (g *Gateway) finishStream(stats domain.FinalStats) {
	ctx, cancel := g.mirrorCtx()
	defer cancel()
	if err := g.store.InsertHistory(ctx, stats); err != nil {
		log.Error().Err(err).Str("module", "gateway").Str("stream", string(stats.ID)).Msg("history write failed")
	}
	if err := g.store.DeleteActive(ctx, stats.ID); err != nil {
		log.Error().Err(err).Str("module", "gateway").Str("stream", string(stats.ID)).Msg("active mirror delete failed")
	}
	g.broadcastGroup(stats.Audience, streamEnded{Type: evStreamEnded, StreamID: string(stats.ID)})
}

func (g *Gateway) mirrorViewerCount(id domain.StreamID, count int) {
	ctx, cancel := g.mirrorCtx()
	defer cancel()
	if err := g.store.SetViewerCount(ctx, id, count); err != nil {
		log.Error().Err(err).Str("module", "gateway").Str("stream", string(id)).Msg("viewer count mirror failed")
	}
}

func (g *Gateway) sendRelayError(c *wsConn, err error) {
	if errors.Is(err, domain.ErrStreamNotFound) {
		g.sendError(c, "stream not found")
		return
	}
	g.sendError(c, "not a participant")
}

func (g *Gateway) allowMessage(cid domain.ConnID, c *wsConn) bool {
	if g.limiter.Allow(cid) {
		return true
	}
	g.sendError(c, "too many messages")
	return false
}
