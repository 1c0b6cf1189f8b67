// Package registry holds the authoritative in-memory truth about live
// streams: which ones exist, who created them and who is watching.
// It owns no external resources; persistence is someone else's mirror.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/soulstream/livecast/internal/domain"
)

type stream struct {
	id           domain.StreamID
	creator      domain.ConnID
	meta         domain.StreamMeta
	categoryID   int64
	createdAt    time.Time
	participants map[domain.ConnID]struct{}
}

func (s *stream) info() domain.StreamInfo {
	return domain.StreamInfo{
		ID:          s.id,
		Owner:       s.meta.Owner,
		Title:       s.meta.Title,
		Category:    s.meta.Category,
		CreatedAt:   s.createdAt,
		ViewerCount: len(s.participants),
		Thumbnail:   s.meta.Thumbnail,
	}
}

func (s *stream) audience() []domain.ConnID {
	out := make([]domain.ConnID, 0, len(s.participants))
	for cid := range s.participants {
		out = append(out, cid)
	}
	return out
}

// Registry is safe for concurrent use. Construct one per process and pass
// it down; state does not survive restarts and is not shared across
// processes, so horizontal scaling needs external coordination.
type Registry struct {
	mu       sync.RWMutex
	streams  map[domain.StreamID]*stream
	messages map[domain.StreamID]int
	now      func() time.Time
}

func New() *Registry {
	return &Registry{
		streams:  make(map[domain.StreamID]*stream),
		messages: make(map[domain.StreamID]int),
		now:      time.Now,
	}
}

// LeaveResult reports the outcome of removing one participant.
type LeaveResult struct {
	Left  bool // the connection was a participant
	Ended bool // the set emptied and the stream was torn down
	Info  domain.StreamInfo
	Stats domain.FinalStats // valid only when Ended
}

// SweepResult is one affected stream from a disconnect sweep.
type SweepResult struct {
	ID         domain.StreamID
	WasCreator bool
	Ended      bool
	Info       domain.StreamInfo
	Stats      domain.FinalStats // valid only when Ended
}

// Create registers a new live stream whose participant set starts as the
// creator alone. The category must already be resolved by the caller.
func (r *Registry) Create(id domain.StreamID, creator domain.ConnID, meta domain.StreamMeta, categoryID int64) (domain.StreamInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[id]; ok {
		return domain.StreamInfo{}, domain.ErrStreamExists
	}
	s := &stream{
		id:           id,
		creator:      creator,
		meta:         meta,
		categoryID:   categoryID,
		createdAt:    r.now(),
		participants: map[domain.ConnID]struct{}{creator: {}},
	}
	r.streams[id] = s
	r.messages[id] = 0
	log.Info().Str("module", "registry").Str("stream", string(id)).Str("creator", string(creator)).Msg("stream registered")
	return s.info(), nil
}

// Drop unregisters a stream without ceremony. Used to roll back a Create
// whose mirror write failed; no stats are produced.
func (r *Registry) Drop(id domain.StreamID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, id)
	delete(r.messages, id)
	log.Info().Str("module", "registry").Str("stream", string(id)).Msg("stream dropped")
}

// Join adds a connection to the participant set. Re-joining is a no-op on
// the set but still succeeds.
func (r *Registry) Join(id domain.StreamID, conn domain.ConnID) (domain.StreamInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return domain.StreamInfo{}, domain.ErrStreamNotFound
	}
	s.participants[conn] = struct{}{}
	return s.info(), nil
}

// Leave removes a connection from the participant set. Emptying the set
// tears the stream down no matter who left.
func (r *Registry) Leave(id domain.StreamID, conn domain.ConnID) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return LeaveResult{}, domain.ErrStreamNotFound
	}
	if _, in := s.participants[conn]; !in {
		return LeaveResult{Info: s.info()}, nil
	}
	if len(s.participants) == 1 {
		// Stats are captured with the departing connection still counted.
		stats := r.teardownLocked(s)
		return LeaveResult{Left: true, Ended: true, Stats: stats}, nil
	}
	delete(s.participants, conn)
	return LeaveResult{Left: true, Info: s.info()}, nil
}

// Stop tears a stream down on behalf of its creator and returns the final
// snapshot for history recording.
func (r *Registry) Stop(id domain.StreamID, requester domain.ConnID) (domain.FinalStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return domain.FinalStats{}, domain.ErrStreamNotFound
	}
	if s.creator != requester {
		return domain.FinalStats{}, domain.ErrNotCreator
	}
	return r.teardownLocked(s), nil
}

// RecordMessage increments the relayed-message counter. Only participants
// may relay.
func (r *Registry) RecordMessage(id domain.StreamID, conn domain.ConnID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return 0, domain.ErrStreamNotFound
	}
	if _, in := s.participants[conn]; !in {
		return 0, domain.ErrNotParticipant
	}
	r.messages[id]++
	return r.messages[id], nil
}

// SweepDisconnected removes a vanished connection from every stream it
// participates in. A stream is torn down when the connection was its
// creator or when the set empties; otherwise it survives with a reduced
// set. All matching streams are processed, not just the first: a
// connection may watch several streams at once.
func (r *Registry) SweepDisconnected(conn domain.ConnID) []SweepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SweepResult
	for id, s := range r.streams {
		if _, in := s.participants[conn]; !in {
			continue
		}
		res := SweepResult{ID: id, WasCreator: s.creator == conn}
		if res.WasCreator || len(s.participants) == 1 {
			res.Ended = true
			res.Stats = r.teardownLocked(s)
		} else {
			delete(s.participants, conn)
			res.Info = s.info()
		}
		out = append(out, res)
	}
	if len(out) > 0 {
		log.Info().Str("module", "registry").Str("conn", string(conn)).Int("streams", len(out)).Msg("disconnect sweep")
	}
	return out
}

// Snapshot returns the full live list, newest first.
func (r *Registry) Snapshot() []domain.StreamInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.StreamInfo, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Creator reports the creating connection of a live stream.
func (r *Registry) Creator(id domain.StreamID) (domain.ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	if !ok {
		return "", false
	}
	return s.creator, true
}

// Participants returns the current participant set of a live stream.
func (r *Registry) Participants(id domain.StreamID) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	if !ok {
		return nil
	}
	return s.audience()
}

func (r *Registry) teardownLocked(s *stream) domain.FinalStats {
	stats := domain.FinalStats{
		ID:           s.id,
		Owner:        s.meta.Owner,
		Title:        s.meta.Title,
		CategoryID:   s.categoryID,
		StartedAt:    s.createdAt,
		EndedAt:      r.now(),
		TotalViews:   len(s.participants),
		MessageCount: r.messages[s.id],
		Audience:     s.audience(),
	}
	delete(r.streams, s.id)
	delete(r.messages, s.id)
	log.Info().Str("module", "registry").Str("stream", string(s.id)).Int("views", stats.TotalViews).Int("messages", stats.MessageCount).Msg("stream torn down")
	return stats
}
