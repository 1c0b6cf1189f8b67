package gateway

import (
	"encoding/json"

	"github.com/soulstream/livecast/internal/domain"
)

// Inbound and outbound event names. Every frame carries its event name in
// the envelope "type" field; payload fields sit beside it.
const (
	evCreateStream  = "create_stream"
	evJoinStream    = "join_stream"
	evStopStream    = "stop_stream"
	evLeaveStream   = "leave_stream"
	evStreamMessage = "stream_message"
	evChatMessage   = "chatMessage"
	evSignal        = "signal"

	evStreamsUpdated    = "streams_updated"
	evStreamError       = "streamError"
	evViewerJoined      = "viewer-joined"
	evViewerLeft        = "viewer-left"
	evNewParticipant    = "newParticipant"
	evViewerCountUpdate = "viewer_count_update"
	evStreamEnded       = "stream_ended"
)

type envelope struct {
	Type string `json:"type"`
}

type createStreamPayload struct {
	StreamID  string `json:"streamId"`
	Email     string `json:"email"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Thumbnail string `json:"thumbnailUrl,omitempty"`
}

type joinStreamPayload struct {
	StreamID string `json:"streamId"`
	Email    string `json:"email"`
}

type streamIDPayload struct {
	StreamID string `json:"streamId"`
}

type streamMessagePayload struct {
	StreamID string `json:"streamId"`
	Message  string `json:"message"`
}

type chatMessagePayload struct {
	StreamID  string `json:"streamId"`
	ID        string `json:"id"`
	User      string `json:"user"`
	Text      string `json:"text"`
	IsSystem  bool   `json:"isSystem,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type signalPayload struct {
	To   string          `json:"to"`
	Data json.RawMessage `json:"data"`
}

type streamsUpdated struct {
	Type    string              `json:"type"`
	Streams []domain.StreamInfo `json:"streams"`
}

type streamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type viewerEvent struct {
	Type     string `json:"type"`
	ViewerID string `json:"viewerId"`
}

type newParticipant struct {
	Type        string `json:"type"`
	Email       string `json:"email"`
	ViewerCount int    `json:"viewerCount"`
}

type viewerCountUpdate struct {
	Type        string `json:"type"`
	StreamID    string `json:"streamId"`
	ViewerCount int    `json:"viewerCount"`
}

type streamEnded struct {
	Type     string `json:"type"`
	StreamID string `json:"streamId"`
}

type streamMessageOut struct {
	Type      string `json:"type"`
	StreamID  string `json:"streamId"`
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type chatMessageOut struct {
	Type      string `json:"type"`
	StreamID  string `json:"streamId"`
	ID        string `json:"id"`
	User      string `json:"user"`
	Text      string `json:"text"`
	IsSystem  bool   `json:"isSystem,omitempty"`
	From      string `json:"from"`
	Timestamp int64  `json:"timestamp"`
}

type signalOut struct {
	Type string          `json:"type"`
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}
