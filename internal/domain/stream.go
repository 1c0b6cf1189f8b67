// Package domain contains entity types without logic, just meta-data.
package domain

import (
	"errors"
	"time"
)

const (
	MaxStreamIDLen = 64
	MaxTitleLen    = 140
	MaxCategoryLen = 64
)

var (
	ErrStreamExists   = errors.New("stream already live")
	ErrStreamNotFound = errors.New("stream not found")
	ErrNotCreator     = errors.New("not the stream creator")
	ErrNotParticipant = errors.New("not a stream participant")
)

type (
	StreamID string
	ConnID   string
)

// StreamMeta is the caller-supplied descriptive metadata of a stream.
// Immutable after creation.
type StreamMeta struct {
	Owner     string
	Title     string
	Category  string
	Thumbnail string
}

// Validate rejects metadata the registry must never admit.
func (m StreamMeta) Validate() error {
	if m.Owner == "" {
		return errors.New("owner is required")
	}
	if m.Title == "" || len(m.Title) > MaxTitleLen {
		return errors.New("invalid title")
	}
	if m.Category == "" || len(m.Category) > MaxCategoryLen {
		return errors.New("invalid category")
	}
	return nil
}

// StreamInfo is the read-only snapshot view used in broadcasts and APIs.
// ViewerCount is derived from the participant set, never stored redundantly.
type StreamInfo struct {
	ID          StreamID  `json:"id"`
	Owner       string    `json:"owner"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"createdAt"`
	ViewerCount int       `json:"viewerCount"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
}

// FinalStats is the closing summary of a stream captured at teardown,
// handed to the history writer and to stream_ended fan-out.
type FinalStats struct {
	ID           StreamID
	Owner        string
	Title        string
	CategoryID   int64
	StartedAt    time.Time
	EndedAt      time.Time
	TotalViews   int
	MessageCount int
	// Audience is the participant roster at the moment of teardown,
	// used to address the terminal broadcast.
	Audience []ConnID
}
