package session

import (
	"github.com/google/uuid"

	"github.com/arach/scout/internal/merge"
)

// EventKind enumerates the event-stream payload kinds from spec.md §6.
type EventKind int

const (
	EventRecordingStateChanged EventKind = iota
	EventAudioLevel
	EventSegmentAppended
	EventSegmentReplaced
	EventTranscriptFinalized
	EventWarning
	EventFailed
)

// Event is the single struct-with-Kind sum type pushed to every subscriber.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind      EventKind
	SessionID uuid.UUID

	State State // EventRecordingStateChanged

	RMS float32 // EventAudioLevel

	Segment merge.Segment // EventSegmentAppended / EventSegmentReplaced (New)
	OldID   uint64        // EventSegmentReplaced

	Text     string         // EventTranscriptFinalized
	Metadata map[string]any // EventTranscriptFinalized

	WarnKind   string // EventWarning
	WarnDetail string // EventWarning

	ErrKind   ErrorKind // EventFailed
	ErrDetail string    // EventFailed
}
