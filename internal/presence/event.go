package presence

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a [Event].
type EventKind int

const (
	// OnlineOffline marks a session starting or a session being finalized.
	OnlineOffline EventKind = iota + 1
	// StatusChange marks a change between Online and Away.
	StatusChange
	// GameChange marks a change of the active title while active.
	GameChange
	// ErrorOccurred marks the first failed poll of an outage.
	ErrorOccurred
	// ErrorResolved marks the first successful poll after an outage.
	ErrorResolved
	// Test is a manually triggered notification.
	Test
)

var eventKindNames = map[EventKind]string{
	OnlineOffline: "online_offline",
	StatusChange:  "status_change",
	GameChange:    "game_change",
	ErrorOccurred: "error_occurred",
	ErrorResolved: "error_resolved",
	Test:          "test",
}

// String returns the snake_case name of k.
func (k EventKind) String() string {
	if n, ok := eventKindNames[k]; ok {
		return n
	}
	return "unknown"
}

// MarshalText encodes k as its name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name. Unrecognized names decode to zero.
func (k *EventKind) UnmarshalText(b []byte) error {
	*k = 0
	for kind, name := range eventKindNames {
		if name == string(b) {
			*k = kind
			break
		}
	}
	return nil
}

// Event is an ephemeral notification-worthy occurrence produced within one
// cycle. Events are never persisted.
type Event struct {
	// ID is unique per event and lets downstream sinks deduplicate retries.
	ID uuid.UUID
	// Kind selects which fields are meaningful.
	Kind EventKind
	// Time is the observation time that triggered the event.
	Time time.Time

	State     State
	PrevState State
	Game      string
	PrevGame  string

	// Since is when PrevState (or PrevGame) began, used for "was X for"
	// spans. Zero when unknown.
	Since time.Time

	// Summary is set on OnlineOffline events that finalize a session.
	Summary *Summary
	// Err is the failure text for ErrorOccurred.
	Err string
}

// NewEvent returns an event of the given kind with a fresh ID.
func NewEvent(kind EventKind, t time.Time) Event {
	return Event{ID: uuid.New(), Kind: kind, Time: t}
}
