// Package presence reconciles polled presence snapshots into confirmed
// transitions and session statistics for a single tracked identity.
//
// The package is pure: it performs no I/O. The polling loop in
// internal/monitor feeds it one [StatusRecord] per cycle together with the
// owned [Known] value loaded by internal/state, and acts on the returned
// [Event] values.
package presence

import (
	"fmt"
	"strings"
	"time"
)

// ///////////////////////////////////////////////
// Presence State
// ///////////////////////////////////////////////

// State is the canonical connectivity state of the tracked identity.
type State int

const (
	// Unknown means no usable information was obtained this cycle.
	Unknown State = iota
	Online
	Away
	Offline
)

// stateNames maps each [State] to its text form.
var stateNames = map[State]string{
	Unknown: "unknown",
	Online:  "online",
	Away:    "away",
	Offline: "offline",
}

// String returns the lowercase name of s.
func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Active reports whether s keeps a session open (Online or Away).
func (s State) Active() bool {
	return s == Online || s == Away
}

// MarshalText encodes s as its lowercase name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a lowercase state name. Unrecognized names decode to
// [Unknown] so that newer files remain loadable.
func (s *State) UnmarshalText(b []byte) error {
	*s = ParseState(string(b))
	return nil
}

// ParseState converts a canonical state name to a [State].
// Returns [Unknown] for anything else.
func ParseState(name string) State {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "online":
		return Online
	case "away":
		return Away
	case "offline":
		return Offline
	default:
		return Unknown
	}
}

// ///////////////////////////////////////////////
// Status Record
// ///////////////////////////////////////////////

// StatusRecord is one normalized snapshot, produced once per poll cycle.
type StatusRecord struct {
	// State is the observed presence.
	State State `json:"state"`
	// Game is the active title name, or empty when no game is running.
	Game string `json:"game,omitempty"`
	// Time is when the snapshot was observed.
	Time time.Time `json:"time,omitzero"`
}

// Same reports whether r and o carry the same presence and game.
func (r StatusRecord) Same(o StatusRecord) bool {
	return r.State == o.State && r.Game == o.Game
}

// ///////////////////////////////////////////////
// Last Known State
// ///////////////////////////////////////////////

// Known is the last-known state of the tracked identity: the latest
// confirmed record, the open session, and whether an error notification is
// outstanding. It is owned by the persistence gateway between cycles and is
// passed explicitly into each cycle.
type Known struct {
	// Record is the most recent confirmed snapshot. A zero Time means no
	// baseline has been established yet.
	Record StatusRecord `json:"record"`
	// Since is when Record.State was first observed.
	Since time.Time `json:"since,omitzero"`
	// Session holds the statistics of the current session.
	Session SessionStats `json:"session"`
	// NotifiedError is true while an ErrorOccurred notification is
	// outstanding and no ErrorResolved has been sent yet.
	NotifiedError bool `json:"notifiedError,omitempty"`
}

// Baselined reports whether a confirmed record has been observed.
func (k *Known) Baselined() bool {
	return !k.Record.Time.IsZero()
}

// Active reports whether the identity is active or inside the interruption
// window of a prior active period. The polling loop uses the short interval
// while this holds.
func (k *Known) Active() bool {
	return k.Record.State.Active() || k.Session.Pending()
}
