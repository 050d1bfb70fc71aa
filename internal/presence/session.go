package presence

import (
	"maps"
	"time"
)

// ///////////////////////////////////////////////
// Session Stats
// ///////////////////////////////////////////////

// SessionStats is the mutable aggregate for the current session. The zero
// value is an empty, closed session.
type SessionStats struct {
	// OnlineStart is when the session began. Zero when no session is open.
	OnlineStart time.Time `json:"onlineStart,omitzero"`
	// OnlineSeconds is the time spent Online during this session, excluding
	// interruption gaps and Away periods.
	OnlineSeconds float64 `json:"onlineSeconds"`
	// GamesPlayed counts game starts within the session.
	GamesPlayed int `json:"gamesPlayed"`
	// PerGame maps title names to seconds played.
	PerGame map[string]float64 `json:"perGame,omitempty"`

	// LastTick is the time up to which OnlineSeconds has been accumulated.
	LastTick time.Time `json:"lastTick,omitzero"`
	// Game is the title whose bucket receives elapsed time.
	Game string `json:"game,omitempty"`

	// OfflineSince is the candidate offline start of a pending interruption.
	// Zero when no interruption is pending.
	OfflineSince time.Time `json:"offlineSince,omitzero"`
	// SuspendedGame is the title that was active when the interruption began.
	SuspendedGame string `json:"suspendedGame,omitempty"`
	// SuspendedState is the active state the interruption started from.
	SuspendedState State `json:"suspendedState,omitzero"`
}

// Totals is the pair of session counters reported per activity row.
type Totals struct {
	OnlineSeconds float64
	GamesPlayed   int
}

// Summary is the read-only result of a finalized session.
type Summary struct {
	Start         time.Time          `json:"start"`
	End           time.Time          `json:"end"`
	OnlineSeconds float64            `json:"onlineSeconds"`
	GamesPlayed   int                `json:"gamesPlayed"`
	PerGame       map[string]float64 `json:"perGame,omitempty"`
}

// Totals returns the finished session's counters.
func (s Summary) Totals() Totals {
	return Totals{OnlineSeconds: s.OnlineSeconds, GamesPlayed: s.GamesPlayed}
}

// Duration returns the wall-clock span of the session.
func (s Summary) Duration() time.Duration {
	if s.End.Before(s.Start) {
		return 0
	}
	return s.End.Sub(s.Start)
}

// Open reports whether a session is in progress.
func (s *SessionStats) Open() bool {
	return !s.OnlineStart.IsZero()
}

// Totals returns the session-so-far counters.
func (s *SessionStats) Totals() Totals {
	return Totals{OnlineSeconds: s.OnlineSeconds, GamesPlayed: s.GamesPlayed}
}

// Pending reports whether an offline interruption is being tolerated.
func (s *SessionStats) Pending() bool {
	return !s.OfflineSince.IsZero()
}

// Start resets s and opens a new session at t.
func (s *SessionStats) Start(t time.Time) {
	*s = SessionStats{
		OnlineStart: t,
		LastTick:    t,
	}
}

// Advance accumulates the time elapsed since the last tick. When online is
// false (the previous effective state was not Online) the elapsed time is
// skipped. A clock that moved backwards counts as zero elapsed time.
func (s *SessionStats) Advance(now time.Time, online bool) {
	if !s.Open() {
		return
	}
	elapsed := now.Sub(s.LastTick).Seconds()
	if s.LastTick.IsZero() || elapsed < 0 {
		elapsed = 0
	}
	if online && elapsed > 0 {
		s.OnlineSeconds += elapsed
		if s.Game != "" {
			if s.PerGame == nil {
				s.PerGame = make(map[string]float64)
			}
			s.PerGame[s.Game] += elapsed
		}
	}
	s.LastTick = now
}

// SwitchGame makes title the active game. Starting a non-empty title that
// differs from the current one counts as a game played. Callers must
// [SessionStats.Advance] first so the previous title receives its time.
func (s *SessionStats) SwitchGame(title string) {
	if title == s.Game {
		return
	}
	if title != "" {
		s.GamesPlayed++
		if s.PerGame == nil {
			s.PerGame = make(map[string]float64)
		}
		if _, ok := s.PerGame[title]; !ok {
			s.PerGame[title] = 0
		}
	}
	s.Game = title
}

// Suspend marks the beginning of an offline interruption at t, leaving the
// active state from.
func (s *SessionStats) Suspend(t time.Time, from State) {
	s.OfflineSince = t
	s.SuspendedState = from
	s.SuspendedGame = s.Game
	s.Game = ""
}

// Resume ends a pending interruption at t. The gap is not counted: the tick
// origin moves to t while OnlineStart is left untouched. The suspended title
// becomes active again so that an unchanged game does not count twice.
func (s *SessionStats) Resume(t time.Time) {
	s.OfflineSince = time.Time{}
	s.Game = s.SuspendedGame
	s.SuspendedGame = ""
	s.SuspendedState = Unknown
	s.LastTick = t
}

// Summarize returns a copy of the session statistics ending at end.
func (s *SessionStats) Summarize(end time.Time) Summary {
	return Summary{
		Start:         s.OnlineStart,
		End:           end,
		OnlineSeconds: s.OnlineSeconds,
		GamesPlayed:   s.GamesPlayed,
		PerGame:       maps.Clone(s.PerGame),
	}
}

// Reset clears the session.
func (s *SessionStats) Reset() {
	*s = SessionStats{}
}
