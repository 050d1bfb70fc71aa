package presence

import (
	"log/slog"
	"time"
)

// DefaultOfflineInterrupt is how long an Offline reading may last before the
// session is finalized.
const DefaultOfflineInterrupt = 420 * time.Second

// Detector classifies the change between the last-known state and a new
// snapshot, applying the short-interruption tolerance rule.
type Detector struct {
	// OfflineInterrupt is the interruption tolerance window. Zero means
	// [DefaultOfflineInterrupt]; configuration rejects zero, so the zero value
	// only applies to a Detector built in code.
	OfflineInterrupt time.Duration
}

func (d Detector) window() time.Duration {
	if d.OfflineInterrupt <= 0 {
		return DefaultOfflineInterrupt
	}
	return d.OfflineInterrupt
}

// Step applies cur to k and returns the events to report, in order. All
// mutations of k for one cycle happen here, so the caller can persist k as
// a single atomic update afterwards. now is the cycle's wall-clock time and
// drives the interruption countdown.
func (d Detector) Step(k *Known, cur StatusRecord, now time.Time) []Event {
	var events []Event

	if ev, ok := d.expire(k, now); ok {
		events = append(events, ev)
	}

	if cur.State == Unknown {
		return events
	}

	if !k.Baselined() {
		d.baseline(k, cur)
		return events
	}

	prev := k.Record
	sess := &k.Session

	// An active record persisted without its session (hand-edited or
	// truncated file) reopens one here so the close is still reported.
	if prev.State.Active() && !sess.Open() {
		sess.Start(cur.Time)
		sess.SwitchGame(prev.Game)
		slog.Debug("reopened missing session for active record", "state", prev.State, "game", prev.Game)
	}

	// Close out elapsed time against the previous state and title.
	sess.Advance(cur.Time, prev.State == Online)

	if prev.Same(cur) {
		k.Record.Time = cur.Time
		return events
	}

	prevGame := prev.Game

	switch {
	case prev.State.Active() && cur.State == Offline:
		if sess.Open() {
			sess.Suspend(cur.Time, prev.State)
			slog.Debug("offline interruption started", "since", cur.Time, "game", prevGame)
		}

	case !prev.State.Active() && cur.State.Active():
		if sess.Pending() {
			prevGame = sess.SuspendedGame
			sess.Resume(cur.Time)
			slog.Debug("session resumed within interruption window",
				"online_start", sess.OnlineStart)
		} else {
			sess.Start(cur.Time)
			prevGame = ""
			ev := NewEvent(OnlineOffline, cur.Time)
			ev.State = cur.State
			ev.PrevState = prev.State
			ev.Since = k.Since
			events = append(events, ev)
		}

	case prev.State.Active() && cur.State.Active() && prev.State != cur.State:
		ev := NewEvent(StatusChange, cur.Time)
		ev.State = cur.State
		ev.PrevState = prev.State
		ev.Game = cur.Game
		ev.Since = k.Since
		events = append(events, ev)
	}

	if cur.State.Active() && cur.Game != prevGame {
		sess.SwitchGame(cur.Game)
		ev := NewEvent(GameChange, cur.Time)
		ev.State = cur.State
		ev.Game = cur.Game
		ev.PrevGame = prevGame
		events = append(events, ev)
	}

	if prev.State != cur.State {
		k.Since = cur.Time
	}
	k.Record = cur
	return events
}

// expire finalizes the session when a pending interruption has outlasted the
// tolerance window.
func (d Detector) expire(k *Known, now time.Time) (Event, bool) {
	sess := &k.Session
	if !sess.Pending() || now.Sub(sess.OfflineSince) < d.window() {
		return Event{}, false
	}

	summary := sess.Summarize(sess.OfflineSince)
	ev := NewEvent(OnlineOffline, sess.OfflineSince)
	ev.State = Offline
	ev.PrevState = sess.SuspendedState
	if !ev.PrevState.Active() {
		ev.PrevState = Online
	}
	ev.Game = ""
	ev.PrevGame = sess.SuspendedGame
	ev.Since = sess.OnlineStart
	ev.Summary = &summary

	slog.Debug("interruption window elapsed, session finalized",
		"online_seconds", summary.OnlineSeconds,
		"games_played", summary.GamesPlayed)

	sess.Reset()
	return ev, true
}

// baseline establishes the first confirmed record without emitting events.
func (d Detector) baseline(k *Known, cur StatusRecord) {
	k.Record = cur
	k.Since = cur.Time
	if cur.State.Active() {
		k.Session.Start(cur.Time)
		k.Session.SwitchGame(cur.Game)
	}
}
