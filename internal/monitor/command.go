package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"tools.zach/dev/presencewatch/internal/notify"
	"tools.zach/dev/presencewatch/internal/presence"
)

// CommandKind selects the effect of a [Command].
type CommandKind int

const (
	// TogglePresence flips online/offline notifications.
	TogglePresence CommandKind = iota + 1
	// ToggleGame flips game change notifications.
	ToggleGame
	// ToggleStatus flips full status notifications, Away included.
	ToggleStatus
	// SendTest dispatches a test notification through every sink.
	SendTest
	// AdjustOnline changes the active polling interval by Delta.
	AdjustOnline
	// AdjustOffline changes the inactive polling interval by Delta.
	AdjustOffline
	// SetToggles replaces all toggles, e.g. after a config reload.
	SetToggles
)

var commandNames = map[CommandKind]string{
	TogglePresence: "toggle_presence",
	ToggleGame:     "toggle_game",
	ToggleStatus:   "toggle_status",
	SendTest:       "send_test",
	AdjustOnline:   "adjust_online",
	AdjustOffline:  "adjust_offline",
	SetToggles:     "set_toggles",
}

func (k CommandKind) String() string {
	if n, ok := commandNames[k]; ok {
		return n
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is a runtime control request. Commands are applied between cycles.
type Command struct {
	Kind CommandKind
	// Delta is the interval change for AdjustOnline and AdjustOffline.
	Delta time.Duration
	// Toggles is the replacement set for SetToggles.
	Toggles notify.Toggles
}

// apply executes cmd against the engine's settings. SendTest dispatches
// immediately.
func (e *Engine) apply(cmd Command) {
	s := &e.Settings
	switch cmd.Kind {
	case TogglePresence:
		s.Toggles.Presence = !s.Toggles.Presence
	case ToggleGame:
		s.Toggles.Game = !s.Toggles.Game
	case ToggleStatus:
		s.Toggles.Status = !s.Toggles.Status
	case SetToggles:
		s.Toggles = cmd.Toggles
	case AdjustOnline:
		s.OnlineInterval = adjust(s.OnlineInterval, cmd.Delta)
		slog.Info("polling interval changed", "state", "online", "interval", s.OnlineInterval)
		return
	case AdjustOffline:
		s.OfflineInterval = adjust(s.OfflineInterval, cmd.Delta)
		slog.Info("polling interval changed", "state", "offline", "interval", s.OfflineInterval)
		return
	case SendTest:
		e.sendTest()
		return
	default:
		slog.Warn("unknown command ignored", "command", cmd.Kind)
		return
	}
	slog.Info("notification toggles changed",
		"presence", s.Toggles.Presence,
		"game", s.Toggles.Game,
		"status", s.Toggles.Status,
		"errors", s.Toggles.Errors)
}

// adjust returns cur+delta, or cur when the result would not be positive.
func adjust(cur, delta time.Duration) time.Duration {
	if next := cur + delta; next > 0 {
		return next
	}
	return cur
}

// sendTest dispatches a test notification carrying the last known state.
func (e *Engine) sendTest() {
	ev := presence.NewEvent(presence.Test, e.now())
	if e.known != nil {
		ev.State = e.known.Record.State
		ev.Game = e.known.Record.Game
		ev.Since = e.known.Since
	}
	e.Notifier.Dispatch(e.workCtx(), []presence.Event{ev}, e.Toggles)
}
