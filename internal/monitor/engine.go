// Package monitor runs the polling loop: poll, normalize, detect, notify,
// persist, log, sleep.
//
// The [Engine] owns the last-known state for the lifetime of the loop. It is
// loaded once from the [Store] at startup, mutated only inside a cycle, and
// written back after every cycle that changed it. Runtime control arrives as
// [Command] values and is applied between cycles.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"tools.zach/dev/presencewatch/internal/metrics"
	"tools.zach/dev/presencewatch/internal/notify"
	"tools.zach/dev/presencewatch/internal/presence"
)

// MinInterval is the shortest sleep between cycles.
const MinInterval = time.Second

// ///////////////////////////////////////////////
// Collaborators
// ///////////////////////////////////////////////

// Poller fetches one raw presence snapshot.
type Poller interface {
	Poll(ctx context.Context) (presence.RawSnapshot, error)
}

// Store loads and saves the last-known state.
type Store interface {
	// Load returns nil when no usable prior state exists.
	Load() *presence.Known
	Save(k *presence.Known) error
}

// Notifier delivers events that pass the toggles.
type Notifier interface {
	Dispatch(ctx context.Context, events []presence.Event, t notify.Toggles) int
}

// Recorder appends confirmed transitions to an activity log.
type Recorder interface {
	Append(rec presence.StatusRecord, t presence.Totals) error
}

// ///////////////////////////////////////////////
// Engine
// ///////////////////////////////////////////////

// Settings are the runtime-adjustable knobs of the loop.
type Settings struct {
	// OnlineInterval is used while the identity is active or an
	// interruption is pending.
	OnlineInterval time.Duration
	// OfflineInterval is used otherwise.
	OfflineInterval time.Duration
	// PollTimeout bounds a single poll. Zero means no extra bound.
	PollTimeout time.Duration
	// AliveInterval is how often an alive line is logged while offline.
	// Zero disables it.
	AliveInterval time.Duration
	Toggles       notify.Toggles
}

// Engine is the single polling loop for one identity.
type Engine struct {
	Poller     Poller
	Normalizer presence.Normalizer
	Detector   presence.Detector
	Store      Store
	Notifier   Notifier
	// Activity is optional.
	Activity Recorder
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time

	Settings

	known     *presence.Known
	ctx       context.Context
	lastAlive time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// workCtx is the context for cycle work. It survives cancellation of the
// Run context so an in-flight cycle always completes.
func (e *Engine) workCtx() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// Known returns the current last-known state. It must not be called while
// Run is executing.
func (e *Engine) Known() *presence.Known {
	return e.known
}

// load reads the prior state once.
func (e *Engine) load() {
	if e.known != nil {
		return
	}
	e.known = e.Store.Load()
	if e.known == nil {
		slog.Info("no prior state, starting fresh")
		e.known = &presence.Known{}
		return
	}
	slog.Info("loaded prior state",
		"state", e.known.Record.State,
		"game", e.known.Record.Game,
		"session_open", e.known.Session.Open())
}

// Interval returns the sleep before the next cycle.
func (e *Engine) Interval() time.Duration {
	d := e.OfflineInterval
	if e.known != nil && e.known.Active() {
		d = e.OnlineInterval
	}
	return max(d, MinInterval)
}

// Run polls until ctx is cancelled. Pending commands are applied at the top
// of each cycle and while sleeping. It returns ctx.Err() after finishing the
// cycle in progress.
func (e *Engine) Run(ctx context.Context, commands <-chan Command) error {
	e.ctx = context.WithoutCancel(ctx)
	e.load()
	e.lastAlive = e.now()

	for {
		commands = e.drain(commands)
		e.Cycle()
		if err := ctx.Err(); err != nil {
			return err
		}

		timer := time.NewTimer(e.Interval())
	sleep:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case cmd, ok := <-commands:
				if !ok {
					commands = nil
					continue
				}
				e.apply(cmd)
			case <-timer.C:
				break sleep
			}
		}
	}
}

// drain applies every command already queued. A closed channel is returned
// as nil so later selects ignore it.
func (e *Engine) drain(commands <-chan Command) <-chan Command {
	for {
		select {
		case cmd, ok := <-commands:
			if !ok {
				return nil
			}
			e.apply(cmd)
		default:
			return commands
		}
	}
}

// Cycle performs one poll and everything that follows from it.
func (e *Engine) Cycle() {
	e.load()
	ctx := e.workCtx()
	now := e.now()
	k := e.known

	before := fingerprint(k)
	prev := k.Record

	rec, pollErr := e.poll(ctx, now)

	events := e.Detector.Step(k, rec, now)

	if ev, notified := notify.TrackPollResult(k.NotifiedError, pollErr, now); ev != nil || notified != k.NotifiedError {
		k.NotifiedError = notified
		if ev != nil {
			events = append([]presence.Event{*ev}, events...)
		}
	}

	for _, ev := range events {
		e.Metrics.Transition(ev.Kind.String())
		slog.Info("transition", "kind", ev.Kind, "state", ev.State, "prev_state", ev.PrevState,
			"game", ev.Game, "prev_game", ev.PrevGame)
	}
	if len(events) > 0 {
		e.Notifier.Dispatch(ctx, events, e.Toggles)
	}

	if !bytes.Equal(before, fingerprint(k)) {
		if err := e.Store.Save(k); err != nil {
			e.Metrics.PersistFailure()
			slog.Warn("failed to persist state", "error", err)
		}
	}

	if e.Activity != nil {
		for _, row := range activityRows(prev, k, events) {
			if err := e.Activity.Append(row.rec, row.totals); err != nil {
				slog.Warn("failed to write activity log", "error", err)
			}
		}
	}

	e.Metrics.Presence(int(k.Record.State), k.Session.OnlineSeconds)
	e.aliveCheck(now, prev.State != k.Record.State)
}

// poll fetches and normalizes one snapshot. Failures yield an Unknown
// record stamped with now.
func (e *Engine) poll(ctx context.Context, now time.Time) (presence.StatusRecord, error) {
	pctx := ctx
	if e.PollTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, e.PollTimeout)
		defer cancel()
	}

	raw, err := e.Poller.Poll(pctx)
	if err != nil {
		e.Metrics.Poll(metrics.PollError)
		slog.Warn("presence poll failed", "error", err, "retry_in", e.Interval())
		return presence.StatusRecord{State: presence.Unknown, Time: now}, err
	}

	rec := e.Normalizer.Normalize(raw, now)
	if rec.State == presence.Unknown {
		e.Metrics.Poll(metrics.PollUnknown)
		slog.Warn("unrecognized presence state", "state", raw.State)
	} else {
		e.Metrics.Poll(metrics.PollOK)
	}
	return rec, nil
}

// aliveCheck logs a heartbeat while the identity stays inactive.
func (e *Engine) aliveCheck(now time.Time, changed bool) {
	if changed || e.known.Active() {
		e.lastAlive = now
		return
	}
	if e.AliveInterval > 0 && now.Sub(e.lastAlive) >= e.AliveInterval {
		slog.Info("alive check", "state", e.known.Record.State, "since", e.known.Since)
		e.lastAlive = now
	}
}

type activityRow struct {
	rec    presence.StatusRecord
	totals presence.Totals
}

// activityRows returns the activity rows for one cycle. A finalized session
// is reported with its summary totals, since the detector has already reset
// the live counters. When a new session opened in the same cycle, the
// finalization gets its own Offline row ahead of the current one.
func activityRows(prev presence.StatusRecord, k *presence.Known, events []presence.Event) []activityRow {
	var closed *presence.Summary
	var closedAt time.Time
	changed := prev.State != k.Record.State || prev.Game != k.Record.Game
	for _, ev := range events {
		if ev.Kind != presence.OnlineOffline {
			continue
		}
		changed = true
		if ev.Summary != nil {
			closed, closedAt = ev.Summary, ev.Time
		}
	}
	if !changed {
		return nil
	}

	cur := activityRow{rec: k.Record, totals: k.Session.Totals()}
	if closed == nil {
		return []activityRow{cur}
	}
	if !k.Record.State.Active() {
		cur.totals = closed.Totals()
		return []activityRow{cur}
	}
	final := activityRow{
		rec:    presence.StatusRecord{State: presence.Offline, Time: closedAt},
		totals: closed.Totals(),
	}
	return []activityRow{final, cur}
}

// fingerprint encodes the persisted parts of k, ignoring the observation
// time of an unchanged record.
func fingerprint(k *presence.Known) []byte {
	c := *k
	c.Record.Time = time.Time{}
	b, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	return b
}
