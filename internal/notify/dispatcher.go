// Package notify turns presence events into outbound notifications.
//
// A [Dispatcher] filters events through the runtime [Toggles] and hands each
// surviving event, rendered as a [Payload], to every configured [Sink]. Sink
// failures are logged and counted but never returned: a broken transport must
// not stall the polling loop.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"tools.zach/dev/presencewatch/internal/metrics"
	"tools.zach/dev/presencewatch/internal/presence"
)

// DefaultTimeout bounds a single sink delivery when neither the sink nor the
// dispatcher sets one.
const DefaultTimeout = 15 * time.Second

// ///////////////////////////////////////////////
// Toggles
// ///////////////////////////////////////////////

// Toggles selects which event kinds are delivered. They can be flipped at
// runtime by signals or a config reload.
type Toggles struct {
	// Presence enables online/offline notifications.
	Presence bool
	// Game enables game change notifications.
	Game bool
	// Status enables every status change, Away included. It implies Presence.
	Status bool
	// Errors enables poll failure and recovery notifications.
	Errors bool
}

// Allows reports whether events of kind k should be delivered.
func (t Toggles) Allows(k presence.EventKind) bool {
	switch k {
	case presence.OnlineOffline:
		return t.Presence || t.Status
	case presence.StatusChange:
		return t.Status
	case presence.GameChange:
		return t.Game
	case presence.ErrorOccurred, presence.ErrorResolved:
		return t.Errors
	case presence.Test:
		return true
	default:
		return false
	}
}

// ///////////////////////////////////////////////
// Payload
// ///////////////////////////////////////////////

// Payload is the transport-neutral form of an event. Webhook and MQTT sinks
// send it as JSON; the email sink renders it as text.
type Payload struct {
	ID        string             `json:"id"`
	Kind      presence.EventKind `json:"kind"`
	Identity  string             `json:"identity"`
	State     presence.State     `json:"state"`
	PrevState presence.State     `json:"prevState"`
	Game      string             `json:"game,omitempty"`
	PrevGame  string             `json:"prevGame,omitempty"`
	Since     time.Time          `json:"since,omitzero"`
	Summary   *presence.Summary  `json:"summary,omitempty"`
	Error     string             `json:"error,omitempty"`
	Time      time.Time          `json:"time"`
}

// NewPayload builds the payload for ev on behalf of identity.
func NewPayload(identity string, ev presence.Event) Payload {
	return Payload{
		ID:        ev.ID.String(),
		Kind:      ev.Kind,
		Identity:  identity,
		State:     ev.State,
		PrevState: ev.PrevState,
		Game:      ev.Game,
		PrevGame:  ev.PrevGame,
		Since:     ev.Since,
		Summary:   ev.Summary,
		Error:     ev.Err,
		Time:      ev.Time,
	}
}

// ///////////////////////////////////////////////
// Sinks
// ///////////////////////////////////////////////

// Sink delivers a payload over one transport.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	// Send delivers p. It must return once ctx is done.
	Send(ctx context.Context, p Payload) error
}

// timeouter is implemented by sinks that carry their own delivery timeout.
type timeouter interface {
	Timeout() time.Duration
}

// SendError records a failed delivery.
type SendError struct {
	Sink string
	Kind presence.EventKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s notification via %s: %v", e.Kind, e.Sink, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ///////////////////////////////////////////////
// Dispatcher
// ///////////////////////////////////////////////

// Dispatcher fans events out to sinks.
type Dispatcher struct {
	// Identity is the display name placed in every payload.
	Identity string
	// Sinks receive every allowed event, in order.
	Sinks []Sink
	// Timeout applies to sinks without their own. Zero means [DefaultTimeout].
	Timeout time.Duration
	// Metrics, when set, counts deliveries.
	Metrics *metrics.Metrics
}

// Dispatch delivers the allowed events to every sink and returns how many
// events passed the toggles. Delivery errors are logged, not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, events []presence.Event, t Toggles) int {
	sent := 0
	for _, ev := range events {
		if !t.Allows(ev.Kind) {
			slog.Debug("notification suppressed by toggles", "kind", ev.Kind)
			continue
		}
		sent++
		if len(d.Sinks) == 0 {
			slog.Debug("no notification sinks configured", "kind", ev.Kind)
			continue
		}
		p := NewPayload(d.Identity, ev)
		for _, s := range d.Sinks {
			err := d.send(ctx, s, p)
			d.Metrics.Notification(ev.Kind.String(), s.Name(), err)
			if err != nil {
				slog.Warn("notification failed", "sink", s.Name(), "kind", ev.Kind, "error", err)
				continue
			}
			slog.Info("notification sent", "sink", s.Name(), "kind", ev.Kind, "id", p.ID)
		}
	}
	return sent
}

// send runs one delivery under the sink's timeout.
func (d *Dispatcher) send(ctx context.Context, s Sink, p Payload) error {
	timeout := d.Timeout
	if to, ok := s.(timeouter); ok && to.Timeout() > 0 {
		timeout = to.Timeout()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.Send(sctx, p); err != nil {
		return &SendError{Sink: s.Name(), Kind: p.Kind, Err: err}
	}
	return nil
}

// Close releases sinks that hold connections.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, s := range d.Sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s sink: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// ///////////////////////////////////////////////
// Error Deduplication
// ///////////////////////////////////////////////

// TrackPollResult applies the error deduplication rule to one poll outcome.
// notified is whether an ErrorOccurred is outstanding. It returns the event
// to dispatch, if any, and the new value of the flag.
//
// The first failure of an outage yields ErrorOccurred, later failures yield
// nothing, and the first success afterwards yields ErrorResolved.
func TrackPollResult(notified bool, pollErr error, now time.Time) (*presence.Event, bool) {
	switch {
	case pollErr != nil && !notified:
		ev := presence.NewEvent(presence.ErrorOccurred, now)
		ev.Err = pollErr.Error()
		return &ev, true
	case pollErr != nil:
		return nil, true
	case notified:
		ev := presence.NewEvent(presence.ErrorResolved, now)
		return &ev, false
	default:
		return nil, false
	}
}
