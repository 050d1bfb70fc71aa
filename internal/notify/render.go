package notify

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"tools.zach/dev/presencewatch/internal/presence"
)

// ///////////////////////////////////////////////
// Durations and Dates
// ///////////////////////////////////////////////

// durationUnits are the calendar approximations used by [FormatDuration].
var durationUnits = []struct {
	name    string
	seconds int64
}{
	{"year", 31556952},
	{"month", 2629746},
	{"week", 604800},
	{"day", 86400},
	{"hour", 3600},
	{"minute", 60},
	{"second", 1},
}

// FormatDuration renders d as "2 hours, 5 minutes", keeping at most
// granularity non-zero units. Durations under one second render as
// "0 seconds".
func FormatDuration(d time.Duration, granularity int) string {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return "0 seconds"
	}
	if granularity <= 0 {
		granularity = 1
	}
	var parts []string
	for _, u := range durationUnits {
		v := secs / u.seconds
		if v == 0 {
			continue
		}
		secs -= v * u.seconds
		name := u.name
		if v != 1 {
			name += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", v, name))
	}
	if len(parts) > granularity {
		parts = parts[:granularity]
	}
	return strings.Join(parts, ", ")
}

// FormatRange renders a span such as "Sun 21 Apr 14:09 - 14:15", dropping
// the second date when both ends fall on the same day.
func FormatRange(from, to time.Time) string {
	if from.Year() == to.Year() && from.YearDay() == to.YearDay() {
		return from.Format("Mon 02 Jan 15:04") + " - " + to.Format("15:04")
	}
	return from.Format("Mon 02 Jan 15:04") + " - " + to.Format("Mon 02 Jan 15:04")
}

// formatStamp renders a full timestamp such as "Sun 21 Apr 2024, 15:08:12".
func formatStamp(t time.Time) string {
	return t.Format("Mon 02 Jan 2006, 15:04:05")
}

// ///////////////////////////////////////////////
// Subject and Body
// ///////////////////////////////////////////////

// Subject returns a one-line summary of p.
func Subject(p Payload) string {
	who := "Xbox user " + p.Identity
	switch p.Kind {
	case presence.OnlineOffline, presence.StatusChange:
		s := who + " is now " + p.State.String()
		if p.Summary != nil {
			return s + fmt.Sprintf(" (after %s, was available: %s)",
				FormatDuration(p.Summary.Duration(), 2),
				FormatRange(p.Summary.Start, p.Summary.End))
		}
		if !p.Since.IsZero() && p.Time.After(p.Since) {
			return s + fmt.Sprintf(" (after %s, was %s: %s)",
				FormatDuration(p.Time.Sub(p.Since), 2), p.PrevState,
				FormatRange(p.Since, p.Time))
		}
		return s
	case presence.GameChange:
		switch {
		case p.Game == "":
			return who + " stopped playing " + p.PrevGame
		case p.PrevGame == "":
			return who + " started playing " + p.Game
		default:
			return who + " switched from " + p.PrevGame + " to " + p.Game
		}
	case presence.ErrorOccurred:
		if strings.Contains(p.Error, "auth") {
			return "presencewatch: Xbox auth key error! (user: " + p.Identity + ")"
		}
		return "presencewatch: presence polling failing (user: " + p.Identity + ")"
	case presence.ErrorResolved:
		return "presencewatch: presence polling recovered (user: " + p.Identity + ")"
	case presence.Test:
		return "presencewatch: test notification (user: " + p.Identity + ")"
	default:
		return "presencewatch: " + p.Kind.String() + " (user: " + p.Identity + ")"
	}
}

// Body returns the plain-text message for p, ending with a timestamp line.
func Body(p Payload) string {
	var b strings.Builder
	who := "Xbox user " + p.Identity

	switch p.Kind {
	case presence.OnlineOffline, presence.StatusChange:
		fmt.Fprintf(&b, "%s changed status from %s to %s", who, p.PrevState, p.State)
		if p.Summary == nil && !p.Since.IsZero() && p.Time.After(p.Since) {
			fmt.Fprintf(&b, "\n\nUser was %s for %s (%s)", p.PrevState,
				FormatDuration(p.Time.Sub(p.Since), 3), FormatRange(p.Since, p.Time))
		}
		if p.Game != "" {
			fmt.Fprintf(&b, "\n\nPlaying: %s", p.Game)
		}
		if p.Summary != nil {
			writeSummary(&b, *p.Summary, p.PrevGame)
		}
	case presence.GameChange:
		switch {
		case p.Game == "":
			fmt.Fprintf(&b, "%s stopped playing %s", who, p.PrevGame)
		case p.PrevGame == "":
			fmt.Fprintf(&b, "%s started playing %s", who, p.Game)
		default:
			fmt.Fprintf(&b, "%s changed game from %s to %s", who, p.PrevGame, p.Game)
		}
		fmt.Fprintf(&b, "\n\nStatus: %s", p.State)
	case presence.ErrorOccurred:
		fmt.Fprintf(&b, "Polling presence of %s is failing: %s", p.Identity, p.Error)
		if strings.Contains(p.Error, "auth") {
			b.WriteString("\n\nThe Xbox auth key might not be valid anymore.")
		}
		b.WriteString("\n\nNo further error notifications will be sent until polling recovers.")
	case presence.ErrorResolved:
		fmt.Fprintf(&b, "Polling presence of %s works again.", p.Identity)
	case presence.Test:
		fmt.Fprintf(&b, "This is a test notification for %s.", who)
		if p.State != presence.Unknown {
			fmt.Fprintf(&b, "\n\nCurrent status: %s", p.State)
		}
		if p.Game != "" {
			fmt.Fprintf(&b, "\nPlaying: %s", p.Game)
		}
	default:
		fmt.Fprintf(&b, "%s: %s", who, p.Kind)
	}

	b.WriteString("\n\nTimestamp: ")
	b.WriteString(formatStamp(p.Time))
	return b.String()
}

// writeSummary appends the finalized session statistics.
func writeSummary(b *strings.Builder, s presence.Summary, lastGame string) {
	fmt.Fprintf(b, "\n\nUser was available for %s (%s)",
		FormatDuration(s.Duration(), 3), FormatRange(s.Start, s.End))
	fmt.Fprintf(b, "\nOnline time: %s",
		FormatDuration(time.Duration(s.OnlineSeconds*float64(time.Second)), 3))
	fmt.Fprintf(b, "\nGames played: %d", s.GamesPlayed)
	if lastGame != "" {
		fmt.Fprintf(b, "\nLast game: %s", lastGame)
	}

	type played struct {
		title string
		secs  float64
	}
	var games []played
	for title, secs := range s.PerGame {
		games = append(games, played{title, secs})
	}
	slices.SortFunc(games, func(a, b played) int {
		if c := cmp.Compare(b.secs, a.secs); c != 0 {
			return c
		}
		return strings.Compare(a.title, b.title)
	})
	for _, g := range games {
		fmt.Fprintf(b, "\n  %s: %s", g.title,
			FormatDuration(time.Duration(g.secs*float64(time.Second)), 2))
	}
}
