package presence

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ///////////////////////////////////////////////
// Raw Snapshot
// ///////////////////////////////////////////////

// RawSnapshot is a poll result in the vocabulary of the external presence
// source, before normalization.
type RawSnapshot struct {
	// State is the source's presence code (e.g. "Online", "Away").
	State string
	// Title is the name of the foreground title, if any.
	Title string
	// Timestamp is the observation time. Accepted forms: nil, int, int64,
	// float64, [json.Number], numeric or RFC 3339 string, [time.Time].
	Timestamp any
}

// ///////////////////////////////////////////////
// Normalizer
// ///////////////////////////////////////////////

// DefaultAliases maps common presence codes to canonical states.
var DefaultAliases = map[string]State{
	"online":         Online,
	"available":      Online,
	"away":           Away,
	"busy":           Away,
	"idle":           Away,
	"offline":        Offline,
	"appear offline": Offline,
}

// Normalizer turns a [RawSnapshot] into a [StatusRecord].
type Normalizer struct {
	// Aliases maps lowercase source codes to canonical states. Nil means
	// [DefaultAliases].
	Aliases map[string]State
	// IgnoreGames holds doublestar patterns for titles that are treated as
	// no game (dashboards, store apps).
	IgnoreGames []string
}

// Normalize maps raw onto the canonical model. Unmapped presence codes
// become [Unknown]; a missing or unparsable timestamp becomes now.
func (n Normalizer) Normalize(raw RawSnapshot, now time.Time) StatusRecord {
	aliases := n.Aliases
	if aliases == nil {
		aliases = DefaultAliases
	}
	state, ok := aliases[strings.ToLower(strings.TrimSpace(raw.State))]
	if !ok {
		state = Unknown
	}

	rec := StatusRecord{
		State: state,
		Time:  parseTimestamp(raw.Timestamp, now),
	}
	if title := strings.TrimSpace(raw.Title); title != "" && !n.ignored(title) {
		rec.Game = title
	}
	return rec
}

// ignored reports whether title matches any ignore pattern.
func (n Normalizer) ignored(title string) bool {
	for _, pattern := range n.IgnoreGames {
		matched, err := doublestar.Match(pattern, title)
		if err != nil {
			slog.Warn("invalid game ignore pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// parseTimestamp converts the supported timestamp forms to a [time.Time].
func parseTimestamp(v any, now time.Time) time.Time {
	switch ts := v.(type) {
	case nil:
		return now
	case time.Time:
		if ts.IsZero() {
			return now
		}
		return ts
	case int:
		return epoch(float64(ts), now)
	case int64:
		return epoch(float64(ts), now)
	case float64:
		return epoch(ts, now)
	case json.Number:
		return parseTimestamp(ts.String(), now)
	case string:
		s := strings.TrimSpace(ts)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epoch(f, now)
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		return now
	default:
		return now
	}
}

// epoch converts seconds since the Unix epoch, with an optional fractional
// part, to a [time.Time]. Non-positive and non-finite values yield now.
func epoch(sec float64, now time.Time) time.Time {
	if sec <= 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return now
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9)))
}
