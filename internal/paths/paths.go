// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
//
// Every per-identity file embeds a filesystem-safe slug of the tracked
// identity, so several daemons (one per identity) can share a data directory.
package paths

import (
	"path/filepath"
	"strings"
	"unicode"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	ConfigFile = "config.toml"
	BinaryName = "presencewatch"
	DataDirRel = ".presencewatch" // relative to $HOME
)

// Per-identity file name parts: <prefix>.<slug><ext>.
const (
	statePrefix    = "state"
	stateExt       = ".json"
	pidPrefix      = "daemon"
	pidExt         = ".pid"
	logPrefix      = BinaryName
	logExt         = ".log"
	activityPrefix = "activity"
	activityExt    = ".csv"
)

// Slug converts an identity (e.g. a gamertag, which may contain spaces) into
// a lowercase file name component. Runs of characters other than letters and
// digits collapse to a single "-". An empty result becomes "default".
func Slug(identity string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(identity)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "default"
	}
	return s
}

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory for
// one tracked identity.
type DataDir struct {
	Root     string
	Identity string
}

func (d DataDir) file(prefix, ext string) string {
	return filepath.Join(d.Root, prefix+"."+Slug(d.Identity)+ext)
}

// Config returns the full path to the shared config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// State returns the full path to the identity's last-known-state file.
func (d DataDir) State() string { return d.file(statePrefix, stateExt) }

// PID returns the full path to the identity's PID file.
func (d DataDir) PID() string { return d.file(pidPrefix, pidExt) }

// Log returns the full path to the identity's log file.
func (d DataDir) Log() string { return d.file(logPrefix, logExt) }

// Activity returns the default path of the identity's CSV activity log.
func (d DataDir) Activity() string { return d.file(activityPrefix, activityExt) }

// Resolve returns p unchanged when absolute, otherwise joined to Root.
// An empty p stays empty.
func (d DataDir) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(d.Root, p)
}
