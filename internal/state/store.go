// Package state persists the last-known state of the tracked identity.
//
// The [Store] is the sole owner of the on-disk record. Loading never fails
// hard: a missing, unreadable, corrupted, or foreign file yields "no prior
// state" so the polling loop always starts. Saving goes through
// [atomicfile.WriteVerified], so a crash mid-write leaves either the old file
// or the new one, never a half-written record.
//
// The file schema is versioned through the [migrate.State] registry. Version
// 1 is the legacy two-element array ([unix_ts, "status"]) kept by older
// monitors; version 2 is the object form below.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"tools.zach/dev/presencewatch/internal/atomicfile"
	"tools.zach/dev/presencewatch/internal/migrate"
	"tools.zach/dev/presencewatch/internal/presence"
)

// ///////////////////////////////////////////////
// File Schema
// ///////////////////////////////////////////////

// File is the on-disk form of the last-known state.
type File struct {
	// Version is the schema version. See [migrate.State].
	Version int `json:"$version"`
	// Identity is the tracked identity the record belongs to.
	Identity string `json:"identity"`
	// Saved is when the record was written.
	Saved time.Time `json:"saved,omitzero"`
	// Known is the last-known state itself.
	Known presence.Known `json:"known"`
}

// PersistError reports a failed save. The polling loop logs it and continues
// with the in-memory state.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("state %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// ///////////////////////////////////////////////
// Store
// ///////////////////////////////////////////////

// Store loads and saves the last-known state for one identity.
type Store struct {
	// Path is the state file location.
	Path string
	// Identity is written into every saved record and checked on load.
	Identity string
	// Now returns the save timestamp. Nil means [time.Now].
	Now func() time.Time
}

// NewStore returns a Store for identity at path.
func NewStore(path, identity string) *Store {
	return &Store{Path: path, Identity: identity}
}

// Load reads the state file. It returns nil when there is no usable prior
// state; the reason is logged. Corrupted files are copied to
// "<path>.corrupted" before being ignored so the next save can overwrite
// them without losing evidence.
func (s *Store) Load() *presence.Known {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("state file unreadable, starting fresh", "path", s.Path, "error", err)
		}
		return nil
	}

	f, err := decode(data)
	if err != nil {
		s.quarantine(data, err)
		return nil
	}

	if f.Identity != "" && s.Identity != "" && f.Identity != s.Identity {
		slog.Warn("state file belongs to another identity, ignoring",
			"path", s.Path, "file_identity", f.Identity, "identity", s.Identity)
		return nil
	}
	if f.Version > migrate.State.CurrentVersion {
		slog.Warn("future state version detected, loading known fields",
			"version", f.Version, "current", migrate.State.CurrentVersion)
	}

	k := f.Known
	return &k
}

// Save writes k atomically. The written bytes are decoded again before the
// rename so an unreadable record never replaces a good one.
func (s *Store) Save(k *presence.Known) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	f := File{
		Version:  migrate.State.CurrentVersion,
		Identity: s.Identity,
		Saved:    now().UTC(),
		Known:    *k,
	}
	data, err := encode(&f)
	if err != nil {
		return &PersistError{Op: "encode", Path: s.Path, Err: err}
	}
	if err := atomicfile.WriteVerified(s.Path, data, 0o600, verifyRecord); err != nil {
		return &PersistError{Op: "write", Path: s.Path, Err: err}
	}
	return nil
}

// quarantine backs up a corrupted file next to the original.
func (s *Store) quarantine(data []byte, cause error) {
	corruptedPath := s.Path + ".corrupted"
	slog.Warn("corrupted state file, backing up and starting fresh",
		"path", s.Path, "backup", corruptedPath, "error", cause)
	if err := os.WriteFile(corruptedPath, data, 0o600); err != nil {
		slog.Warn("failed to write backup", "path", corruptedPath, "error", err)
	}
}

// ///////////////////////////////////////////////
// Encoding
// ///////////////////////////////////////////////

// encode marshals f with stable indentation so that re-saving an unmodified
// record yields identical bytes.
func encode(f *File) ([]byte, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling state: %w", err)
	}
	return append(data, '\n'), nil
}

// decode parses any supported schema version into a [File].
func decode(data []byte) (*File, error) {
	version, err := PeekVersion(data)
	if err != nil {
		return nil, err
	}
	data, _, err = migrate.State.Upgrade(data, version)
	if err != nil {
		return nil, fmt.Errorf("state migration failed: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	if f.Version == 0 {
		f.Version = migrate.State.CurrentVersion
	}
	return &f, nil
}

// verifyRecord checks that freshly written bytes decode as a state record.
func verifyRecord(data []byte) error {
	_, err := decode(data)
	return err
}

// PeekVersion returns the schema version of raw state bytes. A JSON array is
// the legacy version 1; an object without "$version" is treated as current.
// Returns an error if the data is not a JSON array or object.
func PeekVersion(data []byte) (int, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return 0, errors.New("empty state file")
	}
	switch trimmed[0] {
	case '[':
		return 1, nil
	case '{':
		var partial struct {
			Version int `json:"$version"`
		}
		if err := json.Unmarshal(trimmed, &partial); err != nil {
			return 0, fmt.Errorf("peeking version: %w", err)
		}
		if partial.Version == 0 {
			return migrate.State.CurrentVersion, nil
		}
		return partial.Version, nil
	default:
		return 0, fmt.Errorf("peeking version: unexpected leading byte %q", trimmed[0])
	}
}
