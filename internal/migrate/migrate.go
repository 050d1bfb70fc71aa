// Package migrate upgrades versioned on-disk data (the config TOML and the
// per-identity state JSON) one schema version at a time.
package migrate

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
)

// Migration upgrades data from the previous schema version to Version.
type Migration struct {
	Version     int
	Description string
	Upgrade     func(data []byte) ([]byte, error)
}

// Run applies, in version order, every migration newer than fromVersion.
// It returns the upgraded data and the last version reached. On failure the
// version is the last one that succeeded.
func Run(data []byte, fromVersion int, migrations []Migration) ([]byte, int, error) {
	ordered := slices.Clone(migrations)
	slices.SortStableFunc(ordered, func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})

	version := fromVersion
	for _, m := range ordered {
		if m.Version <= version {
			continue
		}
		slog.Info("applying migration", "from", version, "to", m.Version, "description", m.Description)
		out, err := m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		data, version = out, m.Version
	}
	return data, version, nil
}

// NeedsMigration reports whether data written at fileVersion has to be
// rewritten: its version differs from currentVersion, a registered migration
// is newer, or force is set and any migration exists.
func NeedsMigration(fileVersion, currentVersion int, force bool, migrations []Migration) bool {
	if fileVersion != currentVersion {
		return true
	}
	return slices.ContainsFunc(migrations, func(m Migration) bool {
		return force || fileVersion < m.Version
	})
}
