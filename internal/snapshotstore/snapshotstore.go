// Package snapshotstore persists and restores the materialized state as
// a single versioned file (spec.md §4.2), written atomically so a crash
// mid-save never corrupts the prior snapshot.
package snapshotstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/opus-domini/sentinel/internal/state"
)

// CurrentVersion is the on-disk schema version this build writes.
const CurrentVersion = 1

// Snapshot is the file format written to snapshot.json.
type Snapshot struct {
	Version   int          `json:"v"`
	Seq       uint64       `json:"seq"`
	CreatedAt int64        `json:"createdAt"`
	State     *state.State `json:"state"`
}

// MigrateFunc upgrades a raw decoded document from one version to the
// next; migrations are chained until CurrentVersion is reached.
type MigrateFunc func(raw map[string]any) (map[string]any, error)

// migrations is the version->upgrade registry, keyed by source version.
// Empty for now: this is the first schema version the engine has ever
// shipped.
var migrations = map[int]MigrateFunc{}

// Store manages snapshot.json and its rotating backups under dir.
type Store struct {
	path    string
	backups [3]string
}

// New returns a Store rooted at dir (the daemon state directory).
func New(dir string) *Store {
	return &Store{
		path: filepath.Join(dir, "snapshot.json"),
		backups: [3]string{
			filepath.Join(dir, "snapshot.bak"),
			filepath.Join(dir, "snapshot.bak.2"),
			filepath.Join(dir, "snapshot.bak.3"),
		},
	}
}

// Save writes st as the current snapshot via write-tmp-then-rename, the
// only write path that can never leave a half-written file in place.
func (s *Store) Save(seq uint64, createdAtMS int64, st *state.State) error {
	snap := Snapshot{Version: CurrentVersion, Seq: seq, CreatedAt: createdAtMS, State: st}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// Load reads snapshot.json, running it through the migration chain up
// to CurrentVersion. A missing file returns (nil, nil): the caller
// should rebuild from WAL. A snapshot newer than CurrentVersion is a
// fatal error (spec.md §4.2): the daemon binary is older than the data
// it's looking at and must not guess at its shape.
//
// On deserialization failure the corrupt file is rotated into the
// backup chain and (nil, nil) is returned so the daemon falls back to a
// full WAL replay, per spec.md §7 "Snapshot corruption".
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("snapshot corrupt, rotating to backup", "err", err)
		s.rotateCorrupt()
		return nil, nil
	}

	version, _ := raw["v"].(float64)
	srcVersion := int(version)
	if srcVersion > CurrentVersion {
		return nil, fmt.Errorf("snapshot version %d newer than daemon schema version %d", srcVersion, CurrentVersion)
	}
	for v := srcVersion; v < CurrentVersion; v++ {
		migrate, ok := migrations[v]
		if !ok {
			return nil, fmt.Errorf("no migration registered from snapshot version %d", v)
		}
		raw, err = migrate(raw)
		if err != nil {
			return nil, fmt.Errorf("migrate snapshot v%d->v%d: %w", v, v+1, err)
		}
	}

	upgraded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("remarshal migrated snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(upgraded, &snap); err != nil {
		slog.Warn("snapshot corrupt after migration, rotating to backup", "err", err)
		s.rotateCorrupt()
		return nil, nil
	}
	return &snap, nil
}

// rotateCorrupt shifts snapshot.bak -> .bak.2 -> .bak.3 (evicting the
// oldest) and moves the corrupt snapshot.json into snapshot.bak,
// keeping at most 3 backups per spec.md §4.2.
func (s *Store) rotateCorrupt() {
	_ = os.Remove(s.backups[2])
	_ = os.Rename(s.backups[1], s.backups[2])
	_ = os.Rename(s.backups[0], s.backups[1])
	if err := os.Rename(s.path, s.backups[0]); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to rotate corrupt snapshot", "err", err)
	}
}
