// Package storage persists the aggregated timesheet between the fetch and
// upload stages.
//
// The snapshot is only written after a fully successful fetch+aggregate pass
// and only removed after a fully successful upload pass: a failed upload
// leaves it behind so the run can be repeated, with the uploader's existence
// check guarding against duplicates.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/petr-muller/clocksync/internal/timesheet"
)

const (
	snapshotFileName = "times.yaml"
	snapshotVersion  = 1
)

// Store handles persistent storage of timesheet snapshots
type Store struct {
	dataDir string
}

// NewStore creates a new storage instance
func NewStore(dataDir string) *Store {
	return &Store{
		dataDir: dataDir,
	}
}

// ensureDataDir creates the data directory if it doesn't exist
func (s *Store) ensureDataDir() error {
	return os.MkdirAll(s.dataDir, 0755)
}

func (s *Store) snapshotPath() string {
	return filepath.Join(s.dataDir, snapshotFileName)
}

// snapshot is the serialized form. Records are a keyed list rather than a
// mapping so that the sheet's insertion order survives the round trip.
type snapshot struct {
	Version int              `yaml:"version"`
	Records []snapshotRecord `yaml:"records"`
}

type snapshotRecord struct {
	Key              string `yaml:"key"`
	timesheet.Record `yaml:",inline"`
}

// SaveSheet writes the aggregated sheet to the snapshot file
func (s *Store) SaveSheet(sheet *timesheet.Sheet) error {
	if err := s.ensureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	snap := snapshot{Version: snapshotVersion}
	for _, key := range sheet.Keys() {
		snap.Records = append(snap.Records, snapshotRecord{Key: key, Record: *sheet.Lookup(key)})
	}

	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(s.snapshotPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	return nil
}

// LoadSheet reads the snapshot back into a sheet. A missing snapshot returns
// (nil, nil); a snapshot with an unexpected schema version is rejected.
func (s *Store) LoadSheet() (*timesheet.Sheet, error) {
	data, err := os.ReadFile(s.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot has unsupported version %d (expected %d), re-run fetch-times", snap.Version, snapshotVersion)
	}

	sheet := timesheet.NewSheet()
	for _, record := range snap.Records {
		// A nil slice serializes as an empty sequence and comes back as an
		// empty non-nil one; normalize so a record round-trips exactly
		if len(record.Issues) == 0 {
			record.Issues = nil
		}
		if len(record.Descriptions) == 0 {
			record.Descriptions = nil
		}
		sheet.Put(record.Key, record.Record)
	}

	return sheet, nil
}

// DeleteSheet removes the snapshot file
func (s *Store) DeleteSheet() error {
	if err := os.Remove(s.snapshotPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}

	return nil
}
