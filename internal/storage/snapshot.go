package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"bitmex_orderbook/internal/domain"
)

// BookSnapshot is a point-in-time dump of both ladders, written at shutdown
// for inspection. Only resting levels are included.
type BookSnapshot struct {
	Instrument string              `json:"instrument"`
	Processed  uint64              `json:"processed"` // messages processed when the dump was taken
	TsUnix     int64               `json:"ts"`
	Bids       []domain.PriceLevel `json:"bids"`
	Asks       []domain.PriceLevel `json:"asks"`
}

// SnapshotManager handles saving and pruning book snapshots.
type SnapshotManager struct {
	dir string
}

// NewSnapshotManager creates a new snapshot manager.
// dir: directory to store snapshot files.
func NewSnapshotManager(dir string) *SnapshotManager {
	return &SnapshotManager{dir: dir}
}

func snapshotName(snap *BookSnapshot) string {
	return fmt.Sprintf("book_%d_%d.json", snap.TsUnix, snap.Processed)
}

// Save writes a snapshot to disk and returns its path.
func (sm *SnapshotManager) Save(snap *BookSnapshot) (string, error) {
	if err := os.MkdirAll(sm.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	path := filepath.Join(sm.dir, snapshotName(snap))

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	slog.Info("Book snapshot saved",
		slog.String("instrument", snap.Instrument),
		slog.Int("bids", len(snap.Bids)),
		slog.Int("asks", len(snap.Asks)),
		slog.String("path", path))

	return path, nil
}

// Cleanup removes old snapshots, keeping only the latest N.
func (sm *SnapshotManager) Cleanup(keepCount int) error {
	entries, err := os.ReadDir(sm.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	type snapFile struct {
		path      string
		ts        int64
		processed uint64
	}
	var files []snapFile

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var ts int64
		var processed uint64
		if _, err := fmt.Sscanf(entry.Name(), "book_%d_%d.json", &ts, &processed); err == nil {
			files = append(files, snapFile{
				path:      filepath.Join(sm.dir, entry.Name()),
				ts:        ts,
				processed: processed,
			})
		}
	}

	if len(files) <= keepCount {
		return nil
	}

	// newest first
	sort.Slice(files, func(i, j int) bool {
		if files[i].ts != files[j].ts {
			return files[i].ts > files[j].ts
		}
		return files[i].processed > files[j].processed
	})

	for i := keepCount; i < len(files); i++ {
		if err := os.Remove(files[i].path); err != nil {
			slog.Warn("Failed to remove old snapshot", slog.String("path", files[i].path))
		} else {
			slog.Info("Removed old snapshot", slog.String("path", files[i].path))
		}
	}

	return nil
}
