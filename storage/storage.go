package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	snapshotPrefix     = "results_"
	snapshotPattern    = snapshotPrefix + "*.json"
	snapshotTimeLayout = "20060102150405.000000000"
)

// SnapshotStore writes published results as timestamped JSON files and keeps
// only the newest few.
type SnapshotStore struct {
	dataDir string
	keep    int
	mutex   sync.RWMutex
	logger  *zap.Logger
}

type snapshotFile struct {
	path      string
	timestamp time.Time
}

func NewSnapshotStore(dataDir string, keep int, logger *zap.Logger) (*SnapshotStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keep < 1 {
		keep = 1
	}

	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &SnapshotStore{
		dataDir: absPath,
		keep:    keep,
		logger:  logger,
	}, nil
}

// Save writes v to a new snapshot file and returns its path.
func (s *SnapshotStore) Save(v any) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	filename := filepath.Join(s.dataDir, snapshotPrefix+time.Now().UTC().Format(snapshotTimeLayout)+".json")
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := s.cleanupOldFiles(); err != nil {
		s.logger.Warn("failed to clean up old snapshots", zap.Error(err))
	}

	s.logger.Info("saved results snapshot", zap.String("path", filename))
	return filename, nil
}

// Latest decodes the newest snapshot into v. It returns an empty path and no
// error when no snapshot exists.
func (s *SnapshotStore) Latest(v any) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	files, err := s.listFiles()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}

	latest := files[len(files)-1].path
	data, err := os.ReadFile(latest)
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot %s: %w", latest, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return "", fmt.Errorf("failed to decode snapshot %s: %w", latest, err)
	}
	return latest, nil
}

// listFiles returns snapshot files sorted oldest first.
func (s *SnapshotStore) listFiles() ([]snapshotFile, error) {
	matches, err := filepath.Glob(filepath.Join(s.dataDir, snapshotPattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	files := make([]snapshotFile, 0, len(matches))
	for _, file := range matches {
		base := filepath.Base(file)
		stamp := strings.TrimSuffix(strings.TrimPrefix(base, snapshotPrefix), ".json")
		timestamp, err := time.Parse(snapshotTimeLayout, stamp)
		if err != nil {
			s.logger.Warn("invalid timestamp in snapshot filename",
				zap.String("file", base),
				zap.Error(err),
			)
			continue
		}
		files = append(files, snapshotFile{path: file, timestamp: timestamp})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].timestamp.Before(files[j].timestamp)
	})
	return files, nil
}

func (s *SnapshotStore) cleanupOldFiles() error {
	files, err := s.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= s.keep {
		return nil
	}

	// Remove older files, keeping the most recent ones
	for _, file := range files[:len(files)-s.keep] {
		if err := os.Remove(file.path); err != nil {
			s.logger.Warn("failed to remove old snapshot",
				zap.String("path", file.path),
				zap.Error(err),
			)
		} else {
			s.logger.Debug("removed old snapshot", zap.String("path", file.path))
		}
	}

	return nil
}
