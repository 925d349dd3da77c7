package attendance

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
)

const snapshotQuality = 85

// SnapshotStore keeps one face snapshot per (date, student, mode) on disk.
type SnapshotStore struct {
	dir  string
	size int
}

// NewSnapshotStore stores size x size JPEG snapshots under dir.
func NewSnapshotStore(dir string, size int) *SnapshotStore {
	return &SnapshotStore{dir: dir, size: size}
}

// Dir returns the snapshot root directory.
func (s *SnapshotStore) Dir() string {
	return s.dir
}

// ModeDir returns the subdirectory for a mode.
func ModeDir(mode database.Mode) string {
	if mode == database.ModeDeparture {
		return constants.TimeOutDir
	}
	return constants.TimeInDir
}

func snapshotName(date, studentID string) string {
	return date + "_" + studentID + ".jpg"
}

// Path returns the file path of a snapshot.
func (s *SnapshotStore) Path(date, studentID string, mode database.Mode) string {
	return filepath.Join(s.dir, ModeDir(mode), snapshotName(date, studentID))
}

// Ref returns the snapshot path relative to the store, with forward slashes.
func (s *SnapshotStore) Ref(date, studentID string, mode database.Mode) string {
	return path.Join(ModeDir(mode), snapshotName(date, studentID))
}

// Exists reports whether the snapshot was already saved.
func (s *SnapshotStore) Exists(date, studentID string, mode database.Mode) bool {
	_, err := os.Stat(s.Path(date, studentID, mode))
	return err == nil
}

// Save writes the snapshot unless one already exists for the key. It reports whether
// a new file was created. Concurrent saves of the same key leave exactly one file.
func (s *SnapshotStore) Save(date, studentID string, mode database.Mode, face image.Image) (bool, error) {
	if strings.ContainsAny(studentID, `/\`) || strings.ContainsAny(date, `/\`) {
		return false, fmt.Errorf("invalid snapshot key %s/%s", date, studentID)
	}
	dst := s.Path(date, studentID, mode)
	if _, err := os.Stat(dst); err == nil {
		return false, nil
	}

	data, err := embedding.EncodeJPEG(embedding.ResizeSquare(face, s.size), snapshotQuality)
	if err != nil {
		return false, err
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return false, fmt.Errorf("creating snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("writing snapshot: %w", err)
	}

	// Link fails if dst exists, so the first writer wins without a lock.
	if err := os.Link(tmp.Name(), dst); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("saving snapshot: %w", err)
	}
	return true, nil
}

// Purge removes snapshots not dated today and returns how many were deleted.
func (s *SnapshotStore) Purge(today string) (int, error) {
	prefix := today + "_"
	removed := 0
	for _, sub := range []string{constants.TimeInDir, constants.TimeOutDir} {
		dir := filepath.Join(s.dir, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), prefix) || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return removed, fmt.Errorf("removing %s: %w", e.Name(), err)
			}
			removed++
		}
	}
	return removed, nil
}
