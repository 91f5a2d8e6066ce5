package snapshot

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shopwatch/internal/overlay"
)

// ErrInvalidName is returned for names that would escape the store
var ErrInvalidName = errors.New("snapshot: invalid file name")

// URLPrefix is where stored files are served from
const URLPrefix = "/uploads/"

// Store writes alert snapshots and uploaded images into one directory
type Store struct {
	dir string
	now func() time.Time
}

// New creates the directory if needed
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Write encodes img as JPEG under <prefix>_<timestamp>.jpg and returns the name
func (s *Store) Write(img image.Image, prefix string) (string, error) {
	data, err := overlay.EncodeJPEG(img)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	ts := s.now()
	base := fmt.Sprintf("%s_%s_%06d", prefix, ts.Format("20060102_150405"), ts.Nanosecond()/1000)
	for attempt := 0; attempt < 100; attempt++ {
		name := base + ".jpg"
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d.jpg", base, attempt)
		}
		err := s.create(name, data)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		return name, nil
	}
	return "", fmt.Errorf("failed to find a free snapshot name for %s", base)
}

// WriteFile stores data under name, replacing any existing file
func (s *Store) WriteFile(data []byte, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Read returns the bytes of a stored file
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// URL returns the public reference for a stored name
func URL(name string) string {
	if name == "" {
		return ""
	}
	return URLPrefix + name
}

func (s *Store) create(name string, data []byte) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return err
		}
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}
