package mode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrPersist is returned when the secured flag could not be written
var ErrPersist = errors.New("mode: persistence failed")

// Record is the persisted secured-mode state
type Record struct {
	IsOn    bool      `json:"is_on"`
	Updated time.Time `json:"updated"`
}

// Backend stores a single mode record. Load returns nil, nil when no
// record exists yet.
type Backend interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec Record) error
}

// Store is the process-wide secured flag. Reads are served from memory;
// writes go to the backend first and only then become visible.
type Store struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	rec     Record
	backend Backend
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore loads the current record from backend. A missing or unreadable
// record starts the store in open mode.
func NewStore(ctx context.Context, backend Backend, logger *zap.Logger) *Store {
	s := &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}

	rec, err := backend.Load(ctx)
	switch {
	case err != nil:
		logger.Warn("mode record unreadable, starting open", zap.Error(err))
	case rec != nil:
		s.rec = *rec
	}
	return s
}

// Get returns the current secured flag
func (s *Store) Get() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.IsOn
}

// State returns the full current record
func (s *Store) State() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec
}

// Set persists v and then publishes it. On failure the previous value
// stays in effect and the error wraps ErrPersist.
func (s *Store) Set(ctx context.Context, v bool) error {
	_, err := s.update(ctx, func(bool) bool { return v })
	return err
}

// Toggle inverts the flag and returns the new record
func (s *Store) Toggle(ctx context.Context) (Record, error) {
	return s.update(ctx, func(cur bool) bool { return !cur })
}

func (s *Store) update(ctx context.Context, next func(bool) bool) (Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec := Record{
		IsOn:    next(s.Get()),
		Updated: s.now(),
	}
	if err := s.backend.Save(ctx, rec); err != nil {
		return s.State(), fmt.Errorf("%w: %v", ErrPersist, err)
	}

	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()

	s.logger.Info("shop mode updated", zap.Bool("is_on", rec.IsOn))
	return rec, nil
}

// legacyTimeLayouts covers records written without a zone offset
var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func decodeRecord(data []byte) (*Record, error) {
	var raw struct {
		IsOn    bool   `json:"is_on"`
		Updated string `json:"updated"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("corrupt mode record: %w", err)
	}

	rec := &Record{IsOn: raw.IsOn}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, raw.Updated); err == nil {
			rec.Updated = t
			break
		}
	}
	return rec, nil
}

func encodeRecord(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}
