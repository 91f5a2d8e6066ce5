package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shopwatch/internal/database"
	"shopwatch/internal/metrics"
)

// Origin tells which path raised an alert
type Origin string

const (
	OriginUpload Origin = "upload"
	OriginLive   Origin = "live"
)

// Entry is one raised alert. Entries are never modified after Append.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Image      string    `json:"image"`
	Origin     Origin    `json:"type"`
}

// NewEntry builds an entry with a fresh ID
func NewEntry(ts time.Time, confidence float64, image string, origin Origin) Entry {
	return Entry{
		ID:         uuid.New().String(),
		Timestamp:  ts,
		Confidence: confidence,
		Image:      image,
		Origin:     origin,
	}
}

// Store persists the full alert history
type Store interface {
	SaveAlert(ctx context.Context, alert *database.AlertRecord) error
	ListRecentAlerts(ctx context.Context, limit int) ([]*database.AlertRecord, error)
	CountAlerts(ctx context.Context) (int, error)
}

// Ledger is the append-only alert history. Memory holds at most retain
// entries (0 keeps everything); the optional store keeps the rest.
type Ledger struct {
	// appendMu keeps store order equal to memory order
	appendMu sync.Mutex

	mu      sync.RWMutex
	entries []Entry
	total   int

	retain  int
	store   Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a ledger. store may be nil.
func New(retain int, store Store, m *metrics.Metrics, logger *zap.Logger) *Ledger {
	return &Ledger{
		retain:  retain,
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// Load restores the newest entries and the all-time count from the store
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	total, err := l.store.CountAlerts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count stored alerts: %w", err)
	}
	records, err := l.store.ListRecentAlerts(ctx, l.retain)
	if err != nil {
		return fmt.Errorf("failed to restore alerts: %w", err)
	}

	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, Entry{
			ID:         r.ID,
			Timestamp:  r.Timestamp,
			Confidence: r.Confidence,
			Image:      r.Image,
			Origin:     Origin(r.Origin),
		})
	}

	l.mu.Lock()
	l.entries = entries
	l.total = total
	l.mu.Unlock()

	l.logger.Info("alert history restored", zap.Int("entries", len(entries)), zap.Int("total", total))
	return nil
}

// Append records e. It never fails; a store error is logged and the
// entry is kept in memory only.
func (l *Ledger) Append(ctx context.Context, e Entry) {
	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	l.mu.Lock()
	l.entries = append(l.entries, e)
	if l.retain > 0 && len(l.entries) > l.retain {
		trimmed := make([]Entry, l.retain)
		copy(trimmed, l.entries[len(l.entries)-l.retain:])
		l.entries = trimmed
	}
	l.total++
	l.mu.Unlock()

	if l.store == nil {
		return
	}
	err := l.store.SaveAlert(ctx, &database.AlertRecord{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		Confidence: e.Confidence,
		Image:      e.Image,
		Origin:     string(e.Origin),
	})
	if err != nil {
		l.metrics.LedgerPersistErrors.Inc()
		l.logger.Error("failed to persist alert", zap.String("id", e.ID), zap.Error(err))
	}
}

// Recent returns at most limit of the newest entries, oldest first
func (l *Ledger) Recent(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		return []Entry{}
	}
	start := len(l.entries) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Entry, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Total returns the number of entries ever appended
func (l *Ledger) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}
