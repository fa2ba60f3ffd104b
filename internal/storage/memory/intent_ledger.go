package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type ledgerEntry struct {
	rec       domain.IntentRecord
	expiresAt time.Time
}

// IntentLedger — in-memory журнал платёжных намерений с TTL.
type IntentLedger struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]ledgerEntry
}

// NewIntentLedger создаёт пустой журнал.
func NewIntentLedger() *IntentLedger {
	return &IntentLedger{
		now:     time.Now,
		entries: make(map[string]ledgerEntry),
	}
}

// Put сохраняет запись; ttl <= 0 означает бессрочное хранение.
func (l *IntentLedger) Put(ctx context.Context, rec domain.IntentRecord, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := ledgerEntry{rec: rec}
	if ttl > 0 {
		entry.expiresAt = l.now().Add(ttl)
	}
	l.entries[rec.IntentID] = entry
	l.evictExpiredLocked()
	return nil
}

// Get возвращает запись или ErrIntentNotFound, если её нет или TTL истёк.
func (l *IntentLedger) Get(ctx context.Context, intentID string) (domain.IntentRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.IntentRecord{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[intentID]
	if !ok || l.expired(entry) {
		delete(l.entries, intentID)
		return domain.IntentRecord{}, domain.ErrIntentNotFound
	}
	return entry.rec, nil
}

func (l *IntentLedger) expired(entry ledgerEntry) bool {
	return !entry.expiresAt.IsZero() && !l.now().Before(entry.expiresAt)
}

func (l *IntentLedger) evictExpiredLocked() {
	for id, entry := range l.entries {
		if l.expired(entry) {
			delete(l.entries, id)
		}
	}
}

var _ domain.IntentLedger = (*IntentLedger)(nil)
