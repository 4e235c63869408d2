package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTrackerTTL — время жизни записи "текущая сессия оператора".
const DefaultTrackerTTL = 12 * time.Hour

// Tracker хранит текущую открытую сессию каждого оператора.
//
// Состояние эфемерное: потеря записи означает лишь, что следующий
// принятый шаг откроет новую сессию. У оператора не больше одной
// отслеживаемой сессии.
type Tracker interface {
	// Get возвращает текущую сессию оператора.
	Get(ctx context.Context, operatorID string) (uuid.UUID, bool, error)

	// Set делает сессию текущей для оператора.
	Set(ctx context.Context, operatorID string, sessionID uuid.UUID) error

	// Release удаляет запись, только если она указывает на sessionID.
	Release(ctx context.Context, operatorID string, sessionID uuid.UUID) error
}

// MemoryTracker — Tracker в памяти процесса.
// Используется, когда Redis не настроен, и в тестах.
type MemoryTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]trackerEntry
}

type trackerEntry struct {
	sessionID uuid.UUID
	expiresAt time.Time
}

// NewMemoryTracker создаёт MemoryTracker. ttl <= 0 означает DefaultTrackerTTL.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultTrackerTTL
	}
	return &MemoryTracker{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]trackerEntry),
	}
}

// Get возвращает текущую сессию оператора.
func (t *MemoryTracker) Get(_ context.Context, operatorID string) (uuid.UUID, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[operatorID]
	if !ok {
		return uuid.Nil, false, nil
	}
	if !t.now().Before(e.expiresAt) {
		delete(t.entries, operatorID)
		return uuid.Nil, false, nil
	}
	return e.sessionID, true, nil
}

// Set делает сессию текущей для оператора и продлевает TTL.
func (t *MemoryTracker) Set(_ context.Context, operatorID string, sessionID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[operatorID] = trackerEntry{
		sessionID: sessionID,
		expiresAt: t.now().Add(t.ttl),
	}
	return nil
}

// Release удаляет запись оператора, если она указывает на sessionID.
func (t *MemoryTracker) Release(_ context.Context, operatorID string, sessionID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[operatorID]; ok && e.sessionID == sessionID {
		delete(t.entries, operatorID)
	}
	return nil
}
