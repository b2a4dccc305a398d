package inbox

import (
	"context"
	"sync"

	"github.com/md-rashed-zaman/hourbook/libs/db"
)

// Inbox remembers which events were handled successfully. An event is marked only after its
// handler succeeded, so a crash before that leaves it open for redelivery.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string, eventType string) error
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Seen(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM inbox_events WHERE event_id = $1)
	`, eventID).Scan(&seen)
	return seen, err
}

func (r *Repository) MarkProcessed(ctx context.Context, eventID string, eventType string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	return err
}

// Memory is an in-process Inbox.
type Memory struct {
	mu   sync.Mutex
	seen map[string]string
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[string]string)}
}

func (m *Memory) Seen(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[eventID]
	return ok, nil
}

func (m *Memory) MarkProcessed(_ context.Context, eventID string, eventType string) error {
	m.mu.Lock()
	m.seen[eventID] = eventType
	m.mu.Unlock()
	return nil
}

var (
	_ Inbox = (*Repository)(nil)
	_ Inbox = (*Memory)(nil)
)
