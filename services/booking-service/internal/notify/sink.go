package notify

import (
	"context"
	"sync"

	"github.com/md-rashed-zaman/hourbook/libs/db"
)

type PostgresSink struct {
	pool *db.Pool
}

func NewPostgresSink(pool *db.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Create(ctx context.Context, n Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (content, user_id, read)
		VALUES ($1, $2, $3)
	`, n.Content, n.UserID, n.Read)
	return err
}

// MemorySink keeps notifications in process.
type MemorySink struct {
	mu    sync.Mutex
	items []Notification
}

func (s *MemorySink) Create(_ context.Context, n Notification) error {
	s.mu.Lock()
	s.items = append(s.items, n)
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.items...)
}
