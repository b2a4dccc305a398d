// Package directory resolves user profiles. The users table is owned elsewhere; this service
// only reads it.
package directory

import (
	"context"
	"errors"
	"sync"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Provider  bool   `json:"provider"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type Directory interface {
	FindByID(ctx context.Context, id string) (User, error)
}

// Static is an in-process directory used for local runs and tests.
type Static struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewStatic(users ...User) *Static {
	s := &Static{users: make(map[string]User, len(users))}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *Static) Put(u User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

func (s *Static) FindByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}
