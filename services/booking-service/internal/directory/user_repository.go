package directory

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/hourbook/libs/db"
)

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, email, provider, COALESCE(avatar_url, '')
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Provider, &u.AvatarURL)
	if err != nil {
		if db.IsNoRows(err) || db.HasCode(err, db.CodeInvalidText) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}
