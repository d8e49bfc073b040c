package store

import (
	"context"
	"time"
)

// User is never serialized directly. PasswordHash is only populated by
// GetByEmail.
type User struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

const publicUserColumns = `id, username, email, created_at`

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, tx Execer, id, username, email, passwordHash string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash) VALUES ($1, $2, $3, $4)`,
		id, username, email, passwordHash)
	return err
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.one(ctx, `SELECT `+publicUserColumns+`, password_hash FROM users WHERE email = $1`, email)
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (User, error) {
	return s.one(ctx, `SELECT `+publicUserColumns+` FROM users WHERE username = $1`, username)
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (User, error) {
	return s.one(ctx, `SELECT `+publicUserColumns+` FROM users WHERE id = $1`, userID)
}

func (s *UserStore) one(ctx context.Context, query string, arg string) (User, error) {
	var u User
	if err := s.db.GetContext(ctx, &u, query, arg); err != nil {
		return User{}, err
	}
	return u, nil
}
