package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clearity-app/clearity/internal/apperrors"
)

// User is a registered or anonymous account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Salt         string
	IsAnonymous  bool
	CreatedAt    time.Time
}

// CreateUser inserts a user. A duplicate email is an ErrInvalidInput.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	var email any
	if u.Email != "" {
		email = u.Email
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, salt, is_anonymous, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, email, u.PasswordHash, u.Salt, u.IsAnonymous, u.CreatedAt)
	if err != nil {
		return apperrors.NewPersistenceError("create user", err)
	}
	return nil
}

// EnsureUser inserts an anonymous user with the given id if it does not
// exist yet. Used for the shared local account when auth is disabled.
func (s *Store) EnsureUser(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, email, password_hash, salt, is_anonymous, created_at)
		 VALUES (?, NULL, '', '', 1, ?)`,
		id, time.Now().UTC())
	if err != nil {
		return apperrors.NewPersistenceError("ensure user", err)
	}
	return nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(email, ''), password_hash, salt, is_anonymous, created_at
		 FROM users WHERE id = ?`, id))
}

// GetUserByEmail fetches a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(email, ''), password_hash, salt, is_anonymous, created_at
		 FROM users WHERE email = ?`, email))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Salt, &u.IsAnonymous, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get user", err)
	}
	return &u, nil
}
