package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/gambinos/reservation-book/internal/model"
	"github.com/gambinos/reservation-book/internal/store"
)

// UserStore persists authentication accounts in the 'users' table.
type UserStore struct{ DB *sql.DB }

func NewUserStore(db *sql.DB) *UserStore { return &UserStore{DB: db} }

// CreateUser inserts a user and returns its ID.  The email must already
// be normalized and the password hashed by the caller.
func (s *UserStore) CreateUser(ctx context.Context, email, passwordHash, role string) (uint64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role) VALUES (?, ?, ?)`,
		model.NormalizeEmail(email), passwordHash, role)
	if err != nil {
		if isDuplicate(err) {
			return 0, store.ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

const userColumns = `id, email, password_hash, role, is_active, created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`,
		model.NormalizeEmail(email)))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *UserStore) GetUserByID(ctx context.Context, id uint64) (*model.User, error) {
	u, err := scanUser(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// TokenStore persists refresh tokens.  Only SHA-256 hashes of token
// values ever reach the database.
type TokenStore struct{ DB *sql.DB }

func NewTokenStore(db *sql.DB) *TokenStore { return &TokenStore{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (s *TokenStore) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, expiresAt time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`,
		userID, tokenHash, expiresAt.UTC())
	return err
}

// ValidateRefresh returns the owning user ID when a non-revoked,
// non-expired token with this hash exists.
func (s *TokenStore) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = ? LIMIT 1`,
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		return 0, notFound(err)
	}
	if revokedAt.Valid || time.Now().UTC().After(expiresAt) {
		return 0, store.ErrNotFound
	}
	return userID, nil
}

// RevokeByHash marks a single token as revoked.
func (s *TokenStore) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE token_hash = ? AND revoked_at IS NULL`,
		tokenHash)
	return err
}

// RevokeAllForUser revokes every active token of a user.
func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = ? AND revoked_at IS NULL`,
		userID)
	return err
}
