package model

import "time"

// Account roles.  Staff act on any reservation and manage customers;
// customers act only on reservations linked to their own email.
const (
	RoleStaff    = "STAFF"
	RoleCustomer = "CUSTOMER"
)

// User is an authenticated account as stored in the `users` table.  It
// is the identity side of the system only: the guest-facing record is
// Customer, joined by normalized email.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email (normalized, unique)
	PasswordHash string    // users.password_hash (bcrypt)
	Role         string    // users.role (STAFF or CUSTOMER)
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// IsStaff reports whether the account may use staff endpoints.
func (u *User) IsStaff() bool { return u.Role == RoleStaff }

// RefreshToken models a row in `refresh_tokens`.  Only the SHA-256 hash
// of the token value is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
