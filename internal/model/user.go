package model

import "time"

// User represents a row of the `users` table.  It carries the password
// hash and the refresh token digest, so it must never be serialized to a
// client; use Public() for anything leaving the service layer.
type User struct {
	ID               uint64    // users.id
	FullName         string    // users.full_name
	Email            string    // users.email (unique, case-sensitive)
	PasswordHash     string    // users.password_hash (bcrypt)
	RefreshTokenHash *string   // users.refresh_token_hash (nullable, SHA-256 hex)
	CreatedAt        time.Time // users.created_at
	UpdatedAt        time.Time // users.updated_at
}

// PublicUser is the sanitized user representation returned by the API.
type PublicUser struct {
	ID        uint64    `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Public strips the credential fields.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Identity is the authenticated caller resolved from a verified access
// token.  It lives for a single request and is never persisted.
type Identity struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
}
