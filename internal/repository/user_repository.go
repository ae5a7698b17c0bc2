package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/todo-backend/internal/model"
)

const userColumns = "id, full_name, email, password_hash, refresh_token_hash, created_at, updated_at"

// UserRepo persists users and their current refresh token digest.
type UserRepo struct{ DB *sql.DB }

// NewUserRepo returns a repository over the users table.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts the user and fills in ID and timestamps.  The email is
// stored exactly as given.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (full_name, email, password_hash) VALUES (?,?,?)",
		u.FullName, u.Email, u.PasswordHash)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		if isInvalidRecord(err) {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*u = created
	return nil
}

// GetByEmail fetches a user by exact email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// SetRefreshToken overwrites the stored refresh token digest.  A nil
// digest clears it.  Updating a missing user is not an error.
func (r *UserRepo) SetRefreshToken(ctx context.Context, id uint64, tokenHash *string) error {
	var v sql.NullString
	if tokenHash != nil {
		v = sql.NullString{String: *tokenHash, Valid: true}
	}
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token_hash=? WHERE id=?", v, id); err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	return nil
}

// RotateRefreshToken replaces oldHash with newHash only if oldHash is
// still the stored value.  It reports false when another writer got there
// first or the session was logged out.
func (r *UserRepo) RotateRefreshToken(ctx context.Context, id uint64, oldHash, newHash string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token_hash=? WHERE id=? AND refresh_token_hash=?",
		newHash, id, oldHash)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	return n == 1, nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u    model.User
		hash sql.NullString
	)
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &hash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("select user: %w", err)
	}
	if hash.Valid {
		u.RefreshTokenHash = &hash.String
	}
	return u, nil
}
