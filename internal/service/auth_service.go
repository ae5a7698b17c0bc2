package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/todo-backend/internal/model"
	"github.com/iliyamo/todo-backend/internal/repository"
	"github.com/iliyamo/todo-backend/internal/utils"
)

// UserStore is the persistence the session manager needs.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	SetRefreshToken(ctx context.Context, id uint64, tokenHash *string) error
	RotateRefreshToken(ctx context.Context, id uint64, oldHash, newHash string) (bool, error)
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	FullName string
	Email    string
	Password string
}

// LoginInput carries the login form.
type LoginInput struct {
	Email    string
	Password string
}

// Session is the result of a successful register, login or refresh.
// RefreshToken travels in the cookie channel only; AccessToken in the body.
type Session struct {
	AccessToken  utils.SignedToken
	RefreshToken utils.SignedToken
	User         model.PublicUser
}

const (
	msgInvalidCredentials  = "Invalid credentials"
	msgRefreshMissing      = "Refresh token not found"
	msgRefreshInvalid      = "Invalid refresh token"
	msgEmailTaken          = "Email address already registered"
	msgRegistrationFailed  = "An error occurred during registration. Please try again later."
	msgLoginFailed         = "An error occurred during login. Please try again later."
	msgLogoutFailed        = "An error occurred during logout. Please try again later."
	msgRefreshFailed       = "Failed to refresh access token."
	msgRegistrationInvalid = "Validation error"
	msgRegisteredNoSession = "Account created but sign-in failed. Please log in."
)

// AuthService owns registration, login, logout and refresh-token rotation.
type AuthService struct {
	users   UserStore
	hasher  *utils.PasswordHasher
	access  *utils.TokenIssuer
	refresh *utils.TokenIssuer
	log     zerolog.Logger
}

// NewAuthService wires the session manager.  access and refresh must be
// built from different secrets.
func NewAuthService(users UserStore, hasher *utils.PasswordHasher, access, refresh *utils.TokenIssuer, log zerolog.Logger) *AuthService {
	return &AuthService{users: users, hasher: hasher, access: access, refresh: refresh, log: log}
}

// Register creates the account and opens its first session.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (Session, error) {
	if strings.TrimSpace(in.FullName) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return Session{}, invalidInput("fullName, email and password are required")
	}
	if len(in.Password) > utils.MaxPasswordBytes {
		return Session{}, invalidInput("password must be at most 72 bytes")
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, s.fail(msgRegistrationFailed, "hash password", err)
	}
	u := model.User{FullName: in.FullName, Email: in.Email, PasswordHash: hash}
	if err := s.users.Create(ctx, &u); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return Session{}, newError(KindConflict, msgEmailTaken, err)
		case errors.Is(err, repository.ErrInvalidRecord):
			return Session{}, newError(KindInvalidInput, msgRegistrationInvalid, err)
		}
		return Session{}, s.fail(msgRegistrationFailed, "create user", err)
	}
	// The account is committed at this point; a retry would hit Conflict.
	sess, err := s.issue(ctx, u)
	if err != nil {
		return Session{}, s.fail(msgRegisteredNoSession, "issue session", err)
	}
	s.log.Info().Uint64("user_id", u.ID).Msg("user registered")
	return sess, nil
}

// Login verifies credentials and opens a new session, replacing any
// previous refresh token.  Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (Session, error) {
	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.hasher.Burn(in.Password)
			return Session{}, unauthorized(msgInvalidCredentials)
		}
		return Session{}, s.fail(msgLoginFailed, "find user", err)
	}
	ok, err := s.hasher.Verify(u.PasswordHash, in.Password)
	if err != nil {
		return Session{}, s.fail(msgLoginFailed, "verify password", err)
	}
	if !ok {
		return Session{}, unauthorized(msgInvalidCredentials)
	}
	sess, err := s.issue(ctx, u)
	if err != nil {
		return Session{}, s.fail(msgLoginFailed, "issue session", err)
	}
	return sess, nil
}

// Logout invalidates the caller's refresh token.  Logging out twice is fine.
func (s *AuthService) Logout(ctx context.Context, id model.Identity) error {
	if err := s.users.SetRefreshToken(ctx, id.ID, nil); err != nil {
		return s.fail(msgLogoutFailed, "clear refresh token", err)
	}
	return nil
}

// RefreshAccessToken exchanges the current refresh token for a new pair.
// The presented token must equal the stored one; the swap to the new token
// is conditional on that, so a replayed or concurrently used token loses.
func (s *AuthService) RefreshAccessToken(ctx context.Context, raw string) (Session, error) {
	if raw == "" {
		return Session{}, unauthorized(msgRefreshMissing)
	}
	claims, err := s.refresh.Verify(raw)
	if err != nil {
		return Session{}, unauthorized(msgRefreshInvalid)
	}
	u, err := s.users.GetByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Session{}, unauthorized(msgRefreshInvalid)
		}
		return Session{}, s.fail(msgRefreshFailed, "find user", err)
	}
	presented := utils.HashRefreshRaw(raw)
	if u.ID != claims.ID || u.RefreshTokenHash == nil ||
		subtle.ConstantTimeCompare([]byte(*u.RefreshTokenHash), []byte(presented)) != 1 {
		return Session{}, unauthorized(msgRefreshInvalid)
	}

	sess, err := s.tokens(u)
	if err != nil {
		return Session{}, s.fail(msgRefreshFailed, "issue tokens", err)
	}
	swapped, err := s.users.RotateRefreshToken(ctx, u.ID, presented, utils.HashRefreshRaw(sess.RefreshToken.Token))
	if err != nil {
		return Session{}, s.fail(msgRefreshFailed, "rotate refresh token", err)
	}
	if !swapped {
		return Session{}, unauthorized(msgRefreshInvalid)
	}
	return sess, nil
}

// issue signs a token pair for u and stores the refresh digest.
func (s *AuthService) issue(ctx context.Context, u model.User) (Session, error) {
	sess, err := s.tokens(u)
	if err != nil {
		return Session{}, err
	}
	digest := utils.HashRefreshRaw(sess.RefreshToken.Token)
	if err := s.users.SetRefreshToken(ctx, u.ID, &digest); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *AuthService) tokens(u model.User) (Session, error) {
	access, err := s.access.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	refresh, err := s.refresh.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: access, RefreshToken: refresh, User: u.Public()}, nil
}

func (s *AuthService) fail(msg, op string, err error) *Error {
	s.log.Error().Err(err).Str("op", op).Msg("auth failure")
	return internal(msg, err)
}
