package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/sha256" // SHA-256 digest of refresh tokens before storage
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any token that fails verification:
// malformed, expired, signed with another key or another algorithm.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the custom JWT claims shared by access and refresh tokens.
type Claims struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SignedToken is a serialized JWT along with its expiry.
type SignedToken struct {
	Token string
	Exp   time.Time
}

// TokenIssuer signs and verifies one kind of token.  Access and refresh
// tokens use two distinct issuers so that holding one secret never allows
// forging the other kind.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an HS256 issuer for the given secret and lifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns the lifetime of issued tokens.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// Issue signs a token carrying {id, email}.  Every token gets a random jti
// so that two issuances for the same user in the same second differ.
func (i *TokenIssuer) Issue(id uint64, email string) (SignedToken, error) {
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	claims := Claims{
		ID:    id,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return SignedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return SignedToken{Token: signed, Exp: exp}, nil
}

// Verify parses the token and checks signature, algorithm and expiry.
func (i *TokenIssuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == 0 || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as a
// hex string.  Only the digest is stored in the database.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
