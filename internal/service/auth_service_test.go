package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/todo-backend/internal/model"
	"github.com/iliyamo/todo-backend/internal/utils"
)

type authFixture struct {
	svc     *AuthService
	users   *memUsers
	access  *utils.TokenIssuer
	refresh *utils.TokenIssuer
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	hasher, err := utils.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	users := newMemUsers()
	access := utils.NewTokenIssuer("access-secret", 15*time.Minute)
	refresh := utils.NewTokenIssuer("refresh-secret", 24*time.Hour)
	return authFixture{
		svc:     NewAuthService(users, hasher, access, refresh, zerolog.Nop()),
		users:   users,
		access:  access,
		refresh: refresh,
	}
}

var luke = RegisterInput{FullName: "Luke Skywalker", Email: "luke@rebellion.org", Password: "usetheforce"}

func TestRegister_IssuesSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Register(ctx, luke)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sess.User.ID)
	assert.Equal(t, "Luke Skywalker", sess.User.FullName)

	claims, err := f.access.Verify(sess.AccessToken.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.ID)
	assert.Equal(t, luke.Email, claims.Email)

	stored := f.users.stored(sess.User.ID)
	require.NotNil(t, stored)
	assert.Equal(t, utils.HashRefreshRaw(sess.RefreshToken.Token), *stored)

	row, err := f.users.GetByEmail(ctx, luke.Email)
	require.NoError(t, err)
	assert.NotEqual(t, luke.Password, row.PasswordHash)
}

func TestRegister_PublicUserHasNoSecrets(t *testing.T) {
	f := newAuthFixture(t)
	sess, err := f.svc.Register(context.Background(), luke)
	require.NoError(t, err)

	raw, err := json.Marshal(sess.User)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.NotContains(t, fields, "password")
	assert.NotContains(t, fields, "passwordHash")
	assert.NotContains(t, fields, "refreshToken")
	assert.ElementsMatch(t, []string{"id", "fullName", "email", "createdAt", "updatedAt"}, keys(fields))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, luke)
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{FullName: "Impostor", Email: luke.Email, Password: "x"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "Email address already registered", PublicMessage(err))
}

func TestRegister_MissingFields(t *testing.T) {
	f := newAuthFixture(t)
	for _, in := range []RegisterInput{
		{Email: "a@b.c", Password: "p"},
		{FullName: "A", Password: "p"},
		{FullName: "A", Email: "a@b.c"},
	} {
		_, err := f.svc.Register(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestRegister_PasswordLimitIsInBytes(t *testing.T) {
	f := newAuthFixture(t)

	// 40 runes, 80 bytes.
	in := RegisterInput{FullName: "Obi-Wan", Email: "ben@tatooine.net", Password: strings.Repeat("é", 40)}
	_, err := f.svc.Register(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "password must be at most 72 bytes", PublicMessage(err))

	in.Password = strings.Repeat("é", 36)
	_, err = f.svc.Register(context.Background(), in)
	assert.NoError(t, err)
}

func TestRegister_StoreFailureIsInternal(t *testing.T) {
	f := newAuthFixture(t)
	f.users.err = errStoreDown

	_, err := f.svc.Register(context.Background(), luke)
	assert.ErrorIs(t, err, ErrInternal)
	assert.NotContains(t, PublicMessage(err), "connection refused")
}

func TestRegister_SessionFailureAsksToLogIn(t *testing.T) {
	f := newAuthFixture(t)
	f.users.setErr = errStoreDown

	_, err := f.svc.Register(context.Background(), luke)
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, "Account created but sign-in failed. Please log in.", PublicMessage(err))

	f.users.setErr = nil
	_, err = f.svc.Login(context.Background(), LoginInput{Email: luke.Email, Password: luke.Password})
	assert.NoError(t, err)
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, luke)
	require.NoError(t, err)

	sess, err := f.svc.Login(ctx, LoginInput{Email: luke.Email, Password: luke.Password})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, sess.User.ID)
	assert.NotEqual(t, reg.RefreshToken.Token, sess.RefreshToken.Token)

	stored := f.users.stored(reg.User.ID)
	require.NotNil(t, stored)
	assert.Equal(t, utils.HashRefreshRaw(sess.RefreshToken.Token), *stored)
}

func TestLogin_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, luke)
	require.NoError(t, err)

	_, errWrong := f.svc.Login(ctx, LoginInput{Email: luke.Email, Password: "darkside"})
	_, errUnknown := f.svc.Login(ctx, LoginInput{Email: "vader@empire.gov", Password: "darkside"})

	assert.ErrorIs(t, errWrong, ErrUnauthorized)
	assert.ErrorIs(t, errUnknown, ErrUnauthorized)
	assert.Equal(t, PublicMessage(errWrong), PublicMessage(errUnknown))
	assert.Equal(t, "Invalid credentials", PublicMessage(errWrong))
}

func TestLogin_EmailIsCaseSensitive(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, luke)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginInput{Email: "LUKE@rebellion.org", Password: luke.Password})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefresh_RotatesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, luke)
	require.NoError(t, err)

	next, err := f.svc.RefreshAccessToken(ctx, reg.RefreshToken.Token)
	require.NoError(t, err)
	assert.NotEqual(t, reg.RefreshToken.Token, next.RefreshToken.Token)

	claims, err := f.access.Verify(next.AccessToken.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.ID)

	// The old token is no longer accepted.
	_, err = f.svc.RefreshAccessToken(ctx, reg.RefreshToken.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "Invalid refresh token", PublicMessage(err))

	// The new one is.
	_, err = f.svc.RefreshAccessToken(ctx, next.RefreshToken.Token)
	assert.NoError(t, err)
}

func TestRefresh_LoginSupersedesPreviousToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, luke)
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, LoginInput{Email: luke.Email, Password: luke.Password})
	require.NoError(t, err)

	_, err = f.svc.RefreshAccessToken(ctx, reg.RefreshToken.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefresh_Rejects(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, luke)
	require.NoError(t, err)

	_, err = f.svc.RefreshAccessToken(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "Refresh token not found", PublicMessage(err))

	_, err = f.svc.RefreshAccessToken(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// An access token is signed with the other secret.
	_, err = f.svc.RefreshAccessToken(ctx, reg.AccessToken.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Well signed but for an account that does not exist.
	ghost, err := f.refresh.Issue(99, "ghost@nowhere")
	require.NoError(t, err)
	_, err = f.svc.RefreshAccessToken(ctx, ghost.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefresh_ConcurrentUseHasOneWinner(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, luke)
	require.NoError(t, err)

	const n = 8
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := f.svc.RefreshAccessToken(ctx, reg.RefreshToken.Token)
			results <- err
		}()
	}
	wins := 0
	for i := 0; i < n; i++ {
		if err := <-results; err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrUnauthorized)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestLogout_InvalidatesRefresh(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, luke)
	require.NoError(t, err)
	who := model.Identity{ID: reg.User.ID, Email: reg.User.Email}

	require.NoError(t, f.svc.Logout(ctx, who))
	assert.Nil(t, f.users.stored(reg.User.ID))

	_, err = f.svc.RefreshAccessToken(ctx, reg.RefreshToken.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// A second logout is harmless.
	assert.NoError(t, f.svc.Logout(ctx, who))
}

func TestLogout_StoreFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.users.err = errStoreDown
	err := f.svc.Logout(context.Background(), model.Identity{ID: 1, Email: "a@b.c"})
	assert.ErrorIs(t, err, ErrInternal)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
