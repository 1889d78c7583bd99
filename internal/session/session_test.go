package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arunshreyas/Marketa/internal/domain"
	"github.com/arunshreyas/Marketa/internal/store/storetest"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return tok
}

func TestManagerLoginPersistsAndLoads(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewSQLiteStore(t)

	m := NewManager(st, nil)
	require.NoError(t, m.Login(ctx, &domain.Session{Token: "tok", User: &domain.User{ID: "u1"}}))
	assert.True(t, m.SignedIn())
	assert.Equal(t, "u1", m.UserID())

	// A fresh manager at bootstrap sees the same session.
	m2 := NewManager(st, nil)
	require.NoError(t, m2.Load(ctx))
	assert.Equal(t, "tok", m2.Token())
	assert.Equal(t, "u1", m2.UserID())
}

func TestManagerUserIDFallsBackToTokenClaim(t *testing.T) {
	ctx := context.Background()
	m := NewManager(storetest.NewSQLiteStore(t), nil)

	tok := signed(t, jwt.MapClaims{"id": "u42", "exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, m.Login(ctx, &domain.Session{Token: tok}))
	assert.Equal(t, "u42", m.UserID())
}

func TestManagerExpireClearsAndNotifies(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewSQLiteStore(t)
	m := NewManager(st, nil)
	require.NoError(t, m.Login(ctx, &domain.Session{Token: "tok"}))

	m.Expire(ctx, "tok")
	m.Expire(ctx, "tok")

	assert.False(t, m.SignedIn())
	stored, err := st.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)

	select {
	case <-m.Expired():
	default:
		t.Fatalf("expected expiry notification")
	}
}

func TestManagerExpireIgnoresStaleToken(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewSQLiteStore(t)
	m := NewManager(st, nil)
	require.NoError(t, m.Login(ctx, &domain.Session{Token: "old"}))
	require.NoError(t, m.Login(ctx, &domain.Session{Token: "new"}))

	m.Expire(ctx, "old")

	assert.True(t, m.SignedIn())
	assert.Equal(t, "new", m.Token())
	stored, err := st.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "new", stored.Token)
	select {
	case <-m.Expired():
		t.Fatalf("stale rejection must not notify")
	default:
	}
}

func TestManagerLogout(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewSQLiteStore(t)
	m := NewManager(st, nil)
	require.NoError(t, m.Login(ctx, &domain.Session{Token: "tok"}))
	require.NoError(t, m.Logout(ctx))

	assert.Nil(t, m.Current())
	select {
	case <-m.Expired():
		t.Fatalf("logout must not report expiry")
	default:
	}
}

func TestManagerSetUserRequiresSession(t *testing.T) {
	ctx := context.Background()
	m := NewManager(storetest.NewSQLiteStore(t), nil)
	assert.ErrorIs(t, m.SetUser(ctx, &domain.User{ID: "u1"}), ErrNotSignedIn)

	require.NoError(t, m.Login(ctx, &domain.Session{Token: "tok"}))
	require.NoError(t, m.SetUser(ctx, &domain.User{ID: "u1", Name: "Ann"}))
	assert.Equal(t, "Ann", m.Current().User.Name)
}

func TestUserIDFromToken(t *testing.T) {
	assert.Equal(t, "", UserIDFromToken("opaque"))
	assert.Equal(t, "", UserIDFromToken("a.b.c"))
	assert.Equal(t, "s1", UserIDFromToken(signed(t, jwt.MapClaims{"sub": "s1"})))
	assert.Equal(t, "i1", UserIDFromToken(signed(t, jwt.MapClaims{"sub": "s1", "id": "i1"})))
}

func TestFromCallbackURLStripsCredentials(t *testing.T) {
	sess, cleaned, err := FromCallbackURL("http://localhost:8096/callback?token=tok&userId=u1&userEmail=a%40b.c&userName=Ann&next=%2Fdashboard")
	require.NoError(t, err)
	assert.Equal(t, "tok", sess.Token)
	require.NotNil(t, sess.User)
	assert.Equal(t, "u1", sess.User.ID)
	assert.Equal(t, "a@b.c", sess.User.Email)
	assert.Equal(t, "http://localhost:8096/callback?next=%2Fdashboard", cleaned)

	_, _, err = FromCallbackURL("http://localhost/callback?userId=u1")
	assert.ErrorIs(t, err, ErrNoToken)
}
