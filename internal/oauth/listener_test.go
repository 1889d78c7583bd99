package oauth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arunshreyas/Marketa/internal/api"
	"github.com/arunshreyas/Marketa/internal/devserver"
	"github.com/arunshreyas/Marketa/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newListener(t *testing.T) *Listener {
	t.Helper()
	l, err := Listen("127.0.0.1:0", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func get(t *testing.T, client *http.Client, target string) (int, string) {
	t.Helper()
	resp, err := client.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestCallbackDeliversSession(t *testing.T) {
	l := newListener(t)
	client := &http.Client{Timeout: 2 * time.Second}
	defer client.CloseIdleConnections()

	q := url.Values{}
	q.Set("token", "tok")
	q.Set("userId", "u1")
	q.Set("userEmail", "ana@example.com")
	q.Set("userName", "Ana")
	status, body := get(t, client, l.RedirectURI()+"?"+q.Encode())
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Signed in")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sess, err := l.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", sess.Token)
	assert.Equal(t, "u1", sess.UserID())
	assert.Equal(t, "Ana", sess.User.Name)
}

func TestCallbackWithoutToken(t *testing.T) {
	l := newListener(t)
	client := &http.Client{Timeout: 2 * time.Second}
	defer client.CloseIdleConnections()

	status, _ := get(t, client, l.RedirectURI()+"?userId=u1")
	assert.Equal(t, http.StatusBadRequest, status)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitAfterClose(t *testing.T) {
	l := newListener(t)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	_, err := l.Wait(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAuthorizeURL(t *testing.T) {
	l := newListener(t)
	got, err := l.AuthorizeURL("http://backend.test/auth/google?x=1")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/auth/google", u.Path)
	assert.Equal(t, "1", u.Query().Get("x"))
	assert.Equal(t, l.RedirectURI(), u.Query().Get("redirect_uri"))
}

func TestDevServerRoundTrip(t *testing.T) {
	srv := devserver.New(devserver.Options{})
	ts := httptest.NewServer(srv)
	defer func() {
		srv.Close()
		ts.Close()
	}()

	l := newListener(t)
	start, err := api.NewClient(ts.URL, nil).OAuthURL(domain.OAuthGitHub)
	require.NoError(t, err)
	target, err := l.AuthorizeURL(start)
	require.NoError(t, err)

	client := &http.Client{Timeout: 2 * time.Second}
	defer client.CloseIdleConnections()
	status, _ := get(t, client, target)
	require.Equal(t, http.StatusOK, status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sess, err := l.Wait(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "github@oauth.local", sess.User.Email)
}
