package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arunshreyas/Marketa/internal/api"
	"github.com/arunshreyas/Marketa/internal/chat"
	"github.com/arunshreyas/Marketa/internal/devserver"
	"github.com/arunshreyas/Marketa/internal/domain"
	"github.com/arunshreyas/Marketa/internal/session"
)

func newBackend(t *testing.T) *devserver.Server {
	t.Helper()
	srv := devserver.New(devserver.Options{ReplyDelay: 10 * time.Millisecond})
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	t.Setenv("MARKETA_HOME", t.TempDir())
	t.Setenv("MARKETA_CONFIG", "")
	t.Setenv("MARKETA_API_URL", ts.URL)
	t.Setenv("MARKETA_DB_PATH", filepath.Join(t.TempDir(), "marketa.db"))
	t.Setenv("MARKETA_POLL_INTERVAL_MS", "10")
	t.Setenv("MARKETA_RECONNECT_MS", "10")
	t.Setenv("MARKETA_LOG_LEVEL", "error")
	return srv
}

// run executes the command line args with stdin and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, stdin, args...)
	if err != nil {
		t.Fatalf("marketa %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func signup(t *testing.T) {
	t.Helper()
	out := mustRun(t, "secret\n", "signup", "--username", "ana", "--name", "Ana", "--email", "ana@example.com")
	require.Contains(t, out, "Signed in as Ana <ana@example.com>")
}

var idPattern = regexp.MustCompile(`\(([0-9a-f]{24})\)`)

func createCampaign(t *testing.T, args ...string) string {
	t.Helper()
	out := mustRun(t, "", append([]string{"campaigns", "create"}, args...)...)
	m := idPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	return m[1]
}

func TestSignupWhoamiLogout(t *testing.T) {
	newBackend(t)
	signup(t)

	out := mustRun(t, "", "whoami")
	assert.Contains(t, out, "ana@example.com")
	assert.Contains(t, out, "username: ana")

	assert.Contains(t, mustRun(t, "", "logout"), "Signed out")

	_, err := run(t, "", "whoami")
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrNotSignedIn))
}

func TestLoginWithPasswordFromStdin(t *testing.T) {
	newBackend(t)
	signup(t)
	mustRun(t, "", "logout")

	out := mustRun(t, "secret\n", "login", "--email", "ana@example.com")
	assert.Contains(t, out, "Signed in as Ana")

	_, err := run(t, "", "login", "--email", "ana@example.com", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", userMessage(err))
}

func TestLoginValidationBlocksRequest(t *testing.T) {
	newBackend(t)
	_, err := run(t, "", "login", "--email", "not-an-email", "--password", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Email address is not valid")
}

func TestLoginWithCallbackURL(t *testing.T) {
	srv := newBackend(t)
	resp, err := srv.CreateUser(context.Background(), domain.SignupRequest{
		Username: "gh", Name: "Git Hub", Email: "gh@example.com", Password: "pw",
	})
	require.NoError(t, err)

	q := url.Values{}
	q.Set("token", resp.Token)
	q.Set("userId", resp.User.ID)
	q.Set("userEmail", resp.User.Email)
	q.Set("userName", resp.User.Name)
	out := mustRun(t, "", "login", "--callback-url", "http://localhost/dashboard?"+q.Encode())
	assert.Contains(t, out, "Signed in as Git Hub <gh@example.com>")
	assert.Contains(t, mustRun(t, "", "whoami"), "gh@example.com")
}

func TestCampaignLifecycle(t *testing.T) {
	newBackend(t)
	signup(t)

	id := createCampaign(t, "--name", "Spring Launch", "--budget", "10000", "--goals", "Leads", "--start", "2026-03-01", "--end", "2026-04-01")

	out := mustRun(t, "", "campaigns", "list")
	assert.Contains(t, out, "Spring Launch")
	assert.Contains(t, out, id)

	out = mustRun(t, "", "campaigns", "update", id, "--status", "Paused", "--budget", "2500")
	assert.Contains(t, out, "status:   Paused")
	assert.Contains(t, out, "budget:   $2500.00")
	assert.Contains(t, out, "goals:    Leads")

	out = mustRun(t, "", "campaigns", "show", id)
	assert.Contains(t, out, "dates:    2026-03-01 - 2026-04-01")

	assert.Contains(t, mustRun(t, "", "campaigns", "delete", id), "Campaign deleted")
	_, err := run(t, "", "campaigns", "show", id)
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
}

func TestCampaignValidation(t *testing.T) {
	newBackend(t)
	signup(t)

	_, err := run(t, "", "campaigns", "create", "--budget", "-5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Campaign name is required")
	assert.Contains(t, err.Error(), "Budget must not be negative")

	_, err = run(t, "", "campaigns", "create", "--name", "X", "--start", "2026-05-01", "--end", "2026-04-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "End date must not be before start date")

	_, err = run(t, "", "campaigns", "create", "--name", "X", "--start", "May 1st")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected YYYY-MM-DD")
}

func TestAsk(t *testing.T) {
	newBackend(t)
	signup(t)
	id := createCampaign(t, "--name", "Spring Launch", "--budget", "10000")

	out := mustRun(t, "", "ask", id, "What's", "my", "budget?")
	assert.Equal(t, "$10,000\n", out)
}

func TestAssistant(t *testing.T) {
	newBackend(t)

	_, err := run(t, "", "assistant", "hello")
	require.Error(t, err)
	assert.True(t, isSessionError(err))

	signup(t)
	out := mustRun(t, "", "assistant", "Ideas", "for", "a", "spring", "sale?")
	assert.Contains(t, out, `"Ideas for a spring sale?"`)
}

func TestCachedChats(t *testing.T) {
	newBackend(t)
	signup(t)

	assert.Contains(t, mustRun(t, "", "campaigns", "cached"), "No chats cached on this device.")

	id := createCampaign(t, "--name", "Spring Launch", "--budget", "10000")
	mustRun(t, "", "ask", id, "What's", "my", "budget?")

	out := mustRun(t, "", "campaigns", "cached")
	assert.Contains(t, out, "CAMPAIGN")
	assert.Regexp(t, id+`\s+2\s`, out)

	mustRun(t, "", "campaigns", "delete", id)
	assert.Contains(t, mustRun(t, "", "campaigns", "cached"), "No chats cached on this device.")
}

func TestChatLineMode(t *testing.T) {
	newBackend(t)
	signup(t)
	id := createCampaign(t, "--name", "Spring Launch", "--budget", "10000")

	out := mustRun(t, "\n/ask What's my budget?\n/quit\nignored\n", "chat", id)
	assert.Contains(t, out, "No messages yet.")
	assert.Contains(t, out, "marketa> $10,000")
	assert.Contains(t, out, "Bye!")

	out = mustRun(t, "/quit\n", "chat", id)
	assert.Contains(t, out, "you> What's my budget?")
	assert.Contains(t, out, "marketa> $10,000")
}

func TestExpiredSessionIsCleared(t *testing.T) {
	srv := newBackend(t)
	signup(t)
	srv.ExpireSessions()

	_, err := run(t, "", "campaigns", "list")
	require.Error(t, err)
	assert.True(t, isSessionError(err))
	assert.Contains(t, userMessage(err), "marketa login")

	_, err = run(t, "", "whoami")
	assert.True(t, errors.Is(err, session.ErrNotSignedIn))
}

func TestChatLoopStopsWhenSessionExpires(t *testing.T) {
	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })
	var out bytes.Buffer
	lw := &lockedWriter{w: &out}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	updates := make(chan chat.Update, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		followUpdates(updates, newTranscriptPrinter(lw), cancel)
	}()

	a := &app{}
	errc := make(chan error, 1)
	go func() { errc <- a.chatLoop(ctx, nil, in, lw) }()

	updates <- chat.Update{Expired: true}
	select {
	case err := <-errc:
		require.Error(t, err)
		assert.True(t, isSessionError(err))
	case <-time.After(3 * time.Second):
		t.Fatalf("chat loop kept reading after the session expired")
	}
	close(updates)
	<-done
	assert.NotContains(t, out.String(), "Interrupted")
}

func TestBrand(t *testing.T) {
	newBackend(t)
	signup(t)

	_, err := run(t, "", "brand", "get")
	require.Error(t, err)

	_, err = run(t, "", "brand", "set", "--name", "Acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Product description is required")

	out := mustRun(t, "", "brand", "set", "--name", "Acme", "--description", "Rockets", "--audience", "Coyotes")
	assert.Contains(t, out, "Brand saved")
	assert.Contains(t, mustRun(t, "", "brand", "get"), "product:  Rockets")
	assert.Contains(t, mustRun(t, "", "whoami"), "brand:    set up")
}

func TestProfileUpdateAndPicture(t *testing.T) {
	newBackend(t)
	signup(t)

	out := mustRun(t, "", "profile", "update", "--name", "Ana Maria", "--industry", "Retail")
	assert.Contains(t, out, "Profile updated successfully!")
	assert.Contains(t, out, "Ana Maria <ana@example.com>")
	assert.Contains(t, out, "industry: Retail")

	_, err := run(t, "", "profile", "update", "--email", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Email is required")

	dir := t.TempDir()
	png := filepath.Join(dir, "me.png")
	require.NoError(t, os.WriteFile(png, append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...), 0o600))
	out = mustRun(t, "", "profile", "picture", "upload", png)
	assert.Contains(t, out, "Profile picture updated successfully!")

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o600))
	_, err = run(t, "", "profile", "picture", "upload", txt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Please upload a valid image")

	assert.Contains(t, mustRun(t, "", "profile", "picture", "delete"), "Profile picture removed")
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", api.ErrNetwork), "Unable to connect to server"},
		{&api.Error{Op: "get campaign", Status: 500, Message: "boom"}, "boom"},
		{&api.Error{Op: "list campaigns", Status: 401, Message: "expired"}, "Your session has expired or you are not signed in. Run `marketa login`."},
		{&api.Error{Op: "login", Status: 401, Message: "Invalid credentials"}, "Invalid credentials"},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, userMessage(tt.err))
	}
}
