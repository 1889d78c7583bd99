package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arunshreyas/Marketa/internal/api"
	"github.com/arunshreyas/Marketa/internal/domain"
)

type tokenAuth struct {
	token   string
	expired int
}

func (a *tokenAuth) Token() string { return a.token }

func (a *tokenAuth) Expire(_ context.Context, token string) {
	if token != a.token {
		return
	}
	a.token = ""
	a.expired++
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(opts)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func signedInClient(t *testing.T, ts *httptest.Server) (*api.Client, *tokenAuth, *domain.User) {
	t.Helper()
	auth := &tokenAuth{}
	client := api.NewClient(ts.URL, auth, api.WithHTTPClient(ts.Client()), api.WithStreamClient(ts.Client()))
	resp, err := client.Signup(context.Background(), domain.SignupRequest{
		Username: "ana", Name: "Ana", Email: "Ana@Example.com", Password: "secret",
	})
	require.NoError(t, err)
	auth.token = resp.Token
	return client, auth, resp.User
}

func TestSignupLoginAndProfile(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	client, _, user := signedInClient(t, ts)
	ctx := context.Background()

	assert.Equal(t, "ana@example.com", user.Email)
	assert.Len(t, user.ID, 24)

	_, err := client.Signup(ctx, domain.SignupRequest{Username: "x", Name: "X", Email: "ana@example.com", Password: "p"})
	assert.Equal(t, http.StatusBadRequest, api.StatusOf(err))

	_, err = client.Login(ctx, domain.LoginRequest{Email: "ana@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))

	login, err := client.Login(ctx, domain.LoginRequest{Email: "ANA@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, login.User.ID)

	me, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ana", me.Name)

	updated, err := client.UpdateUser(ctx, user.ID, domain.ProfileUpdate{
		Name: "Ana B", Username: "anab", Email: "ana@example.com",
		BusinessProfile: &domain.BusinessProfile{Industry: "Retail"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana B", updated.Name)
	assert.Equal(t, "Retail", updated.BusinessProfile.Industry)

	pic, err := client.UploadProfilePicture(ctx, user.ID, "me.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(pic.ProfilePicture, ".png"))

	_, err = client.UploadProfilePicture(ctx, user.ID, "doc.pdf", "application/pdf", strings.NewReader("pdf"))
	assert.Equal(t, http.StatusBadRequest, api.StatusOf(err))

	require.NoError(t, client.DeleteProfilePicture(ctx, user.ID))
	me, err = client.Me(ctx)
	require.NoError(t, err)
	assert.Empty(t, me.ProfilePicture)
}

func TestBrand(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	client, auth, _ := signedInClient(t, ts)
	ctx := context.Background()

	_, err := client.GetBrand(ctx)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.Equal(t, 0, auth.expired)

	_, err = client.SaveBrand(ctx, domain.Brand{BrandName: "Acme", ProductDescription: "Anvils", TargetAudience: "Coyotes"})
	require.NoError(t, err)
	brand, err := client.GetBrand(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Acme", brand.BrandName)

	me, err := client.Me(ctx)
	require.NoError(t, err)
	assert.True(t, me.HasBrand)
}

func TestCampaignLifecycle(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	client, _, user := signedInClient(t, ts)
	ctx := context.Background()

	created, err := client.CreateCampaign(ctx, domain.Campaign{Name: "Launch", Budget: 10000, Goals: "Signups"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, created.UserID)
	assert.Equal(t, "Active", created.Status)

	list, err := client.ListCampaigns(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	created.Name = "Relaunch"
	updated, err := client.UpdateCampaign(ctx, *created)
	require.NoError(t, err)
	assert.Equal(t, "Relaunch", updated.Name)

	answer, err := client.CampaignChat(ctx, created.ID, domain.CampaignChatRequest{Prompt: "What's my budget?", UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, "$10,000", answer)

	require.NoError(t, client.DeleteCampaign(ctx, created.ID))
	_, err = client.GetCampaign(ctx, created.ID)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestAssistantChat(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	client, _, user := signedInClient(t, ts)
	ctx := context.Background()

	answer, err := client.AssistantChat(ctx, domain.CampaignChatRequest{Prompt: "Ideas for a spring sale?", UserID: user.ID})
	require.NoError(t, err)
	assert.Contains(t, answer, "Ideas for a spring sale?")

	_, err = client.AssistantChat(ctx, domain.CampaignChatRequest{Prompt: " ", UserID: user.ID})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, api.StatusOf(err))

	anon := api.NewClient(ts.URL, nil)
	_, err = anon.AssistantChat(ctx, domain.CampaignChatRequest{Prompt: "hi"})
	assert.True(t, api.IsUnauthorized(err))
}

func TestMessageReplyIsPolledAndPushed(t *testing.T) {
	srv, ts := newTestServer(t, Options{ReplyDelay: 10 * time.Millisecond})
	client, _, user := signedInClient(t, ts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	campaign, err := client.CreateCampaign(ctx, domain.Campaign{Name: "Launch", Budget: 10000})
	require.NoError(t, err)

	events := make(chan api.SSEEvent, 4)
	streamCtx, stopStream := context.WithCancel(ctx)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		_ = client.StreamMessages(streamCtx, campaign.ID, func(e api.SSEEvent) error {
			events <- e
			return nil
		})
	}()

	require.Eventually(t, func() bool { return srv.Hub().SubscriberCount(campaign.ID) == 1 }, 2*time.Second, 5*time.Millisecond)

	sent, err := client.SendMessage(ctx, domain.SendMessageRequest{Campaign: campaign.ID, Sender: user.ID, Content: "What's my budget?"})
	require.NoError(t, err)
	assert.NotEqual(t, sent.ID, sent.CorrelationID)

	var replies []domain.Reply
	require.Eventually(t, func() bool {
		replies, err = client.CampaignResponses(ctx, campaign.ID)
		return err == nil && len(replies) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, sent.CorrelationID, replies[0].CorrelationID)
	assert.Equal(t, "$10,000", replies[0].Content)

	all, err := client.Responses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, campaign.ID, all[0].CampaignID)

	msgs, err := client.CampaignMessages(ctx, campaign.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, sent.CorrelationID, msgs[0].CorrelationID)

	select {
	case e := <-events:
		assert.Equal(t, domain.StreamEventReply, e.Event)
	case <-ctx.Done():
		t.Fatal("timed out waiting for pushed reply")
	}

	stopStream()
	<-streamDone
}

func TestStreamDeliversReply(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	client, _, user := signedInClient(t, ts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	campaign, err := client.CreateCampaign(ctx, domain.Campaign{Name: "Launch", Goals: "Grow"})
	require.NoError(t, err)
	srv.SetFaults(Faults{DuplicatePush: true})

	events := make(chan api.SSEEvent, 4)
	streamCtx, stopStream := context.WithCancel(ctx)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		_ = client.StreamMessages(streamCtx, campaign.ID, func(e api.SSEEvent) error {
			events <- e
			return nil
		})
	}()
	require.Eventually(t, func() bool { return srv.Hub().SubscriberCount(campaign.ID) == 1 }, 2*time.Second, 5*time.Millisecond)

	sent, err := client.SendMessage(ctx, domain.SendMessageRequest{Campaign: campaign.ID, Sender: user.ID, Content: "goals?"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case e := <-events:
			reply, err := api.ParseReplyEvent(e.Data)
			require.NoError(t, err)
			assert.Equal(t, sent.CorrelationID, reply.CorrelationID)
			assert.Contains(t, reply.Content, "Grow")
		case <-ctx.Done():
			t.Fatal("timed out waiting for pushed reply")
		}
	}

	stopStream()
	<-streamDone
}

func TestByCampaignFaultFallsBack(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	client, _, user := signedInClient(t, ts)
	ctx := context.Background()
	srv.SetFaults(Faults{DisableResponsesByCampaign: true, DropPush: true})

	campaign, err := client.CreateCampaign(ctx, domain.Campaign{Name: "Launch"})
	require.NoError(t, err)
	_, err = client.SendMessage(ctx, domain.SendMessageRequest{Campaign: campaign.ID, Sender: user.ID, Content: "hi"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		replies, err := client.CampaignResponses(ctx, campaign.ID)
		return err == nil && len(replies) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExpireSessionsRejectsTokens(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	client, auth, _ := signedInClient(t, ts)

	srv.ExpireSessions()
	_, err := client.Me(context.Background())
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, 1, auth.expired)
	assert.Empty(t, auth.token)
}

func TestFailMessagesFault(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	client, _, user := signedInClient(t, ts)
	ctx := context.Background()
	campaign, err := client.CreateCampaign(ctx, domain.Campaign{Name: "Launch"})
	require.NoError(t, err)

	srv.SetFaults(Faults{FailMessages: true})
	_, err = client.SendMessage(ctx, domain.SendMessageRequest{Campaign: campaign.ID, Sender: user.ID, Content: "hi"})
	assert.Equal(t, http.StatusInternalServerError, api.StatusOf(err))
	assert.False(t, api.IsUnauthorized(err))
}

func TestOAuthRedirectCarriesToken(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, err := noRedirect.Get(ts.URL + "/auth/github?redirect_uri=" + url.QueryEscape("http://localhost:8096/callback"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/callback", loc.Path)
	token := loc.Query().Get("token")
	require.NotEmpty(t, token)
	assert.Equal(t, "github@oauth.local", loc.Query().Get("userEmail"))

	userID, err := srv.verifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, loc.Query().Get("userId"), userID)

	resp, err = noRedirect.Get(ts.URL + "/auth/myspace")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOtherUsersResourcesAreHidden(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	client, _, _ := signedInClient(t, ts)
	ctx := context.Background()
	campaign, err := client.CreateCampaign(ctx, domain.Campaign{Name: "Mine"})
	require.NoError(t, err)

	other, err := srv.CreateUser(ctx, domain.SignupRequest{Username: "bo", Name: "Bo", Email: "bo@example.com", Password: "pw"})
	require.NoError(t, err)
	otherClient := api.NewClient(ts.URL, &tokenAuth{token: other.Token}, api.WithHTTPClient(ts.Client()))

	_, err = otherClient.GetCampaign(ctx, campaign.ID)
	assert.ErrorIs(t, err, api.ErrNotFound)
	list, err := otherClient.ListCampaigns(ctx, other.User.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFormatDollars(t *testing.T) {
	cases := map[float64]string{
		0:        "$0",
		999:      "$999",
		10000:    "$10,000",
		1234.5:   "$1,234.50",
		-2500000: "-$2,500,000",
	}
	for in, want := range cases {
		if got := formatDollars(in); got != want {
			t.Fatalf("formatDollars(%v) = %q, want %q", in, got, want)
		}
	}
}
