package feed

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arunshreyas/Marketa/internal/api"
	"github.com/arunshreyas/Marketa/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource serves scripted stream events and poll results.
type fakeSource struct {
	mu       sync.Mutex
	events   []api.SSEEvent
	streamFn func(ctx context.Context) error
	replies  []domain.Reply
	pollErr  error

	streams atomic.Int32
	polls   atomic.Int32
}

func (s *fakeSource) StreamMessages(ctx context.Context, _ string, handler api.EventHandler) error {
	s.streams.Add(1)
	s.mu.Lock()
	events := s.events
	s.events = nil
	fn := s.streamFn
	s.mu.Unlock()

	for _, e := range events {
		if err := handler(e); err != nil {
			return err
		}
	}
	if fn != nil {
		return fn(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeSource) CampaignResponses(context.Context, string) ([]domain.Reply, error) {
	s.polls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Reply(nil), s.replies...), s.pollErr
}

func (s *fakeSource) setReplies(replies ...domain.Reply) {
	s.mu.Lock()
	s.replies = replies
	s.mu.Unlock()
}

func fastOptions() Options {
	return Options{
		PollInterval:   5 * time.Millisecond,
		MaxAttempts:    5,
		ReconnectDelay: 5 * time.Millisecond,
	}
}

func receive(t *testing.T, ch <-chan domain.Reply) domain.Reply {
	t.Helper()
	select {
	case r, ok := <-ch:
		require.True(t, ok, "replies channel closed")
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}
	return domain.Reply{}
}

func assertNoReply(t *testing.T, ch <-chan domain.Reply, wait time.Duration) {
	t.Helper()
	select {
	case r, ok := <-ch:
		if ok {
			t.Fatalf("unexpected reply: %+v", r)
		}
	case <-time.After(wait):
	}
}

func TestPushAndPollDeliverOnce(t *testing.T) {
	src := &fakeSource{events: []api.SSEEvent{
		{Event: domain.StreamEventPing, Data: "{}"},
		{Event: domain.StreamEventReply, Data: `{"message_id":"X","reply":"$10,000"}`},
		{Event: domain.StreamEventReply, Data: `{"message_id":"X","reply":"$10,000"}`},
		{Event: domain.StreamEventMessage, Data: `{"_id":"m9","role":"user","content":"hi"}`},
	}}
	src.setReplies(domain.Reply{CorrelationID: "X", Content: "$10,000"})

	f := New("c1", src, fastOptions())
	f.Track("X")
	f.Start(context.Background())
	defer f.Close()

	r := receive(t, f.Replies())
	assert.Equal(t, "X", r.CorrelationID)
	assert.Equal(t, "$10,000", r.Content)
	assertNoReply(t, f.Replies(), 50*time.Millisecond)
	assert.Equal(t, 0, f.Pending())
}

func TestPollOnlyWhilePending(t *testing.T) {
	src := &fakeSource{}
	opts := fastOptions()
	opts.DisablePush = true
	f := New("c1", src, opts)
	f.Start(context.Background())
	defer f.Close()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), src.polls.Load())
	assert.Equal(t, int32(0), src.streams.Load())

	src.setReplies(
		domain.Reply{CorrelationID: "old", Content: "historic"},
		domain.Reply{CorrelationID: "Y", Content: "fresh"},
	)
	f.Track("Y")

	r := receive(t, f.Replies())
	assert.Equal(t, "Y", r.CorrelationID)
	assert.Equal(t, domain.SourcePoll, r.Source)
	assertNoReply(t, f.Replies(), 30*time.Millisecond)
}

func TestPollGivesUpAfterMaxAttempts(t *testing.T) {
	src := &fakeSource{pollErr: errors.New("temporary")}
	opts := fastOptions()
	opts.DisablePush = true
	f := New("c1", src, opts)
	f.Track("Z")
	f.Start(context.Background())
	defer f.Close()

	select {
	case id := <-f.Expired():
		assert.Equal(t, "Z", id)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for expiry")
	}
	assert.GreaterOrEqual(t, src.polls.Load(), int32(opts.MaxAttempts))
	assert.Equal(t, 0, f.Pending())
}

func TestUnauthorizedStopsFeed(t *testing.T) {
	src := &fakeSource{streamFn: func(context.Context) error {
		return &api.Error{Op: "open message stream", Status: http.StatusUnauthorized, Message: "expired"}
	}}
	f := New("c1", src, fastOptions())
	f.Start(context.Background())

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
	assert.True(t, api.IsUnauthorized(f.Err()))
	_, ok := <-f.Replies()
	assert.False(t, ok)
	assert.True(t, api.IsUnauthorized(f.Close()))
}

func TestPushReconnects(t *testing.T) {
	src := &fakeSource{streamFn: func(context.Context) error {
		return api.ErrNetwork
	}}
	f := New("c1", src, fastOptions())
	f.Start(context.Background())

	require.Eventually(t, func() bool { return src.streams.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, f.Close())
}

func TestSeenSuppressesDelivery(t *testing.T) {
	src := &fakeSource{events: []api.SSEEvent{
		{Event: domain.StreamEventReply, Data: `{"message_id":"A","reply":"known"}`},
		{Event: domain.StreamEventReply, Data: `{"message_id":"B","reply":"new"}`},
	}}
	f := New("c1", src, fastOptions())
	f.Seen("A")
	f.Start(context.Background())
	defer f.Close()

	r := receive(t, f.Replies())
	assert.Equal(t, "B", r.CorrelationID)
}

func TestCloseWithoutStart(t *testing.T) {
	f := New("c1", &fakeSource{}, Options{})
	require.NoError(t, f.Close())
	_, ok := <-f.Replies()
	assert.False(t, ok)
}

func TestContextCancelStopsFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := New("c1", &fakeSource{}, fastOptions())
	f.Track("X")
	f.Start(ctx)
	cancel()

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
	assert.NoError(t, f.Err())
}
