// Package feed merges the two ways a campaign's replies reach the client, the
// push stream and the poll loop, into one de-duplicated channel.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arunshreyas/Marketa/internal/api"
	"github.com/arunshreyas/Marketa/internal/domain"
	"github.com/arunshreyas/Marketa/internal/logging"
)

// Defaults mirror the web client.
const (
	DefaultPollInterval   = 2 * time.Second
	DefaultMaxAttempts    = 20
	DefaultReconnectDelay = 3 * time.Second
)

// Source is the backend the feed reads from. *api.Client satisfies it.
type Source interface {
	StreamMessages(ctx context.Context, campaignID string, handler api.EventHandler) error
	CampaignResponses(ctx context.Context, campaignID string) ([]domain.Reply, error)
}

// Options tune a Feed. Zero values take the defaults.
type Options struct {
	PollInterval   time.Duration
	MaxAttempts    int
	ReconnectDelay time.Duration
	// DisablePush turns the feed into a pure poller.
	DisablePush bool
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// Feed is the reply subscription of one open campaign.
type Feed struct {
	campaignID string
	src        Source
	opts       Options
	logger     *zap.Logger

	replies chan domain.Reply
	expired chan string
	wake    chan struct{}

	mu        sync.Mutex
	pending   map[string]int
	delivered map[string]struct{}

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
}

// New creates a feed for campaignID. Call Start to begin receiving.
func New(campaignID string, src Source, opts Options) *Feed {
	opts = opts.withDefaults()
	return &Feed{
		campaignID: campaignID,
		src:        src,
		opts:       opts,
		logger:     opts.Logger.With(zap.String("campaign_id", campaignID)),
		replies:    make(chan domain.Reply, 16),
		expired:    make(chan string, 16),
		wake:       make(chan struct{}, 1),
		pending:    make(map[string]int),
		delivered:  make(map[string]struct{}),
		cancel:     func() {},
		done:       make(chan struct{}),
	}
}

// Start launches the push and poll sources. They stop when ctx ends, when
// Close is called, or when the backend rejects the session.
func (f *Feed) Start(ctx context.Context) {
	f.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		f.cancel = cancel

		g, gctx := errgroup.WithContext(ctx)
		if !f.opts.DisablePush {
			g.Go(func() error { return f.push(gctx) })
		}
		g.Go(func() error { return f.poll(gctx) })

		go func() {
			err := g.Wait()
			cancel()
			f.err = err
			close(f.replies)
			close(f.expired)
			close(f.done)
		}()
	})
}

// Replies delivers each correlation id at most once. It is closed when the
// feed stops.
func (f *Feed) Replies() <-chan domain.Reply {
	return f.replies
}

// Expired delivers correlation ids given up after the attempt ceiling. It is
// closed when the feed stops.
func (f *Feed) Expired() <-chan string {
	return f.expired
}

// Done is closed once every source has stopped.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Err returns why the feed stopped. It is nil after a plain cancellation and
// matches api.ErrUnauthorized when the session was rejected.
func (f *Feed) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Track starts polling for correlationID until it is delivered or expires.
func (f *Feed) Track(correlationID string) {
	if correlationID == "" {
		return
	}
	f.mu.Lock()
	if _, ok := f.delivered[correlationID]; ok {
		f.mu.Unlock()
		return
	}
	if _, ok := f.pending[correlationID]; !ok {
		f.pending[correlationID] = 0
	}
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Seen marks correlation ids the consumer already holds so neither source
// delivers them again.
func (f *Feed) Seen(correlationIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range correlationIDs {
		if id != "" {
			f.delivered[id] = struct{}{}
			delete(f.pending, id)
		}
	}
}

// Pending returns the number of correlation ids still polled for.
func (f *Feed) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Close stops the feed and waits for its goroutines. A feed that was never
// started closes immediately.
func (f *Feed) Close() error {
	f.startOnce.Do(func() {
		close(f.replies)
		close(f.expired)
		close(f.done)
	})
	f.cancel()
	<-f.done
	return f.err
}

func (f *Feed) push(ctx context.Context) error {
	handler := func(event api.SSEEvent) error {
		switch event.Event {
		case domain.StreamEventPing:
			return nil
		case domain.StreamEventMessage, domain.StreamEventReply:
		default:
			f.logger.Debug("ignoring stream event", zap.String("event", event.Event))
			return nil
		}
		reply, err := api.ParseReplyEvent(event.Data)
		if err != nil {
			if !errors.Is(err, api.ErrNotReply) {
				f.logger.Debug("dropping malformed stream event", zap.Error(err))
			}
			return nil
		}
		f.deliver(ctx, reply)
		return ctx.Err()
	}

	for {
		err := f.src.StreamMessages(ctx, f.campaignID, handler)
		if ctx.Err() != nil {
			return nil
		}
		if api.IsUnauthorized(err) {
			return err
		}
		if err != nil {
			f.logger.Debug("message stream failed", zap.Error(err))
		}

		timer := time.NewTimer(f.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (f *Feed) poll(ctx context.Context) error {
	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	for {
		if f.Pending() == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-f.wake:
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if f.Pending() == 0 {
			continue
		}

		replies, err := f.src.CampaignResponses(ctx, f.campaignID)
		if ctx.Err() != nil {
			return nil
		}
		if api.IsUnauthorized(err) {
			return err
		}
		if err != nil {
			f.logger.Debug("poll failed", zap.Error(err))
		}
		for _, reply := range replies {
			// Historic replies stay out of the transcript; only tracked
			// correlations are taken from the poll.
			if !f.isPending(reply.CorrelationID) {
				continue
			}
			reply.Source = domain.SourcePoll
			f.deliver(ctx, reply)
		}

		for _, id := range f.countAttempt() {
			f.logger.Debug("gave up waiting for reply", zap.String("correlation_id", id))
			select {
			case f.expired <- id:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (f *Feed) isPending(id string) bool {
	if id == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[id]
	return ok
}

// countAttempt charges one attempt to every pending id and returns those that
// reached the ceiling.
func (f *Feed) countAttempt() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var expired []string
	for id, n := range f.pending {
		n++
		if n >= f.opts.MaxAttempts {
			delete(f.pending, id)
			expired = append(expired, id)
			continue
		}
		f.pending[id] = n
	}
	return expired
}

func (f *Feed) deliver(ctx context.Context, reply domain.Reply) {
	key := reply.CorrelationID
	if key == "" {
		key = "id:" + reply.MessageID
	}
	f.mu.Lock()
	if _, ok := f.delivered[key]; ok {
		f.mu.Unlock()
		return
	}
	f.delivered[key] = struct{}{}
	delete(f.pending, reply.CorrelationID)
	f.mu.Unlock()

	select {
	case f.replies <- reply:
	case <-ctx.Done():
	}
}
