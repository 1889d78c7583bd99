// Package chat drives one open campaign conversation: it restores the cached
// transcript, loads the server copy, sends messages and merges replies from
// the feed into the reconciled transcript.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/api"
	"github.com/arunshreyas/Marketa/internal/domain"
	"github.com/arunshreyas/Marketa/internal/feed"
	"github.com/arunshreyas/Marketa/internal/logging"
	"github.com/arunshreyas/Marketa/internal/reconcile"
)

var (
	// ErrNotOpen is returned by operations that need an open campaign.
	ErrNotOpen = errors.New("chat: no campaign open")
	// ErrAlreadyOpen is returned when Open is called twice.
	ErrAlreadyOpen = errors.New("chat: campaign already open")
	// ErrNoUser is returned when no signed-in user can be named as sender.
	ErrNoUser = errors.New("chat: user not authenticated")
)

// Backend is the part of the API the controller uses. *api.Client satisfies it.
type Backend interface {
	feed.Source
	CampaignMessages(ctx context.Context, campaignID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, req domain.SendMessageRequest) (*api.SentMessage, error)
	CampaignChat(ctx context.Context, campaignID string, req domain.CampaignChatRequest) (string, error)
}

// TranscriptCache stores transcripts between runs. store.Store satisfies it.
type TranscriptCache interface {
	reconcile.Cache
	LoadTranscript(ctx context.Context, campaignID string) ([]domain.Message, error)
}

// Identity names the signed-in user. *session.Manager satisfies it.
type Identity interface {
	UserID() string
}

// Update is pushed to the presentation after every change.
type Update struct {
	Messages []domain.Message
	// Err is a problem worth showing that did not close the chat.
	Err error
	// Expired is set when the backend rejected the session.
	Expired bool
}

const updateBuffer = 32

// Options tune a Controller.
type Options struct {
	Feed   feed.Options
	Logger *zap.Logger
}

// Controller is the chat of one campaign.
type Controller struct {
	backend  Backend
	cache    TranscriptCache
	identity Identity
	opts     Options
	logger   *zap.Logger

	updates       chan Update
	emitMu        sync.Mutex
	updatesClosed bool

	mu     sync.Mutex
	rec    *reconcile.Reconciler
	feed   *feed.Feed
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewController creates a controller. cache may be nil.
func NewController(backend Backend, cache TranscriptCache, identity Identity, opts Options) *Controller {
	opts.Logger = logging.OrNop(opts.Logger)
	if opts.Feed.Logger == nil {
		opts.Feed.Logger = opts.Logger
	}
	return &Controller{
		backend:  backend,
		cache:    cache,
		identity: identity,
		opts:     opts,
		logger:   opts.Logger,
		updates:  make(chan Update, updateBuffer),
	}
}

// Updates delivers transcript snapshots. Only the latest pending update is
// guaranteed; older ones may be dropped when the reader falls behind, but
// their Expired and Err values are folded into a later update. It is closed
// by Close.
func (c *Controller) Updates() <-chan Update {
	return c.updates
}

// Open restores the cached transcript of campaignID, replaces it with the
// server copy and subscribes to replies until ctx ends or Close is called. A
// failed server load keeps the cache and is reported as an Update; only a
// rejected session fails Open.
func (c *Controller) Open(ctx context.Context, campaignID string) error {
	if campaignID == "" {
		return fmt.Errorf("chat: campaign id is required")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if c.rec != nil {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	var cache reconcile.Cache
	if c.cache != nil {
		cache = c.cache
	}
	rec := reconcile.New(campaignID, cache, c.logger)
	c.rec = rec
	c.mu.Unlock()

	logger := c.logger.With(zap.String("campaign_id", campaignID))

	if c.cache != nil {
		cached, err := c.cache.LoadTranscript(ctx, campaignID)
		if err != nil {
			logger.Warn("failed to read cached transcript", zap.Error(err))
		} else if len(cached) > 0 {
			rec.Hydrate(cached)
			c.emit(Update{Messages: rec.Snapshot()})
		}
	}

	server, err := c.backend.CampaignMessages(ctx, campaignID)
	switch {
	case api.IsUnauthorized(err):
		c.emit(Update{Messages: rec.Snapshot(), Expired: true})
		return err
	case err != nil:
		logger.Warn("failed to load messages", zap.Error(err))
		c.emit(Update{Messages: rec.Snapshot(), Err: fmt.Errorf("failed to load messages: %w", err)})
	default:
		rec.Replace(ctx, server)
		if replies, err := c.backend.CampaignResponses(ctx, campaignID); err == nil {
			rec.AttachKnown(ctx, replies)
		} else if api.IsUnauthorized(err) {
			c.emit(Update{Messages: rec.Snapshot(), Expired: true})
			return err
		} else {
			logger.Debug("failed to load replies", zap.Error(err))
		}
		c.emit(Update{Messages: rec.Snapshot()})
	}

	c.startFeed(ctx, campaignID, rec)
	return nil
}

func (c *Controller) startFeed(ctx context.Context, campaignID string, rec *reconcile.Reconciler) {
	fctx, cancel := context.WithCancel(ctx)
	f := feed.New(campaignID, c.backend, c.opts.Feed)
	f.Seen(rec.Answered()...)
	for _, id := range rec.Pending() {
		f.Track(id)
	}

	c.mu.Lock()
	c.feed = f
	c.cancel = cancel
	c.mu.Unlock()

	f.Start(fctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pump(fctx, f, rec)
	}()
}

// pump moves feed output into the transcript until the feed stops.
func (c *Controller) pump(ctx context.Context, f *feed.Feed, rec *reconcile.Reconciler) {
	replies, expired := f.Replies(), f.Expired()
	for replies != nil || expired != nil {
		select {
		case reply, ok := <-replies:
			if !ok {
				replies = nil
				continue
			}
			if rec.Attach(ctx, reply) {
				c.emit(Update{Messages: rec.Snapshot()})
			}
		case id, ok := <-expired:
			if !ok {
				expired = nil
				continue
			}
			if rec.MarkTimedOut(ctx, id) {
				c.emit(Update{Messages: rec.Snapshot()})
			}
		}
	}
	if err := f.Err(); api.IsUnauthorized(err) {
		c.emit(Update{Messages: rec.Snapshot(), Expired: true})
	}
}

// Send posts content as a user message. Empty input is ignored. The message
// shows at once; the reply arrives later through Updates. On a network or
// server failure an error reply is added and the error returned. When the
// session is rejected the message stays without an error reply.
func (c *Controller) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	rec, f, err := c.current()
	if err != nil {
		return err
	}

	echo := rec.Echo(ctx, content)
	c.emit(Update{Messages: rec.Snapshot()})

	userID := c.identity.UserID()
	if userID == "" {
		rec.MarkRejected(ctx, echo.ID)
		c.emit(Update{Messages: rec.Snapshot(), Expired: true})
		return ErrNoUser
	}

	sent, err := c.backend.SendMessage(ctx, domain.SendMessageRequest{
		Campaign: rec.CampaignID(),
		Sender:   userID,
		Content:  content,
		Role:     domain.RoleUser,
	})
	if err != nil {
		return c.failed(ctx, rec, echo.ID, err)
	}

	rec.MarkSent(ctx, echo.ID, sent.ID, sent.CorrelationID, sent.CreatedAt)
	if corr := sent.CorrelationID; corr != "" && !rec.HasReply(corr) {
		f.Track(corr)
	}
	c.emit(Update{Messages: rec.Snapshot()})
	return nil
}

// Ask is the synchronous variant of Send: the assistant's answer comes back
// in the response and is placed under the message before Ask returns.
func (c *Controller) Ask(ctx context.Context, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", nil
	}
	rec, _, err := c.current()
	if err != nil {
		return "", err
	}

	echo := rec.Echo(ctx, content)
	c.emit(Update{Messages: rec.Snapshot()})

	answer, err := c.backend.CampaignChat(ctx, rec.CampaignID(), domain.CampaignChatRequest{
		Prompt: content,
		UserID: c.identity.UserID(),
	})
	if err != nil {
		return "", c.failed(ctx, rec, echo.ID, err)
	}

	rec.Attach(ctx, domain.Reply{
		CorrelationID: echo.ID,
		CampaignID:    rec.CampaignID(),
		Content:       answer,
		Source:        domain.SourceSync,
	})
	c.emit(Update{Messages: rec.Snapshot()})
	return answer, nil
}

func (c *Controller) failed(ctx context.Context, rec *reconcile.Reconciler, placeholder string, err error) error {
	if api.IsUnauthorized(err) {
		rec.MarkRejected(ctx, placeholder)
		c.emit(Update{Messages: rec.Snapshot(), Expired: true})
		return err
	}
	c.logger.Warn("failed to send message", zap.Error(err))
	rec.MarkFailed(ctx, placeholder)
	c.emit(Update{Messages: rec.Snapshot(), Err: err})
	return err
}

// Snapshot returns the current transcript.
func (c *Controller) Snapshot() []domain.Message {
	rec, _, err := c.current()
	if err != nil {
		return nil
	}
	return rec.Snapshot()
}

// CampaignID returns the open campaign, or "".
func (c *Controller) CampaignID() string {
	rec, _, err := c.current()
	if err != nil {
		return ""
	}
	return rec.CampaignID()
}

func (c *Controller) current() (*reconcile.Reconciler, *feed.Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.rec == nil || c.feed == nil {
		return nil, nil, ErrNotOpen
	}
	return c.rec, c.feed, nil
}

// Close unsubscribes and waits for background work. It is safe to call more
// than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	f, cancel := c.feed, c.cancel
	c.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
	}
	if f != nil {
		err = f.Close()
	}
	c.wg.Wait()

	c.emitMu.Lock()
	c.updatesClosed = true
	close(c.updates)
	c.emitMu.Unlock()

	if api.IsUnauthorized(err) {
		return nil
	}
	return err
}

// emit queues u, dropping the oldest queued update when the reader lags.
func (c *Controller) emit(u Update) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	if c.updatesClosed {
		return
	}
	for {
		select {
		case c.updates <- u:
			return
		default:
		}
		// Full: drop the oldest snapshot but carry its flags forward.
		select {
		case old := <-c.updates:
			u.Expired = u.Expired || old.Expired
			switch {
			case u.Err == nil:
				u.Err = old.Err
			case old.Err != nil:
				u.Err = errors.Join(old.Err, u.Err)
			}
		default:
		}
	}
}
