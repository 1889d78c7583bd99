// Package reconcile keeps a campaign transcript consistent while messages and
// replies arrive from several sources: the local echo, the push stream, the
// poll loop, the synchronous chat endpoint and the server copy.
//
// A user message acquires at most one assistant reply. Replies are spliced
// directly after the user message they answer, or appended when that message
// is not in the transcript.
package reconcile

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/domain"
	"github.com/arunshreyas/Marketa/internal/logging"
)

// ErrorReply is the assistant message shown when a send fails.
const ErrorReply = "Sorry, I encountered an error. Please try again or check your campaign details."

const localPrefix = "local-"

// Cache persists transcripts. store.Store satisfies it.
type Cache interface {
	SaveTranscript(ctx context.Context, campaignID string, messages []domain.Message) error
}

// Reconciler owns the ordered transcript of one campaign. It is safe for
// concurrent use.
type Reconciler struct {
	campaignID string
	cache      Cache
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	messages []domain.Message
	attached map[string]struct{}
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates an empty reconciler for campaignID. cache may be nil.
func New(campaignID string, cache Cache, logger *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		campaignID: campaignID,
		cache:      cache,
		logger:     logging.OrNop(logger).With(zap.String("campaign_id", campaignID)),
		now:        time.Now,
		attached:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CampaignID returns the campaign this transcript belongs to.
func (r *Reconciler) CampaignID() string {
	return r.campaignID
}

// IsLocalID reports whether id is a client placeholder the server never saw.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localPrefix)
}

// Echo appends a user message with a placeholder id and returns it.
func (r *Reconciler) Echo(ctx context.Context, content string) domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := domain.Message{
		ID:         localPrefix + uuid.NewString(),
		Role:       domain.RoleUser,
		Content:    content,
		CreatedAt:  r.now().UTC(),
		CampaignID: r.campaignID,
		Status:     domain.MessageStatusComposed,
	}
	r.messages = append(r.messages, msg)
	r.persist(ctx)
	return msg
}

// MarkSent gives the echoed message its server identity. The message waits
// for a reply under correlationID (serverID when empty). It reports whether
// the placeholder was found.
func (r *Reconciler) MarkSent(ctx context.Context, placeholder, serverID, correlationID string, createdAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexByID(placeholder)
	if idx < 0 {
		return false
	}
	if correlationID == "" {
		correlationID = serverID
	}
	msg := &r.messages[idx]
	if serverID != "" {
		msg.ID = serverID
	}
	msg.CorrelationID = correlationID
	if !createdAt.IsZero() {
		msg.CreatedAt = createdAt
	}
	msg.Status = domain.MessageStatusPending

	// The push stream can beat the POST response; that reply was appended
	// at the end and now moves under its message.
	if _, ok := r.attached[msg.Key()]; ok {
		msg.Status = domain.MessageStatusReplied
		r.moveReplyAfter(idx)
	}
	r.persist(ctx)
	return true
}

// MarkFailed records a failed send: the user message stays and a synthetic
// assistant error message is appended.
func (r *Reconciler) MarkFailed(ctx context.Context, placeholder string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexByID(placeholder)
	if idx < 0 {
		return false
	}
	r.messages[idx].Status = domain.MessageStatusFailed
	r.messages = append(r.messages, domain.Message{
		ID:         localPrefix + "error-" + uuid.NewString(),
		Role:       domain.RoleAssistant,
		Content:    ErrorReply,
		CreatedAt:  r.now().UTC(),
		CampaignID: r.campaignID,
	})
	r.persist(ctx)
	return true
}

// MarkRejected records a send the backend refused for lack of a session. The
// user message stays; no error message is added.
func (r *Reconciler) MarkRejected(ctx context.Context, placeholder string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexByID(placeholder)
	if idx < 0 {
		return false
	}
	r.messages[idx].Status = domain.MessageStatusFailed
	r.persist(ctx)
	return true
}

// MarkTimedOut records that no reply arrived for correlationID in time.
func (r *Reconciler) MarkTimedOut(ctx context.Context, correlationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOfUser(correlationID)
	if idx < 0 || r.messages[idx].Status != domain.MessageStatusPending {
		return false
	}
	r.messages[idx].Status = domain.MessageStatusTimedOut
	r.persist(ctx)
	return true
}

// Attach merges a reply. It is idempotent: a correlation id that already has
// a reply is ignored. It reports whether the transcript changed.
func (r *Reconciler) Attach(ctx context.Context, reply domain.Reply) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.attachLocked(reply) {
		r.persist(ctx)
		return true
	}
	return false
}

// AttachKnown merges the replies whose user message is in the transcript and
// ignores the rest. It restores answers after a server load, when the reply
// list may hold the whole campaign history.
func (r *Reconciler) AttachKnown(ctx context.Context, replies []domain.Reply) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, reply := range replies {
		if reply.CorrelationID == "" || r.indexOfUser(reply.CorrelationID) < 0 {
			continue
		}
		if r.attachLocked(reply) {
			n++
		}
	}
	if n > 0 {
		r.persist(ctx)
	}
	return n
}

func (r *Reconciler) attachLocked(reply domain.Reply) bool {
	key := reply.CorrelationID
	if key == "" {
		// Uncorrelated replies can only be de-duplicated by their own id.
		if reply.MessageID == "" || r.indexByID(reply.MessageID) >= 0 {
			return false
		}
		r.messages = append(r.messages, r.replyMessage(reply))
		return true
	}
	if _, ok := r.attached[key]; ok {
		return false
	}

	msg := r.replyMessage(reply)
	if idx := r.indexOfUser(key); idx >= 0 {
		r.messages = insertAt(r.messages, idx+1, msg)
		r.messages[idx].Status = domain.MessageStatusReplied
	} else {
		r.logger.Debug("reply for unknown message appended", zap.String("correlation_id", key))
		r.messages = append(r.messages, msg)
	}
	r.attached[key] = struct{}{}
	return true
}

// Hydrate restores a cached transcript. The cache is advisory; Replace
// overrides it once the server answers.
func (r *Reconciler) Hydrate(cached []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append([]domain.Message(nil), cached...)
	r.rebuildAttached()
}

// Replace installs the server copy of the transcript. Local messages the
// server does not know yet survive: unsent and pending echoes, error
// messages, and replies to messages the server has but did not answer.
func (r *Reconciler) Replace(ctx context.Context, server []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	local := r.messages
	r.messages = make([]domain.Message, 0, len(server)+len(local))
	r.attached = make(map[string]struct{})
	known := make(map[string]struct{}, len(server))

	for _, m := range server {
		if m.CampaignID == "" {
			m.CampaignID = r.campaignID
		}
		if m.Role == domain.RoleAssistant && m.CorrelationID == "" && len(r.messages) > 0 {
			// An uncorrelated reply answers the user message right before it.
			prev := r.messages[len(r.messages)-1]
			if prev.Role == domain.RoleUser {
				if _, ok := r.attached[prev.Key()]; !ok {
					m.CorrelationID = prev.Key()
				}
			}
		}
		known[m.ID] = struct{}{}
		r.messages = append(r.messages, m)
		if m.Role == domain.RoleAssistant && m.CorrelationID != "" {
			r.attached[m.CorrelationID] = struct{}{}
		}
	}
	for i, m := range r.messages {
		if m.Role == domain.RoleUser {
			if _, ok := r.attached[m.Key()]; ok {
				r.messages[i].Status = domain.MessageStatusReplied
			}
		}
	}

	for _, m := range local {
		if _, ok := known[m.ID]; ok {
			continue
		}
		switch {
		case m.Role == domain.RoleUser:
			if !IsLocalID(m.ID) && !unresolved(m.Status) {
				continue
			}
			if r.indexOfUser(m.Key()) >= 0 {
				continue
			}
			r.messages = append(r.messages, m)
		case m.CorrelationID != "":
			if _, ok := r.attached[m.CorrelationID]; ok {
				continue
			}
			idx := r.indexOfUser(m.CorrelationID)
			if idx < 0 {
				continue
			}
			r.messages = insertAt(r.messages, idx+1, m)
			r.messages[idx].Status = domain.MessageStatusReplied
			r.attached[m.CorrelationID] = struct{}{}
		case IsLocalID(m.ID):
			r.messages = append(r.messages, m)
		}
	}
	r.persist(ctx)
}

// Snapshot returns a copy of the transcript in display order.
func (r *Reconciler) Snapshot() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.messages...)
}

// Pending returns the correlation ids of sent messages still awaiting a reply.
func (r *Reconciler) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, m := range r.messages {
		if m.Role != domain.RoleUser || m.Status != domain.MessageStatusPending {
			continue
		}
		if _, ok := r.attached[m.Key()]; ok {
			continue
		}
		ids = append(ids, m.Key())
	}
	return ids
}

// Answered returns the correlation ids that already have a reply.
func (r *Reconciler) Answered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.attached))
	for id := range r.attached {
		ids = append(ids, id)
	}
	return ids
}

// HasReply reports whether correlationID already has a reply.
func (r *Reconciler) HasReply(correlationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.attached[correlationID]
	return ok
}

func (r *Reconciler) replyMessage(reply domain.Reply) domain.Message {
	id := reply.MessageID
	if id == "" || r.indexByID(id) >= 0 {
		id = reply.CorrelationID + "-response"
	}
	createdAt := reply.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now().UTC()
	}
	return domain.Message{
		ID:            id,
		Role:          domain.RoleAssistant,
		Content:       reply.Content,
		CreatedAt:     createdAt,
		CampaignID:    r.campaignID,
		CorrelationID: reply.CorrelationID,
	}
}

// moveReplyAfter moves the reply to the user message at idx directly after it.
func (r *Reconciler) moveReplyAfter(idx int) {
	key := r.messages[idx].Key()
	for j := range r.messages {
		m := r.messages[j]
		if j == idx || m.Role != domain.RoleAssistant || m.CorrelationID != key {
			continue
		}
		if j == idx+1 {
			return
		}
		r.messages = append(r.messages[:j], r.messages[j+1:]...)
		if j < idx {
			idx--
		}
		r.messages = insertAt(r.messages, idx+1, m)
		return
	}
}

func (r *Reconciler) rebuildAttached() {
	r.attached = make(map[string]struct{})
	for _, m := range r.messages {
		if m.Role == domain.RoleAssistant && m.CorrelationID != "" {
			r.attached[m.CorrelationID] = struct{}{}
		}
	}
}

func (r *Reconciler) indexByID(id string) int {
	for i, m := range r.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// indexOfUser finds the user message matching key by correlation id or id.
func (r *Reconciler) indexOfUser(key string) int {
	for i, m := range r.messages {
		if m.Role == domain.RoleUser && (m.CorrelationID == key || m.ID == key) {
			return i
		}
	}
	return -1
}

// persist writes the transcript through the cache. Failures are logged only.
// Callers hold r.mu so writes land in mutation order.
func (r *Reconciler) persist(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SaveTranscript(ctx, r.campaignID, r.messages); err != nil {
		r.logger.Warn("failed to cache transcript", zap.Error(err))
	}
}

func unresolved(s domain.MessageStatus) bool {
	switch s {
	case domain.MessageStatusComposed, domain.MessageStatusPending, domain.MessageStatusFailed, domain.MessageStatusTimedOut:
		return true
	}
	return false
}

func insertAt(list []domain.Message, i int, m domain.Message) []domain.Message {
	list = append(list, domain.Message{})
	copy(list[i+1:], list[i:])
	list[i] = m
	return list
}
