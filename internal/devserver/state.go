package devserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arunshreyas/Marketa/internal/domain"
)

var (
	errNotFound  = errors.New("not found")
	errConflict  = errors.New("already exists")
	errForbidden = errors.New("not owner")
)

type userRecord struct {
	user         domain.User
	passwordHash []byte
	brand        *domain.Brand
}

type storedMessage struct {
	ID         string    `json:"_id"`
	CampaignID string    `json:"campaign"`
	Sender     string    `json:"sender"`
	Content    string    `json:"content"`
	Role       string    `json:"role"`
	MessageID  string    `json:"message_id"`
	CreatedAt  time.Time `json:"createdAt"`
}

type storedResponse struct {
	ID         string
	MessageID  string
	CampaignID string
	Response   string
	CreatedAt  time.Time
}

// state is the in-memory database of the dev backend.
type state struct {
	mu        sync.RWMutex
	users     map[string]*userRecord
	emails    map[string]string
	campaigns map[string]*domain.Campaign
	order     []string
	messages  map[string][]storedMessage
	responses []storedResponse
}

func newState() *state {
	return &state{
		users:     make(map[string]*userRecord),
		emails:    make(map[string]string),
		campaigns: make(map[string]*domain.Campaign),
		messages:  make(map[string][]storedMessage),
	}
}

// newObjectID returns a 24 character hex id shaped like the backend's ids.
func newObjectID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *state) addUser(u domain.User, hash []byte) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(u.Email)
	if _, ok := s.emails[email]; ok {
		return domain.User{}, errConflict
	}
	now := time.Now().UTC()
	u.ID = newObjectID()
	u.Email = email
	u.CreatedAt = &now
	u.UpdatedAt = &now
	if u.Subscription == nil {
		u.Subscription = &domain.Subscription{Plan: "free", Status: "active"}
	}
	if u.UsageMetrics == nil {
		u.UsageMetrics = &domain.UsageMetrics{}
	}
	s.users[u.ID] = &userRecord{user: u, passwordHash: hash}
	s.emails[email] = u.ID
	return u, nil
}

func (s *state) userByEmail(email string) (*userRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[normalizeEmail(email)]
	if !ok {
		return nil, false
	}
	rec := *s.users[id]
	return &rec, true
}

func (s *state) user(id string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return domain.User{}, false
	}
	return rec.user, true
}

func (s *state) updateUser(id string, fn func(*userRecord) error) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok {
		return domain.User{}, errNotFound
	}
	oldEmail := rec.user.Email
	if err := fn(rec); err != nil {
		return domain.User{}, err
	}
	rec.user.Email = normalizeEmail(rec.user.Email)
	if rec.user.Email != oldEmail {
		if _, taken := s.emails[rec.user.Email]; taken {
			rec.user.Email = oldEmail
			return domain.User{}, errConflict
		}
		delete(s.emails, oldEmail)
		s.emails[rec.user.Email] = id
	}
	now := time.Now().UTC()
	rec.user.UpdatedAt = &now
	return rec.user, nil
}

func (s *state) brand(userID string) (*domain.Brand, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[userID]
	if !ok || rec.brand == nil {
		return nil, false
	}
	b := *rec.brand
	return &b, true
}

func (s *state) addCampaign(c domain.Campaign) domain.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	c.ID = newObjectID()
	c.CreatedAt = &now
	c.UpdatedAt = &now
	s.campaigns[c.ID] = &c
	s.order = append(s.order, c.ID)
	return c
}

// campaign returns the campaign when userID owns it.
func (s *state) campaign(userID, id string) (domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return domain.Campaign{}, errNotFound
	}
	if c.UserID != userID {
		return domain.Campaign{}, errForbidden
	}
	return *c, nil
}

func (s *state) campaignsOf(userID string) []domain.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Campaign{}
	for _, id := range s.order {
		if c, ok := s.campaigns[id]; ok && c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out
}

func (s *state) replaceCampaign(userID string, c domain.Campaign) (domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.campaigns[c.ID]
	if !ok {
		return domain.Campaign{}, errNotFound
	}
	if old.UserID != userID {
		return domain.Campaign{}, errForbidden
	}
	now := time.Now().UTC()
	c.UserID = old.UserID
	c.CreatedAt = old.CreatedAt
	c.UpdatedAt = &now
	s.campaigns[c.ID] = &c
	return c, nil
}

func (s *state) deleteCampaign(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return errNotFound
	}
	if c.UserID != userID {
		return errForbidden
	}
	delete(s.campaigns, id)
	delete(s.messages, id)
	for i, cid := range s.order {
		if cid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	kept := s.responses[:0]
	for _, r := range s.responses {
		if r.CampaignID != id {
			kept = append(kept, r)
		}
	}
	s.responses = kept
	return nil
}

func (s *state) addMessage(m storedMessage) storedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = newObjectID()
	m.MessageID = newObjectID()
	m.CreatedAt = time.Now().UTC()
	s.messages[m.CampaignID] = append(s.messages[m.CampaignID], m)
	return m
}

func (s *state) messagesOf(campaignID string) []storedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storedMessage{}, s.messages[campaignID]...)
}

// addResponse stores a reply. It reports false when the campaign is gone.
func (s *state) addResponse(r storedResponse) (storedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[r.CampaignID]; !ok {
		return storedResponse{}, false
	}
	r.ID = newObjectID()
	r.CreatedAt = time.Now().UTC()
	s.responses = append(s.responses, r)
	return r, true
}

// responsesOf returns the replies in campaigns owned by userID, optionally
// restricted to one campaign, oldest first.
func (s *state) responsesOf(userID, campaignID string) []storedResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []storedResponse{}
	for _, r := range s.responses {
		c, ok := s.campaigns[r.CampaignID]
		if !ok || c.UserID != userID {
			continue
		}
		if campaignID != "" && r.CampaignID != campaignID {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
