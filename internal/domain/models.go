package domain

import (
	"time"
)

// Message is a single chat message in a campaign transcript.
//
// ID is the message identity. CorrelationID (the backend's message_id) pairs a
// user message with the assistant reply it produces.
type Message struct {
	ID            string        `json:"id"`
	Role          Role          `json:"role"`
	Content       string        `json:"content"`
	CreatedAt     time.Time     `json:"created_at"`
	CampaignID    string        `json:"campaign_id"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Status        MessageStatus `json:"status,omitempty"`
}

// Key returns the identity used to pair this message with a reply.
func (m Message) Key() string {
	if m.CorrelationID != "" {
		return m.CorrelationID
	}
	return m.ID
}

// Reply is an assistant message delivered for a correlation id, normalized from
// any of the backend payload variants.
type Reply struct {
	CorrelationID string    `json:"correlation_id"`
	MessageID     string    `json:"message_id,omitempty"`
	CampaignID    string    `json:"campaign_id,omitempty"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	Source        string    `json:"source,omitempty"`
}

// Reply sources.
const (
	SourcePush = "push"
	SourcePoll = "poll"
	SourceSync = "sync"
)

// Campaign is a marketing campaign owned by a user. Updates replace every field.
type Campaign struct {
	ID        string     `json:"_id,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	Name      string     `json:"campaign_name"`
	Status    string     `json:"status"`
	Goals     string     `json:"goals"`
	Channels  string     `json:"channels"`
	Budget    float64    `json:"budget"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Audience  string     `json:"audience"`
	Content   string     `json:"content"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// User is the profile of the signed-in account.
type User struct {
	ID              string           `json:"_id"`
	Username        string           `json:"username,omitempty"`
	Name            string           `json:"name,omitempty"`
	Email           string           `json:"email,omitempty"`
	ProfilePicture  string           `json:"profile_picture,omitempty"`
	HasBrand        bool             `json:"hasBrand,omitempty"`
	BusinessProfile *BusinessProfile `json:"business_profile,omitempty"`
	Subscription    *Subscription    `json:"subscription,omitempty"`
	UsageMetrics    *UsageMetrics    `json:"usage_metrics,omitempty"`
	CreatedAt       *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt       *time.Time       `json:"updatedAt,omitempty"`
}

// BusinessProfile describes the user's business for the assistant.
type BusinessProfile struct {
	Industry       string `json:"industry,omitempty"`
	TargetAudience string `json:"target_audience,omitempty"`
	MarketingGoals string `json:"marketing_goals,omitempty"`
}

// Subscription is the user's plan.
type Subscription struct {
	Plan   string `json:"plan,omitempty"`
	Status string `json:"status,omitempty"`
}

// UsageMetrics reports assistant usage.
type UsageMetrics struct {
	AIRequestsThisMonth int `json:"ai_requests_this_month,omitempty"`
}

// ProfileUpdate is the body of PATCH /users/:id.
type ProfileUpdate struct {
	Name            string           `json:"name"`
	Username        string           `json:"username"`
	Email           string           `json:"email"`
	BusinessProfile *BusinessProfile `json:"business_profile,omitempty"`
}

// Brand is the onboarding brand description.
type Brand struct {
	UserID             string `json:"user_id,omitempty"`
	BrandName          string `json:"brand_name"`
	ProductDescription string `json:"product_description"`
	TargetAudience     string `json:"target_audience"`
	BrandTone          string `json:"brand_tone,omitempty"`
}

// Session is the authenticated state of this client. A zero Session is signed out.
type Session struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// Valid reports whether the session carries a token.
func (s *Session) Valid() bool {
	return s != nil && s.Token != ""
}

// UserID returns the signed-in user's id, or "".
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}
