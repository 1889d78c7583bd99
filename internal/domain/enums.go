// Package domain defines the core models shared by the Marketa client.
package domain

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageStatus tracks an outgoing user message through its lifecycle.
// Only the client uses it; the backend never sees it.
type MessageStatus string

const (
	MessageStatusComposed MessageStatus = "composed"
	MessageStatusPending  MessageStatus = "pending"
	MessageStatusReplied  MessageStatus = "replied"
	MessageStatusTimedOut MessageStatus = "timed_out"
	MessageStatusFailed   MessageStatus = "failed"
)

// CampaignStatus values offered by the campaign editor.
type CampaignStatus string

const (
	CampaignStatusActive    CampaignStatus = "Active"
	CampaignStatusPaused    CampaignStatus = "Paused"
	CampaignStatusCompleted CampaignStatus = "Completed"
	CampaignStatusDraft     CampaignStatus = "Draft"
)

// OAuthProvider names an identity provider the backend redirects through.
type OAuthProvider string

const (
	OAuthGoogle  OAuthProvider = "google"
	OAuthGitHub  OAuthProvider = "github"
	OAuthDiscord OAuthProvider = "discord"
)

// Valid reports whether p is a provider the backend supports.
func (p OAuthProvider) Valid() bool {
	switch p {
	case OAuthGoogle, OAuthGitHub, OAuthDiscord:
		return true
	}
	return false
}

// Event names emitted on the campaign message stream.
const (
	StreamEventMessage = "message"
	StreamEventReply   = "reply"
	StreamEventPing    = "ping"
)
