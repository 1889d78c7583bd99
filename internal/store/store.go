// Package store persists client state between runs: the signed-in session and
// the per-campaign chat transcript cache.
package store

import (
	"context"
	"time"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// Store defines the interface for local persistence.
type Store interface {
	// Session operations. LoadSession returns nil when signed out.
	SaveSession(ctx context.Context, session *domain.Session) error
	LoadSession(ctx context.Context) (*domain.Session, error)
	ClearSession(ctx context.Context) error

	// Transcript operations. A transcript is an advisory cache; the server
	// copy wins whenever it is reachable.
	SaveTranscript(ctx context.Context, campaignID string, messages []domain.Message) error
	LoadTranscript(ctx context.Context, campaignID string) ([]domain.Message, error)
	DeleteTranscript(ctx context.Context, campaignID string) error
	ListTranscripts(ctx context.Context) ([]TranscriptInfo, error)

	Close() error
}

// TranscriptInfo summarizes one cached transcript.
type TranscriptInfo struct {
	CampaignID   string
	MessageCount int
	UpdatedAt    time.Time
}

// TranscriptKey is the campaign-scoped cache key, matching the key the web
// client used in local storage.
func TranscriptKey(campaignID string) string {
	return "campaign-chat-" + campaignID
}
