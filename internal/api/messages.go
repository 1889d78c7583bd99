package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// SentMessage is the server identity of a stored user message.
type SentMessage struct {
	ID            string
	CorrelationID string
	CreatedAt     time.Time
}

// SendMessage stores a user message. The backend generates the reply
// asynchronously and tags it with the returned correlation id.
func (c *Client) SendMessage(ctx context.Context, req domain.SendMessageRequest) (*SentMessage, error) {
	if req.Role == "" {
		req.Role = domain.RoleUser
	}
	data, err := c.doRaw(ctx, request{op: "send message", method: http.MethodPost, path: "/messages", body: req, authed: true})
	if err != nil {
		return nil, err
	}
	id, corr, createdAt, err := domain.SentMessageIdentity(data)
	if err != nil {
		return nil, err
	}
	return &SentMessage{ID: id, CorrelationID: corr, CreatedAt: createdAt}, nil
}

// CampaignMessages returns the stored transcript of a campaign in server order.
func (c *Client) CampaignMessages(ctx context.Context, campaignID string) ([]domain.Message, error) {
	data, err := c.doRaw(ctx, request{op: "load messages", method: http.MethodGet, path: "/messages/campaign/" + escape(campaignID), authed: true})
	if err != nil {
		return nil, err
	}
	return domain.NormalizeMessages(data, campaignID)
}

// Responses returns every AI response visible to the user.
func (c *Client) Responses(ctx context.Context) ([]domain.Reply, error) {
	data, err := c.doRaw(ctx, request{op: "load responses", method: http.MethodGet, path: "/response", authed: true})
	if err != nil {
		return nil, err
	}
	return domain.NormalizeReplies(data)
}

// CampaignResponses returns the AI responses of one campaign. Backends without
// the by-campaign route answer 404; the full list is then filtered locally.
func (c *Client) CampaignResponses(ctx context.Context, campaignID string) ([]domain.Reply, error) {
	data, err := c.doRaw(ctx, request{op: "load campaign responses", method: http.MethodGet, path: "/responses/by-campaign/" + escape(campaignID), authed: true})
	if errors.Is(err, ErrNotFound) {
		all, err := c.Responses(ctx)
		if err != nil {
			return nil, err
		}
		return filterByCampaign(all, campaignID, true), nil
	}
	if err != nil {
		return nil, err
	}
	replies, err := domain.NormalizeReplies(data)
	if err != nil {
		return nil, err
	}
	return filterByCampaign(replies, campaignID, false), nil
}

// filterByCampaign keeps the replies of campaignID. Unless strict, replies
// that do not name a campaign are kept too; the by-campaign route may omit it.
func filterByCampaign(replies []domain.Reply, campaignID string, strict bool) []domain.Reply {
	out := make([]domain.Reply, 0, len(replies))
	for _, r := range replies {
		if r.CampaignID != campaignID && (strict || r.CampaignID != "") {
			continue
		}
		if r.CampaignID == "" {
			r.CampaignID = campaignID
		}
		out = append(out, r)
	}
	return out
}
