package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// ListCampaigns returns the campaigns owned by userID.
func (c *Client) ListCampaigns(ctx context.Context, userID string) ([]domain.Campaign, error) {
	data, err := c.doRaw(ctx, request{op: "list campaigns", method: http.MethodGet, path: "/campaigns/user/" + escape(userID), authed: true})
	if err != nil {
		return nil, err
	}
	return decodeCampaigns(data)
}

// GetCampaign returns one campaign.
func (c *Client) GetCampaign(ctx context.Context, campaignID string) (*domain.Campaign, error) {
	data, err := c.doRaw(ctx, request{op: "get campaign", method: http.MethodGet, path: "/campaigns/" + escape(campaignID), authed: true})
	if err != nil {
		return nil, err
	}
	return decodeCampaign("get campaign", data)
}

// CreateCampaign stores a new campaign and returns it with its server id.
func (c *Client) CreateCampaign(ctx context.Context, campaign domain.Campaign) (*domain.Campaign, error) {
	campaign.ID = ""
	data, err := c.doRaw(ctx, request{op: "create campaign", method: http.MethodPost, path: "/campaigns", body: campaign, authed: true})
	if err != nil {
		return nil, err
	}
	return decodeCampaign("create campaign", data)
}

// UpdateCampaign replaces every field of the campaign.
func (c *Client) UpdateCampaign(ctx context.Context, campaign domain.Campaign) (*domain.Campaign, error) {
	if campaign.ID == "" {
		return nil, fmt.Errorf("update campaign: missing id")
	}
	data, err := c.doRaw(ctx, request{op: "update campaign", method: http.MethodPatch, path: "/campaigns/" + escape(campaign.ID), body: campaign, authed: true})
	if err != nil {
		return nil, err
	}
	return decodeCampaign("update campaign", data)
}

// DeleteCampaign removes a campaign.
func (c *Client) DeleteCampaign(ctx context.Context, campaignID string) error {
	return c.do(ctx, request{op: "delete campaign", method: http.MethodDelete, path: "/campaigns/" + escape(campaignID), authed: true}, nil)
}

// CampaignChat asks the assistant synchronously and returns its answer.
func (c *Client) CampaignChat(ctx context.Context, campaignID string, req domain.CampaignChatRequest) (string, error) {
	var resp domain.CampaignChatResponse
	if err := c.do(ctx, request{op: "campaign chat", method: http.MethodPost, path: "/campaigns/" + escape(campaignID) + "/chat", body: req, authed: true}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Response) == "" {
		return "", fmt.Errorf("campaign chat: %w: empty response", domain.ErrInvalidPayload)
	}
	return resp.Response, nil
}

// AssistantChat asks the general marketing assistant, outside any campaign.
func (c *Client) AssistantChat(ctx context.Context, req domain.CampaignChatRequest) (string, error) {
	var resp domain.CampaignChatResponse
	if err := c.do(ctx, request{op: "assistant chat", method: http.MethodPost, path: "/api/marketa/chat", body: req, authed: true}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Response) == "" {
		return "", fmt.Errorf("assistant chat: %w: empty response", domain.ErrInvalidPayload)
	}
	return resp.Response, nil
}

// The backend answers campaign routes either with the object itself or with it
// wrapped under "campaign"/"campaigns".
func decodeCampaign(op string, data []byte) (*domain.Campaign, error) {
	r := gjson.ParseBytes(data)
	if w := r.Get("campaign"); w.IsObject() {
		data = []byte(w.Raw)
	}
	var campaign domain.Campaign
	if err := json.Unmarshal(data, &campaign); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return &campaign, nil
}

func decodeCampaigns(data []byte) ([]domain.Campaign, error) {
	r := gjson.ParseBytes(data)
	if w := r.Get("campaigns"); w.IsArray() {
		data = []byte(w.Raw)
	} else if r.Type == gjson.Null {
		return []domain.Campaign{}, nil
	}
	var campaigns []domain.Campaign
	if err := json.Unmarshal(data, &campaigns); err != nil {
		return nil, fmt.Errorf("list campaigns: failed to decode response: %w", err)
	}
	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}
	return campaigns, nil
}
