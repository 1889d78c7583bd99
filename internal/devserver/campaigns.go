package devserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// ListCampaigns handles GET /campaigns/user/:id.
func (s *Server) ListCampaigns(c echo.Context) error {
	userID := currentUserID(c)
	if c.Param("id") != userID {
		return c.JSON(http.StatusOK, []domain.Campaign{})
	}
	return c.JSON(http.StatusOK, s.state.campaignsOf(userID))
}

// CreateCampaign handles POST /campaigns.
func (s *Server) CreateCampaign(c echo.Context) error {
	var req domain.Campaign
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return jsonError(c, http.StatusBadRequest, "Campaign name is required")
	}
	req.UserID = currentUserID(c)
	if req.Status == "" {
		req.Status = string(domain.CampaignStatusActive)
	}
	campaign := s.state.addCampaign(req)
	return c.JSON(http.StatusCreated, campaign)
}

// GetCampaign handles GET /campaigns/:id.
func (s *Server) GetCampaign(c echo.Context) error {
	campaign, err := s.state.campaign(currentUserID(c), c.Param("id"))
	if err != nil {
		return ownershipError(c, err, "Campaign")
	}
	return c.JSON(http.StatusOK, campaign)
}

// UpdateCampaign handles PATCH /campaigns/:id. The body replaces every field.
func (s *Server) UpdateCampaign(c echo.Context) error {
	var req domain.Campaign
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	req.ID = c.Param("id")
	campaign, err := s.state.replaceCampaign(currentUserID(c), req)
	if err != nil {
		return ownershipError(c, err, "Campaign")
	}
	return c.JSON(http.StatusOK, campaign)
}

// DeleteCampaign handles DELETE /campaigns/:id.
func (s *Server) DeleteCampaign(c echo.Context) error {
	if err := s.state.deleteCampaign(currentUserID(c), c.Param("id")); err != nil {
		return ownershipError(c, err, "Campaign")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Campaign deleted successfully"})
}

// CampaignChat handles POST /campaigns/:id/chat, the synchronous assistant.
func (s *Server) CampaignChat(c echo.Context) error {
	campaign, err := s.state.campaign(currentUserID(c), c.Param("id"))
	if err != nil {
		return ownershipError(c, err, "Campaign")
	}
	var req domain.CampaignChatRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return jsonError(c, http.StatusBadRequest, "Prompt is required")
	}
	return c.JSON(http.StatusOK, domain.CampaignChatResponse{
		Response: s.responder.Reply(&campaign, req.Prompt),
	})
}

// AssistantChat handles POST /api/marketa/chat, the assistant without a
// campaign in context.
func (s *Server) AssistantChat(c echo.Context) error {
	var req domain.CampaignChatRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return jsonError(c, http.StatusBadRequest, "Prompt is required")
	}
	return c.JSON(http.StatusOK, domain.CampaignChatResponse{
		Response: s.responder.Reply(nil, req.Prompt),
	})
}
