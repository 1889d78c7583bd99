package devserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// SendMessage handles POST /messages. The reply is generated after
// ReplyDelay, stored for polling and pushed to open streams.
func (s *Server) SendMessage(c echo.Context) error {
	if s.currentFaults().FailMessages {
		return jsonError(c, http.StatusInternalServerError, "Failed to save message")
	}
	var req domain.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return jsonError(c, http.StatusBadRequest, "Content is required")
	}
	userID := currentUserID(c)
	campaign, err := s.state.campaign(userID, req.Campaign)
	if err != nil {
		return ownershipError(c, err, "Campaign")
	}
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}

	msg := s.state.addMessage(storedMessage{
		CampaignID: campaign.ID,
		Sender:     userID,
		Content:    req.Content,
		Role:       string(role),
	})
	if role == domain.RoleUser {
		s.scheduleReply(campaign, msg)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) scheduleReply(campaign domain.Campaign, msg storedMessage) {
	s.after(s.opts.ReplyDelay, func() {
		resp, ok := s.state.addResponse(storedResponse{
			MessageID:  msg.MessageID,
			CampaignID: campaign.ID,
			Response:   s.responder.Reply(&campaign, msg.Content),
		})
		if !ok {
			return
		}
		s.logger.Debug("reply stored", zap.String("message_id", resp.MessageID))

		faults := s.currentFaults()
		if faults.DropPush {
			return
		}
		s.after(faults.PushDelay, func() {
			s.publishReply(resp, faults.DuplicatePush)
		})
	})
}

func (s *Server) publishReply(resp storedResponse, duplicate bool) {
	data, err := json.Marshal(map[string]any{
		"_id":        resp.ID,
		"message_id": resp.MessageID,
		"campaign":   resp.CampaignID,
		"reply":      resp.Response,
		"timestamp":  resp.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.Error("failed to encode reply", zap.Error(err))
		return
	}
	event := Event{Name: domain.StreamEventReply, Data: data}
	s.hub.Publish(resp.CampaignID, event)
	if duplicate {
		s.hub.Publish(resp.CampaignID, event)
	}
}

// CampaignMessages handles GET /messages/campaign/:id. Replies are not part
// of the message list; they are served by the response routes.
func (s *Server) CampaignMessages(c echo.Context) error {
	campaign, err := s.state.campaign(currentUserID(c), c.Param("id"))
	if err != nil {
		return ownershipError(c, err, "Campaign")
	}
	return c.JSON(http.StatusOK, s.state.messagesOf(campaign.ID))
}

// Responses handles GET /response.
func (s *Server) Responses(c echo.Context) error {
	responses := s.state.responsesOf(currentUserID(c), "")
	out := make([]map[string]any, 0, len(responses))
	for _, r := range responses {
		out = append(out, map[string]any{
			"_id":        r.ID,
			"message_id": r.MessageID,
			"campaign":   map[string]string{"_id": r.CampaignID},
			"response":   r.Response,
			"timestamp":  r.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// CampaignResponses handles GET /responses/by-campaign/:id.
func (s *Server) CampaignResponses(c echo.Context) error {
	if s.currentFaults().DisableResponsesByCampaign {
		return jsonError(c, http.StatusNotFound, "Not found")
	}
	campaign, err := s.state.campaign(currentUserID(c), c.Param("id"))
	if err != nil {
		return ownershipError(c, err, "Campaign")
	}
	responses := s.state.responsesOf(currentUserID(c), campaign.ID)
	out := make([]map[string]any, 0, len(responses))
	for _, r := range responses {
		out = append(out, map[string]any{
			"_id":        r.ID,
			"message_id": r.MessageID,
			"reply":      r.Response,
			"timestamp":  r.CreatedAt.UnixMilli(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"responses": out})
}

// StreamMessages handles GET /messages/stream/:id, the campaign's push
// channel.
func (s *Server) StreamMessages(c echo.Context) error {
	campaign, err := s.state.campaign(currentUserID(c), c.Param("id"))
	if err != nil {
		return ownershipError(c, err, "Campaign")
	}
	sub := s.hub.Subscribe(campaign.ID)
	if sub == nil {
		return jsonError(c, http.StatusServiceUnavailable, "server shutting down")
	}
	defer s.hub.Unsubscribe(sub)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Send:
			if !ok {
				return nil
			}
			if err := writeEvent(w, ev); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := writeEvent(w, Event{Name: domain.StreamEventPing, Data: []byte("{}")}); err != nil {
				return nil
			}
		}
	}
}

func writeEvent(w *echo.Response, ev Event) error {
	if _, err := w.Write([]byte("event: " + ev.Name + "\ndata: " + string(ev.Data) + "\n\n")); err != nil {
		return err
	}
	w.Flush()
	return nil
}
