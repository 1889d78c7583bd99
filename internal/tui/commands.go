package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/chat"
	"github.com/arunshreyas/Marketa/internal/domain"
)

type (
	sessionExpiredMsg struct{}

	loginDoneMsg struct{ err error }

	campaignsMsg struct {
		campaigns []domain.Campaign
		err       error
	}

	campaignDeletedMsg struct {
		id  string
		err error
	}

	chatOpenedMsg struct {
		ctrl     *chat.Controller
		campaign domain.Campaign
		err      error
	}

	chatUpdateMsg struct {
		ctrl   *chat.Controller
		update chat.Update
	}

	chatClosedMsg struct{ ctrl *chat.Controller }

	sendDoneMsg struct{ err error }
)

// waitExpired fires once the session manager tears the session down.
func (m Model) waitExpired() tea.Cmd {
	ctx, sessions := m.ctx, m.deps.Sessions
	return func() tea.Msg {
		select {
		case <-sessions.Expired():
			return sessionExpiredMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) signIn(req domain.LoginRequest) tea.Cmd {
	ctx, deps := m.ctx, m.deps
	return func() tea.Msg {
		if deps.Validator != nil {
			if err := deps.Validator.Login(ctx, req); err != nil {
				return loginDoneMsg{err: err}
			}
		}
		resp, err := deps.Client.Login(ctx, req)
		if err != nil {
			return loginDoneMsg{err: err}
		}
		sess := &domain.Session{Token: resp.Token, User: resp.User}
		return loginDoneMsg{err: deps.Sessions.Login(ctx, sess)}
	}
}

func (m Model) loadCampaigns() tea.Cmd {
	ctx, deps := m.ctx, m.deps
	return func() tea.Msg {
		campaigns, err := deps.Client.ListCampaigns(ctx, deps.Sessions.UserID())
		return campaignsMsg{campaigns: campaigns, err: err}
	}
}

func (m Model) deleteCampaign(id string) tea.Cmd {
	ctx, deps := m.ctx, m.deps
	return func() tea.Msg {
		err := deps.Client.DeleteCampaign(ctx, id)
		if err == nil && deps.Store != nil {
			if err := deps.Store.DeleteTranscript(ctx, id); err != nil {
				deps.Logger.Warn("failed to drop cached transcript", zap.String("campaign_id", id), zap.Error(err))
			}
		}
		return campaignDeletedMsg{id: id, err: err}
	}
}

func (m Model) openChat(c domain.Campaign) tea.Cmd {
	ctx, deps := m.ctx, m.deps
	return func() tea.Msg {
		var cache chat.TranscriptCache
		if deps.Store != nil {
			cache = deps.Store
		}
		ctrl := chat.NewController(deps.Client, cache, deps.Sessions, chat.Options{
			Feed:   deps.Feed,
			Logger: deps.Logger,
		})
		if err := ctrl.Open(ctx, c.ID); err != nil {
			_ = ctrl.Close()
			return chatOpenedMsg{campaign: c, err: err}
		}
		return chatOpenedMsg{ctrl: ctrl, campaign: c}
	}
}

// waitUpdate delivers the next transcript snapshot of ctrl.
func waitUpdate(ctrl *chat.Controller) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ctrl.Updates()
		if !ok {
			return chatClosedMsg{ctrl: ctrl}
		}
		return chatUpdateMsg{ctrl: ctrl, update: u}
	}
}

func sendMessage(ctx context.Context, ctrl *chat.Controller, content string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: ctrl.Send(ctx, content)}
	}
}
