// Package tui is the full-screen terminal presentation of the client: the
// sign-in form, the campaign list and the campaign chat.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/api"
	"github.com/arunshreyas/Marketa/internal/chat"
	"github.com/arunshreyas/Marketa/internal/domain"
	"github.com/arunshreyas/Marketa/internal/feed"
	"github.com/arunshreyas/Marketa/internal/logging"
	"github.com/arunshreyas/Marketa/internal/session"
	"github.com/arunshreyas/Marketa/internal/store"
	"github.com/arunshreyas/Marketa/internal/validate"
)

type screen int

const (
	screenLogin screen = iota
	screenCampaigns
	screenChat
)

const expiredNotice = "Your session has expired. Please sign in again."

// Deps are the services the screens drive.
type Deps struct {
	Client    *api.Client
	Sessions  *session.Manager
	Store     store.Store
	Validator *validate.Validator
	Feed      feed.Options
	Logger    *zap.Logger
	// MarkdownStyle is a glamour style name; empty picks one from the terminal.
	MarkdownStyle string
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx    context.Context
	deps   Deps
	logger *zap.Logger

	screen        screen
	width, height int
	status        string
	err           error

	login     loginForm
	campaigns list.Model

	chat     *chat.Controller
	campaign domain.Campaign
	messages []domain.Message
	viewport viewport.Model
	input    textarea.Model
	renderer *glamour.TermRenderer
	sending  bool
}

// New builds the model. Signed-in users start on the campaign list.
func New(ctx context.Context, deps Deps) Model {
	deps.Logger = logging.OrNop(deps.Logger)

	input := textarea.New()
	input.Placeholder = "Ask about this campaign... (Enter to send, Esc to go back)"
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(3)
	input.KeyMap.InsertNewline.SetEnabled(false)

	campaigns := list.New(nil, list.NewDefaultDelegate(), 80, 20)
	campaigns.Title = "Campaigns"
	campaigns.DisableQuitKeybindings()

	m := Model{
		ctx:       ctx,
		deps:      deps,
		logger:    deps.Logger,
		login:     newLoginForm(),
		campaigns: campaigns,
		viewport:  viewport.New(80, 20),
		input:     input,
	}
	m.renderer = newRenderer(deps.MarkdownStyle, 76)
	if deps.Sessions.SignedIn() {
		m.screen = screenCampaigns
	}
	return m
}

func newRenderer(style string, wrap int) *glamour.TermRenderer {
	if wrap < 20 {
		wrap = 20
	}
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(wrap))
	if err != nil {
		return nil
	}
	return r
}

// Init starts watching for session expiry and loads campaigns when signed in.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitExpired()}
	if m.screen == screenCampaigns {
		cmds = append(cmds, m.loadCampaigns())
	} else {
		cmds = append(cmds, m.login.focusCmd())
	}
	return tea.Batch(cmds...)
}

// Update routes messages to the active screen.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.closeChat()
			return m, tea.Quit
		}

	case sessionExpiredMsg:
		m = m.expire()
		return m, m.waitExpired()

	case loginDoneMsg:
		m.login.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = ""
		m.login.reset()
		m.screen = screenCampaigns
		return m, m.loadCampaigns()

	case campaignsMsg:
		if msg.err != nil {
			m.setErr(msg.err)
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.campaigns))
		for _, c := range msg.campaigns {
			items = append(items, campaignItem{c})
		}
		return m, m.campaigns.SetItems(items)

	case campaignDeletedMsg:
		if msg.err != nil {
			m.setErr(msg.err)
			return m, nil
		}
		m.status = "Campaign deleted"
		return m, m.loadCampaigns()

	case chatOpenedMsg:
		if msg.err != nil {
			m.setErr(msg.err)
			return m, nil
		}
		if m.screen != screenCampaigns || m.chat != nil {
			_ = msg.ctrl.Close()
			return m, nil
		}
		m.chat = msg.ctrl
		m.campaign = msg.campaign
		m.messages = msg.ctrl.Snapshot()
		m.screen = screenChat
		m.err = nil
		m.status = ""
		m.refreshTranscript()
		return m, tea.Batch(m.input.Focus(), waitUpdate(msg.ctrl))

	case chatUpdateMsg:
		if msg.ctrl != m.chat {
			return m, nil
		}
		m.messages = msg.update.Messages
		if msg.update.Err != nil {
			m.err = msg.update.Err
		}
		m.refreshTranscript()
		if msg.update.Expired {
			m = m.expire()
			return m, nil
		}
		return m, waitUpdate(msg.ctrl)

	case chatClosedMsg:
		return m, nil

	case sendDoneMsg:
		m.sending = false
		return m, nil
	}

	switch m.screen {
	case screenLogin:
		return m.updateLogin(msg)
	case screenCampaigns:
		return m.updateCampaigns(msg)
	default:
		return m.updateChat(msg)
	}
}

func (m *Model) setErr(err error) {
	// The expiry watcher moves to the login screen.
	if api.IsUnauthorized(err) {
		return
	}
	m.err = err
}

// expire drops everything tied to the old session and shows the login form.
func (m Model) expire() Model {
	m.closeChat()
	m.screen = screenLogin
	m.status = expiredNotice
	m.err = nil
	m.campaigns.SetItems(nil)
	m.login.reset()
	m.login.focus(0)
	return m
}

func (m *Model) closeChat() {
	if m.chat == nil {
		return
	}
	if err := m.chat.Close(); err != nil {
		m.logger.Debug("chat closed with error", zap.Error(err))
	}
	m.chat = nil
	m.messages = nil
	m.sending = false
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.login.setWidth(width)
	m.campaigns.SetSize(width, max(height-4, 1))

	// header (2) + input with border (5) + footer (2)
	m.viewport.Width = max(width, 1)
	m.viewport.Height = max(height-9, 1)
	m.input.SetWidth(max(width-4, 1))
	m.renderer = newRenderer(m.deps.MarkdownStyle, width-4)
	m.refreshTranscript()
}

// View renders the active screen.
func (m Model) View() string {
	var body, help string
	switch m.screen {
	case screenLogin:
		body = m.login.view()
		help = "tab: next field • enter: sign in • ctrl+c: quit"
	case screenCampaigns:
		body = m.campaigns.View()
		help = "enter: open • d: delete • r: refresh • q: quit"
	default:
		body = m.viewport.View() + "\n" + inputStyle.Render(m.input.View())
		help = "enter: send • pgup/pgdn: scroll • esc: back • ctrl+c: quit"
	}

	header := titleStyle.Render("Marketa")
	if m.screen == screenChat {
		header += " " + m.campaign.Name
	}

	footer := helpStyle.Render(help)
	switch {
	case m.err != nil:
		footer = errorStyle.Render(errorText(m.err)) + "\n" + footer
	case m.status != "":
		footer = statusStyle.Render(m.status) + "\n" + footer
	}
	return header + "\n\n" + body + "\n" + footer
}

func errorText(err error) string {
	var verr *validate.Error
	if errors.As(err, &verr) {
		return verr.Error()
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if api.IsNetwork(err) {
		return "Unable to connect to server"
	}
	return fmt.Sprint(err)
}
