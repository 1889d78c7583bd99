package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/arunshreyas/Marketa/internal/domain"
)

func (m Model) updateChat(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEsc:
			m.closeChat()
			m.input.Reset()
			m.input.Blur()
			m.screen = screenCampaigns
			return m, m.loadCampaigns()
		case tea.KeyEnter:
			content := strings.TrimSpace(m.input.Value())
			if content == "" || m.chat == nil {
				return m, nil
			}
			m.input.Reset()
			m.sending = true
			m.err = nil
			return m, sendMessage(m.ctx, m.chat, content)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refreshTranscript() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.messages) == 0 {
		return noteStyle.Render("No messages yet. Ask about budget, goals, audience or channels.")
	}
	var b strings.Builder
	for _, msg := range m.messages {
		if msg.Role == domain.RoleUser {
			b.WriteString(userLabelStyle.Render("You"))
			if note := statusNote(msg.Status); note != "" {
				b.WriteString(" " + noteStyle.Render(note))
			}
			b.WriteString("\n" + msg.Content + "\n\n")
			continue
		}
		b.WriteString(assistantLabelStyle.Render("Marketa") + "\n")
		b.WriteString(m.renderMarkdown(msg.Content) + "\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

func statusNote(status domain.MessageStatus) string {
	switch status {
	case domain.MessageStatusComposed, domain.MessageStatusPending:
		return "(waiting for reply)"
	case domain.MessageStatusFailed:
		return "(not sent)"
	case domain.MessageStatusTimedOut:
		return "(no reply yet)"
	}
	return ""
}
