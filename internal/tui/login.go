package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/arunshreyas/Marketa/internal/domain"
)

type loginForm struct {
	email    textinput.Model
	password textinput.Model
	focused  int
	busy     bool
}

func newLoginForm() loginForm {
	email := textinput.New()
	email.Placeholder = "you@company.com"
	email.Prompt = "Email    "
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return loginForm{email: email, password: password}
}

func (f *loginForm) focus(i int) tea.Cmd {
	f.focused = i
	if i == 0 {
		f.password.Blur()
		return f.email.Focus()
	}
	f.email.Blur()
	return f.password.Focus()
}

func (f loginForm) focusCmd() tea.Cmd {
	return textinput.Blink
}

func (f *loginForm) reset() {
	f.email.Reset()
	f.password.Reset()
	f.busy = false
}

func (f *loginForm) setWidth(width int) {
	f.email.Width = max(width-12, 10)
	f.password.Width = max(width-12, 10)
}

func (f loginForm) request() domain.LoginRequest {
	return domain.LoginRequest{
		Email:    strings.TrimSpace(f.email.Value()),
		Password: f.password.Value(),
	}
}

func (f loginForm) view() string {
	var b strings.Builder
	b.WriteString("Sign in to Marketa\n\n")
	b.WriteString(f.email.View() + "\n")
	b.WriteString(f.password.View() + "\n\n")
	if f.busy {
		b.WriteString(helpStyle.Render("Signing in...") + "\n")
	}
	b.WriteString(helpStyle.Render("Google, GitHub or Discord: run `marketa login --provider <name>`"))
	return b.String()
}

func (m Model) updateLogin(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
			return m, m.login.focus(1 - m.login.focused)
		case tea.KeyEnter:
			if m.login.focused == 0 {
				return m, m.login.focus(1)
			}
			if m.login.busy {
				return m, nil
			}
			m.login.busy = true
			m.err = nil
			return m, m.signIn(m.login.request())
		}
	}

	var cmd tea.Cmd
	if m.login.focused == 0 {
		m.login.email, cmd = m.login.email.Update(msg)
	} else {
		m.login.password, cmd = m.login.password.Update(msg)
	}
	return m, cmd
}
