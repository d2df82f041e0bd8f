package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tunez/scrobbled/internal/scrobble/lastfm"
)

type authenticator interface {
	GetToken(ctx context.Context) (string, error)
	AuthURL(token string) string
	GetSession(ctx context.Context, token string) (lastfm.Session, error)
}

type step int

const (
	stepToken step = iota
	stepAuthorize
	stepSession
	stepDone
)

type tokenMsg string

type sessionMsg lastfm.Session

type errMsg struct{ err error }

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	urlStyle   = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("39"))
	keyStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle  = lipgloss.NewStyle().Faint(true)
)

type model struct {
	ctx  context.Context
	auth authenticator

	openURL  func(string) error
	save     func(string) error
	savePath string

	step    step
	token   string
	session lastfm.Session
	note    string
	err     error
}

func newModel(ctx context.Context, auth authenticator) model {
	return model{ctx: ctx, auth: auth}
}

func (m model) Init() tea.Cmd {
	return m.fetchToken
}

func (m model) fetchToken() tea.Msg {
	token, err := m.auth.GetToken(m.ctx)
	if err != nil {
		return errMsg{fmt.Errorf("request token: %w", err)}
	}
	return tokenMsg(token)
}

func (m model) fetchSession() tea.Msg {
	sess, err := m.auth.GetSession(m.ctx, m.token)
	if err != nil {
		return errMsg{fmt.Errorf("exchange token: %w", err)}
	}
	return sessionMsg(sess)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "enter":
			if m.step == stepAuthorize {
				m.step = stepSession
				return m, m.fetchSession
			}
		}
	case tokenMsg:
		m.token = string(msg)
		m.step = stepAuthorize
		if m.openURL != nil {
			if err := m.openURL(m.auth.AuthURL(m.token)); err != nil {
				m.note = err.Error()
			}
		}
	case sessionMsg:
		m.session = lastfm.Session(msg)
		m.step = stepDone
		if m.save != nil {
			if err := m.save(m.session.Key); err != nil {
				m.err = fmt.Errorf("save session key: %w", err)
			}
		}
		return m, tea.Quit
	case errMsg:
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("scrobbled: Last.fm authorization"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
		return b.String()
	}

	switch m.step {
	case stepToken:
		b.WriteString("Requesting a token...\n")
	case stepAuthorize:
		b.WriteString("Allow access in your browser:\n\n  ")
		b.WriteString(urlStyle.Render(m.auth.AuthURL(m.token)))
		b.WriteString("\n\n")
		if m.note != "" {
			b.WriteString(hintStyle.Render("(" + m.note + ")"))
			b.WriteString("\n")
		}
		b.WriteString("Press enter once you have granted access, q to abort.\n")
	case stepSession:
		b.WriteString("Exchanging token for a session key...\n")
	case stepDone:
		fmt.Fprintf(&b, "Authorized as %s.\n\nsession_key = %s\n", m.session.Name, keyStyle.Render(m.session.Key))
		if m.save != nil {
			fmt.Fprintf(&b, "\nSaved to %s\n", m.savePath)
		} else {
			b.WriteString(hintStyle.Render("\nAdd it to the [lastfm] table of your config, or rerun with -save."))
			b.WriteString("\n")
		}
	}
	return b.String()
}
