package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"market-chat/internal/apperrors"
	"market-chat/internal/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selfStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	unreadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11")).Padding(0, 1)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func errorText(err error) string {
	return apperrors.From(err).Message
}

func (m *Model) View() string {
	var b strings.Builder

	switch m.screen {
	case screenHidden:
		b.WriteString(mutedStyle.Render("Chat minimized. tab to reopen, q to quit."))
		b.WriteString("\n")
		return b.String()
	case screenList:
		m.renderList(&b)
	case screenConversation:
		m.renderConversation(&b)
	case screenSupport:
		m.renderSupport(&b)
	case screenSearch:
		m.renderSearch(&b)
	case screenCompose:
		b.WriteString(titleStyle.Render("New conversation"))
		b.WriteString("\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(mutedStyle.Render("enter send  esc back"))
	}

	if m.flash != "" {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(m.flash))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderList(b *strings.Builder) {
	view := m.widget.View()
	b.WriteString(titleStyle.Render("Conversations"))
	b.WriteString("\n\n")

	if len(view.Conversations) == 0 {
		b.WriteString(mutedStyle.Render("No conversations yet. Press / to find someone."))
		b.WriteString("\n")
	}
	for i, conv := range view.Conversations {
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		line := conversationTitle(conv)
		if conv.UnreadCount > 0 {
			line += " " + unreadStyle.Render(fmt.Sprintf("%d", conv.UnreadCount))
		}
		b.WriteString(prefix + line + "\n")
		if conv.LastMessage != "" {
			b.WriteString("    " + mutedStyle.Render(truncate(conv.LastMessage, 60)) + "\n")
		}
	}

	renderNotice(b, view.Notice, "x")
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("enter open  / new  s support  tab minimize  q quit"))
}

func (m *Model) renderConversation(b *strings.Builder) {
	view := m.widget.View()
	title := fmt.Sprintf("Conversation #%d", view.Selected)
	for _, conv := range view.Conversations {
		if conv.ID == view.Selected {
			title = conversationTitle(conv)
			break
		}
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	for _, msg := range tail(view.Messages, m.visibleLines()) {
		b.WriteString(m.renderMessage(msg.SenderID == m.selfID, msg.Body, msg.ReadAt != nil))
	}

	renderNotice(b, view.Notice, "ctrl+x")
	b.WriteString("\n")
	b.WriteString(m.input.View())
	if view.Sending {
		b.WriteString(" " + mutedStyle.Render("sending..."))
	}
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("enter send  esc back  tab minimize"))
}

func (m *Model) renderSupport(b *strings.Builder) {
	view := m.support.View(m.now())
	b.WriteString(titleStyle.Render("Support"))
	b.WriteString("  ")
	switch {
	case !view.Status.Enabled:
		b.WriteString(mutedStyle.Render("unavailable"))
	case view.Status.Online:
		b.WriteString(onlineStyle.Render("online"))
	default:
		b.WriteString(offlineStyle.Render("offline"))
	}
	b.WriteString("\n")
	if view.Status.Message != "" {
		b.WriteString(mutedStyle.Render(view.Status.Message))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, msg := range tail(view.Messages, m.visibleLines()) {
		b.WriteString(m.renderMessage(msg.SenderRole == models.RoleUser, msg.Body, msg.ReadAt != nil))
	}

	renderNotice(b, view.Notice, "ctrl+x")
	b.WriteString("\n")
	b.WriteString(m.input.View())
	if view.Sending {
		b.WriteString(" " + mutedStyle.Render("sending..."))
	}
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("enter send  esc close"))
}

func (m *Model) renderSearch(b *strings.Builder) {
	b.WriteString(titleStyle.Render("Find someone"))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if m.lastQuery != "" && len(m.results) == 0 {
		b.WriteString(mutedStyle.Render("Nobody matches."))
		b.WriteString("\n")
	}
	for i, user := range m.results {
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		line := user.Name
		if user.Handle != "" {
			line += " " + mutedStyle.Render("@"+user.Handle)
		}
		b.WriteString(prefix + line + "\n")
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("enter search/pick  esc back"))
}

func (m *Model) renderMessage(own bool, body string, read bool) string {
	if own {
		mark := ""
		if read {
			mark = mutedStyle.Render(" ✓")
		}
		return selfStyle.Render("you: ") + body + mark + "\n"
	}
	return mutedStyle.Render("them: ") + body + "\n"
}

func (m *Model) visibleLines() int {
	if m.height <= 8 {
		return 20
	}
	return m.height - 8
}

func renderNotice(b *strings.Builder, notice, dismissKey string) {
	if notice == "" {
		return
	}
	b.WriteString("\n")
	b.WriteString(noticeStyle.Render(notice))
	b.WriteString(" " + mutedStyle.Render("("+dismissKey+" to dismiss)"))
	b.WriteString("\n")
}

func conversationTitle(conv models.ConversationSummary) string {
	name := conv.OtherUser.Name
	if name == "" {
		name = fmt.Sprintf("User %d", conv.OtherUser.ID)
	}
	if conv.Listing != nil && conv.Listing.Title != "" {
		name += " · " + conv.Listing.Title
	}
	return name
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func tail[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
