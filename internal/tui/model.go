// Package tui is a terminal front end for the chat API built on the poller
// widgets.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"market-chat/internal/models"
	"market-chat/internal/poller"
)

// API is everything the terminal client needs from the server.
type API interface {
	poller.Source
	poller.SupportSource
	SearchUsers(ctx context.Context, query string, limit int) ([]models.UserIdentity, error)
	StartConversation(ctx context.Context, recipientID int64, listingID *int64, body string) (models.Message, error)
	SubscribeConversation(ctx context.Context, conversationID int64, onEvent func())
	SubscribeSupport(ctx context.Context, onEvent func())
}

type screen int

const (
	screenList screen = iota
	screenConversation
	screenSupport
	screenSearch
	screenCompose
	screenHidden
)

const searchLimit = 8

type (
	changedMsg struct{}
	sentMsg    struct{ err error }
	startedMsg struct {
		msg models.Message
		err error
	}
	searchMsg struct {
		query string
		users []models.UserIdentity
		err   error
	}
)

type Model struct {
	ctx    context.Context
	api    API
	selfID int64

	widget  *poller.Widget
	support *poller.SupportWidget
	changes chan struct{}

	screen screen
	cursor int
	input  textinput.Model
	flash  string

	lastQuery string
	results   []models.UserIdentity
	recipient *models.UserIdentity

	unsubscribe context.CancelFunc
	now         func() time.Time

	width, height int
}

// New builds the model. selfID is the signed-in user, used to tell own
// messages apart.
func New(ctx context.Context, api API, selfID int64, opts poller.Options) *Model {
	changes := make(chan struct{}, 1)
	signal := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}
	opts.Context = ctx

	input := textinput.New()
	input.Placeholder = "Type a message"
	input.CharLimit = 4000

	return &Model{
		ctx:     ctx,
		api:     api,
		selfID:  selfID,
		widget:  poller.New(api, opts, signal),
		support: poller.NewSupport(api, opts, signal),
		changes: changes,
		input:   input,
		now:     time.Now,
	}
}

func (m *Model) Init() tea.Cmd {
	m.widget.Open()
	return waitForChange(m.changes)
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changes
		return changedMsg{}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = msg.Width - 4
		return m, nil
	case changedMsg:
		m.syncDraft()
		return m, waitForChange(m.changes)
	case sentMsg:
		if msg.err != nil && !errors.Is(msg.err, poller.ErrSendInFlight) && m.flash == "" {
			m.flash = errorText(msg.err)
		}
		return m, nil
	case startedMsg:
		if msg.err != nil {
			m.flash = errorText(msg.err)
			return m, nil
		}
		m.recipient = nil
		m.results = nil
		m.enterConversation(msg.msg.ConversationID)
		return m, nil
	case searchMsg:
		if msg.err != nil {
			m.flash = errorText(msg.err)
			return m, nil
		}
		m.lastQuery = msg.query
		m.results = msg.users
		m.cursor = 0
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.shutdown()
			return m, tea.Quit
		}
		m.flash = ""
		return m.updateKey(msg)
	}
	return m, nil
}

func (m *Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.screen {
	case screenList:
		return m.updateList(msg)
	case screenConversation:
		return m.updateConversation(msg)
	case screenSupport:
		return m.updateSupport(msg)
	case screenSearch:
		return m.updateSearch(msg)
	case screenCompose:
		return m.updateCompose(msg)
	case screenHidden:
		switch msg.String() {
		case "tab":
			m.widget.Resume()
			view := m.widget.View()
			if view.State == poller.InConversation {
				m.subscribe(view.Selected)
				m.showInput("Type a message", view.Draft)
				m.screen = screenConversation
			} else {
				m.screen = screenList
			}
		case "q":
			m.shutdown()
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	conversations := m.widget.View().Conversations
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(conversations)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(conversations) {
			m.enterConversation(conversations[m.cursor].ID)
		}
	case "/":
		m.showInput("Search people", "")
		m.results = nil
		m.lastQuery = ""
		m.screen = screenSearch
	case "s":
		m.support.Open()
		m.subscribeSupport()
		m.showInput("Message support", m.support.View(m.now()).Draft)
		m.screen = screenSupport
	case "tab":
		m.widget.Minimize()
		m.screen = screenHidden
	case "x":
		m.widget.DismissNotice()
	case "q":
		m.shutdown()
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) updateConversation(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.stopSubscription()
		m.widget.Deselect()
		m.input.Blur()
		m.screen = screenList
		return m, nil
	case "tab":
		m.stopSubscription()
		m.widget.Minimize()
		m.input.Blur()
		m.screen = screenHidden
		return m, nil
	case "ctrl+x":
		m.widget.DismissNotice()
		return m, nil
	case "enter":
		widget, ctx := m.widget, m.ctx
		return m, func() tea.Msg {
			_, err := widget.Send(ctx)
			return sentMsg{err: err}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.widget.SetDraft(m.input.Value())
	return m, cmd
}

func (m *Model) updateSupport(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.stopSubscription()
		m.support.Close()
		m.input.Blur()
		m.screen = screenList
		return m, nil
	case "ctrl+x":
		m.support.DismissNotice()
		return m, nil
	case "enter":
		support, ctx := m.support, m.ctx
		return m, func() tea.Msg {
			_, err := support.Send(ctx)
			return sentMsg{err: err}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.support.SetDraft(m.input.Value())
	return m, cmd
}

func (m *Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.input.Blur()
		m.results = nil
		m.screen = screenList
		return m, nil
	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down":
		if m.cursor < len(m.results)-1 {
			m.cursor++
		}
		return m, nil
	case "enter":
		query := m.input.Value()
		if query == m.lastQuery && m.cursor < len(m.results) {
			picked := m.results[m.cursor]
			m.recipient = &picked
			m.showInput("First message to "+picked.Name, "")
			m.screen = screenCompose
			return m, nil
		}
		api, ctx := m.api, m.ctx
		return m, func() tea.Msg {
			users, err := api.SearchUsers(ctx, query, searchLimit)
			return searchMsg{query: query, users: users, err: err}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateCompose(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.showInput("Search people", m.lastQuery)
		m.screen = screenSearch
		return m, nil
	case "enter":
		if m.recipient == nil {
			return m, nil
		}
		api, ctx, recipientID, body := m.api, m.ctx, m.recipient.ID, m.input.Value()
		return m, func() tea.Msg {
			msg, err := api.StartConversation(ctx, recipientID, nil, body)
			return startedMsg{msg: msg, err: err}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) enterConversation(conversationID int64) {
	m.widget.Select(conversationID)
	m.subscribe(conversationID)
	m.showInput("Type a message", m.widget.View().Draft)
	m.screen = screenConversation
}

func (m *Model) showInput(placeholder, value string) {
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.Focus()
}

// syncDraft mirrors a draft the widget cleared after a successful send.
func (m *Model) syncDraft() {
	var draft string
	switch m.screen {
	case screenConversation:
		draft = m.widget.View().Draft
	case screenSupport:
		draft = m.support.View(m.now()).Draft
	default:
		return
	}
	if draft != m.input.Value() {
		m.input.SetValue(draft)
	}
}

func (m *Model) subscribe(conversationID int64) {
	m.stopSubscription()
	ctx, cancel := context.WithCancel(m.ctx)
	m.unsubscribe = cancel
	go m.api.SubscribeConversation(ctx, conversationID, m.widget.Nudge)
}

func (m *Model) subscribeSupport() {
	m.stopSubscription()
	ctx, cancel := context.WithCancel(m.ctx)
	m.unsubscribe = cancel
	go m.api.SubscribeSupport(ctx, m.support.Nudge)
}

func (m *Model) stopSubscription() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Model) shutdown() {
	m.stopSubscription()
	m.widget.Close()
	m.support.Close()
}
