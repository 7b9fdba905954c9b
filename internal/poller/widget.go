package poller

import (
	"context"
	"strings"
	"time"

	"market-chat/internal/apperrors"
	"market-chat/internal/models"
)

// Source is the conversation store as seen by one signed-in user.
type Source interface {
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	FetchMessages(ctx context.Context, conversationID int64) ([]models.Message, error)
	SendMessage(ctx context.Context, conversationID int64, body string) (models.Message, error)
	MarkRead(ctx context.Context, conversationID int64) (int64, error)
}

// View is a snapshot of the widget for rendering.
type View struct {
	State         State
	Selected      int64
	Conversations []models.ConversationSummary
	Messages      []models.Message
	Draft         string
	Sending       bool
	Notice        string
}

// Widget drives the conversation list and the selected conversation.
type Widget struct {
	loop

	src      Source
	onChange func()

	state    State
	selected int64
	draft    string
	sending  bool

	list          scope
	messages      scope
	conversations []models.ConversationSummary
	msgs          []models.Message
}

// New builds a closed widget. onChange, if set, is called after every change
// and may be called from any goroutine; read the state with View.
func New(src Source, opts Options, onChange func()) *Widget {
	return &Widget{loop: loop{opts: opts.withDefaults()}, src: src, onChange: onChange}
}

// Open shows the conversation list. Opening an already open widget is a no-op.
func (w *Widget) Open() {
	w.mu.Lock()
	if w.state != Closed {
		w.mu.Unlock()
		return
	}
	w.enterLocked(ListOnly, 0)
	w.mu.Unlock()
	w.notify()
}

// Select opens conversationID. It fetches at once, then marks the
// conversation read once for this selection.
func (w *Widget) Select(conversationID int64) {
	w.mu.Lock()
	if w.state == InConversation && w.selected == conversationID {
		w.mu.Unlock()
		return
	}
	if w.selected != conversationID {
		w.msgs = nil
		w.draft = ""
	}
	w.enterLocked(InConversation, conversationID)
	w.mu.Unlock()
	w.notify()
}

// Deselect goes back to the list and stops polling the conversation.
func (w *Widget) Deselect() {
	w.mu.Lock()
	if w.state != InConversation {
		w.mu.Unlock()
		return
	}
	w.msgs = nil
	w.draft = ""
	w.enterLocked(ListOnly, 0)
	w.mu.Unlock()
	w.notify()
}

// Minimize stops polling but remembers the selection and draft so Resume
// continues where the user left off.
func (w *Widget) Minimize() {
	w.mu.Lock()
	if w.state == Closed {
		w.mu.Unlock()
		return
	}
	selected := w.selected
	w.enterLocked(Closed, 0)
	w.selected = selected
	w.mu.Unlock()
	w.notify()
}

// Resume reopens a minimized widget on the remembered conversation.
func (w *Widget) Resume() {
	w.mu.Lock()
	if w.state != Closed {
		w.mu.Unlock()
		return
	}
	if w.selected == 0 {
		w.enterLocked(ListOnly, 0)
	} else {
		w.enterLocked(InConversation, w.selected)
	}
	w.mu.Unlock()
	w.notify()
}

// Close stops polling and forgets the selection.
func (w *Widget) Close() {
	w.mu.Lock()
	w.msgs = nil
	w.draft = ""
	w.enterLocked(Closed, 0)
	w.mu.Unlock()
	w.notify()
}

func (w *Widget) SetDraft(text string) {
	w.mu.Lock()
	w.draft = text
	w.mu.Unlock()
}

func (w *Widget) DismissNotice() {
	w.loop.DismissNotice()
	w.notify()
}

func (w *Widget) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

// Send posts the draft to the selected conversation. The draft is cleared only
// on success, and a success refreshes the conversation right away. Only one
// send runs at a time; the others return ErrSendInFlight.
func (w *Widget) Send(ctx context.Context) (models.Message, error) {
	w.mu.Lock()
	if w.state != InConversation {
		w.mu.Unlock()
		return models.Message{}, ErrNoConversation
	}
	if w.sending {
		w.mu.Unlock()
		return models.Message{}, ErrSendInFlight
	}
	draft := w.draft
	body := strings.TrimSpace(draft)
	if body == "" {
		w.mu.Unlock()
		return models.Message{}, apperrors.ErrEmptyMessage
	}
	conversationID, sess := w.selected, w.sess
	w.sending = true
	w.mu.Unlock()
	w.notify()

	msg, err := w.src.SendMessage(ctx, conversationID, body)

	w.mu.Lock()
	w.sending = false
	if err != nil {
		if w.currentLocked(sess.epoch) {
			w.notice = "Message not sent: " + apperrors.From(err).Message
			w.noticeTransient = false
		}
		w.mu.Unlock()
		w.notify()
		return models.Message{}, err
	}
	if w.draft == draft {
		w.draft = ""
	}
	current := w.currentLocked(sess.epoch)
	w.mu.Unlock()
	w.notify()

	if current {
		go w.refreshMessages(sess, conversationID)
		go w.refreshList(sess)
	}
	return msg, nil
}

func (w *Widget) enterLocked(state State, conversationID int64) {
	w.state = state
	w.selected = conversationID
	w.restartLocked(state != Closed, func(s *session) { w.run(s, conversationID) })
}

func (w *Widget) run(s *session, conversationID int64) {
	go func() {
		if conversationID != 0 {
			w.refreshMessages(s, conversationID)
			w.markRead(s, conversationID)
		}
		w.refreshList(s)
	}()

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for w.tick(s, ticker) {
		if conversationID != 0 {
			go w.refreshMessages(s, conversationID)
		}
		go w.refreshList(s)
	}
}

func (w *Widget) refreshList(s *session) {
	w.mu.Lock()
	if !w.currentLocked(s.epoch) {
		w.mu.Unlock()
		return
	}
	seq := w.list.next()
	w.mu.Unlock()

	list, err := w.src.ListConversations(s.ctx)

	w.mu.Lock()
	if !w.currentLocked(s.epoch) || w.list.stale(seq) {
		w.mu.Unlock()
		return
	}
	if err != nil {
		changed := w.failLocked(err)
		w.mu.Unlock()
		if changed {
			w.notify()
		}
		return
	}
	w.list.applied = seq
	w.conversations = list
	w.succeedLocked()
	w.mu.Unlock()
	w.notify()
}

func (w *Widget) refreshMessages(s *session, conversationID int64) {
	w.mu.Lock()
	if !w.currentLocked(s.epoch) {
		w.mu.Unlock()
		return
	}
	seq := w.messages.next()
	w.mu.Unlock()

	msgs, err := w.src.FetchMessages(s.ctx, conversationID)

	w.mu.Lock()
	if !w.currentLocked(s.epoch) || w.messages.stale(seq) {
		w.mu.Unlock()
		return
	}
	if err != nil {
		changed := w.failLocked(err)
		w.mu.Unlock()
		if changed {
			w.notify()
		}
		return
	}
	w.messages.applied = seq
	w.msgs = msgs
	w.succeedLocked()
	w.mu.Unlock()
	w.notify()
}

func (w *Widget) markRead(s *session, conversationID int64) {
	w.mu.Lock()
	current := w.currentLocked(s.epoch)
	w.mu.Unlock()
	if !current {
		return
	}

	_, err := w.src.MarkRead(s.ctx, conversationID)
	if err == nil {
		return
	}
	w.mu.Lock()
	changed := w.currentLocked(s.epoch) && w.failLocked(err)
	w.mu.Unlock()
	if changed {
		w.notify()
	}
}

func (w *Widget) viewLocked() View {
	return View{
		State:         w.state,
		Selected:      w.selected,
		Conversations: append([]models.ConversationSummary(nil), w.conversations...),
		Messages:      append([]models.Message(nil), w.msgs...),
		Draft:         w.draft,
		Sending:       w.sending,
		Notice:        w.notice,
	}
}

func (w *Widget) notify() {
	if w.onChange != nil {
		w.onChange()
	}
}
