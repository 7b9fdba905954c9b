// Package poller keeps a client's view of conversations in step with the
// server by fetching full snapshots on a fixed interval.
//
// Every request is stamped with the epoch it was issued in and a per-scope
// sequence number. A response is applied only if its epoch is still current
// and no newer response for the same scope has been applied, so a slow reply
// can never roll the view back.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"market-chat/internal/apperrors"
)

const (
	DefaultInterval         = 2 * time.Second
	DefaultFailureThreshold = 3

	transientNotice = "Connection problem, retrying"
)

var (
	ErrNoConversation = errors.New("no conversation selected")
	ErrSendInFlight   = errors.New("a send is already in progress")
)

type State int

const (
	Closed State = iota
	ListOnly
	InConversation
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case ListOnly:
		return "list"
	case InConversation:
		return "conversation"
	}
	return "unknown"
}

type Options struct {
	// Interval between polls. Zero means DefaultInterval.
	Interval time.Duration
	// FailureThreshold is how many transient failures in a row stay silent.
	// Zero means DefaultFailureThreshold.
	FailureThreshold int
	// Context bounds every session. Defaults to context.Background.
	Context context.Context
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	return o
}

// scope tracks latest-request-wins for one kind of snapshot.
type scope struct {
	issued  uint64
	applied uint64
}

func (s *scope) next() uint64 {
	s.issued++
	return s.issued
}

func (s *scope) stale(seq uint64) bool {
	return seq <= s.applied
}

// session is one open period of a widget. Cancelling it stops the ticker and
// aborts requests in flight.
type session struct {
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc
	nudge  chan struct{}
}

// loop holds what both widgets share: the lock, the current session and the
// error notice policy.
type loop struct {
	mu   sync.Mutex
	opts Options

	epoch uint64
	sess  *session

	failures        int
	notice          string
	noticeTransient bool
}

// restartLocked cancels the current session and, when open, starts a new one
// running run. The epoch always advances so late responses are dropped.
func (l *loop) restartLocked(open bool, run func(*session)) {
	if l.sess != nil {
		l.sess.cancel()
		l.sess = nil
	}
	l.epoch++
	if !open {
		return
	}
	ctx, cancel := context.WithCancel(l.opts.Context)
	s := &session{epoch: l.epoch, ctx: ctx, cancel: cancel, nudge: make(chan struct{}, 1)}
	l.sess = s
	go run(s)
}

func (l *loop) currentLocked(epoch uint64) bool {
	return l.sess != nil && l.sess.epoch == epoch
}

// tick blocks until the next poll is due. It returns false once the session
// ends.
func (l *loop) tick(s *session, t *time.Ticker) bool {
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	case <-s.nudge:
		return true
	}
}

// Nudge asks the open session to poll now instead of waiting for the tick.
func (l *loop) Nudge() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sess == nil {
		return
	}
	select {
	case l.sess.nudge <- struct{}{}:
	default:
	}
}

// failLocked applies the error policy and reports whether the view changed.
// Transient failures stay silent until the threshold; anything else is shown
// at once.
func (l *loop) failLocked(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if apperrors.IsTransient(err) {
		l.failures++
		if l.failures < l.opts.FailureThreshold || l.notice != "" {
			return false
		}
		l.notice = transientNotice
		l.noticeTransient = true
		return true
	}
	l.notice = apperrors.From(err).Message
	l.noticeTransient = false
	return true
}

// succeedLocked resets the failure streak and clears a connection notice.
func (l *loop) succeedLocked() {
	l.failures = 0
	if l.noticeTransient {
		l.notice = ""
		l.noticeTransient = false
	}
}

// DismissNotice hides the current notice. Widget state is left as is.
func (l *loop) DismissNotice() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notice = ""
	l.noticeTransient = false
	l.failures = 0
}
