package dispatcher

import (
	"sync"
	"time"

	"github.com/arko-chat/pedometer/internal/models"
)

// Responder carries responses back to one script context. Send must not
// block: it is called with the session lock held.
type Responder interface {
	ID() string
	Send(resp models.Response) error
}

type subscription struct {
	id        string
	gen       uint64
	callID    string
	responder Responder
	from      time.Time
	started   time.Time
}

// Session owns the single standing subscription slot of one application
// instance, and the queue native callbacks feed.
type Session struct {
	mu     sync.Mutex
	gen    uint64
	active *subscription
	queue  *queue
}

func newSession() *Session {
	return &Session{queue: newQueue()}
}

type SessionState struct {
	Active       bool      `json:"active"`
	Subscription string    `json:"subscription,omitempty"`
	CallID       string    `json:"callId,omitempty"`
	Since        time.Time `json:"since,omitzero"`
	Pending      int       `json:"pending"`
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SessionState{Pending: s.queue.len()}
	if s.active != nil {
		st.Active = true
		st.Subscription = s.active.id
		st.CallID = s.active.callID
		st.Since = s.active.started
	}
	return st
}

// handler is what the platform calls back into. It only tags and queues,
// so it is safe on the platform's delivery thread.
type handler struct {
	q   *queue
	gen uint64
}

func (h handler) OnUpdate(data models.PedometerData) {
	h.q.push(item{gen: h.gen, data: data})
}

func (h handler) OnError(err error) {
	h.q.push(item{gen: h.gen, err: err})
}
