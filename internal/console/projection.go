// Package console holds the client-side state of a station console and the
// operations that drive chat turns, tool approvals and connections.
package console

import (
	"slices"
	"sync"

	"github.com/iksnae/mcp-station/internal"
)

// SessionView is a read-only copy of one session's client-side state
type SessionView struct {
	Info     internal.SessionInfo
	Messages []internal.Message
	Error    string
	Busy     bool
	Loaded   bool
}

type sessionState struct {
	messages []internal.Message
	err      string
	busy     bool
	loaded   bool
}

// Projection is the local mirror of sessions, messages and connections.
// Every mutation replaces the affected values under the lock; readers only
// ever receive copies.
type Projection struct {
	mu          sync.Mutex
	activeID    string
	sessions    []internal.SessionInfo
	states      map[string]sessionState
	connections []internal.Connection

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

// NewProjection returns an empty projection
func NewProjection() *Projection {
	return &Projection{
		states: make(map[string]sessionState),
		subs:   make(map[int]chan struct{}),
	}
}

// Subscribe returns a channel that receives a signal after every change.
// Signals coalesce; the receiver should re-read what it needs.
func (p *Projection) Subscribe() (<-chan struct{}, func()) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	id := p.nextID
	p.nextID++
	ch := make(chan struct{}, 1)
	p.subs[id] = ch
	return ch, func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		delete(p.subs, id)
	}
}

func (p *Projection) notify() {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ActiveID returns the active session id, or "" when none is selected
func (p *Projection) ActiveID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeID
}

// SetActive selects a session
func (p *Projection) SetActive(id string) {
	p.mu.Lock()
	p.activeID = id
	p.mu.Unlock()
	p.notify()
}

// Sessions returns the session list in display order
func (p *Projection) Sessions() []internal.SessionInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.sessions)
}

// SetSessions replaces the session list, keeping loaded message logs
func (p *Projection) SetSessions(list []internal.SessionInfo) {
	p.mu.Lock()
	p.sessions = slices.Clone(list)
	p.mu.Unlock()
	p.notify()
}

// AddSession puts a session at the top of the list
func (p *Projection) AddSession(info internal.SessionInfo) {
	p.mu.Lock()
	next := make([]internal.SessionInfo, 0, len(p.sessions)+1)
	next = append(next, info)
	for _, s := range p.sessions {
		if s.ID != info.ID {
			next = append(next, s)
		}
	}
	p.sessions = next
	if _, ok := p.states[info.ID]; !ok {
		p.states[info.ID] = sessionState{messages: []internal.Message{}, loaded: true}
	}
	p.mu.Unlock()
	p.notify()
}

// RemoveSession forgets a session. When it was active the first remaining
// session becomes active.
func (p *Projection) RemoveSession(id string) {
	p.mu.Lock()
	next := make([]internal.SessionInfo, 0, len(p.sessions))
	for _, s := range p.sessions {
		if s.ID != id {
			next = append(next, s)
		}
	}
	p.sessions = next
	delete(p.states, id)
	if p.activeID == id {
		p.activeID = ""
		if len(next) > 0 {
			p.activeID = next[0].ID
		}
	}
	p.mu.Unlock()
	p.notify()
}

// SessionInfo returns the listing entry for id
func (p *Projection) SessionInfo(id string) (internal.SessionInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return internal.SessionInfo{}, false
}

// View returns a copy of a session's state
func (p *Projection) View(id string) SessionView {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.states[id]
	view := SessionView{
		Messages: cloneMessages(st.messages),
		Error:    st.err,
		Busy:     st.busy,
		Loaded:   st.loaded,
	}
	for _, s := range p.sessions {
		if s.ID == id {
			view.Info = s
			break
		}
	}
	return view
}

// Messages returns a copy of a session's message log
func (p *Projection) Messages(id string) []internal.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneMessages(p.states[id].messages)
}

// SetMessages replaces a session's message log and marks it loaded
func (p *Projection) SetMessages(id string, msgs []internal.Message) {
	p.mutate(id, func(st *sessionState) bool {
		st.messages = cloneMessages(msgs)
		st.loaded = true
		return true
	})
}

// SetMessagesIfActive replaces the log only while id is still the active session
func (p *Projection) SetMessagesIfActive(id string, msgs []internal.Message) bool {
	return p.mutateIfActive(id, func(st *sessionState) bool {
		st.messages = cloneMessages(msgs)
		st.loaded = true
		return true
	})
}

// AppendMessages adds messages to the end of a session's log
func (p *Projection) AppendMessages(id string, msgs ...internal.Message) {
	p.mutate(id, func(st *sessionState) bool {
		next := cloneMessages(st.messages)
		for _, m := range msgs {
			next = append(next, m.Clone())
		}
		st.messages = next
		return true
	})
}

// UpdateMessage applies fn to a copy of the message and stores it when fn
// reports a change. It returns whether the message was replaced.
func (p *Projection) UpdateMessage(sessionID, messageID string, fn func(*internal.Message) bool) bool {
	return p.mutate(sessionID, updateByID(messageID, fn))
}

// UpdateMessageIfActive is UpdateMessage guarded by a check, under the same
// lock, that sessionID is still the active session
func (p *Projection) UpdateMessageIfActive(sessionID, messageID string, fn func(*internal.Message) bool) bool {
	return p.mutateIfActive(sessionID, updateByID(messageID, fn))
}

// UpdateLastMessageIfActive applies fn to the last message of an active session
func (p *Projection) UpdateLastMessageIfActive(sessionID string, fn func(*internal.Message) bool) bool {
	return p.mutateIfActive(sessionID, func(st *sessionState) bool {
		if len(st.messages) == 0 {
			return false
		}
		last := len(st.messages) - 1
		return replaceAt(st, last, fn)
	})
}

// SetError records or clears a session-level error
func (p *Projection) SetError(id, msg string) {
	p.mutate(id, func(st *sessionState) bool {
		if st.err == msg {
			return false
		}
		st.err = msg
		return true
	})
}

// SetBusy marks whether a session has an in-flight request
func (p *Projection) SetBusy(id string, busy bool) {
	p.mutate(id, func(st *sessionState) bool {
		if st.busy == busy {
			return false
		}
		st.busy = busy
		return true
	})
}

// Connections returns the known tool-server connections
func (p *Projection) Connections() []internal.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.connections)
}

// SetConnections replaces the connection list
func (p *Projection) SetConnections(list []internal.Connection) {
	p.mu.Lock()
	p.connections = slices.Clone(list)
	p.mu.Unlock()
	p.notify()
}

func (p *Projection) mutate(id string, fn func(*sessionState) bool) bool {
	p.mu.Lock()
	st := p.states[id]
	changed := fn(&st)
	if changed {
		p.states[id] = st
	}
	p.mu.Unlock()
	if changed {
		p.notify()
	}
	return changed
}

func (p *Projection) mutateIfActive(id string, fn func(*sessionState) bool) bool {
	p.mu.Lock()
	if p.activeID != id {
		p.mu.Unlock()
		internal.LogDebug("Dropping stale update for session %s", id)
		return false
	}
	st := p.states[id]
	changed := fn(&st)
	if changed {
		p.states[id] = st
	}
	p.mu.Unlock()
	if changed {
		p.notify()
	}
	return changed
}

func updateByID(messageID string, fn func(*internal.Message) bool) func(*sessionState) bool {
	return func(st *sessionState) bool {
		for i := len(st.messages) - 1; i >= 0; i-- {
			if st.messages[i].ID == messageID {
				return replaceAt(st, i, fn)
			}
		}
		return false
	}
}

// replaceAt runs fn on a copy of message i and swaps in a new slice on change
func replaceAt(st *sessionState, i int, fn func(*internal.Message) bool) bool {
	msg := st.messages[i].Clone()
	if !fn(&msg) {
		return false
	}
	next := slices.Clone(st.messages)
	next[i] = msg
	st.messages = next
	return true
}

func cloneMessages(msgs []internal.Message) []internal.Message {
	out := make([]internal.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
