package stream

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// Apology replaces a reply when the stream failed before any content arrived.
const Apology = "Sorry, an error occurred. Please try again."

// TempIDPrefix marks conversations that exist only on the client.
const TempIDPrefix = "temp-"

// Phase is the reducer's state for the current turn.
type Phase string

const (
	AwaitingFirstToken Phase = "awaiting_first_token"
	Streaming          Phase = "streaming"
	Completed          Phase = "completed"
	Failed             Phase = "failed"
)

// Terminal reports whether no further events are applied.
func (p Phase) Terminal() bool { return p == Completed || p == Failed }

// Message is a client-side chat bubble.
type Message struct {
	ID        string
	Role      domain.Role
	Content   string
	Streaming bool
}

// Conversation is the client view of a thread.
type Conversation struct {
	ID       string
	Name     string
	Messages []Message
}

// ClientState is everything a chat client renders. It is safe for concurrent
// use; readers take a Snapshot.
type ClientState struct {
	mu            sync.Mutex
	conversations []*Conversation
	activeID      string
	thinking      bool
	seq           int
}

// NewClientState returns empty state.
func NewClientState() *ClientState { return &ClientState{} }

func (s *ClientState) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

// StartConversation adds a client-only conversation under a temporary id,
// makes it active and returns the id.
func (s *ClientState) StartConversation(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Conversation{ID: s.nextID(TempIDPrefix), Name: name}
	s.conversations = append([]*Conversation{c}, s.conversations...)
	s.activeID = c.ID
	return c.ID
}

// Load replaces state with conversations fetched from the server.
func (s *ClientState) Load(convs []Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = s.conversations[:0]
	for i := range convs {
		c := convs[i]
		c.Messages = append([]Message(nil), c.Messages...)
		s.conversations = append(s.conversations, &c)
	}
	s.activeID = ""
	if len(s.conversations) > 0 {
		s.activeID = s.conversations[0].ID
	}
}

// ActiveID returns the id of the active conversation.
func (s *ClientState) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Thinking reports whether a reply is pending with no visible content.
func (s *ClientState) Thinking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thinking
}

// Snapshot returns a deep copy of the conversations.
func (s *ClientState) Snapshot() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = Conversation{ID: c.ID, Name: c.Name, Messages: append([]Message(nil), c.Messages...)}
	}
	return out
}

// Conversation returns a copy of one conversation.
func (s *ClientState) Conversation(id string) (Conversation, bool) {
	for _, c := range s.Snapshot() {
		if c.ID == id {
			return c, true
		}
	}
	return Conversation{}, false
}

func (s *ClientState) find(id string) *Conversation {
	for _, c := range s.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Reducer applies the events of one reply to a ClientState.
type Reducer struct {
	state   *ClientState
	convID  string
	isNew   bool
	agentID string
	added   bool
	content strings.Builder
	phase   Phase
}

// BeginTurn records the user's message in the conversation and returns the
// reducer for the agent's reply.
func (s *ClientState) BeginTurn(convID, text string) (*Reducer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(convID)
	if c == nil {
		return nil, fmt.Errorf("stream: unknown conversation %q", convID)
	}
	c.Messages = append(c.Messages, Message{ID: s.nextID("u-"), Role: domain.RoleUser, Content: text})
	s.thinking = true
	return &Reducer{
		state:   s,
		convID:  convID,
		isNew:   strings.HasPrefix(convID, TempIDPrefix),
		agentID: s.nextID("a-"),
		phase:   AwaitingFirstToken,
	}, nil
}

// RequestID is the conversation id to send to the server: empty for a
// client-only conversation.
func (r *Reducer) RequestID() string {
	if r.isNew {
		return ""
	}
	return r.convID
}

// ConversationID is the current id of the turn's conversation.
func (r *Reducer) ConversationID() string {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.convID
}

// Phase returns the current phase.
func (r *Reducer) Phase() Phase {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.phase
}

// Content returns the reply text received so far.
func (r *Reducer) Content() string {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.content.String()
}

// Apply advances the turn by one event and returns the new phase. Events
// after a terminal phase are ignored.
func (r *Reducer) Apply(e Event) Phase {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.phase.Terminal() {
		return r.phase
	}

	switch ev := e.(type) {
	case Thinking:
		s.thinking = true
	case ContentDelta:
		if ev.Text == "" {
			break
		}
		c := s.find(r.convID)
		if c == nil {
			break
		}
		r.content.WriteString(ev.Text)
		if !r.added {
			r.added = true
			c.Messages = append(c.Messages, Message{ID: r.agentID, Role: domain.RoleAgent, Streaming: true})
			s.thinking = false
			r.phase = Streaming
		}
		r.setAgentContent(c, r.content.String(), true)
	case Done:
		if r.isNew && ev.ConversationID != "" {
			r.rename(ev.ConversationID)
		}
		if c := s.find(r.convID); c != nil && r.added {
			r.setAgentContent(c, r.content.String(), false)
		}
		s.thinking = false
		r.phase = Completed
	case Error:
		r.fail()
	}
	return r.phase
}

// Fail routes a transport failure (for example a refused connection) through
// the same recovery as an in-stream Error event.
func (r *Reducer) Fail(err error) Phase {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return r.Apply(Error{Reason: reason})
}

// fail keeps partial content, or shows Apology when nothing arrived.
// Callers hold the state lock.
func (r *Reducer) fail() {
	s := r.state
	s.thinking = false
	r.phase = Failed
	c := s.find(r.convID)
	if c == nil {
		return
	}
	if !r.added {
		r.added = true
		c.Messages = append(c.Messages, Message{ID: r.agentID, Role: domain.RoleAgent, Content: Apology})
		return
	}
	text := r.content.String()
	if text == "" {
		text = Apology
	}
	r.setAgentContent(c, text, false)
}

// rename moves the temporary id to the server id everywhere it is referenced.
// Callers hold the state lock.
func (r *Reducer) rename(serverID string) {
	s := r.state
	old := r.convID
	if c := s.find(old); c != nil {
		c.ID = serverID
	}
	if s.activeID == old {
		s.activeID = serverID
	}
	r.convID = serverID
	r.isNew = false
}

func (r *Reducer) setAgentContent(c *Conversation, text string, streaming bool) {
	for i := range c.Messages {
		if c.Messages[i].ID == r.agentID {
			c.Messages[i].Content = text
			c.Messages[i].Streaming = streaming
			return
		}
	}
}
