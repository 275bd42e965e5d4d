// Package session holds the client's optimistic working copy of the user's chats.
package session

import (
	"sort"
	"sync"
	"time"
)

// Role of a message author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a chat entry as the client sees it. Revealing marks an assistant
// message whose content is still being filled in.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
	Revealing bool
}

// Chat is the client's copy of one chat
type Chat struct {
	ID        string
	Name      string
	Messages  []Message
	UpdatedAt time.Time
}

func (c *Chat) clone() Chat {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}

// EventKind describes what changed in the state
type EventKind int

const (
	ChatsReplaced EventKind = iota
	ChatUpdated
	ChatRemoved
	SelectionChanged
	MessageAppended
	MessageRemoved
	MessageContentChanged
	DraftChanged
)

// Event is delivered to subscribers after every mutation
type Event struct {
	Kind      EventKind
	ChatID    string
	MessageID string
}

// State maps chat ids to chats and tracks the selected chat and the prompt draft.
// It is safe for concurrent use; readers get copies.
type State struct {
	mu       sync.RWMutex
	chats    map[string]*Chat
	order    []string
	selected string
	draft    string
	subs     []chan Event
}

func New() *State {
	return &State{chats: make(map[string]*Chat)}
}

// Subscribe returns a channel of change events. Events are dropped when the
// channel is full, so consumers should re-read state rather than count events.
func (s *State) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery to a channel returned by Subscribe
func (s *State) Unsubscribe(ch <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.subs {
		if c == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// emit must be called with s.mu held
func (s *State) emit(e Event) {
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// ReplaceChats installs a freshly fetched chat list, ordered by last update,
// newest first. The selection is kept if the chat still exists, otherwise
// the newest chat is selected.
func (s *State) ReplaceChats(chats []Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = make(map[string]*Chat, len(chats))
	for i := range chats {
		c := chats[i].clone()
		s.chats[c.ID] = &c
	}
	s.reorder()

	if _, ok := s.chats[s.selected]; !ok {
		s.selected = ""
		if len(s.order) > 0 {
			s.selected = s.order[0]
		}
	}
	s.emit(Event{Kind: ChatsReplaced, ChatID: s.selected})
}

func (s *State) reorder() {
	s.order = s.order[:0]
	for id := range s.chats {
		s.order = append(s.order, id)
	}
	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.chats[s.order[i]], s.chats[s.order[j]]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

// Chats returns every chat, newest first
func (s *State) Chats() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chat, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.chats[id].clone())
	}
	return out
}

// Chat returns a copy of one chat
func (s *State) Chat(id string) (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[id]
	if !ok {
		return Chat{}, false
	}
	return c.clone(), true
}

// Has reports whether the chat exists
func (s *State) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chats[id]
	return ok
}

// Selected returns the selected chat
func (s *State) Selected() (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[s.selected]
	if !ok {
		return Chat{}, false
	}
	return c.clone(), true
}

func (s *State) SelectedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Select makes id the selected chat. It reports false for an unknown chat.
func (s *State) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[id]; !ok {
		return false
	}
	if s.selected != id {
		s.selected = id
		s.emit(Event{Kind: SelectionChanged, ChatID: id})
	}
	return true
}

// UpsertChat adds or replaces a chat
func (s *State) UpsertChat(chat Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := chat.clone()
	s.chats[c.ID] = &c
	s.reorder()
	s.emit(Event{Kind: ChatUpdated, ChatID: c.ID})
}

// RemoveChat drops a chat. If it was selected, the newest remaining chat is selected.
func (s *State) RemoveChat(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[id]; !ok {
		return false
	}
	delete(s.chats, id)
	s.reorder()
	s.emit(Event{Kind: ChatRemoved, ChatID: id})

	if s.selected == id {
		s.selected = ""
		if len(s.order) > 0 {
			s.selected = s.order[0]
		}
		s.emit(Event{Kind: SelectionChanged, ChatID: s.selected})
	}
	return true
}

// RenameChat changes a chat's name. Message order is untouched.
func (s *State) RenameChat(id, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[id]
	if !ok {
		return false
	}
	c.Name = name
	s.emit(Event{Kind: ChatUpdated, ChatID: id})
	return true
}

// AppendMessage adds msg to the end of the chat
func (s *State) AppendMessage(chatID string, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return false
	}
	c.Messages = append(c.Messages, msg)
	if msg.Timestamp.After(c.UpdatedAt) {
		c.UpdatedAt = msg.Timestamp
	}
	s.emit(Event{Kind: MessageAppended, ChatID: chatID, MessageID: msg.ID})
	return true
}

// RemoveMessage deletes a message by identity
func (s *State) RemoveMessage(chatID, msgID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return false
	}
	for i := range c.Messages {
		if c.Messages[i].ID == msgID {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			s.emit(Event{Kind: MessageRemoved, ChatID: chatID, MessageID: msgID})
			return true
		}
	}
	return false
}

// SetMessageContent overwrites the content of a revealing message. final
// ends the reveal, after which the message can no longer change.
func (s *State) SetMessageContent(chatID, msgID, content string, final bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return false
	}
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.ID != msgID {
			continue
		}
		if !m.Revealing {
			return false
		}
		m.Content = content
		if final {
			m.Revealing = false
		}
		s.emit(Event{Kind: MessageContentChanged, ChatID: chatID, MessageID: msgID})
		return true
	}
	return false
}

// Draft is the prompt text waiting in the input surface
func (s *State) Draft() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft
}

func (s *State) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
	s.emit(Event{Kind: DraftChanged})
}
