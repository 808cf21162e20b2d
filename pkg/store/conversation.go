package store

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Message is one chat message of a conversation attached to a tree.
type Message struct {
	ID             string    `json:"id" bson:"id"`
	ConversationID string    `json:"conversation_id" bson:"conversation_id"`
	AuthorID       string    `json:"author_id,omitempty" bson:"author_id,omitempty"`
	Body           string    `json:"body" bson:"body"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}

// Conversation holds the messages of one conversation with the same
// idempotent-by-ID contract as [Store].
type Conversation struct {
	mu       sync.RWMutex
	id       string
	messages map[string]Message
	revision uint64
}

// NewConversation creates an empty message store for conversation id.
func NewConversation(id string) *Conversation {
	return &Conversation{id: id, messages: make(map[string]Message)}
}

// ID returns the conversation ID.
func (c *Conversation) ID() string { return c.id }

// Upsert inserts or replaces a message. Messages for other conversations
// and messages without an ID are ignored.
func (c *Conversation) Upsert(m Message) bool {
	if m.ID == "" || (m.ConversationID != "" && m.ConversationID != c.id) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.put(m)
}

// Replace replaces a message that is already held. It is a no-op when the
// message is absent.
func (c *Conversation) Replace(m Message) bool {
	if m.ID == "" || (m.ConversationID != "" && m.ConversationID != c.id) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.messages[m.ID]; !ok {
		return false
	}
	return c.put(m)
}

func (c *Conversation) put(m Message) bool {
	if old, ok := c.messages[m.ID]; ok && old.Body == m.Body && old.AuthorID == m.AuthorID && old.CreatedAt.Equal(m.CreatedAt) {
		return false
	}
	m.ConversationID = c.id
	c.messages[m.ID] = m
	c.revision++
	return true
}

// Delete removes a message. It is a no-op when absent.
func (c *Conversation) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.messages[id]; !ok {
		return false
	}
	delete(c.messages, id)
	c.revision++
	return true
}

// Messages returns all messages ordered by creation time, ties broken by ID.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Message) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Revision returns a counter that increases on every effective change.
func (c *Conversation) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}
