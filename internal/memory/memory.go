// Package memory keeps the per-run interaction history of processed tickets.
package memory

import (
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
)

// Roles recorded by the workflow engine.
const (
	RoleCustomer   = "customer"
	RoleClassifier = "classifier"
	RoleAgent      = "agent"
	RoleReviewer   = "reviewer"
	RoleSystem     = "system"
)

// ErrUnknownConversation is returned when adding to a conversation that was never opened.
var ErrUnknownConversation = errors.New("memory: conversation not initialized")

// Interaction is one entry in a conversation history.
type Interaction struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is the ticket and its ordered interaction history.
type Conversation struct {
	ID      string        `json:"id"`
	Ticket  ticket.Ticket `json:"ticket"`
	History []Interaction `json:"history"`
}

// Store is an in-memory conversation store, safe for concurrent use.
//
// When Limit is positive, opening a conversation beyond the limit evicts the
// oldest one.
type Store struct {
	mu    sync.Mutex
	limit int
	convs map[string]*Conversation
	order []string
}

// NewStore returns a store holding at most limit conversations (0 = unbounded).
func NewStore(limit int) *Store {
	return &Store{limit: limit, convs: make(map[string]*Conversation)}
}

// Initialize opens a conversation for t under a fresh ID.
func (s *Store) Initialize(t ticket.Ticket) string {
	id := uuid.NewString()
	s.Open(id, t)
	return id
}

// Open starts (or restarts) the conversation id for t.
func (s *Store) Open(id string, t ticket.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[id]; ok {
		s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	}
	s.convs[id] = &Conversation{ID: id, Ticket: t, History: []Interaction{}}
	s.order = append(s.order, id)

	for s.limit > 0 && len(s.order) > s.limit {
		delete(s.convs, s.order[0])
		s.order = s.order[1:]
	}
}

// Add appends an interaction to conversation id.
func (s *Store) Add(id, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[id]
	if !ok {
		return ErrUnknownConversation
	}
	c.History = append(c.History, Interaction{Role: role, Content: content})
	return nil
}

// Get returns a copy of conversation id.
func (s *Store) Get(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[id]
	if !ok {
		return Conversation{}, false
	}
	out := *c
	out.History = slices.Clone(c.History)
	return out, true
}

// Forget drops conversation id.
func (s *Store) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[id]; !ok {
		return
	}
	delete(s.convs, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
}

// Len returns the number of open conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}
