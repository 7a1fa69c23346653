package server

import (
	"context"
	"errors"
	"sync"
	"time"

	lucide "github.com/henribesnard/lucide-chat"
)

// ErrSessionNotFound indicates the session was not found.
var ErrSessionNotFound = errors.New("session not found")

// Session is one server-side conversation record. Its ID is the session
// identity clients receive in the metadata event.
type Session struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Messages  []lucide.Message `json:"messages"`
	Archived  bool             `json:"isArchived"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// SessionStore persists assistant sessions.
type SessionStore interface {
	// Get retrieves a session by ID. Returns (nil, nil) when absent.
	Get(ctx context.Context, id string) (*Session, error)

	// Save inserts or replaces a session.
	Save(ctx context.Context, sess *Session) error

	// List returns sessions in one archive-state partition, most recently
	// updated first.
	List(ctx context.Context, archived bool) ([]*Session, error)

	// Update applies a partial update. Returns ErrSessionNotFound when the
	// session does not exist.
	Update(ctx context.Context, id string, patch lucide.ConversationPatch) error
}

// memoryStore is the default in-memory session store.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() SessionStore {
	return &memoryStore{sessions: make(map[string]*Session)}
}

func (s *memoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *sess
	copied.Messages = append([]lucide.Message(nil), sess.Messages...)
	return &copied, nil
}

func (s *memoryStore) Save(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *sess
	copied.Messages = append([]lucide.Message(nil), sess.Messages...)
	s.sessions[sess.ID] = &copied
	return nil
}

func (s *memoryStore) List(ctx context.Context, archived bool) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for _, sess := range s.sessions {
		if sess.Archived != archived {
			continue
		}
		copied := *sess
		out = append(out, &copied)
	}
	sortSessions(out)
	return out, nil
}

func (s *memoryStore) Update(ctx context.Context, id string, patch lucide.ConversationPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if patch.Title != nil {
		sess.Title = *patch.Title
	}
	if patch.Archived != nil {
		sess.Archived = *patch.Archived
	}
	return nil
}

func sortSessions(sessions []*Session) {
	for i := 1; i < len(sessions); i++ {
		for j := i; j > 0 && sessions[j].UpdatedAt.After(sessions[j-1].UpdatedAt); j-- {
			sessions[j], sessions[j-1] = sessions[j-1], sessions[j]
		}
	}
}
