package lucide

import (
	"sort"
	"sync"
	"time"
)

// Store is the ordered in-memory collection of conversations shared by every
// component of the engine. Entries are kept sorted most-recently-updated
// first, identities stay unique, and all mutation goes through the methods
// below. The Store itself performs no I/O.
type Store struct {
	mu       sync.RWMutex
	entries  []*Conversation
	active   string
	now      func() time.Time
	listener func()
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// SetClock overrides the time source. Used by tests and replay.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// OnChange registers the listener invoked after every mutation. A single
// listener is supported; the persistence adapter owns it. The listener runs
// outside the store lock so it may read the store freely.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

func (s *Store) notify() {
	s.mu.RLock()
	fn := s.listener
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// ConversationUpdate is the partial record merged by Upsert. Pointer fields
// overwrite only when non-nil; absent fields keep the existing entry's value
// and fall back to safe defaults on insert.
type ConversationUpdate struct {
	ID       string
	Title    *string
	Preview  *string
	Context  *ContextSelection
	Messages []Message
	Archived *bool

	// CreatedAt is used only when the existing entry has none; zero means "now".
	CreatedAt time.Time

	// UpdatedAt overrides the "now" bump when non-zero. Replay and migration
	// pass explicit values here.
	UpdatedAt time.Time
}

// Upsert merges the update into the entry matched by identity, or inserts a
// new entry, then re-sorts so the most recently updated conversation is first
// and recomputes the date label.
func (s *Store) Upsert(u ConversationUpdate) {
	if u.ID == "" {
		return
	}

	s.mu.Lock()
	now := s.now()

	entry := s.findLocked(u.ID)
	if entry == nil {
		entry = &Conversation{ID: u.ID, Title: DefaultTitle}
		s.entries = append(s.entries, entry)
	}

	if u.Title != nil {
		entry.Title = *u.Title
	}
	if entry.Title == "" {
		entry.Title = DefaultTitle
	}
	if u.Preview != nil {
		entry.Preview = *u.Preview
	}
	if u.Context != nil {
		entry.Context = u.Context
	}
	if u.Messages != nil {
		entry.Messages = u.Messages
	}
	if u.Archived != nil {
		entry.Archived = *u.Archived
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = u.CreatedAt
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
	}

	entry.UpdatedAt = u.UpdatedAt
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}
	entry.DateLabel = FormatDateLabel(entry.UpdatedAt, now)

	s.sortLocked()
	s.mu.Unlock()

	s.notify()
}

// Select sets the active conversation. An empty identity means "compose a new
// conversation, not yet created". Selecting an unknown identity is a no-op.
func (s *Store) Select(id string) {
	s.mu.Lock()
	if id == "" || s.findLocked(id) != nil {
		s.active = id
	}
	s.mu.Unlock()
}

// Active returns the identity of the selected conversation, or "" when the
// user is composing a new one.
func (s *Store) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetArchived flips the archive flag without touching messages or UpdatedAt.
func (s *Store) SetArchived(id string, archived bool) bool {
	s.mu.Lock()
	entry := s.findLocked(id)
	if entry == nil {
		s.mu.Unlock()
		return false
	}
	entry.Archived = archived
	s.mu.Unlock()

	s.notify()
	return true
}

// AppendMessage appends to the conversation transcript, bumps UpdatedAt and
// re-sorts. Messages are never removed once appended.
func (s *Store) AppendMessage(id string, msg Message) bool {
	s.mu.Lock()
	entry := s.findLocked(id)
	if entry == nil {
		s.mu.Unlock()
		return false
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	entry.Messages = append(entry.Messages, msg)
	s.touchLocked(entry)
	s.mu.Unlock()

	s.notify()
	return true
}

// AppendToLastMessage appends a content fragment to the conversation's last
// message. During a send the ingestion controller is the only writer of that
// field. Fragments arrive at token rate, so this mutation deliberately skips
// the change listener; the Touch at end of send triggers the write-back.
func (s *Store) AppendToLastMessage(id, fragment string) bool {
	s.mu.Lock()
	entry := s.findLocked(id)
	if entry == nil || len(entry.Messages) == 0 {
		s.mu.Unlock()
		return false
	}
	entry.Messages[len(entry.Messages)-1].Content += fragment
	s.mu.Unlock()
	return true
}

// ReplaceLastMessageContent overwrites the content of the conversation's last
// message. Used to surface stream failures in place of the placeholder.
func (s *Store) ReplaceLastMessageContent(id, content string) bool {
	s.mu.Lock()
	entry := s.findLocked(id)
	if entry == nil || len(entry.Messages) == 0 {
		s.mu.Unlock()
		return false
	}
	entry.Messages[len(entry.Messages)-1].Content = content
	s.mu.Unlock()

	s.notify()
	return true
}

// Touch bumps the conversation's UpdatedAt to now, recomputes its date label
// and re-sorts.
func (s *Store) Touch(id string) bool {
	s.mu.Lock()
	entry := s.findLocked(id)
	if entry == nil {
		s.mu.Unlock()
		return false
	}
	s.touchLocked(entry)
	s.mu.Unlock()

	s.notify()
	return true
}

// Promote reconciles a draft identity with a newly received server identity:
// the draft entry is renamed in place, the active selection follows it, and
// any other entry already carrying the server identity is removed. The
// promoted entry wins that collision since it holds the freshest in-memory
// messages. No-op when the conversation is not a draft or the server identity
// is empty.
func (s *Store) Promote(draftID, serverID string) bool {
	if serverID == "" || !IsDraftID(draftID) {
		return false
	}

	s.mu.Lock()
	draft := s.findLocked(draftID)
	if draft == nil {
		s.mu.Unlock()
		return false
	}

	kept := s.entries[:0]
	for _, entry := range s.entries {
		if entry.ID == serverID {
			continue
		}
		kept = append(kept, entry)
	}
	s.entries = kept

	draft.ID = serverID
	if s.active == draftID {
		s.active = serverID
	}
	s.mu.Unlock()

	s.notify()
	return true
}

// Get returns a copy of the conversation with the given identity. The
// message slice is copied too: streaming mutates the last message's content
// in place, so a shared backing array would race with readers.
func (s *Store) Get(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry := s.findLocked(id)
	if entry == nil {
		return Conversation{}, false
	}
	return copySnapshot(entry), true
}

// All returns a snapshot of every conversation in store order, safe to read
// and marshal outside the store lock.
func (s *Store) All() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Conversation, len(s.entries))
	for i, entry := range s.entries {
		out[i] = copySnapshot(entry)
	}
	return out
}

func copySnapshot(entry *Conversation) Conversation {
	out := *entry
	out.Messages = append([]Message(nil), entry.Messages...)
	return out
}

// Len returns the number of conversations held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Restore replaces the collection wholesale. Used by hydration; the change
// listener is deliberately not invoked.
func (s *Store) Restore(convs []Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]*Conversation, 0, len(convs))
	seen := make(map[string]struct{}, len(convs))
	for i := range convs {
		c := convs[i]
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		s.entries = append(s.entries, &c)
	}
	s.sortLocked()
}

func (s *Store) findLocked(id string) *Conversation {
	for _, entry := range s.entries {
		if entry.ID == id {
			return entry
		}
	}
	return nil
}

func (s *Store) touchLocked(entry *Conversation) {
	now := s.now()
	entry.UpdatedAt = now
	entry.DateLabel = FormatDateLabel(entry.UpdatedAt, now)
	s.sortLocked()
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].UpdatedAt.After(s.entries[j].UpdatedAt)
	})
}
