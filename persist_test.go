package lucide

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// memorySlot is an in-memory Slot for testing.
type memorySlot struct {
	data    map[string][]byte
	writes  int
	readErr error
}

func newMemorySlot() *memorySlot {
	return &memorySlot{data: make(map[string][]byte)}
}

func (m *memorySlot) Read(key string) ([]byte, bool, error) {
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	data, ok := m.data[key]
	return data, ok, nil
}

func (m *memorySlot) Write(key string, data []byte) error {
	m.writes++
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling fixture: %v", err)
	}
	return data
}

func TestSlotKey(t *testing.T) {
	if got := SlotKey("user-7"); got != "conversations:user-7" {
		t.Errorf("unexpected key %q", got)
	}
	if got := SlotKey(""); got != "conversations:anonymous" {
		t.Errorf("unexpected anonymous key %q", got)
	}
}

func TestAdapterHydrate(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("loads the namespaced slot", func(t *testing.T) {
		slot := newMemorySlot()
		slot.data["conversations:user-7"] = mustMarshal(t, []Conversation{
			{ID: "c1", Title: "Kept", CreatedAt: base, UpdatedAt: base},
		})

		store := NewStore()
		adapter := NewAdapter(slot, store, "user-7", quietLogger())
		if err := adapter.Hydrate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		conv, ok := store.Get("c1")
		if !ok || conv.Title != "Kept" {
			t.Fatalf("namespaced state not loaded: %+v", conv)
		}
	})

	t.Run("migrates the legacy slot once, forward only", func(t *testing.T) {
		legacy := mustMarshal(t, []Conversation{
			{Title: "", Messages: []Message{{Role: RoleUser, Content: "old question"}}},
		})
		slot := newMemorySlot()
		slot.data["conversations"] = append([]byte(nil), legacy...)

		store := NewStore()
		adapter := NewAdapter(slot, store, "user-7", quietLogger())
		adapter.SetClock(fixedClock(base))
		if err := adapter.Hydrate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if store.Len() != 1 {
			t.Fatalf("expected 1 migrated conversation, got %d", store.Len())
		}
		migrated := store.All()[0]
		if migrated.ID == "" {
			t.Error("migration left an empty identity")
		}
		if migrated.Title != DefaultTitle {
			t.Errorf("migration left an empty title: %q", migrated.Title)
		}
		if migrated.Preview != "old question" {
			t.Errorf("migration did not derive a preview: %q", migrated.Preview)
		}
		if migrated.DateLabel == "" {
			t.Error("migration left an empty date label")
		}
		if migrated.UpdatedAt.IsZero() || migrated.CreatedAt.IsZero() {
			t.Error("migration left zero timestamps")
		}

		if _, ok := slot.data["conversations:user-7"]; !ok {
			t.Error("migrated state not written to the namespaced slot")
		}
		if string(slot.data["conversations"]) != string(legacy) {
			t.Error("legacy slot was modified")
		}
	})

	t.Run("seeds when nothing is persisted", func(t *testing.T) {
		store := NewStore()
		adapter := NewAdapter(newMemorySlot(), store, "", quietLogger())
		if err := adapter.Hydrate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.Len() == 0 {
			t.Error("expected seed conversations")
		}
	})

	t.Run("unparsable state falls through to the seed", func(t *testing.T) {
		slot := newMemorySlot()
		slot.data["conversations:anonymous"] = []byte("{not json")

		store := NewStore()
		adapter := NewAdapter(slot, store, "", quietLogger())
		if err := adapter.Hydrate(); err != nil {
			t.Fatalf("parse failure surfaced: %v", err)
		}
		if store.Len() == 0 {
			t.Error("expected seed after unparsable state")
		}
	})

	t.Run("read errors are treated as absent", func(t *testing.T) {
		slot := newMemorySlot()
		slot.readErr = errors.New("io error")

		store := NewStore()
		adapter := NewAdapter(slot, store, "", quietLogger())
		if err := adapter.Hydrate(); err != nil {
			t.Fatalf("read failure surfaced: %v", err)
		}
		if store.Len() == 0 {
			t.Error("expected seed after read failure")
		}
	})
}

func TestAdapterPersist(t *testing.T) {
	t.Run("no writes before hydration", func(t *testing.T) {
		slot := newMemorySlot()
		store := NewStore()
		NewAdapter(slot, store, "", quietLogger())

		store.Upsert(ConversationUpdate{ID: "c1"})

		if slot.writes != 0 {
			t.Errorf("expected no writes before hydration, got %d", slot.writes)
		}
	})

	t.Run("persists every change after hydration", func(t *testing.T) {
		slot := newMemorySlot()
		store := NewStore()
		adapter := NewAdapter(slot, store, "user-7", quietLogger())
		if err := adapter.Hydrate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		before := slot.writes

		store.Upsert(ConversationUpdate{ID: "c1"})
		store.AppendMessage("c1", Message{Role: RoleUser, Content: "hi"})

		if slot.writes != before+2 {
			t.Errorf("expected 2 writes, got %d", slot.writes-before)
		}

		var persisted []Conversation
		if err := json.Unmarshal(slot.data["conversations:user-7"], &persisted); err != nil {
			t.Fatalf("unparsable persisted state: %v", err)
		}
		found := false
		for _, c := range persisted {
			if c.ID == "c1" && len(c.Messages) == 1 {
				found = true
			}
		}
		if !found {
			t.Errorf("persisted state missing the change: %+v", persisted)
		}
	})

	t.Run("chunk appends coalesce into the end-of-send write", func(t *testing.T) {
		slot := newMemorySlot()
		store := NewStore()
		adapter := NewAdapter(slot, store, "user-7", quietLogger())
		if err := adapter.Hydrate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		store.Upsert(ConversationUpdate{ID: "c1", Messages: []Message{{Role: RoleAssistant, Content: ""}}})
		before := slot.writes

		store.AppendToLastMessage("c1", "Hel")
		store.AppendToLastMessage("c1", "lo")
		if slot.writes != before {
			t.Errorf("chunk appends wrote %d times", slot.writes-before)
		}

		store.Touch("c1")
		if slot.writes != before+1 {
			t.Fatalf("expected one write after touch, got %d", slot.writes-before)
		}

		var persisted []Conversation
		if err := json.Unmarshal(slot.data["conversations:user-7"], &persisted); err != nil {
			t.Fatalf("unparsable persisted state: %v", err)
		}
		found := false
		for _, c := range persisted {
			if c.ID == "c1" && len(c.Messages) == 1 && c.Messages[0].Content == "Hello" {
				found = true
			}
		}
		if !found {
			t.Errorf("accumulated content missing from the write: %+v", persisted)
		}
	})
}

// fakeDirectory serves fixed listings and transcripts.
type fakeDirectory struct {
	active    []ConversationSummary
	archived  []ConversationSummary
	messages  map[string][]Message
	listErr   error
	updateErr error
}

func (d *fakeDirectory) List(ctx context.Context, archived bool) ([]ConversationSummary, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	if archived {
		return d.archived, nil
	}
	return d.active, nil
}

func (d *fakeDirectory) Get(ctx context.Context, id string) ([]Message, error) {
	msgs, ok := d.messages[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return msgs, nil
}

func (d *fakeDirectory) Update(ctx context.Context, id string, patch ConversationPatch) error {
	return d.updateErr
}

func TestRemoteAdapter(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("refresh lists both partitions with server timestamps", func(t *testing.T) {
		directory := &fakeDirectory{
			active: []ConversationSummary{
				{ID: "a1", Title: "Active", CreatedAt: base, UpdatedAt: base.Add(time.Hour)},
			},
			archived: []ConversationSummary{
				{ID: "z1", Title: "Archived", Archived: true, CreatedAt: base, UpdatedAt: base},
			},
		}
		store := NewStore()
		remote := NewRemoteAdapter(store, directory, quietLogger())

		if err := remote.Refresh(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if store.Len() != 2 {
			t.Fatalf("expected 2 conversations, got %d", store.Len())
		}
		archived, _ := store.Get("z1")
		if !archived.Archived {
			t.Error("archived flag lost in refresh")
		}
		if !archived.UpdatedAt.Equal(base) {
			t.Errorf("server timestamp replaced: %v", archived.UpdatedAt)
		}
		if store.All()[0].ID != "a1" {
			t.Error("listing not ordered by server timestamps")
		}
	})

	t.Run("refresh surfaces listing failures", func(t *testing.T) {
		directory := &fakeDirectory{listErr: errors.New("502")}
		remote := NewRemoteAdapter(NewStore(), directory, quietLogger())

		if err := remote.Refresh(context.Background()); err == nil {
			t.Fatal("expected listing failure")
		}
	})

	t.Run("open loads the transcript and keeps the timestamp", func(t *testing.T) {
		directory := &fakeDirectory{
			messages: map[string][]Message{
				"a1": {{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}},
			},
		}
		store := NewStore()
		store.Upsert(ConversationUpdate{ID: "a1", UpdatedAt: base})
		remote := NewRemoteAdapter(store, directory, quietLogger())

		if err := remote.Open(context.Background(), "a1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		conv, _ := store.Get("a1")
		if len(conv.Messages) != 2 {
			t.Fatalf("transcript not loaded: %+v", conv.Messages)
		}
		if !conv.UpdatedAt.Equal(base) {
			t.Errorf("plain read bumped the timestamp: %v", conv.UpdatedAt)
		}
		if store.Active() != "a1" {
			t.Errorf("open did not select the conversation: %q", store.Active())
		}
	})

	t.Run("open surfaces unknown conversations", func(t *testing.T) {
		directory := &fakeDirectory{messages: map[string][]Message{}}
		remote := NewRemoteAdapter(NewStore(), directory, quietLogger())

		err := remote.Open(context.Background(), "missing")
		if !errors.Is(err, ErrConversationNotFound) {
			t.Fatalf("expected ErrConversationNotFound, got %v", err)
		}
	})
}
