package lucide

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// scriptedStream replays a fixed event sequence, then EOF or a terminal error.
type scriptedStream struct {
	events []Event
	err    error
	closed bool
}

func (s *scriptedStream) Recv() (Event, error) {
	if len(s.events) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

// scriptedClient hands out one scripted stream per Open call and records the
// requests it saw.
type scriptedClient struct {
	mu       sync.Mutex
	streams  []*scriptedStream
	requests []StreamRequest
	openErr  error
}

func (c *scriptedClient) Open(ctx context.Context, req StreamRequest) (EventStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req)
	if c.openErr != nil {
		return nil, c.openErr
	}
	if len(c.streams) == 0 {
		return &scriptedStream{}, nil
	}
	stream := c.streams[0]
	c.streams = c.streams[1:]
	return stream, nil
}

// recordingDirectory captures Update calls and optionally fails them.
type recordingDirectory struct {
	mu        sync.Mutex
	updates   []ConversationPatch
	updateIDs []string
	updateErr error
}

func (d *recordingDirectory) List(ctx context.Context, archived bool) ([]ConversationSummary, error) {
	return nil, nil
}

func (d *recordingDirectory) Get(ctx context.Context, id string) ([]Message, error) {
	return nil, ErrConversationNotFound
}

func (d *recordingDirectory) Update(ctx context.Context, id string, patch ConversationPatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updateIDs = append(d.updateIDs, id)
	d.updates = append(d.updates, patch)
	return d.updateErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSender(client *scriptedClient, directory DirectoryClient) (*Sender, *Store) {
	store := NewStore()
	sender := NewSender(store, client, directory, NewHooks(), quietLogger(), "en", "standard")
	return sender, store
}

func TestSenderSend(t *testing.T) {
	t.Run("accumulates chunks into the placeholder", func(t *testing.T) {
		client := &scriptedClient{streams: []*scriptedStream{{
			events: []Event{
				StatusEvent{Text: "Thinking"},
				MetadataEvent{SessionID: "srv-1"},
				ChunkEvent{Text: "Hel"},
				ChunkEvent{Text: "lo "},
				ChunkEvent{Text: "world"},
			},
		}}}
		sender, store := newTestSender(client, nil)

		if err := sender.Send(context.Background(), "Who leads Ligue 1?", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		conv, ok := store.Get("srv-1")
		if !ok {
			t.Fatal("expected promoted conversation under the server identity")
		}
		if len(conv.Messages) != 2 {
			t.Fatalf("expected user + assistant messages, got %d", len(conv.Messages))
		}
		if got := conv.Messages[1].Content; got != "Hello world" {
			t.Errorf("expected accumulated reply, got %q", got)
		}
		if got := conv.Messages[1].Role; got != RoleAssistant {
			t.Errorf("expected assistant role, got %q", got)
		}
		if store.Active() != "srv-1" {
			t.Errorf("selection should follow promotion, got %q", store.Active())
		}
	})

	t.Run("derives title from first user message", func(t *testing.T) {
		client := &scriptedClient{}
		sender, store := newTestSender(client, nil)

		sender.Send(context.Background(), "  What is the weather in Lyon tomorrow morning please\n", nil)

		conv := store.All()[0]
		if conv.Title != "What is the weather in Lyon tomo…" {
			t.Errorf("unexpected derived title %q", conv.Title)
		}
	})

	t.Run("keeps existing title on later sends", func(t *testing.T) {
		client := &scriptedClient{}
		sender, store := newTestSender(client, nil)
		title := "My title"
		store.Upsert(ConversationUpdate{ID: "srv-1", Title: &title, Messages: []Message{
			{Role: RoleUser, Content: "earlier"},
		}})
		store.Select("srv-1")

		sender.Send(context.Background(), "follow-up question", nil)

		conv, _ := store.Get("srv-1")
		if conv.Title != "My title" {
			t.Errorf("title overwritten: %q", conv.Title)
		}
	})

	t.Run("empty input is a silent no-op", func(t *testing.T) {
		client := &scriptedClient{}
		sender, store := newTestSender(client, nil)

		if err := sender.Send(context.Background(), "   \n ", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.Len() != 0 {
			t.Error("no-op send created a conversation")
		}
		if len(client.requests) != 0 {
			t.Error("no-op send opened a stream")
		}
	})

	t.Run("draft send omits session identity", func(t *testing.T) {
		client := &scriptedClient{}
		sender, _ := newTestSender(client, nil)

		sender.Send(context.Background(), "hello", nil)

		if len(client.requests) != 1 {
			t.Fatalf("expected 1 request, got %d", len(client.requests))
		}
		if client.requests[0].SessionID != "" {
			t.Errorf("draft send carried a session identity: %q", client.requests[0].SessionID)
		}
	})

	t.Run("existing conversation send carries its identity", func(t *testing.T) {
		client := &scriptedClient{}
		sender, store := newTestSender(client, nil)
		store.Upsert(ConversationUpdate{ID: "srv-1"})
		store.Select("srv-1")

		sender.Send(context.Background(), "hello", nil)

		if client.requests[0].SessionID != "srv-1" {
			t.Errorf("expected session srv-1, got %q", client.requests[0].SessionID)
		}
	})

	t.Run("error event replaces content and halts", func(t *testing.T) {
		client := &scriptedClient{streams: []*scriptedStream{{
			events: []Event{
				ChunkEvent{Text: "partial "},
				ChunkEvent{Text: "reply"},
				ErrorEvent{Text: "Service unavailable"},
				ChunkEvent{Text: "late chunk"},
			},
		}}}
		sender, store := newTestSender(client, nil)

		sender.Send(context.Background(), "question", nil)

		conv := store.All()[0]
		last := conv.Messages[len(conv.Messages)-1]
		if last.Content != "Service unavailable" {
			t.Errorf("expected error text to replace content, got %q", last.Content)
		}
	})

	t.Run("open failure lands in the conversation", func(t *testing.T) {
		client := &scriptedClient{openErr: errors.New("connection refused")}
		sender, store := newTestSender(client, nil)

		if err := sender.Send(context.Background(), "question", nil); err != nil {
			t.Fatalf("transport failure surfaced to the caller: %v", err)
		}

		conv := store.All()[0]
		last := conv.Messages[len(conv.Messages)-1]
		if last.Content != streamFailureMessage {
			t.Errorf("expected failure message, got %q", last.Content)
		}
	})

	t.Run("mid-stream failure lands in the conversation", func(t *testing.T) {
		client := &scriptedClient{streams: []*scriptedStream{{
			events: []Event{ChunkEvent{Text: "partial"}},
			err:    errors.New("connection reset"),
		}}}
		sender, store := newTestSender(client, nil)

		sender.Send(context.Background(), "question", nil)

		conv := store.All()[0]
		last := conv.Messages[len(conv.Messages)-1]
		if last.Content != streamFailureMessage {
			t.Errorf("expected failure message, got %q", last.Content)
		}
	})

	t.Run("concurrent send on same conversation is a no-op", func(t *testing.T) {
		client := &scriptedClient{}
		sender, store := newTestSender(client, nil)
		store.Upsert(ConversationUpdate{ID: "srv-1"})
		store.Select("srv-1")

		sender.mu.Lock()
		sender.inFlight["srv-1"] = struct{}{}
		sender.mu.Unlock()

		if err := sender.Send(context.Background(), "hello", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(client.requests) != 0 {
			t.Error("locked conversation still opened a stream")
		}
		conv, _ := store.Get("srv-1")
		if len(conv.Messages) != 0 {
			t.Error("locked conversation still appended messages")
		}
	})

	t.Run("status cleared when first chunk arrives", func(t *testing.T) {
		client := &scriptedClient{streams: []*scriptedStream{{
			events: []Event{
				StatusEvent{Text: "Searching match data"},
				ChunkEvent{Text: "Lyon"},
			},
		}}}

		var statuses []string
		hooks := NewHooks().OnStatus(func(conversationID, status string) {
			statuses = append(statuses, status)
		})
		store := NewStore()
		sender := NewSender(store, client, nil, hooks, quietLogger(), "en", "standard")

		sender.Send(context.Background(), "question", nil)

		want := []string{"Searching match data", ""}
		if len(statuses) != len(want) {
			t.Fatalf("expected %d status emissions, got %v", len(want), statuses)
		}
		for i := range want {
			if statuses[i] != want[i] {
				t.Errorf("status %d: expected %q, got %q", i, want[i], statuses[i])
			}
		}
	})

	t.Run("syncs title after promotion", func(t *testing.T) {
		client := &scriptedClient{streams: []*scriptedStream{{
			events: []Event{
				MetadataEvent{SessionID: "srv-9"},
				ChunkEvent{Text: "reply"},
			},
		}}}
		directory := &recordingDirectory{}
		sender, _ := newTestSender(client, directory)

		sender.Send(context.Background(), "short question", nil)

		if len(directory.updates) != 1 {
			t.Fatalf("expected 1 title sync, got %d", len(directory.updates))
		}
		if directory.updateIDs[0] != "srv-9" {
			t.Errorf("title synced against %q", directory.updateIDs[0])
		}
		if directory.updates[0].Title == nil || *directory.updates[0].Title != "short question" {
			t.Errorf("unexpected patch %+v", directory.updates[0])
		}
	})

	t.Run("title sync failure does not fail the send", func(t *testing.T) {
		client := &scriptedClient{streams: []*scriptedStream{{
			events: []Event{
				MetadataEvent{SessionID: "srv-9"},
				ChunkEvent{Text: "reply"},
			},
		}}}
		directory := &recordingDirectory{updateErr: errors.New("503")}
		sender, store := newTestSender(client, directory)

		if err := sender.Send(context.Background(), "question", nil); err != nil {
			t.Fatalf("sync failure surfaced: %v", err)
		}
		conv, _ := store.Get("srv-9")
		if conv.Messages[1].Content != "reply" {
			t.Errorf("reply lost: %q", conv.Messages[1].Content)
		}
	})

	t.Run("no title sync for unpromoted drafts", func(t *testing.T) {
		client := &scriptedClient{streams: []*scriptedStream{{
			events: []Event{ChunkEvent{Text: "reply"}},
		}}}
		directory := &recordingDirectory{}
		sender, _ := newTestSender(client, directory)

		sender.Send(context.Background(), "question", nil)

		if len(directory.updates) != 0 {
			t.Errorf("draft conversation synced a title: %+v", directory.updates)
		}
	})
}
