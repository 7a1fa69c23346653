package lucide

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// streamFailureMessage replaces the placeholder content when the channel
// cannot be opened or dies mid-stream without a proper error event.
const streamFailureMessage = "Sorry, something went wrong. Please try again."

// Sender drives one send operation from user input to stream completion: it
// resolves or synthesizes the target conversation, appends the user message
// and the assistant placeholder, consumes the event stream, and promotes the
// draft identity when the server assigns a session.
type Sender struct {
	store     *Store
	stream    StreamClient
	directory DirectoryClient
	hooks     *Hooks
	logger    *slog.Logger
	language  string
	tier      string
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	status   map[string]string
}

// NewSender creates a sender bound to the given store and streaming channel.
// The directory client is optional; when present it receives best-effort
// title syncs after a send completes on a server-backed conversation.
func NewSender(store *Store, stream StreamClient, directory DirectoryClient, hooks *Hooks, logger *slog.Logger, language, tier string) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		store:     store,
		stream:    stream,
		directory: directory,
		hooks:     hooks,
		logger:    logger,
		language:  language,
		tier:      tier,
		now:       time.Now,
		inFlight:  make(map[string]struct{}),
		status:    make(map[string]string),
	}
}

// SetClock overrides the time source. Used by tests.
func (s *Sender) SetClock(now func() time.Time) {
	s.now = now
}

// Sending reports whether a send is in flight for the conversation.
func (s *Sender) Sending(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[conversationID]
	return ok
}

// Status returns the transient progress indicator for the conversation's
// in-flight send, or "" when there is none.
func (s *Sender) Status(conversationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[conversationID]
}

// Send delivers text to the assistant on the active conversation, creating a
// local draft when none is selected. Empty input and a send already in flight
// for the target conversation are silent no-ops, not errors. Every failure
// path ends inside the conversation itself; Send never surfaces a transport
// failure to the caller.
func (s *Sender) Send(ctx context.Context, text string, selection *ContextSelection) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	targetID := s.store.Active()
	if targetID == "" {
		targetID = NewDraftID()
		s.store.Upsert(ConversationUpdate{ID: targetID, Context: selection})
		s.store.Select(targetID)
	}

	if !s.acquire(targetID) {
		return nil
	}
	defer s.release(targetID)

	conv, ok := s.store.Get(targetID)
	if !ok {
		return ErrConversationNotFound
	}

	s.store.AppendMessage(targetID, Message{Role: RoleUser, Content: text, Timestamp: s.now()})

	if conv.Title == DefaultTitle && countUserMessages(conv.Messages) == 0 {
		title := DeriveTitle(text)
		preview := DerivePreview(text)
		s.store.Upsert(ConversationUpdate{ID: targetID, Title: &title, Preview: &preview, Context: selection})
	}

	s.store.AppendMessage(targetID, Message{Role: RoleAssistant, Content: "", Timestamp: s.now()})

	req := StreamRequest{
		Message:  text,
		Language: s.language,
		Context:  selection,
		Tier:     s.tier,
	}
	if !IsDraftID(targetID) {
		req.SessionID = targetID
	}

	var serverID string
	events, err := s.stream.Open(ctx, req)
	if err != nil {
		s.logger.Warn("stream open failed",
			slog.String("conversation_id", targetID),
			slog.String("error", err.Error()),
		)
		s.store.ReplaceLastMessageContent(targetID, streamFailureMessage)
	} else {
		serverID = s.consume(events, targetID)
		if cerr := events.Close(); cerr != nil {
			s.logger.Debug("closing event stream", slog.String("error", cerr.Error()))
		}
	}

	if serverID != "" && s.store.Promote(targetID, serverID) {
		targetID = serverID
	}
	s.store.Touch(targetID)

	if !IsDraftID(targetID) && s.directory != nil {
		if conv, ok := s.store.Get(targetID); ok {
			title := conv.Title
			if err := s.directory.Update(ctx, targetID, ConversationPatch{Title: &title}); err != nil {
				// Local state stays authoritative; server-side persistence is
				// best effort after a completed send.
				s.logger.Warn("title sync failed",
					slog.String("conversation_id", targetID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return nil
}

// consume applies the ordered event sequence to the conversation's placeholder
// message and returns the server-assigned session identity, if one arrived.
// The identity is only reported here, at end of stream, so that promotion
// never happens on behalf of a cancelled reading loop.
func (s *Sender) consume(events EventStream, conversationID string) (serverID string) {
	defer s.clearStatus(conversationID)

	sawChunk := false
	for {
		ev, err := events.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("stream failed mid-send",
					slog.String("conversation_id", conversationID),
					slog.String("error", err.Error()),
				)
				s.store.ReplaceLastMessageContent(conversationID, streamFailureMessage)
			}
			return serverID
		}

		switch e := ev.(type) {
		case StatusEvent:
			s.setStatus(conversationID, e.Text)
		case MetadataEvent:
			if e.SessionID != "" {
				serverID = e.SessionID
			}
		case ChunkEvent:
			if !sawChunk {
				sawChunk = true
				s.clearStatus(conversationID)
			}
			s.store.AppendToLastMessage(conversationID, e.Text)
		case ErrorEvent:
			// Remaining events, if any, are not applicable.
			s.store.ReplaceLastMessageContent(conversationID, e.Text)
			return serverID
		}
	}
}

func (s *Sender) acquire(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[conversationID]; busy {
		return false
	}
	s.inFlight[conversationID] = struct{}{}
	return true
}

func (s *Sender) release(conversationID string) {
	s.mu.Lock()
	delete(s.inFlight, conversationID)
	delete(s.status, conversationID)
	s.mu.Unlock()
}

func (s *Sender) setStatus(conversationID, status string) {
	s.mu.Lock()
	s.status[conversationID] = status
	s.mu.Unlock()
	s.hooks.emitStatus(conversationID, status)
}

func (s *Sender) clearStatus(conversationID string) {
	s.mu.Lock()
	_, had := s.status[conversationID]
	delete(s.status, conversationID)
	s.mu.Unlock()
	if had {
		s.hooks.emitStatus(conversationID, "")
	}
}

func countUserMessages(messages []Message) int {
	n := 0
	for _, m := range messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}
