package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	lucide "github.com/henribesnard/lucide-chat"
)

const generationFailedMessage = "The assistant is unavailable right now. Please try again."

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChatStream runs one send over server-sent events.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req lucide.StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}
	if len(req.Message) > s.config.MaxMessageLength {
		respondError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Message exceeds maximum length of %d characters", s.config.MaxMessageLength))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithTimeout(r.Context(), s.config.StreamTimeout)
	defer cancel()

	s.generate(ctx, req, func(ev lucide.Event) error {
		data, err := lucide.EncodeEvent(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin policy is handled by the CORS middleware for the REST surface;
	// the socket endpoint accepts the same origins as everything else.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleChatWS runs one send over a WebSocket: the first client frame is the
// stream request, every server frame is one event envelope.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	var req lucide.StreamRequest
	if err := conn.ReadJSON(&req); err != nil || req.Message == "" || len(req.Message) > s.config.MaxMessageLength {
		s.writeWSEvent(conn, lucide.ErrorEvent{Text: "Invalid stream request"})
		s.closeWS(conn)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.StreamTimeout)
	defer cancel()

	s.generate(ctx, req, func(ev lucide.Event) error {
		return s.writeWSEvent(conn, ev)
	})
	s.closeWS(conn)
}

func (s *Server) writeWSEvent(conn *websocket.Conn, ev lucide.Event) error {
	data, err := lucide.EncodeEvent(ev)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) closeWS(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		s.logger.Debug("websocket close failed", slog.String("error", err.Error()))
	}
}

// generate drives one send: session resolution, the status/metadata preamble,
// provider streaming and persistence. Events go out through emit in the exact
// order the client contract requires; an emit failure means the client went
// away and the generation stops.
func (s *Server) generate(ctx context.Context, req lucide.StreamRequest, emit func(lucide.Event) error) {
	now := time.Now()

	var sess *Session
	if req.SessionID != "" {
		existing, err := s.store.Get(ctx, req.SessionID)
		if err != nil {
			s.logger.Warn("loading session failed",
				slog.String("session_id", req.SessionID),
				slog.String("error", err.Error()),
			)
		}
		sess = existing
	}
	if sess == nil {
		sess = &Session{
			ID:        uuid.New().String(),
			Title:     lucide.DeriveTitle(req.Message),
			CreatedAt: now,
		}
	}

	if err := emit(lucide.StatusEvent{Text: "Thinking"}); err != nil {
		return
	}
	if err := emit(lucide.MetadataEvent{SessionID: sess.ID}); err != nil {
		return
	}

	sess.Messages = append(sess.Messages, lucide.Message{
		Role:      lucide.RoleUser,
		Content:   req.Message,
		Timestamp: now,
	})

	stream, err := s.provider.Stream(ctx, sess.Messages, req.Language, req.Tier)
	if err != nil {
		s.logger.Error("provider stream failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		emit(lucide.ErrorEvent{Text: generationFailedMessage})
		return
	}
	defer stream.Close()

	var reply []byte
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.logger.Error("provider stream broke mid-reply",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()),
			)
			emit(lucide.ErrorEvent{Text: generationFailedMessage})
			return
		}
		reply = append(reply, fragment...)
		if err := emit(lucide.ChunkEvent{Text: fragment}); err != nil {
			return
		}
	}

	sess.Messages = append(sess.Messages, lucide.Message{
		Role:      lucide.RoleAssistant,
		Content:   string(reply),
		Timestamp: time.Now(),
	})
	sess.UpdatedAt = time.Now()

	if err := s.store.Save(ctx, sess); err != nil {
		// The reply already reached the client; losing the server copy is
		// logged, not surfaced.
		s.logger.Warn("saving session failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	archived := r.URL.Query().Get("archived") == "true"

	sessions, err := s.store.List(r.Context(), archived)
	if err != nil {
		s.logger.Error("listing sessions failed", slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}

	summaries := make([]lucide.ConversationSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, lucide.ConversationSummary{
			ID:        sess.ID,
			Title:     sess.Title,
			Archived:  sess.Archived,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		})
	}
	respondJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("loading session failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		respondError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}
	if sess == nil {
		respondError(w, http.StatusNotFound, "Conversation not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"messages": sess.Messages})
}

func (s *Server) handlePatchConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch lucide.ConversationPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.store.Update(r.Context(), id, patch); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		s.logger.Error("updating session failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		respondError(w, http.StatusInternalServerError, "Failed to update conversation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
