package lucide

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event is one typed unit delivered on the streaming channel. Exactly four
// kinds exist: status, metadata, chunk and error.
type Event interface {
	eventKind() string
}

// StatusEvent updates the transient progress indicator shown while the
// assistant prepares a reply. It never becomes part of the message content.
type StatusEvent struct {
	Text string
}

// MetadataEvent carries stream-level metadata, notably the server-assigned
// session identity used to promote draft conversations.
type MetadataEvent struct {
	SessionID string
}

// ChunkEvent is one fragment of assistant message content, applied in
// arrival order.
type ChunkEvent struct {
	Text string
}

// ErrorEvent terminates the stream with a user-visible error.
type ErrorEvent struct {
	Text string
}

func (StatusEvent) eventKind() string   { return "status" }
func (MetadataEvent) eventKind() string { return "metadata" }
func (ChunkEvent) eventKind() string    { return "chunk" }
func (ErrorEvent) eventKind() string    { return "error" }

// StreamRequest describes one send on the streaming channel. SessionID is
// empty for drafts so the server creates a fresh session.
type StreamRequest struct {
	Message   string            `json:"message"`
	SessionID string            `json:"sessionId,omitempty"`
	Language  string            `json:"language,omitempty"`
	Context   *ContextSelection `json:"context,omitempty"`
	Tier      string            `json:"tier,omitempty"`
}

// EventStream is a lazy, finite, non-restartable sequence of events.
// Recv returns io.EOF after the last event.
type EventStream interface {
	Recv() (Event, error)
	Close() error
}

// StreamClient opens the streaming channel for one send.
type StreamClient interface {
	Open(ctx context.Context, req StreamRequest) (EventStream, error)
}

// wireEvent is the JSON envelope shared by every transport binding.
type wireEvent struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// EncodeEvent marshals an event into its wire envelope.
func EncodeEvent(ev Event) ([]byte, error) {
	var w wireEvent
	switch e := ev.(type) {
	case StatusEvent:
		w = wireEvent{Type: "status", Text: e.Text}
	case MetadataEvent:
		w = wireEvent{Type: "metadata", SessionID: e.SessionID}
	case ChunkEvent:
		w = wireEvent{Type: "chunk", Text: e.Text}
	case ErrorEvent:
		w = wireEvent{Type: "error", Text: e.Text}
	default:
		return nil, fmt.Errorf("encoding event: unsupported type %T", ev)
	}
	return json.Marshal(w)
}

// DecodeEvent unmarshals a wire envelope into its event kind. Unrecognized
// kinds return ErrUnknownEvent so callers can skip them.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}

	switch w.Type {
	case "status":
		return StatusEvent{Text: w.Text}, nil
	case "metadata":
		return MetadataEvent{SessionID: w.SessionID}, nil
	case "chunk":
		return ChunkEvent{Text: w.Text}, nil
	case "error":
		return ErrorEvent{Text: w.Text}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, w.Type)
	}
}
