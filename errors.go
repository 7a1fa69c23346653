package lucide

import "errors"

var (
	// ErrConversationNotFound indicates the conversation was not found.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrUnknownEvent indicates an unrecognized event kind on the wire.
	// Transports skip such events instead of failing the stream.
	ErrUnknownEvent = errors.New("unknown event kind")
)
