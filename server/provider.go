package server

import (
	"context"

	lucide "github.com/henribesnard/lucide-chat"
)

// TokenStream yields assistant reply fragments in generation order.
// Recv returns io.EOF after the last fragment.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Provider generates a streamed assistant reply for a conversation
// transcript. The language and tier come straight from the client request.
type Provider interface {
	Stream(ctx context.Context, history []lucide.Message, language, tier string) (TokenStream, error)
}
