package lucide

import (
	"context"
	"log/slog"
)

// Command pairs a forward store mutation with its compensating inverse.
// There is no durability requirement across restarts, so a command is a pair
// of closures rather than a transaction log entry.
type Command struct {
	ConversationID string
	Apply          func()
	Revert         func()
}

// ConfirmFn is the remote confirmation call for an optimistic mutation.
type ConfirmFn func(ctx context.Context) error

// Coordinator applies optimistic mutations: the local change lands
// immediately and always succeeds from the caller's perspective, the remote
// confirmation runs after, and a failed confirmation rolls the local change
// back and reports the failure exactly once.
type Coordinator struct {
	hooks  *Hooks
	logger *slog.Logger
}

// NewCoordinator creates a coordinator reporting failures through hooks.
func NewCoordinator(hooks *Hooks, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{hooks: hooks, logger: logger}
}

// Do runs one optimistic mutation. The returned error is the confirmation
// failure after rollback; callers treat it as transient and dismissible.
func (c *Coordinator) Do(ctx context.Context, cmd Command, confirm ConfirmFn) error {
	cmd.Apply()

	if confirm == nil {
		return nil
	}

	if err := confirm(ctx); err != nil {
		cmd.Revert()
		c.logger.Warn("optimistic mutation rolled back",
			slog.String("conversation_id", cmd.ConversationID),
			slog.String("error", err.Error()),
		)
		c.hooks.emitError(cmd.ConversationID, err)
		return err
	}

	return nil
}
