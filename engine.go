package lucide

import (
	"context"
	"log/slog"
)

// Engine is the shared conversation-session core: one state container wired
// to a streaming channel, a durable slot and an optional conversation
// service. Platform bindings render its store and call its operations; they
// never touch conversation state directly.
type Engine struct {
	config  Config
	store   *Store
	sender  *Sender
	coord   *Coordinator
	adapter *Adapter
	remote  *RemoteAdapter
	hooks   *Hooks
	logger  *slog.Logger
}

// New creates an engine with the given configuration.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	store := NewStore()
	store.SetClock(cfg.Clock)

	sender := NewSender(store, cfg.Stream, cfg.Directory, cfg.Hooks, cfg.Logger, cfg.Language, cfg.Tier)
	sender.SetClock(cfg.Clock)

	e := &Engine{
		config: cfg,
		store:  store,
		sender: sender,
		coord:  NewCoordinator(cfg.Hooks, cfg.Logger),
		hooks:  cfg.Hooks,
		logger: cfg.Logger,
	}

	if cfg.Slot != nil {
		e.adapter = NewAdapter(cfg.Slot, store, cfg.UserID, cfg.Logger)
		e.adapter.SetClock(cfg.Clock)
	}
	if cfg.Directory != nil {
		e.remote = NewRemoteAdapter(store, cfg.Directory, cfg.Logger)
	}

	return e, nil
}

// Store exposes the conversation collection for rendering.
func (e *Engine) Store() *Store {
	return e.store
}

// Hydrate loads durable local state into the store and arms write-back.
// A no-op when the engine has no local slot.
func (e *Engine) Hydrate() error {
	if e.adapter == nil {
		return nil
	}
	return e.adapter.Hydrate()
}

// Refresh replays the conversation service's listings into the store.
// A no-op when the engine has no directory client.
func (e *Engine) Refresh(ctx context.Context) error {
	if e.remote == nil {
		return nil
	}
	return e.remote.Refresh(ctx)
}

// Open selects a conversation, fetching its transcript from the conversation
// service first when one is configured.
func (e *Engine) Open(ctx context.Context, id string) error {
	if e.remote != nil {
		return e.remote.Open(ctx, id)
	}
	if _, ok := e.store.Get(id); !ok {
		return ErrConversationNotFound
	}
	e.store.Select(id)
	return nil
}

// Compose deselects any conversation so the next send starts a fresh draft.
func (e *Engine) Compose() {
	e.store.Select("")
}

// Send delivers text to the assistant on the active conversation. See
// Sender.Send for the no-op and failure semantics.
func (e *Engine) Send(ctx context.Context, text string, selection *ContextSelection) error {
	return e.sender.Send(ctx, text, selection)
}

// Status returns the transient progress indicator for a conversation's
// in-flight send.
func (e *Engine) Status(conversationID string) string {
	return e.sender.Status(conversationID)
}

// Sending reports whether a send is in flight for the conversation.
func (e *Engine) Sending(conversationID string) bool {
	return e.sender.Sending(conversationID)
}

// ToggleArchive optimistically flips the conversation's archive flag,
// confirming against the conversation service when one is configured and
// rolling back on a failed confirmation.
func (e *Engine) ToggleArchive(ctx context.Context, id string) error {
	conv, ok := e.store.Get(id)
	if !ok {
		return ErrConversationNotFound
	}

	next := !conv.Archived
	cmd := Command{
		ConversationID: id,
		Apply:          func() { e.store.SetArchived(id, next) },
		Revert:         func() { e.store.SetArchived(id, !next) },
	}

	var confirm ConfirmFn
	if e.config.Directory != nil {
		confirm = func(ctx context.Context) error {
			archived := next
			return e.config.Directory.Update(ctx, id, ConversationPatch{Archived: &archived})
		}
	}
	return e.coord.Do(ctx, cmd, confirm)
}

// RenameTitle optimistically renames a conversation, confirming against the
// conversation service when one is configured.
func (e *Engine) RenameTitle(ctx context.Context, id, title string) error {
	conv, ok := e.store.Get(id)
	if !ok {
		return ErrConversationNotFound
	}

	previous := conv.Title
	updatedAt := conv.UpdatedAt
	cmd := Command{
		ConversationID: id,
		Apply: func() {
			t := title
			e.store.Upsert(ConversationUpdate{ID: id, Title: &t, UpdatedAt: updatedAt})
		},
		Revert: func() {
			t := previous
			e.store.Upsert(ConversationUpdate{ID: id, Title: &t, UpdatedAt: updatedAt})
		},
	}

	var confirm ConfirmFn
	if e.config.Directory != nil {
		confirm = func(ctx context.Context) error {
			t := title
			return e.config.Directory.Update(ctx, id, ConversationPatch{Title: &t})
		}
	}
	return e.coord.Do(ctx, cmd, confirm)
}
