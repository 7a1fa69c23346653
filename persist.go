package lucide

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Slot is a durable key-value holder for serialized conversation state.
// Read reports absence with ok=false; both blobs are plain serialized
// conversation arrays.
type Slot interface {
	Read(key string) (data []byte, ok bool, err error)
	Write(key string, data []byte) error
}

// DirectoryClient is the conversation listing/read/update service consumed in
// the server-authoritative mode and for best-effort title sync after a send.
type DirectoryClient interface {
	List(ctx context.Context, archived bool) ([]ConversationSummary, error)
	Get(ctx context.Context, id string) ([]Message, error)
	Update(ctx context.Context, id string, patch ConversationPatch) error
}

const (
	// legacySlotKey is the un-namespaced key used only for one-time migration.
	legacySlotKey = "conversations"

	// slotKeyPrefix namespaces the current slot per identity.
	slotKeyPrefix = "conversations:"

	// anonymousNamespace is the fallback suffix when no user context exists.
	anonymousNamespace = "anonymous"
)

// SlotKey returns the namespaced slot key for a user identifier, falling back
// to the anonymous namespace.
func SlotKey(userID string) string {
	if userID == "" {
		userID = anonymousNamespace
	}
	return slotKeyPrefix + userID
}

// Adapter hydrates the store from the durable slot and writes every store
// change back after hydration completes. Writes never fire before hydration,
// so an empty initial collection cannot overwrite durable state.
type Adapter struct {
	slot   Slot
	store  *Store
	key    string
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	hydrated bool
}

// NewAdapter creates a persistence adapter for the given user identity.
func NewAdapter(slot Slot, store *Store, userID string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		slot:   slot,
		store:  store,
		key:    SlotKey(userID),
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (a *Adapter) SetClock(now func() time.Time) {
	a.now = now
}

// Hydrate loads conversation state into the store. Source order: the
// namespaced slot, then the legacy slot (with a one-time forward migration,
// never reversed and leaving the legacy blob untouched), then the fixed seed
// dataset. Parse failures are logged and treated as absent; Hydrate itself
// only fails on a broken store wiring, never on bad data.
func (a *Adapter) Hydrate() error {
	convs, ok := a.readSlot(a.key)
	if !ok {
		if legacy, legacyOK := a.readSlot(legacySlotKey); legacyOK {
			convs = a.normalizeAll(legacy)
			if err := a.writeSlot(convs); err != nil {
				a.logger.Warn("writing migrated slot failed", slog.String("error", err.Error()))
			} else {
				a.logger.Info("migrated legacy conversation slot",
					slog.String("slot", a.key),
					slog.Int("conversations", len(convs)),
				)
			}
			ok = true
		}
	}
	if !ok {
		convs = SeedConversations(a.now())
	}

	a.store.Restore(convs)

	a.mu.Lock()
	a.hydrated = true
	a.mu.Unlock()

	a.store.OnChange(a.persist)
	return nil
}

// Hydrated reports whether hydration has completed.
func (a *Adapter) Hydrated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hydrated
}

func (a *Adapter) readSlot(key string) ([]Conversation, bool) {
	data, ok, err := a.slot.Read(key)
	if err != nil {
		a.logger.Warn("reading slot failed",
			slog.String("slot", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !ok || len(data) == 0 {
		return nil, false
	}

	var convs []Conversation
	if err := json.Unmarshal(data, &convs); err != nil {
		// Corrupt persisted state falls through to the next source.
		a.logger.Warn("slot contents unparsable",
			slog.String("slot", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return convs, true
}

func (a *Adapter) writeSlot(convs []Conversation) error {
	data, err := json.Marshal(convs)
	if err != nil {
		return fmt.Errorf("marshaling conversations: %w", err)
	}
	if err := a.slot.Write(a.key, data); err != nil {
		return fmt.Errorf("writing slot %s: %w", a.key, err)
	}
	return nil
}

// persist serializes the store into the namespaced slot. Registered as the
// store's change listener once hydration completes; failures are logged only.
func (a *Adapter) persist() {
	a.mu.Lock()
	hydrated := a.hydrated
	a.mu.Unlock()
	if !hydrated {
		return
	}

	if err := a.writeSlot(a.store.All()); err != nil {
		a.logger.Warn("persisting conversations failed", slog.String("error", err.Error()))
	}
}

// normalizeAll fills the fields the legacy schema could omit so every
// migrated entry is complete under the current schema.
func (a *Adapter) normalizeAll(convs []Conversation) []Conversation {
	now := a.now()
	out := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.Title == "" {
			c.Title = DefaultTitle
		}
		if c.Messages == nil {
			c.Messages = []Message{}
		}
		if c.Preview == "" && len(c.Messages) > 0 {
			c.Preview = DerivePreview(c.Messages[0].Content)
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = c.CreatedAt
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = now
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = c.UpdatedAt
		}
		c.DateLabel = FormatDateLabel(c.UpdatedAt, now)
		out = append(out, c)
	}
	return out
}

// SeedConversations returns the fixed example dataset used when no persisted
// state exists anywhere.
func SeedConversations(now time.Time) []Conversation {
	created := now.Add(-time.Minute)
	return []Conversation{
		{
			ID:        uuid.New().String(),
			Title:     "Ligue 1 title race",
			Preview:   "Who is leading Ligue 1 right now?",
			DateLabel: FormatDateLabel(now, now),
			Messages: []Message{
				{Role: RoleUser, Content: "Who is leading Ligue 1 right now?", Timestamp: created},
				{Role: RoleAssistant, Content: "Ask me about standings, fixtures or players and I will pull up the latest match data for you.", Timestamp: created.Add(2 * time.Second)},
			},
			CreatedAt: created,
			UpdatedAt: now,
		},
	}
}

// RemoteAdapter is the server-authoritative variant of persistence: the
// conversation service is the system of record and the store is a
// read-through cache of its listings. Write-back happens only as explicit
// confirmation calls issued by the mutation coordinator, never as a
// full-collection dump.
type RemoteAdapter struct {
	store     *Store
	directory DirectoryClient
	logger    *slog.Logger
}

// NewRemoteAdapter creates the server-authoritative adapter.
func NewRemoteAdapter(store *Store, directory DirectoryClient, logger *slog.Logger) *RemoteAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteAdapter{store: store, directory: directory, logger: logger}
}

// Refresh lists both archive partitions and replays them into the store with
// the server's own timestamps.
func (r *RemoteAdapter) Refresh(ctx context.Context) error {
	for _, archived := range []bool{false, true} {
		summaries, err := r.directory.List(ctx, archived)
		if err != nil {
			return fmt.Errorf("listing conversations (archived=%t): %w", archived, err)
		}
		for _, summary := range summaries {
			title := summary.Title
			arch := summary.Archived
			r.store.Upsert(ConversationUpdate{
				ID:        summary.ID,
				Title:     &title,
				Archived:  &arch,
				CreatedAt: summary.CreatedAt,
				UpdatedAt: summary.UpdatedAt,
			})
		}
	}
	return nil
}

// Open fetches the conversation transcript from the service and selects the
// conversation. The server's timestamp is preserved so the listing order does
// not jump on a plain read.
func (r *RemoteAdapter) Open(ctx context.Context, id string) error {
	messages, err := r.directory.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading conversation %s: %w", id, err)
	}

	update := ConversationUpdate{ID: id, Messages: messages}
	if existing, ok := r.store.Get(id); ok {
		update.UpdatedAt = existing.UpdatedAt
		update.CreatedAt = existing.CreatedAt
	}
	r.store.Upsert(update)
	r.store.Select(id)
	return nil
}
