// Package postgres implements the server session store on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	lucide "github.com/henribesnard/lucide-chat"
	"github.com/henribesnard/lucide-chat/server"
)

// Store implements server.SessionStore with PostgreSQL
type Store struct {
	pool      *pgxpool.Pool
	tableName string
}

// Option configures the store
type Option func(*Store)

// WithTableName sets a custom table name
func WithTableName(name string) Option {
	return func(s *Store) {
		s.tableName = name
	}
}

// New creates a new PostgreSQL session store
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:      pool,
		tableName: "sessions",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, id string) (*server.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, title, messages, archived, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, s.tableName)

	row := s.pool.QueryRow(ctx, query, id)

	var sess server.Session
	var messagesJSON []byte

	err := row.Scan(
		&sess.ID,
		&sess.Title,
		&messagesJSON,
		&sess.Archived,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if err := json.Unmarshal(messagesJSON, &sess.Messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}

	return &sess, nil
}

func (s *Store) Save(ctx context.Context, sess *server.Session) error {
	messagesJSON, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, title, messages, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			messages = EXCLUDED.messages,
			archived = EXCLUDED.archived,
			updated_at = EXCLUDED.updated_at
	`, s.tableName)

	_, err = s.pool.Exec(ctx, query,
		sess.ID, sess.Title, messagesJSON, sess.Archived, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	return nil
}

func (s *Store) List(ctx context.Context, archived bool) ([]*server.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, title, messages, archived, created_at, updated_at
		FROM %s
		WHERE archived = $1
		ORDER BY updated_at DESC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, archived)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*server.Session
	for rows.Next() {
		var sess server.Session
		var messagesJSON []byte

		if err := rows.Scan(
			&sess.ID, &sess.Title, &messagesJSON, &sess.Archived, &sess.CreatedAt, &sess.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		if err := json.Unmarshal(messagesJSON, &sess.Messages); err != nil {
			return nil, fmt.Errorf("unmarshaling messages: %w", err)
		}

		sessions = append(sessions, &sess)
	}

	return sessions, rows.Err()
}

func (s *Store) Update(ctx context.Context, id string, patch lucide.ConversationPatch) error {
	var sets []string
	var args []any
	argIdx := 1

	if patch.Title != nil {
		sets = append(sets, fmt.Sprintf("title = $%d", argIdx))
		args = append(args, *patch.Title)
		argIdx++
	}
	if patch.Archived != nil {
		sets = append(sets, fmt.Sprintf("archived = $%d", argIdx))
		args = append(args, *patch.Archived)
		argIdx++
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`,
		s.tableName, strings.Join(sets, ", "), argIdx)
	args = append(args, id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return server.ErrSessionNotFound
	}

	return nil
}

// Migration returns the SQL to create the sessions table
func Migration(tableName string) string {
	if tableName == "" {
		tableName = "sessions"
	}
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			messages JSONB NOT NULL DEFAULT '[]',
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_%s_archived ON %s (archived, updated_at DESC);
	`, tableName, tableName, tableName)
}
